package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an organization that owns displays and schedules.
type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	InviteCode string    `json:"invite_code,omitempty"`
	CreatedBy  uuid.UUID `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// TenantMember links a user to a tenant.
type TenantMember struct {
	TenantID uuid.UUID `json:"tenant_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"` // owner or member
	JoinedAt time.Time `json:"joined_at"`
}
