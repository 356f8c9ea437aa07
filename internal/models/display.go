package models

import (
	"time"

	"github.com/google/uuid"
)

// Display is a physical signage screen belonging to a tenant.
type Display struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	Name            string    `json:"name"`
	Location        string    `json:"location"`
	Timezone        string    `json:"timezone"` // IANA name, e.g. Asia/Manila; schedules match in this zone
	PairingCodeHash string    `json:"-"`
	IsActive        bool      `json:"is_active"` // active displays get a playback engine on boot
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
