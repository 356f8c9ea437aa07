package tenants

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-signage/backend/internal/models"
)

// Membership roles within a tenant.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Repository handles tenant and tenant_member persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tenants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create creates a tenant.
func (r *Repository) Create(ctx context.Context, t *models.Tenant) error {
	const q = `INSERT INTO tenants (id, name, invite_code, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, t.Name, t.InviteCode, t.CreatedBy).
		Scan(&t.ID, &t.CreatedAt)
}

// GetByID returns a tenant by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	const q = `SELECT id, name, invite_code, created_by, created_at FROM tenants WHERE id = $1`
	var t models.Tenant
	err := r.pool.QueryRow(ctx, q, id).Scan(&t.ID, &t.Name, &t.InviteCode, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByInviteCode returns a tenant by invite code.
func (r *Repository) GetByInviteCode(ctx context.Context, code string) (*models.Tenant, error) {
	const q = `SELECT id, name, invite_code, created_by, created_at FROM tenants WHERE invite_code = $1`
	var t models.Tenant
	err := r.pool.QueryRow(ctx, q, code).Scan(&t.ID, &t.Name, &t.InviteCode, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AddMember adds a user to a tenant with a role.
func (r *Repository) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	const q = `INSERT INTO tenant_members (tenant_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := r.pool.Exec(ctx, q, tenantID, userID, role)
	return err
}

// MemberRole returns the user's role in the tenant, or empty if not a member.
func (r *Repository) MemberRole(ctx context.Context, tenantID, userID uuid.UUID) (string, error) {
	const q = `SELECT role FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`
	var role string
	err := r.pool.QueryRow(ctx, q, tenantID, userID).Scan(&role)
	if err != nil {
		return "", err
	}
	return role, nil
}

// UserHasTenantAccess returns true if the user is a member of the tenant.
func (r *Repository) UserHasTenantAccess(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	role, err := r.MemberRole(ctx, tenantID, userID)
	if err != nil || role == "" {
		return false, nil
	}
	return true, nil
}

// ListForUser returns tenants the user is a member of.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Tenant, error) {
	const q = `SELECT t.id, t.name, t.invite_code, t.created_by, t.created_at
		FROM tenants t
		INNER JOIN tenant_members tm ON tm.tenant_id = t.id
		WHERE tm.user_id = $1
		ORDER BY t.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.InviteCode, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// Member represents a tenant member with user details.
type Member struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// ListMembers returns members of a tenant (join tenant_members + users).
func (r *Repository) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]Member, error) {
	const q = `SELECT tm.user_id, u.email, COALESCE(u.full_name, ''), tm.role, tm.joined_at
		FROM tenant_members tm
		INNER JOIN users u ON u.id = tm.user_id
		WHERE tm.tenant_id = $1
		ORDER BY tm.joined_at ASC`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.FullName, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
