package displays

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-signage/backend/internal/models"
)

// Repository handles display persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a displays repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new display.
func (r *Repository) Create(ctx context.Context, d *models.Display) error {
	const q = `INSERT INTO displays (id, tenant_id, name, location, timezone, pairing_code_hash, is_active)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, d.TenantID, d.Name, d.Location, d.Timezone, d.PairingCodeHash, d.IsActive).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

// GetByID returns a display by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Display, error) {
	const q = `SELECT id, tenant_id, name, location, timezone, pairing_code_hash, is_active, created_at, updated_at
		FROM displays WHERE id = $1`
	var d models.Display
	err := r.pool.QueryRow(ctx, q, id).Scan(&d.ID, &d.TenantID, &d.Name, &d.Location, &d.Timezone, &d.PairingCodeHash, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListByTenant returns all displays belonging to a tenant.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Display, error) {
	const q = `SELECT id, tenant_id, name, location, timezone, pairing_code_hash, is_active, created_at, updated_at
		FROM displays WHERE tenant_id = $1 ORDER BY name`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Display
	for rows.Next() {
		var d models.Display
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.Location, &d.Timezone, &d.PairingCodeHash, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// ListActive returns all active displays across tenants. Used at startup to
// bring playback engines up for every paired screen.
func (r *Repository) ListActive(ctx context.Context) ([]models.Display, error) {
	const q = `SELECT id, tenant_id, name, location, timezone, pairing_code_hash, is_active, created_at, updated_at
		FROM displays WHERE is_active ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Display
	for rows.Next() {
		var d models.Display
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.Location, &d.Timezone, &d.PairingCodeHash, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// Update updates display fields.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, location, timezone *string, isActive *bool) error {
	const q = `UPDATE displays SET
		name = COALESCE($1, name),
		location = COALESCE($2, location),
		timezone = COALESCE($3, timezone),
		is_active = COALESCE($4, is_active),
		updated_at = NOW()
		WHERE id = $5`
	_, err := r.pool.Exec(ctx, q, name, location, timezone, isActive, id)
	return err
}

// SetPairingCodeHash replaces the pairing code hash.
func (r *Repository) SetPairingCodeHash(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `UPDATE displays SET pairing_code_hash = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, hash, id)
	return err
}

// Delete removes a display by ID.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM displays WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
