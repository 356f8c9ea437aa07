package schedule

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-signage/backend/internal/models"
)

const scheduleColumns = `id, display_id, enabled, media_type, content_ref, COALESCE(s3_key,''),
	title, caption, frequency_seconds, duration_seconds, play_count,
	starts_on, ends_on, time_start, time_end, days_of_week, priority, COALESCE(animation,''),
	created_at, updated_at`

// Repository handles advertisement schedule persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a schedule repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new schedule.
func (r *Repository) Create(ctx context.Context, s *models.AdvertisementSchedule) error {
	const q = `INSERT INTO schedules
		(id, display_id, enabled, media_type, content_ref, s3_key, title, caption,
		 frequency_seconds, duration_seconds, play_count, starts_on, ends_on,
		 time_start, time_end, days_of_week, priority, animation)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		s.DisplayID, s.Enabled, s.MediaType, s.ContentRef, s.S3Key, s.Title, s.Caption,
		s.FrequencySeconds, s.DurationSeconds, s.PlayCount, s.StartsOn, s.EndsOn,
		s.TimeStart, s.TimeEnd, toInt32(s.DaysOfWeek), s.Priority, s.Animation,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a schedule by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.AdvertisementSchedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	row := r.pool.QueryRow(ctx, q, id)
	s, err := scanSchedule(row)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByDisplay returns all schedules for a display.
func (r *Repository) ListByDisplay(ctx context.Context, displayID uuid.UUID) ([]models.AdvertisementSchedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE display_id = $1 ORDER BY created_at`
	return r.list(ctx, q, displayID)
}

// ListEnabledByDisplay returns enabled schedules for a display (the playback catalog).
func (r *Repository) ListEnabledByDisplay(ctx context.Context, displayID uuid.UUID) ([]models.AdvertisementSchedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE display_id = $1 AND enabled = TRUE ORDER BY created_at`
	return r.list(ctx, q, displayID)
}

// Toggle flips enabled for a schedule and returns the new value.
func (r *Repository) Toggle(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE schedules SET enabled = NOT enabled, updated_at = NOW() WHERE id = $1 RETURNING enabled`
	var enabled bool
	if err := r.pool.QueryRow(ctx, q, id).Scan(&enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// Update rewrites the editable fields of a schedule.
func (r *Repository) Update(ctx context.Context, s *models.AdvertisementSchedule) error {
	const q = `UPDATE schedules SET
		enabled=$2, media_type=$3, content_ref=$4, s3_key=$5, title=$6, caption=$7,
		frequency_seconds=$8, duration_seconds=$9, play_count=$10, starts_on=$11, ends_on=$12,
		time_start=$13, time_end=$14, days_of_week=$15, priority=$16, animation=$17, updated_at=NOW()
		WHERE id = $1 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q,
		s.ID, s.Enabled, s.MediaType, s.ContentRef, s.S3Key, s.Title, s.Caption,
		s.FrequencySeconds, s.DurationSeconds, s.PlayCount, s.StartsOn, s.EndsOn,
		s.TimeStart, s.TimeEnd, toInt32(s.DaysOfWeek), s.Priority, s.Animation,
	).Scan(&s.UpdatedAt)
}

// Delete removes a schedule by ID.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM schedules WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.AdvertisementSchedule, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AdvertisementSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanSchedule(row pgx.Row) (models.AdvertisementSchedule, error) {
	var s models.AdvertisementSchedule
	var days []int32
	err := row.Scan(&s.ID, &s.DisplayID, &s.Enabled, &s.MediaType, &s.ContentRef, &s.S3Key,
		&s.Title, &s.Caption, &s.FrequencySeconds, &s.DurationSeconds, &s.PlayCount,
		&s.StartsOn, &s.EndsOn, &s.TimeStart, &s.TimeEnd, &days, &s.Priority, &s.Animation,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.DaysOfWeek = fromInt32(days)
	return s, nil
}

func toInt32(days []int) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func fromInt32(days []int32) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}
