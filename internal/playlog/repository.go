package playlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-signage/backend/internal/models"
)

// Repository handles playback_log persistence (proof of play).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a playback log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record inserts a proof-of-play entry. Satisfies the playback engine's
// PlayLogger dependency.
func (r *Repository) Record(ctx context.Context, e *models.PlaybackLogEntry) error {
	const q = `INSERT INTO playback_log (id, display_id, schedule_id, status, reason, plays, started_at, finished_at)
		VALUES (gen_random_uuid(), $1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		RETURNING id`
	return r.pool.QueryRow(ctx, q, e.DisplayID, e.ScheduleID, e.Status, e.Reason, e.Plays, e.StartedAt, e.FinishedAt).
		Scan(&e.ID)
}

// ListByDisplay returns proof-of-play entries for a display within [from, to),
// newest first, capped at limit.
func (r *Repository) ListByDisplay(ctx context.Context, displayID uuid.UUID, from, to time.Time, limit int) ([]models.PlaybackLogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	const q = `SELECT id, display_id, schedule_id, status, COALESCE(reason, ''), plays, started_at, finished_at
		FROM playback_log
		WHERE display_id = $1 AND finished_at >= $2 AND finished_at < $3
		ORDER BY finished_at DESC
		LIMIT $4`
	rows, err := r.pool.Query(ctx, q, displayID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PlaybackLogEntry
	for rows.Next() {
		var e models.PlaybackLogEntry
		if err := rows.Scan(&e.ID, &e.DisplayID, &e.ScheduleID, &e.Status, &e.Reason, &e.Plays, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// ScheduleAggregates holds play totals for one schedule on one display.
type ScheduleAggregates struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	Played     int64     `json:"played"`
	Skipped    int64     `json:"skipped"`
	TimedOut   int64     `json:"timed_out"`
	TotalPlays int64     `json:"total_plays"`
}

// AggregateByDisplay returns per-schedule outcome totals for reporting.
func (r *Repository) AggregateByDisplay(ctx context.Context, displayID uuid.UUID, from, to time.Time) ([]ScheduleAggregates, error) {
	const q = `SELECT schedule_id,
		COUNT(*) FILTER (WHERE status = 'played'),
		COUNT(*) FILTER (WHERE status = 'skipped'),
		COUNT(*) FILTER (WHERE status = 'timed_out'),
		COALESCE(SUM(plays), 0)
		FROM playback_log
		WHERE display_id = $1 AND finished_at >= $2 AND finished_at < $3
		GROUP BY schedule_id
		ORDER BY schedule_id`
	rows, err := r.pool.Query(ctx, q, displayID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ScheduleAggregates
	for rows.Next() {
		var a ScheduleAggregates
		if err := rows.Scan(&a.ScheduleID, &a.Played, &a.Skipped, &a.TimedOut, &a.TotalPlays); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
