package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-signage/backend/internal/models"
)

// CatalogSource loads the enabled schedules for a display.
type CatalogSource interface {
	ListEnabledByDisplay(ctx context.Context, displayID uuid.UUID) ([]models.AdvertisementSchedule, error)
}

// CatalogCache serves per-display schedule snapshots so the 1 Hz playback tick
// never hits the database. Snapshots refresh lazily after the TTL; on refresh
// failure the stale snapshot keeps serving.
type CatalogCache struct {
	src    CatalogSource
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*catalogEntry
}

type catalogEntry struct {
	schedules []models.AdvertisementSchedule
	loadedAt  time.Time
}

// NewCatalogCache creates a catalog cache with the given refresh TTL.
func NewCatalogCache(src CatalogSource, ttl time.Duration, logger *zap.Logger) *CatalogCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogCache{
		src:     src,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[uuid.UUID]*catalogEntry),
	}
}

// Schedules returns the current catalog snapshot for a display.
func (c *CatalogCache) Schedules(ctx context.Context, displayID uuid.UUID) ([]models.AdvertisementSchedule, error) {
	c.mu.Lock()
	entry := c.entries[displayID]
	fresh := entry != nil && time.Since(entry.loadedAt) < c.ttl
	c.mu.Unlock()
	if fresh {
		return entry.schedules, nil
	}

	list, err := c.src.ListEnabledByDisplay(ctx, displayID)
	if err != nil {
		if entry != nil {
			c.logger.Warn("catalog refresh failed, serving stale snapshot",
				zap.Error(err), zap.String("display_id", displayID.String()))
			return entry.schedules, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[displayID] = &catalogEntry{schedules: list, loadedAt: time.Now()}
	c.mu.Unlock()
	return list, nil
}

// Invalidate drops the cached snapshot for a display (call after schedule edits).
func (c *CatalogCache) Invalidate(displayID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, displayID)
	c.mu.Unlock()
}
