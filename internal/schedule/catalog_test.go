package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina-signage/backend/internal/models"
)

type fakeCatalogSource struct {
	mu    sync.Mutex
	list  []models.AdvertisementSchedule
	err   error
	loads int
}

func (f *fakeCatalogSource) ListEnabledByDisplay(ctx context.Context, displayID uuid.UUID) ([]models.AdvertisementSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func (f *fakeCatalogSource) set(list []models.AdvertisementSchedule, err error) {
	f.mu.Lock()
	f.list, f.err = list, err
	f.mu.Unlock()
}

func (f *fakeCatalogSource) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func TestCatalogCacheServesSnapshotWithinTTL(t *testing.T) {
	src := &fakeCatalogSource{list: []models.AdvertisementSchedule{{ID: uuid.New()}}}
	cache := NewCatalogCache(src, time.Minute, nil)
	displayID := uuid.New()

	first, err := cache.Schedules(context.Background(), displayID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	for i := 0; i < 10; i++ {
		again, err := cache.Schedules(context.Background(), displayID)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 1, src.loadCount(), "snapshot serves without reloading inside the TTL")
}

func TestCatalogCacheRefreshesAfterTTL(t *testing.T) {
	src := &fakeCatalogSource{}
	cache := NewCatalogCache(src, 10*time.Millisecond, nil)
	displayID := uuid.New()

	_, err := cache.Schedules(context.Background(), displayID)
	require.NoError(t, err)

	updated := []models.AdvertisementSchedule{{ID: uuid.New()}}
	src.set(updated, nil)
	time.Sleep(20 * time.Millisecond)

	list, err := cache.Schedules(context.Background(), displayID)
	require.NoError(t, err)
	assert.Equal(t, updated, list)
	assert.Equal(t, 2, src.loadCount())
}

func TestCatalogCacheServesStaleOnRefreshFailure(t *testing.T) {
	good := []models.AdvertisementSchedule{{ID: uuid.New()}}
	src := &fakeCatalogSource{list: good}
	cache := NewCatalogCache(src, 10*time.Millisecond, nil)
	displayID := uuid.New()

	_, err := cache.Schedules(context.Background(), displayID)
	require.NoError(t, err)

	src.set(nil, errors.New("connection refused"))
	time.Sleep(20 * time.Millisecond)

	list, err := cache.Schedules(context.Background(), displayID)
	require.NoError(t, err, "a stale snapshot beats an error")
	assert.Equal(t, good, list)
}

func TestCatalogCacheErrorWithoutSnapshot(t *testing.T) {
	src := &fakeCatalogSource{err: errors.New("connection refused")}
	cache := NewCatalogCache(src, time.Minute, nil)

	_, err := cache.Schedules(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestCatalogCacheInvalidateForcesReload(t *testing.T) {
	src := &fakeCatalogSource{}
	cache := NewCatalogCache(src, time.Minute, nil)
	displayID := uuid.New()

	_, err := cache.Schedules(context.Background(), displayID)
	require.NoError(t, err)

	cache.Invalidate(displayID)
	_, err = cache.Schedules(context.Background(), displayID)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loadCount())
}

func TestCatalogCachePerDisplayIsolation(t *testing.T) {
	src := &fakeCatalogSource{}
	cache := NewCatalogCache(src, time.Minute, nil)
	a, b := uuid.New(), uuid.New()

	_, err := cache.Schedules(context.Background(), a)
	require.NoError(t, err)
	_, err = cache.Schedules(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loadCount())

	cache.Invalidate(a)
	_, err = cache.Schedules(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loadCount(), "invalidating one display leaves the other's snapshot")
}
