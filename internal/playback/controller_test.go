package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina-signage/backend/internal/models"
)

// fakeCatalog serves a mutable schedule list.
type fakeCatalog struct {
	mu        sync.Mutex
	schedules []models.AdvertisementSchedule
}

func (f *fakeCatalog) Schedules(ctx context.Context, displayID uuid.UUID) ([]models.AdvertisementSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.AdvertisementSchedule, len(f.schedules))
	copy(out, f.schedules)
	return out, nil
}

func (f *fakeCatalog) set(list []models.AdvertisementSchedule) {
	f.mu.Lock()
	f.schedules = list
	f.mu.Unlock()
}

// fakePlaylog records proof-of-play entries in order.
type fakePlaylog struct {
	mu      sync.Mutex
	entries []models.PlaybackLogEntry
}

func (f *fakePlaylog) Record(ctx context.Context, e *models.PlaybackLogEntry) error {
	f.mu.Lock()
	f.entries = append(f.entries, *e)
	f.mu.Unlock()
	return nil
}

func (f *fakePlaylog) all() []models.PlaybackLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PlaybackLogEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// fakeSink collects emitted event names.
type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSink) PlaybackEvent(displayID uuid.UUID, event string, payload any) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeSink) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

func count(names []string, want string) int {
	n := 0
	for _, v := range names {
		if v == want {
			n++
		}
	}
	return n
}

// matchingSchedule fires at triggerAt (every 5 minutes, all week, all day).
func matchingSchedule(title string) models.AdvertisementSchedule {
	return models.AdvertisementSchedule{
		ID:               uuid.New(),
		Enabled:          true,
		MediaType:        models.MediaTypeImage,
		ContentRef:       "https://cdn.example.com/" + title + ".jpg",
		Title:            title,
		FrequencySeconds: 300,
		PlayCount:        1,
		StartsOn:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndsOn:           time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		DaysOfWeek:       []int{0, 1, 2, 3, 4, 5, 6},
	}
}

// triggerAt is inside the debounce window of a trigger minute.
var triggerAt = time.Date(2026, 3, 3, 10, 5, 2, 0, time.UTC)

type controllerFixture struct {
	ctrl    *Controller
	catalog *fakeCatalog
	playlog *fakePlaylog
	sink    *fakeSink
	now     func() time.Time
	mu      sync.Mutex
	clock   time.Time
}

func (f *controllerFixture) setClock(t time.Time) {
	f.mu.Lock()
	f.clock = t
	f.mu.Unlock()
}

func newControllerFixture(t *testing.T, items ...models.AdvertisementSchedule) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		catalog: &fakeCatalog{},
		playlog: &fakePlaylog{},
		sink:    &fakeSink{},
		clock:   triggerAt,
	}
	f.catalog.set(items)
	f.now = func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.clock
	}

	opts := Options{
		TickInterval:    time.Millisecond,
		DebounceSeconds: 5,
		TransitionDelay: 5 * time.Millisecond,
		ImageGrace:      50 * time.Millisecond,
		VideoSafetyCap:  50 * time.Millisecond,
		Now:             f.now,
		Location:        time.UTC,
	}
	popts := fastPlayerOptions()

	surfaces := func(displayID uuid.UUID, item models.AdvertisementSchedule) (Surface, error) {
		return newFakeSurface(), nil
	}
	f.ctrl = NewController(uuid.New(), f.catalog, surfaces, nil, f.playlog, f.sink, opts, popts, nil)
	return f
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Phase() == PhaseIdle },
		2*time.Second, 2*time.Millisecond, "queue should drain back to idle")
}

// waitEntries blocks until the playlog holds n entries. Proof-of-play records
// land just after the phase flips, so tests wait on the log rather than the
// phase before asserting on it.
func waitEntries(t *testing.T, f *controllerFixture, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.playlog.all()) == n },
		2*time.Second, 2*time.Millisecond, "expected %d playlog entries", n)
}

func TestControllerDrainsCommittedQueueInOrder(t *testing.T) {
	a, b, c := matchingSchedule("a"), matchingSchedule("b"), matchingSchedule("c")
	f := newControllerFixture(t, a, b, c)

	f.ctrl.tick(context.Background())
	require.Equal(t, PhasePlaying, f.ctrl.Phase())
	_, total := f.ctrl.QueuePosition()
	assert.Equal(t, 3, total)

	waitIdle(t, f.ctrl)
	waitEntries(t, f, 3)

	entries := f.playlog.all()
	assert.Equal(t, a.ID, entries[0].ScheduleID)
	assert.Equal(t, b.ID, entries[1].ScheduleID)
	assert.Equal(t, c.ID, entries[2].ScheduleID)
	for _, e := range entries {
		assert.Equal(t, models.PlaybackStatusPlayed, e.Status)
	}

	require.Eventually(t, func() bool {
		return count(f.sink.names(), EventQueueCompleted) == 1
	}, 2*time.Second, 2*time.Millisecond)
	names := f.sink.names()
	assert.Equal(t, 1, count(names, EventQueueCommitted))
	assert.Equal(t, 3, count(names, EventAdStarted))
	assert.Equal(t, 3, count(names, EventAdCompleted))
}

func TestControllerMinuteLatchCommitsOnce(t *testing.T) {
	f := newControllerFixture(t, matchingSchedule("a"))

	f.ctrl.tick(context.Background())
	waitIdle(t, f.ctrl)
	waitEntries(t, f, 1)

	// Still 10:05; the latch holds even after the queue drained.
	f.ctrl.tick(context.Background())
	assert.Equal(t, PhaseIdle, f.ctrl.Phase())
	assert.Len(t, f.playlog.all(), 1)

	// The next trigger minute commits again.
	f.setClock(triggerAt.Add(5 * time.Minute))
	f.ctrl.tick(context.Background())
	waitIdle(t, f.ctrl)
	waitEntries(t, f, 2)
}

func TestControllerDebounceWindow(t *testing.T) {
	f := newControllerFixture(t, matchingSchedule("a"))

	f.setClock(time.Date(2026, 3, 3, 10, 5, 30, 0, time.UTC))
	f.ctrl.tick(context.Background())
	assert.Equal(t, PhaseIdle, f.ctrl.Phase(), "ticks past the debounce window never commit")
	assert.Empty(t, f.playlog.all())
}

func TestControllerNoMatchesStaysIdle(t *testing.T) {
	off := matchingSchedule("off")
	off.Enabled = false
	f := newControllerFixture(t, off)

	f.ctrl.tick(context.Background())
	assert.Equal(t, PhaseIdle, f.ctrl.Phase())
	assert.Empty(t, f.sink.names())
}

func TestControllerQueueSnapshotSurvivesCatalogEdits(t *testing.T) {
	a, b := matchingSchedule("a"), matchingSchedule("b")
	f := newControllerFixture(t, a, b)

	f.ctrl.tick(context.Background())
	require.Equal(t, PhasePlaying, f.ctrl.Phase())

	// Catalog edits mid-queue do not touch the committed snapshot.
	f.catalog.set(nil)

	waitIdle(t, f.ctrl)
	waitEntries(t, f, 2)
	assert.Len(t, f.playlog.all(), 2, "both snapshot items finish despite the edit")
}

func TestControllerSafetyTimeoutForcesCompletion(t *testing.T) {
	v := matchingSchedule("stuck")
	v.MediaType = models.MediaTypeVideo
	v.ContentRef = "https://cdn.example.com/stuck.mp4"
	f := newControllerFixture(t, v)

	// The surface keeps making playback progress but never reaches the end,
	// so only the safety bound can force completion.
	f.ctrl.surfaces = func(displayID uuid.UUID, item models.AdvertisementSchedule) (Surface, error) {
		s := newFakeSurface()
		go func() {
			for i := 0; i < 60; i++ {
				time.Sleep(5 * time.Millisecond)
				s.mu.Lock()
				closed := s.closed
				s.position += 0.5
				s.mu.Unlock()
				if closed {
					return
				}
			}
		}()
		return s, nil
	}

	f.ctrl.tick(context.Background())
	waitIdle(t, f.ctrl)
	waitEntries(t, f, 1)

	entries := f.playlog.all()
	assert.Equal(t, models.PlaybackStatusTimedOut, entries[0].Status)
}

func TestControllerDuplicateCompletionDropped(t *testing.T) {
	f := newControllerFixture(t, matchingSchedule("a"))

	f.ctrl.tick(context.Background())

	f.ctrl.mu.Lock()
	g := f.ctrl.gen
	f.ctrl.mu.Unlock()

	f.ctrl.onItemDone(g, Result{Status: models.PlaybackStatusPlayed, Plays: 1})
	f.ctrl.onItemDone(g, Result{Status: models.PlaybackStatusPlayed, Plays: 1})

	assert.Equal(t, PhaseIdle, f.ctrl.Phase())
	assert.Len(t, f.playlog.all(), 1, "the second completion signal is dropped")
}

func TestControllerStaleGenerationDropped(t *testing.T) {
	a, b := matchingSchedule("a"), matchingSchedule("b")
	f := newControllerFixture(t, a, b)

	f.ctrl.tick(context.Background())
	f.ctrl.mu.Lock()
	stale := f.ctrl.gen
	f.ctrl.mu.Unlock()

	f.ctrl.onItemDone(stale, Result{Status: models.PlaybackStatusPlayed, Plays: 1})
	// A late signal from the already-finished first item must not advance the
	// queue a second time.
	f.ctrl.onItemDone(stale, Result{Status: models.PlaybackStatusSkipped, Reason: ReasonMedia})

	waitIdle(t, f.ctrl)
	waitEntries(t, f, 2)
	assert.Equal(t, models.PlaybackStatusPlayed, f.playlog.all()[0].Status)
}

func TestControllerStartStop(t *testing.T) {
	f := newControllerFixture(t, matchingSchedule("a"))

	f.ctrl.Start()
	// The tick loop commits and drains on its own.
	waitEntries(t, f, 1)

	f.ctrl.Stop()
	assert.Equal(t, PhaseIdle, f.ctrl.Phase())

	// Stop is idempotent.
	f.ctrl.Stop()
}

func TestControllerSurfaceFactoryFailureSkips(t *testing.T) {
	f := newControllerFixture(t, matchingSchedule("a"))
	f.ctrl.surfaces = func(displayID uuid.UUID, item models.AdvertisementSchedule) (Surface, error) {
		return nil, context.Canceled
	}

	f.ctrl.tick(context.Background())
	waitIdle(t, f.ctrl)
	waitEntries(t, f, 1)

	entries := f.playlog.all()
	assert.Equal(t, models.PlaybackStatusSkipped, entries[0].Status)
	assert.Equal(t, ReasonNoBridge, entries[0].Reason)
}
