package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina-signage/backend/internal/models"
	"github.com/lumina-signage/backend/pkg/retry"
)

// fakeSurface is a scripted renderer endpoint.
type fakeSurface struct {
	mu        sync.Mutex
	loadErr   error
	playErr   error
	playCalls int
	seeks     []float64
	position  float64
	paused    bool
	events    chan Event
	closed    bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{events: make(chan Event, 8)}
}

func (f *fakeSurface) Load(ctx context.Context, src string, mt models.MediaType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	return ctx.Err()
}

func (f *fakeSurface) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playCalls++
	return f.playErr
}

func (f *fakeSurface) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, seconds)
	return nil
}

func (f *fakeSurface) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeSurface) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeSurface) Events() <-chan Event { return f.events }

func (f *fakeSurface) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSurface) plays() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playCalls
}

func (f *fakeSurface) seekLog() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.seeks))
	copy(out, f.seeks)
	return out
}

func fastPlayerOptions() PlayerOptions {
	return PlayerOptions{
		LoadTimeout:          200 * time.Millisecond,
		ErrorGrace:           10 * time.Millisecond,
		StallPollInterval:    50 * time.Millisecond,
		StallSeekOffset:      1.0,
		MaxStallRecoveries:   1,
		DefaultImageDuration: 20 * time.Millisecond,
		Autoplay:             retry.Policy{MaxAttempts: 3, Backoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		Caching:              retry.Policy{MaxAttempts: 1, Backoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

func runPlayer(t *testing.T, item models.AdvertisementSchedule, surface Surface, opts PlayerOptions) Result {
	t.Helper()
	resCh := make(chan Result, 1)
	p := NewPlayer(item, surface, nil, opts, nil, nil, func(r Result) { resCh <- r })
	p.Run(context.Background())
	select {
	case r := <-resCh:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("player did not resolve")
		return Result{}
	}
}

func imageItem() models.AdvertisementSchedule {
	return models.AdvertisementSchedule{MediaType: models.MediaTypeImage, ContentRef: "https://cdn.example.com/ad.jpg"}
}

func videoItem(plays int) models.AdvertisementSchedule {
	return models.AdvertisementSchedule{MediaType: models.MediaTypeVideo, ContentRef: "https://cdn.example.com/ad.mp4", PlayCount: plays}
}

func TestPlayerImageCompletesAfterDuration(t *testing.T) {
	surface := newFakeSurface()
	res := runPlayer(t, imageItem(), surface, fastPlayerOptions())

	assert.Equal(t, models.PlaybackStatusPlayed, res.Status)
	assert.Equal(t, 1, res.Plays)
	assert.Equal(t, 1, surface.plays())
}

func TestPlayerVideoRepeatsUntilPlayCount(t *testing.T) {
	surface := newFakeSurface()
	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(5 * time.Millisecond)
			surface.events <- Event{Kind: EventEnded}
		}
	}()

	res := runPlayer(t, videoItem(3), surface, fastPlayerOptions())

	assert.Equal(t, models.PlaybackStatusPlayed, res.Status)
	assert.Equal(t, 3, res.Plays)
	// Two replays, each rewound to the start.
	assert.Equal(t, []float64{0, 0}, surface.seekLog())
	assert.Equal(t, 3, surface.plays())
}

func TestPlayerLoadFailureSkips(t *testing.T) {
	surface := newFakeSurface()
	surface.loadErr = errors.New("decode error")

	res := runPlayer(t, imageItem(), surface, fastPlayerOptions())

	assert.Equal(t, models.PlaybackStatusSkipped, res.Status)
	assert.Equal(t, ReasonLoad, res.Reason)
	assert.Zero(t, surface.plays())
}

func TestPlayerAutoplayBlockedRetriesThenSkips(t *testing.T) {
	surface := newFakeSurface()
	surface.playErr = ErrAutoplayBlocked

	res := runPlayer(t, imageItem(), surface, fastPlayerOptions())

	assert.Equal(t, models.PlaybackStatusSkipped, res.Status)
	assert.Equal(t, ReasonAutoplay, res.Reason)
	assert.Equal(t, 3, surface.plays(), "every autoplay attempt hits the surface")
}

func TestPlayerMediaErrorSkips(t *testing.T) {
	surface := newFakeSurface()
	go func() {
		time.Sleep(5 * time.Millisecond)
		surface.events <- Event{Kind: EventError, Message: "PIPELINE_ERROR_DECODE"}
	}()

	res := runPlayer(t, videoItem(1), surface, fastPlayerOptions())

	assert.Equal(t, models.PlaybackStatusSkipped, res.Status)
	assert.Equal(t, ReasonMedia, res.Reason)
}

func TestPlayerStallRecoversOnceThenSkips(t *testing.T) {
	surface := newFakeSurface()
	surface.position = 4.5 // frozen: never advances, never paused

	res := runPlayer(t, videoItem(1), surface, fastPlayerOptions())

	assert.Equal(t, models.PlaybackStatusSkipped, res.Status)
	assert.Equal(t, ReasonStall, res.Reason)
	seeks := surface.seekLog()
	require.Len(t, seeks, 1, "exactly one recovery attempt")
	assert.InDelta(t, 5.5, seeks[0], 1e-9, "recovery seeks forward by the fixed offset, unclamped")
}

func TestPlayerStallResetsWhenProgressResumes(t *testing.T) {
	surface := newFakeSurface()
	done := make(chan struct{})
	go func() {
		// Position keeps moving, so the watchdog never fires; finish normally.
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				surface.mu.Lock()
				surface.position += 0.5
				surface.mu.Unlock()
			}
		}
	}()
	go func() {
		time.Sleep(60 * time.Millisecond)
		surface.events <- Event{Kind: EventEnded}
	}()

	res := runPlayer(t, videoItem(1), surface, fastPlayerOptions())
	close(done)

	assert.Equal(t, models.PlaybackStatusPlayed, res.Status)
	assert.Empty(t, surface.seekLog())
}

func TestPlayerStopSuppressesResult(t *testing.T) {
	surface := newFakeSurface()
	var resolved bool
	var mu sync.Mutex
	p := NewPlayer(videoItem(1), surface, nil, fastPlayerOptions(), nil, nil, func(Result) {
		mu.Lock()
		resolved = true
		mu.Unlock()
	})
	p.Run(context.Background())
	time.Sleep(5 * time.Millisecond)
	p.Stop()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, resolved, "an externally stopped player reports no result")
}
