package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumina-signage/backend/internal/blobcache"
	"github.com/lumina-signage/backend/internal/models"
	"github.com/lumina-signage/backend/pkg/retry"
)

// State names the phase a queue item is in.
type State string

const (
	StateCaching   State = "caching"
	StateLoading   State = "loading"
	StatePlaying   State = "playing"
	StateCompleted State = "completed"
)

// Failure classes recorded when an item is auto-skipped.
const (
	ReasonDownload = "download_failure"
	ReasonLoad     = "load_failure"
	ReasonAutoplay = "autoplay_blocked"
	ReasonStall    = "stall_detected"
	ReasonMedia    = "media_error"
	ReasonNoBridge = "no_surface"
)

// Result is reported exactly once per item. Every path, including every
// failure, ends in a Result so the queue controller can always advance.
type Result struct {
	Status string // models.PlaybackStatusPlayed or models.PlaybackStatusSkipped
	Reason string // failure class when skipped
	Plays  int    // completed video loops
}

// PlayerOptions carries the fixed timing constants of the state machine.
// Determinism is preferred over adaptivity: retries, backoffs, and poll
// intervals are constants, not measurements.
type PlayerOptions struct {
	LoadTimeout          time.Duration
	ErrorGrace           time.Duration
	StallPollInterval    time.Duration
	StallSeekOffset      float64 // seconds; intentionally not clamped to the item duration
	MaxStallRecoveries   int
	DefaultImageDuration time.Duration
	MediaBaseURL         string // prefix for cached-media URLs handed to renderers
	Autoplay             retry.Policy
	Caching              retry.Policy
}

// DefaultPlayerOptions returns the production constants.
func DefaultPlayerOptions() PlayerOptions {
	return PlayerOptions{
		LoadTimeout:          30 * time.Second,
		ErrorGrace:           2 * time.Second,
		StallPollInterval:    3 * time.Second,
		StallSeekOffset:      1.0,
		MaxStallRecoveries:   1,
		DefaultImageDuration: 10 * time.Second,
		MediaBaseURL:         "/media",
		Autoplay:             retry.Policy{MaxAttempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 2 * time.Second},
		Caching:              retry.Policy{MaxAttempts: 2, Backoff: time.Second, MaxBackoff: 5 * time.Second},
	}
}

func (o PlayerOptions) withDefaults() PlayerOptions {
	def := DefaultPlayerOptions()
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = def.LoadTimeout
	}
	if o.ErrorGrace <= 0 {
		o.ErrorGrace = def.ErrorGrace
	}
	if o.StallPollInterval <= 0 {
		o.StallPollInterval = def.StallPollInterval
	}
	if o.StallSeekOffset == 0 {
		o.StallSeekOffset = def.StallSeekOffset
	}
	if o.MaxStallRecoveries <= 0 {
		o.MaxStallRecoveries = def.MaxStallRecoveries
	}
	if o.DefaultImageDuration <= 0 {
		o.DefaultImageDuration = def.DefaultImageDuration
	}
	if o.MediaBaseURL == "" {
		o.MediaBaseURL = def.MediaBaseURL
	}
	if o.Autoplay.MaxAttempts == 0 {
		o.Autoplay = def.Autoplay
	}
	if o.Caching.MaxAttempts == 0 {
		o.Caching = def.Caching
	}
	return o
}

// Player takes one queued schedule through caching, loading, and playing, and
// reports a Result exactly once. Failures from any state funnel into
// completion after a fixed grace delay so the display never hangs on broken
// content.
type Player struct {
	item    models.AdvertisementSchedule
	surface Surface
	cache   *blobcache.Cache
	timers  *TimerSet
	opts    PlayerOptions
	logger  *zap.Logger
	done    func(Result)

	once   sync.Once
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	playsDone  int
	progress   blobcache.Progress
	onProgress blobcache.ProgressFunc
}

// NewPlayer creates a state machine for one item. done is invoked exactly once
// when the item resolves; onProgress (optional) receives caching progress.
func NewPlayer(item models.AdvertisementSchedule, surface Surface, cache *blobcache.Cache,
	opts PlayerOptions, logger *zap.Logger, onProgress blobcache.ProgressFunc, done func(Result)) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{
		item:       item,
		surface:    surface,
		cache:      cache,
		timers:     NewTimerSet(),
		opts:       opts.withDefaults(),
		logger:     logger,
		done:       done,
		state:      StateCaching,
		onProgress: onProgress,
	}
}

// Run starts the state machine in its own goroutine.
func (p *Player) Run(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

// Stop cancels every outstanding timer and the run loop. The done callback is
// not invoked for an externally stopped player.
func (p *Player) Stop() {
	p.timers.Stop()
	if p.cancel != nil {
		p.cancel()
	}
	if p.surface != nil {
		p.surface.Close()
	}
}

// State returns the current phase.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Progress returns the latest caching progress.
func (p *Player) Progress() blobcache.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *Player) run(ctx context.Context) {
	src := p.item.ContentRef

	if p.item.MediaType == models.MediaTypeVideo && p.cache != nil {
		p.setState(StateCaching)
		id := blobcache.Key(p.item.ContentRef)
		err := p.opts.Caching.Do(ctx, func() error {
			_, err := p.cache.EnsureCached(ctx, p.item.ContentRef, id, p.recordProgress)
			return err
		}, retry.Any)
		switch {
		case err == nil:
			src = p.opts.MediaBaseURL + "/" + id
		case ctx.Err() != nil:
			return
		default:
			// Degraded mode: play straight from the origin URL.
			p.logger.Warn("media download failed, playing from origin",
				zap.Error(err), zap.String("schedule_id", p.item.ID.String()))
		}
	}

	p.setState(StateLoading)
	loadCtx, cancel := context.WithTimeout(ctx, p.opts.LoadTimeout)
	err := p.surface.Load(loadCtx, src, p.item.MediaType)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.fail(ReasonLoad, err)
		return
	}

	p.setState(StatePlaying)
	err = p.opts.Autoplay.Do(ctx, func() error {
		return p.surface.Play(ctx)
	}, func(err error) bool { return errors.Is(err, ErrAutoplayBlocked) })
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrAutoplayBlocked) {
			p.fail(ReasonAutoplay, err)
		} else {
			p.fail(ReasonMedia, err)
		}
		return
	}

	if p.item.MediaType == models.MediaTypeImage {
		d := time.Duration(p.item.DurationSeconds) * time.Second
		if d <= 0 {
			d = p.opts.DefaultImageDuration
		}
		p.timers.AfterFunc(d, func() {
			p.complete(Result{Status: models.PlaybackStatusPlayed, Plays: 1})
		})
		return
	}

	p.watchVideo(ctx)
}

// watchVideo drives video repeats and stall detection until the item resolves.
func (p *Player) watchVideo(ctx context.Context) {
	stall := time.NewTicker(p.opts.StallPollInterval)
	defer stall.Stop()

	lastPos := p.surface.Position()
	recoveries := 0

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-p.surface.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case EventEnded:
				p.mu.Lock()
				p.playsDone++
				plays := p.playsDone
				p.mu.Unlock()
				if plays >= p.item.TargetPlays() {
					p.complete(Result{Status: models.PlaybackStatusPlayed, Plays: plays})
					return
				}
				if err := p.surface.Seek(0); err != nil {
					p.fail(ReasonMedia, err)
					return
				}
				if err := p.surface.Play(ctx); err != nil {
					p.fail(ReasonMedia, err)
					return
				}
				lastPos = 0
			case EventError:
				p.fail(ReasonMedia, errors.New(ev.Message))
				return
			}

		case <-stall.C:
			pos := p.surface.Position()
			if p.surface.Paused() || pos != lastPos {
				lastPos = pos
				recoveries = 0
				continue
			}
			if recoveries >= p.opts.MaxStallRecoveries {
				p.fail(ReasonStall, errors.New("no playback progress"))
				return
			}
			recoveries++
			p.logger.Warn("playback stalled, attempting recovery",
				zap.Float64("position", pos), zap.String("schedule_id", p.item.ID.String()))
			// Seek forward by the fixed offset and replay. The offset is not
			// clamped to the configured duration.
			_ = p.surface.Seek(pos + p.opts.StallSeekOffset)
			_ = p.surface.Play(ctx)
		}
	}
}

// fail schedules completion after the grace delay. This is the auto-skip
// policy: broken content is silently advanced past, never surfaced.
func (p *Player) fail(reason string, err error) {
	p.logger.Warn("ad item failed, auto-skipping",
		zap.String("reason", reason), zap.Error(err),
		zap.String("schedule_id", p.item.ID.String()))
	p.mu.Lock()
	plays := p.playsDone
	p.mu.Unlock()
	p.timers.AfterFunc(p.opts.ErrorGrace, func() {
		p.complete(Result{Status: models.PlaybackStatusSkipped, Reason: reason, Plays: plays})
	})
}

// complete resolves the item exactly once: all timers are cancelled as a unit,
// then the controller is told to advance.
func (p *Player) complete(res Result) {
	p.once.Do(func() {
		p.setState(StateCompleted)
		p.timers.Stop()
		if p.cancel != nil {
			p.cancel()
		}
		if p.done != nil {
			p.done(res)
		}
	})
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Player) recordProgress(pr blobcache.Progress) {
	p.mu.Lock()
	p.progress = pr
	cb := p.onProgress
	p.mu.Unlock()
	if cb != nil {
		cb(pr)
	}
}
