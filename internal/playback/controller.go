// Package playback contains the scheduled advertisement playback engine: a
// per-display queue controller polling the schedule evaluator once per second,
// and a per-item state machine that can always make forward progress.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-signage/backend/internal/blobcache"
	"github.com/lumina-signage/backend/internal/models"
	"github.com/lumina-signage/backend/internal/schedule"
)

// Phase is the controller's top-level state.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhasePlaying       Phase = "playing"
	PhaseTransitioning Phase = "transitioning"
)

// CatalogProvider supplies the read-only schedule catalog for a display. The
// provider owns its own refresh cadence; the controller just asks.
type CatalogProvider interface {
	Schedules(ctx context.Context, displayID uuid.UUID) ([]models.AdvertisementSchedule, error)
}

// EventSink receives playback lifecycle events for fanout to renderers.
type EventSink interface {
	PlaybackEvent(displayID uuid.UUID, event string, payload any)
}

// PlayLogger records proof-of-play entries.
type PlayLogger interface {
	Record(ctx context.Context, entry *models.PlaybackLogEntry) error
}

// Events broadcast through the EventSink.
const (
	EventAdStarted      = "ad_started"
	EventAdCompleted    = "ad_completed"
	EventQueueCommitted = "queue_committed"
	EventQueueCompleted = "queue_completed"
	EventCacheProgress  = "caching_progress"
)

// Options carries the controller's timing constants.
type Options struct {
	TickInterval    time.Duration // evaluation cadence, 1s
	DebounceSeconds int           // only ticks in the first N seconds of a minute evaluate
	TransitionDelay time.Duration // quiescent gap between queue items
	ImageGrace      time.Duration // safety margin on top of an image's duration
	VideoSafetyCap  time.Duration // absolute completion bound for video items
	Now             func() time.Time
	Location        *time.Location // zone schedules are evaluated in
}

// DefaultOptions returns the production constants.
func DefaultOptions() Options {
	return Options{
		TickInterval:    time.Second,
		DebounceSeconds: 5,
		TransitionDelay: time.Second,
		ImageGrace:      10 * time.Second,
		VideoSafetyCap:  10 * time.Minute,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TickInterval <= 0 {
		o.TickInterval = def.TickInterval
	}
	if o.DebounceSeconds <= 0 {
		o.DebounceSeconds = def.DebounceSeconds
	}
	if o.TransitionDelay <= 0 {
		o.TransitionDelay = def.TransitionDelay
	}
	if o.ImageGrace <= 0 {
		o.ImageGrace = def.ImageGrace
	}
	if o.VideoSafetyCap <= 0 {
		o.VideoSafetyCap = def.VideoSafetyCap
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		loc := o.Location
		o.Now = func() time.Time { return time.Now().In(loc) }
	}
	return o
}

// Controller runs ad playback for one display. At most one item plays at a
// time; a committed queue is a snapshot and drains to completion even if a
// schedule is edited or disabled mid-queue.
type Controller struct {
	displayID uuid.UUID
	catalog   CatalogProvider
	surfaces  SurfaceFactory
	cache     *blobcache.Cache
	playlog   PlayLogger
	sink      EventSink
	logger    *zap.Logger
	opts      Options
	popts     PlayerOptions

	mu          sync.Mutex
	phase       Phase
	queue       []models.AdvertisementSchedule
	index       int
	lastTrigger string // minute that last committed a queue
	player      *Player
	gen         uint64 // item generation; stale completion signals are dropped
	startedAt   time.Time
	safety      *time.Timer
	transition  *time.Timer
	lastPct     float64
	onDone      []func()

	itemCtx context.Context // ctx items run under; set when a queue commits
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewController creates a playback controller for a display.
func NewController(displayID uuid.UUID, catalog CatalogProvider, surfaces SurfaceFactory,
	cache *blobcache.Cache, playlog PlayLogger, sink EventSink,
	opts Options, popts PlayerOptions, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		displayID: displayID,
		catalog:   catalog,
		surfaces:  surfaces,
		cache:     cache,
		playlog:   playlog,
		sink:      sink,
		logger:    logger.With(zap.String("display_id", displayID.String())),
		opts:      opts.withDefaults(),
		popts:     popts.withDefaults(),
		phase:     PhaseIdle,
	}
}

// Start begins the tick loop. Call Stop to release resources.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
	c.logger.Info("playback controller started", zap.Duration("tick", c.opts.TickInterval))
}

// Stop halts the tick loop, the active item, and all outstanding timers.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.stopTimersLocked()
	player := c.player
	c.player = nil
	c.queue = nil
	c.index = 0
	c.phase = PhaseIdle
	c.mu.Unlock()
	if player != nil {
		player.Stop()
	}
	c.logger.Info("playback controller stopped")
}

// OnCompletion registers a callback invoked once per fully finished queue.
func (c *Controller) OnCompletion(fn func()) {
	c.mu.Lock()
	c.onDone = append(c.onDone, fn)
	c.mu.Unlock()
}

// CurrentAd returns the item now playing, or nil when idle.
func (c *Controller) CurrentAd() *models.AdvertisementSchedule {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseIdle || c.index >= len(c.queue) {
		return nil
	}
	item := c.queue[c.index]
	return &item
}

// Phase returns the controller phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// QueuePosition returns the current index and committed queue length.
func (c *Controller) QueuePosition() (index, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index, len(c.queue)
}

// Progress returns caching progress for the active item.
func (c *Controller) Progress() blobcache.Progress {
	c.mu.Lock()
	player := c.player
	c.mu.Unlock()
	if player == nil {
		return blobcache.Progress{}
	}
	return player.Progress()
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick evaluates the catalog once. Only idle ticks inside the debounce window
// of a fresh minute can commit a queue; the minute latch guarantees a given
// trigger-minute starts at most one queue.
func (c *Controller) tick(ctx context.Context) {
	now := c.opts.Now()
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return
	}
	if now.Second() >= c.opts.DebounceSeconds {
		c.mu.Unlock()
		return
	}
	minute := now.Format("15:04")
	if minute == c.lastTrigger {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	catalog, err := c.catalog.Schedules(ctx, c.displayID)
	if err != nil {
		c.logger.Warn("catalog load failed", zap.Error(err))
		return
	}
	matches := schedule.Matches(catalog, now)
	if len(matches) == 0 {
		return
	}

	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return
	}
	c.queue = matches
	c.index = 0
	c.phase = PhasePlaying
	c.lastTrigger = minute
	c.itemCtx = ctx
	c.startCurrentLocked(ctx)
	total := len(matches)
	c.mu.Unlock()

	c.emit(EventQueueCommitted, map[string]any{"total": total, "minute": minute})
	c.logger.Info("ad queue committed", zap.Int("items", total), zap.String("minute", minute))
}

// startCurrentLocked hands the head item to a fresh state machine and arms the
// per-item safety timeout. Caller holds c.mu.
func (c *Controller) startCurrentLocked(ctx context.Context) {
	item := c.queue[c.index]
	c.gen++
	g := c.gen
	c.startedAt = c.opts.Now()
	c.lastPct = -1

	surface, err := c.surfaces(c.displayID, item)
	if err != nil {
		c.logger.Warn("no surface for display, skipping item", zap.Error(err))
		c.player = nil
		time.AfterFunc(c.popts.ErrorGrace, func() {
			c.onItemDone(g, Result{Status: models.PlaybackStatusSkipped, Reason: ReasonNoBridge})
		})
		return
	}

	player := NewPlayer(item, surface, c.cache, c.popts, c.logger,
		func(pr blobcache.Progress) { c.onCacheProgress(g, pr) },
		func(res Result) { c.onItemDone(g, res) })
	c.player = player
	player.Run(ctx)

	bound := c.safetyBound(item)
	c.safety = time.AfterFunc(bound, func() {
		c.onItemDone(g, Result{Status: models.PlaybackStatusTimedOut})
	})

	c.emitAsync(EventAdStarted, map[string]any{
		"schedule_id": item.ID, "title": item.Title, "media_type": item.MediaType,
		"index": c.index, "total": len(c.queue),
	})
}

// safetyBound is the backstop that guarantees the display can never hang on a
// broken ad: images get their duration plus a fixed grace, video a generous
// absolute cap.
func (c *Controller) safetyBound(item models.AdvertisementSchedule) time.Duration {
	if item.MediaType == models.MediaTypeImage {
		d := time.Duration(item.DurationSeconds) * time.Second
		if d <= 0 {
			d = c.popts.DefaultImageDuration
		}
		return d + c.opts.ImageGrace
	}
	return c.opts.VideoSafetyCap
}

// onItemDone advances the queue. Completion is idempotent: signals carrying a
// stale generation, or arriving outside the Playing phase, are dropped, since
// the underlying media element may emit more than one terminal event.
func (c *Controller) onItemDone(g uint64, res Result) {
	c.mu.Lock()
	if g != c.gen || c.phase != PhasePlaying {
		c.mu.Unlock()
		return
	}
	c.stopTimersLocked()
	player := c.player
	c.player = nil
	item := c.queue[c.index]
	startedAt := c.startedAt
	c.index++
	finished := c.index >= len(c.queue)
	var callbacks []func()
	if finished {
		c.queue = nil
		c.index = 0
		c.phase = PhaseIdle
		callbacks = append(callbacks, c.onDone...)
	} else {
		c.phase = PhaseTransitioning
		ctx := c.itemCtx
		c.transition = time.AfterFunc(c.opts.TransitionDelay, func() { c.advance(ctx) })
	}
	c.mu.Unlock()

	if player != nil {
		player.Stop()
	}
	c.record(item, startedAt, res)
	c.emit(EventAdCompleted, map[string]any{
		"schedule_id": item.ID, "status": res.Status, "reason": res.Reason, "plays": res.Plays,
	})
	if finished {
		c.emit(EventQueueCompleted, map[string]any{})
		c.logger.Info("ad queue drained, resuming normal display")
		for _, fn := range callbacks {
			fn()
		}
	}
}

// advance starts the next item after the transition delay.
func (c *Controller) advance(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseTransitioning {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		return
	}
	c.phase = PhasePlaying
	c.startCurrentLocked(ctx)
}

func (c *Controller) record(item models.AdvertisementSchedule, startedAt time.Time, res Result) {
	if c.playlog == nil {
		return
	}
	entry := &models.PlaybackLogEntry{
		DisplayID:  c.displayID,
		ScheduleID: item.ID,
		Status:     res.Status,
		Reason:     res.Reason,
		Plays:      res.Plays,
		StartedAt:  startedAt,
		FinishedAt: c.opts.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.playlog.Record(ctx, entry); err != nil {
		c.logger.Warn("proof-of-play record failed", zap.Error(err),
			zap.String("schedule_id", item.ID.String()))
	}
}

// onCacheProgress forwards caching progress to renderers in ~10% steps.
func (c *Controller) onCacheProgress(g uint64, pr blobcache.Progress) {
	c.mu.Lock()
	if g != c.gen {
		c.mu.Unlock()
		return
	}
	if pr.Total > 0 && pr.Percent-c.lastPct < 10 {
		c.mu.Unlock()
		return
	}
	c.lastPct = pr.Percent
	c.mu.Unlock()
	c.emit(EventCacheProgress, pr)
}

func (c *Controller) stopTimersLocked() {
	if c.safety != nil {
		c.safety.Stop()
		c.safety = nil
	}
	if c.transition != nil {
		c.transition.Stop()
		c.transition = nil
	}
}

func (c *Controller) emit(event string, payload any) {
	if c.sink != nil {
		c.sink.PlaybackEvent(c.displayID, event, payload)
	}
}

// emitAsync is emit for paths holding c.mu; the sink may call back into the
// controller's accessors.
func (c *Controller) emitAsync(event string, payload any) {
	if c.sink == nil {
		return
	}
	sink := c.sink
	id := c.displayID
	go sink.PlaybackEvent(id, event, payload)
}
