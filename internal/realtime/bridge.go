package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumina-signage/backend/internal/models"
	"github.com/lumina-signage/backend/internal/playback"
)

// playAckTimeout bounds how long Play waits for the renderer's ack. Renderers
// that never ack are treated as playing; the stall watchdog catches the ones
// that actually are not.
const playAckTimeout = 5 * time.Second

// Playback commands sent to display rooms.
const (
	CmdMediaLoad = "media_load"
	CmdMediaPlay = "media_play"
	CmdMediaSeek = "media_seek"
)

// Bridge implements the playback engine's Surface over the hub: commands go to
// the display room, renderer status reports come back through HandleStatus.
// One bridge exists per active queue item.
type Bridge struct {
	hub       *Hub
	displayID uuid.UUID
	item      models.AdvertisementSchedule

	mu       sync.Mutex
	loadCh   chan error
	playCh   chan error
	position float64
	paused   bool
	closed   bool
	events   chan playback.Event
}

// NewBridge creates a surface bridge for one item and attaches it to the hub.
func NewBridge(hub *Hub, displayID uuid.UUID, item models.AdvertisementSchedule) *Bridge {
	b := &Bridge{
		hub:       hub,
		displayID: displayID,
		item:      item,
		events:    make(chan playback.Event, 8),
	}
	hub.AttachBridge(displayID, b)
	return b
}

// SurfaceFactory returns a playback.SurfaceFactory backed by the hub.
func SurfaceFactory(hub *Hub) playback.SurfaceFactory {
	return func(displayID uuid.UUID, item models.AdvertisementSchedule) (playback.Surface, error) {
		return NewBridge(hub, displayID, item), nil
	}
}

// Load commands the renderer to attach the media source and blocks until the
// renderer reports it decodable or ctx expires.
func (b *Bridge) Load(ctx context.Context, src string, mediaType models.MediaType) error {
	b.mu.Lock()
	b.loadCh = make(chan error, 1)
	ch := b.loadCh
	b.mu.Unlock()

	b.hub.BroadcastToDisplayAndPublish(b.displayID, CmdMediaLoad, map[string]any{
		"src":        src,
		"media_type": mediaType,
		"title":      b.item.Title,
		"caption":    b.item.Caption,
		"animation":  b.item.Animation,
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ch:
		return err
	}
}

// Play commands the renderer to start playback. A play_blocked report maps to
// ErrAutoplayBlocked so the state machine can retry; a missing ack counts as
// success.
func (b *Bridge) Play(ctx context.Context) error {
	b.mu.Lock()
	b.playCh = make(chan error, 1)
	ch := b.playCh
	b.mu.Unlock()

	b.hub.BroadcastToDisplayAndPublish(b.displayID, CmdMediaPlay, map[string]any{})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ch:
		return err
	case <-time.After(playAckTimeout):
		return nil
	}
}

// Seek commands the renderer to jump to a playback position (seconds).
func (b *Bridge) Seek(seconds float64) error {
	b.hub.BroadcastToDisplayAndPublish(b.displayID, CmdMediaSeek, map[string]float64{
		"position": seconds,
	})
	return nil
}

// Position returns the renderer's last reported playback position.
func (b *Bridge) Position() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// Paused returns the renderer's last reported paused flag.
func (b *Bridge) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Events returns the asynchronous renderer event stream.
func (b *Bridge) Events() <-chan playback.Event {
	return b.events
}

// Close detaches the bridge; later status reports are dropped.
func (b *Bridge) Close() {
	b.hub.DetachBridge(b.displayID, b)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
}

// HandleStatus routes one renderer status report into the pending waiter or
// the event stream.
func (b *Bridge) HandleStatus(event string, data json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	switch event {
	case StatusMediaLoaded:
		b.signalLoadLocked(nil)
	case StatusMediaError:
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &p)
		if p.Message == "" {
			p.Message = "renderer media error"
		}
		if b.loadCh != nil {
			b.signalLoadLocked(errors.New(p.Message))
			return
		}
		b.pushLocked(playback.Event{Kind: playback.EventError, Message: p.Message})
	case StatusPlayOK:
		b.signalPlayLocked(nil)
	case StatusPlayBlocked:
		b.signalPlayLocked(playback.ErrAutoplayBlocked)
	case StatusMediaEnded:
		b.pushLocked(playback.Event{Kind: playback.EventEnded})
	case StatusPlayProgress:
		var p struct {
			Position float64 `json:"position"`
			Paused   bool    `json:"paused"`
		}
		if json.Unmarshal(data, &p) == nil {
			b.position = p.Position
			b.paused = p.Paused
		}
	}
}

func (b *Bridge) signalLoadLocked(err error) {
	if b.loadCh != nil {
		b.loadCh <- err
		b.loadCh = nil
	}
}

func (b *Bridge) signalPlayLocked(err error) {
	if b.playCh != nil {
		b.playCh <- err
		b.playCh = nil
	}
}

func (b *Bridge) pushLocked(ev playback.Event) {
	select {
	case b.events <- ev:
	default:
		// renderer flooding terminal events, drop
	}
}
