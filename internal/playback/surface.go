package playback

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/lumina-signage/backend/internal/models"
)

// ErrAutoplayBlocked is returned by Surface.Play when the renderer's runtime
// rejects unattended playback. It is the only retryable Play failure.
var ErrAutoplayBlocked = errors.New("playback: autoplay blocked")

// EventKind classifies events emitted by a Surface.
type EventKind string

const (
	// EventEnded signals natural end of media.
	EventEnded EventKind = "ended"
	// EventError signals an unrecoverable media error.
	EventError EventKind = "error"
)

// Event is an asynchronous signal from the rendering side.
type Event struct {
	Kind    EventKind
	Message string
}

// Surface is the rendering endpoint an item plays on. Implementations bridge
// to a real renderer (see internal/realtime); tests use fakes. Load blocks
// until the media is decodable or ctx expires. Play starts or resumes
// playback. Position and Paused reflect the renderer's last known state.
type Surface interface {
	Load(ctx context.Context, src string, mediaType models.MediaType) error
	Play(ctx context.Context) error
	Seek(seconds float64) error
	Position() float64
	Paused() bool
	Events() <-chan Event
	Close()
}

// SurfaceFactory creates a fresh Surface for one queue item on a display.
type SurfaceFactory func(displayID uuid.UUID, item models.AdvertisementSchedule) (Surface, error)
