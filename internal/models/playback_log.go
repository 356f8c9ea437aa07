package models

import (
	"time"

	"github.com/google/uuid"
)

// Playback outcome recorded per finished queue item (proof of play).
const (
	PlaybackStatusPlayed   = "played"
	PlaybackStatusSkipped  = "skipped"
	PlaybackStatusTimedOut = "timed_out"
)

// PlaybackLogEntry is one proof-of-play record: an ad item that finished,
// was skipped after a failure, or was force-completed by the safety timeout.
type PlaybackLogEntry struct {
	ID         uuid.UUID `json:"id"`
	DisplayID  uuid.UUID `json:"display_id"`
	ScheduleID uuid.UUID `json:"schedule_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"` // failure class when skipped
	Plays      int       `json:"plays"`            // completed video loops
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
