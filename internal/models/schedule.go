package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaType identifies the kind of creative a schedule plays.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// MinFrequencySeconds is the lowest allowed trigger frequency (one fire per minute).
const MinFrequencySeconds = 60

// AdvertisementSchedule is an immutable ad configuration record for one display.
// The playback engine only reads these; they are created and edited through the
// schedule API.
type AdvertisementSchedule struct {
	ID               uuid.UUID `json:"id"`
	DisplayID        uuid.UUID `json:"display_id"`
	Enabled          bool      `json:"enabled"`
	MediaType        MediaType `json:"media_type"`
	ContentRef       string    `json:"content_ref"` // image or video URL, per MediaType
	S3Key            string    `json:"s3_key,omitempty"`
	Title            string    `json:"title"`
	Caption          string    `json:"caption"`
	FrequencySeconds int       `json:"frequency_seconds"` // >= 60; converted to trigger minutes
	DurationSeconds  int       `json:"duration_seconds"`  // image display time; video soft cap
	PlayCount        int       `json:"play_count"`        // video loops before completion, >= 1
	StartsOn         time.Time `json:"starts_on"`         // calendar window, inclusive
	EndsOn           time.Time `json:"ends_on"`
	TimeStart        string    `json:"time_start"` // "HH:MM", inclusive
	TimeEnd          string    `json:"time_end"`   // "HH:MM", inclusive
	DaysOfWeek       []int     `json:"days_of_week"` // 0 = Sunday
	Priority         *int      `json:"priority,omitempty"` // lower plays first; nil sorts last
	Animation        string    `json:"animation,omitempty"` // entrance effect tag, cosmetic only
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TargetPlays returns the number of full video loops required before completion.
func (s AdvertisementSchedule) TargetPlays() int {
	if s.PlayCount < 1 {
		return 1
	}
	return s.PlayCount
}
