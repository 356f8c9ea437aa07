package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina-signage/backend/internal/models"
)

func fixture(mutate ...func(*models.AdvertisementSchedule)) models.AdvertisementSchedule {
	s := models.AdvertisementSchedule{
		Enabled:          true,
		MediaType:        models.MediaTypeImage,
		ContentRef:       "https://cdn.example.com/ad.jpg",
		Title:            "spring sale",
		FrequencySeconds: 300,
		DurationSeconds:  10,
		PlayCount:        1,
		StartsOn:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndsOn:           time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		TimeStart:        "09:00",
		TimeEnd:          "17:00",
		DaysOfWeek:       []int{1, 2, 3, 4, 5},
	}
	for _, m := range mutate {
		m(&s)
	}
	return s
}

// 2026-03-03 is a Tuesday.
func tuesday(hour, min, sec int) time.Time {
	return time.Date(2026, 3, 3, hour, min, sec, 0, time.UTC)
}

func TestTriggerMinutes(t *testing.T) {
	tests := []struct {
		name string
		freq int
		want []int
	}{
		{"every minute", 60, rangeMinutes(1)},
		{"five minutes", 300, []int{0, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55}},
		{"ten minutes", 600, []int{0, 10, 20, 30, 40, 50}},
		{"half hour", 1800, []int{0, 30}},
		{"uneven seven minute stride", 420, []int{0, 7, 14, 21, 28, 35, 42, 49, 56}},
		{"sub-minute truncates to every minute", 90, rangeMinutes(1)},
		{"zero", 0, nil},
		{"negative", -60, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TriggerMinutes(tt.freq))
		})
	}
}

func rangeMinutes(step int) []int {
	var out []int
	for v := 0; v < 60; v += step {
		out = append(out, v)
	}
	return out
}

func TestMatchesAtTriggerMinute(t *testing.T) {
	s := fixture()
	assert.True(t, MatchesAt(s, tuesday(10, 5, 0)))
	assert.True(t, MatchesAt(s, tuesday(10, 5, 42)), "any second within the trigger minute matches")
	assert.False(t, MatchesAt(s, tuesday(10, 6, 0)))
	assert.False(t, MatchesAt(s, tuesday(10, 4, 59)))
}

func TestMatchesAtDisabled(t *testing.T) {
	s := fixture(func(s *models.AdvertisementSchedule) { s.Enabled = false })
	assert.False(t, MatchesAt(s, tuesday(10, 5, 0)))
}

func TestMatchesAtDateWindow(t *testing.T) {
	s := fixture()

	// Both boundary days included whatever the clock reads.
	firstDay := time.Date(2026, 3, 1, 23, 55, 0, 0, time.UTC) // Sunday, so widen days
	s.DaysOfWeek = []int{0, 1, 2, 3, 4, 5, 6}
	s.TimeStart = ""
	s.TimeEnd = ""
	assert.True(t, MatchesAt(s, firstDay))
	lastDay := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	assert.True(t, MatchesAt(s, lastDay))

	assert.False(t, MatchesAt(s, time.Date(2026, 2, 28, 10, 5, 0, 0, time.UTC)))
	assert.False(t, MatchesAt(s, time.Date(2026, 4, 1, 10, 5, 0, 0, time.UTC)))
}

func TestMatchesAtDayOfWeek(t *testing.T) {
	s := fixture(func(s *models.AdvertisementSchedule) { s.DaysOfWeek = []int{2} }) // Tuesday only
	assert.True(t, MatchesAt(s, tuesday(10, 5, 0)))
	wednesday := time.Date(2026, 3, 4, 10, 5, 0, 0, time.UTC)
	assert.False(t, MatchesAt(s, wednesday))
}

func TestMatchesAtTimeWindowInclusive(t *testing.T) {
	s := fixture(func(s *models.AdvertisementSchedule) {
		s.FrequencySeconds = 60
		s.TimeStart = "09:00"
		s.TimeEnd = "17:00"
	})
	assert.True(t, MatchesAt(s, tuesday(9, 0, 0)), "start boundary is inclusive")
	assert.True(t, MatchesAt(s, tuesday(17, 0, 0)), "end boundary is inclusive")
	assert.False(t, MatchesAt(s, tuesday(8, 59, 0)))
	assert.False(t, MatchesAt(s, tuesday(17, 1, 0)))
}

func TestMatchesAtEmptyTimeWindow(t *testing.T) {
	s := fixture(func(s *models.AdvertisementSchedule) {
		s.FrequencySeconds = 60
		s.TimeStart = ""
		s.TimeEnd = ""
	})
	assert.True(t, MatchesAt(s, tuesday(0, 0, 0)))
	assert.True(t, MatchesAt(s, tuesday(23, 59, 0)))
}

func TestMatchesPriorityOrdering(t *testing.T) {
	p := func(v int) *int { return &v }
	low := fixture(func(s *models.AdvertisementSchedule) { s.Title = "low"; s.Priority = p(10) })
	high := fixture(func(s *models.AdvertisementSchedule) { s.Title = "high"; s.Priority = p(1) })
	noneA := fixture(func(s *models.AdvertisementSchedule) { s.Title = "none-a" })
	noneB := fixture(func(s *models.AdvertisementSchedule) { s.Title = "none-b" })

	got := Matches([]models.AdvertisementSchedule{noneA, low, noneB, high}, tuesday(10, 5, 0))
	require.Len(t, got, 4)
	assert.Equal(t, "high", got[0].Title)
	assert.Equal(t, "low", got[1].Title)
	assert.Equal(t, "none-a", got[2].Title, "missing priority sorts last, original order kept")
	assert.Equal(t, "none-b", got[3].Title)
}

func TestMatchesFiltersNonMatching(t *testing.T) {
	match := fixture(func(s *models.AdvertisementSchedule) { s.Title = "match" })
	wrongMinute := fixture(func(s *models.AdvertisementSchedule) {
		s.Title = "wrong-minute"
		s.FrequencySeconds = 600 // fires at :00, :10, ... not :05
	})
	disabled := fixture(func(s *models.AdvertisementSchedule) { s.Title = "disabled"; s.Enabled = false })

	got := Matches([]models.AdvertisementSchedule{match, wrongMinute, disabled}, tuesday(10, 5, 0))
	require.Len(t, got, 1)
	assert.Equal(t, "match", got[0].Title)
}
