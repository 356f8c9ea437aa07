// Package schedule decides which advertisement schedules must play at a given
// instant. Evaluation is pure: fixed catalog + fixed instant always produce the
// same ordered match set.
package schedule

import (
	"sort"
	"time"

	"github.com/lumina-signage/backend/internal/models"
)

// Minute strides that divide the hour evenly. Other positive strides are still
// accepted and generate a generic clipped sequence, which is intentional: a
// 7-minute stride fires at :00, :07, :14 ... :56 and the gap to the next hour
// is uneven.
var evenStrides = map[int]bool{1: true, 5: true, 10: true, 15: true, 20: true, 30: true}

// TriggerMinutes converts a schedule frequency to the minutes-of-hour at which
// it fires. The frequency is truncated to whole minutes; non-positive values
// yield no trigger minutes.
func TriggerMinutes(freqSeconds int) []int {
	m := freqSeconds / 60
	if m <= 0 {
		return nil
	}
	if evenStrides[m] {
		mins := make([]int, 0, 60/m)
		for v := 0; v < 60; v += m {
			mins = append(mins, v)
		}
		return mins
	}
	// Generic stride clipped below 60.
	var mins []int
	for v := 0; v < 60; v += m {
		mins = append(mins, v)
	}
	return mins
}

// Matches returns the schedules whose predicate holds at now, ordered by
// ascending priority (missing priority last, stable for ties).
func Matches(catalog []models.AdvertisementSchedule, now time.Time) []models.AdvertisementSchedule {
	var out []models.AdvertisementSchedule
	for _, s := range catalog {
		if MatchesAt(s, now) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank(out[i].Priority) < priorityRank(out[j].Priority)
	})
	return out
}

// MatchesAt reports whether a single schedule fires at now. All five
// conditions must hold: enabled, calendar window, weekday, daily time window
// (inclusive on both ends), and trigger minute.
func MatchesAt(s models.AdvertisementSchedule, now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if dk := dateKey(now); dk < dateKey(s.StartsOn) || dk > dateKey(s.EndsOn) {
		return false
	}
	if !containsDay(s.DaysOfWeek, int(now.Weekday())) {
		return false
	}
	// "HH:MM" strings compare chronologically; both bounds are inclusive.
	clock := now.Format("15:04")
	if s.TimeStart != "" && clock < s.TimeStart {
		return false
	}
	if s.TimeEnd != "" && clock > s.TimeEnd {
		return false
	}
	return containsMinute(TriggerMinutes(s.FrequencySeconds), now.Minute())
}

// dateKey collapses a time to its calendar day so the window comparison is
// inclusive of the whole start and end days regardless of clock time.
func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func containsMinute(mins []int, minute int) bool {
	for _, m := range mins {
		if m == minute {
			return true
		}
	}
	return false
}

func priorityRank(p *int) int {
	if p == nil {
		return int(^uint(0) >> 1) // missing priority sorts last
	}
	return *p
}
