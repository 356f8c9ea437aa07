package playback

import (
	"sync"
	"time"
)

// TimerSet owns every timer belonging to one queue item so they can be
// cancelled as a unit the moment the item completes. A stopped set refuses new
// timers, which closes the race between completion and a late AfterFunc.
type TimerSet struct {
	mu      sync.Mutex
	timers  []*time.Timer
	stopped bool
}

// NewTimerSet creates an empty timer set.
func NewTimerSet() *TimerSet {
	return &TimerSet{}
}

// AfterFunc schedules fn after d, owned by the set. Returns false if the set
// is already stopped.
func (ts *TimerSet) AfterFunc(d time.Duration, fn func()) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.stopped {
		return false
	}
	ts.timers = append(ts.timers, time.AfterFunc(d, fn))
	return true
}

// Stop cancels all outstanding timers and marks the set stopped.
func (ts *TimerSet) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.stopped = true
	for _, t := range ts.timers {
		t.Stop()
	}
	ts.timers = nil
}
