package playback

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerSetFiresScheduledFuncs(t *testing.T) {
	ts := NewTimerSet()
	var fired atomic.Int32
	assert.True(t, ts.AfterFunc(time.Millisecond, func() { fired.Add(1) }))
	assert.True(t, ts.AfterFunc(2*time.Millisecond, func() { fired.Add(1) }))

	assert.Eventually(t, func() bool { return fired.Load() == 2 },
		time.Second, time.Millisecond)
}

func TestTimerSetStopCancelsOutstanding(t *testing.T) {
	ts := NewTimerSet()
	var fired atomic.Int32
	ts.AfterFunc(20*time.Millisecond, func() { fired.Add(1) })
	ts.Stop()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimerSetRefusesAfterStop(t *testing.T) {
	ts := NewTimerSet()
	ts.Stop()
	assert.False(t, ts.AfterFunc(time.Millisecond, func() {
		t.Error("timer scheduled on a stopped set must not fire")
	}))
}
