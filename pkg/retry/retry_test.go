package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	}, Any)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 5, Backoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Any)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: time.Millisecond}
	calls := 0
	last := errors.New("still failing")
	err := p.Do(context.Background(), func() error {
		calls++
		return last
	}, Any)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	fatal := errors.New("fatal")
	p := Policy{MaxAttempts: 5, Backoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return fatal
	}, func(err error) bool { return !errors.Is(err, fatal) })
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, Backoff: time.Hour}
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func() error {
			calls++
			return errors.New("transient")
		}, Any)
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoZeroAttemptsStillRunsOnce(t *testing.T) {
	p := Policy{}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoCapsBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 4, Backoff: 30 * time.Millisecond, MaxBackoff: 30 * time.Millisecond}
	start := time.Now()
	calls := 0
	_ = p.Do(context.Background(), func() error {
		calls++
		return errors.New("transient")
	}, Any)
	assert.Equal(t, 4, calls)
	// Linear growth would wait 30+60+90ms; the cap holds each wait at 30ms.
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}