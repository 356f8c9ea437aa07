// Package retry provides the bounded retry-with-backoff primitive shared by
// the caching, loading, and playing phases of ad playback.
package retry

import (
	"context"
	"time"
)

// Policy bounds an operation: at most MaxAttempts tries, waiting
// attempt*Backoff between tries, capped at MaxBackoff. Backoff grows linearly;
// the bounds are fixed rather than adaptive.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// Any treats every error as retryable.
func Any(error) bool { return true }

// Do runs fn until it succeeds, the attempts are exhausted, a non-retryable
// error occurs, or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func() error, retryable func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		wait := time.Duration(attempt) * p.Backoff
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
