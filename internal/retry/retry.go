// Package retry implements bounded retry loops with pluggable backoff.
package retry

import (
	"context"
	"time"
)

// Policy describes how a failing call is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff returns the wait before retry number attempt (1-based), given the
	// error of the attempt that just failed.
	Backoff func(attempt int, err error) time.Duration
	// Retryable decides whether err is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
	// Sleep blocks for d. Nil uses Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do calls fn until it succeeds, fails with a non-retryable error or the
// retry budget is spent. It returns the number of attempts made and the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	attempt := 0
	for {
		attempt++
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if attempt > p.MaxRetries || (p.Retryable != nil && !p.Retryable(err)) {
			return attempt, err
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return attempt, serr
		}
	}
}

// Exponential returns a backoff doubling from base, capped at max.
func Exponential(base, max time.Duration) func(int, error) time.Duration {
	return func(attempt int, _ error) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return d
	}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
