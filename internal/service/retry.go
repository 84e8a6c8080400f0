package service

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy spaces out replays of a transfer that lost an optimistic lock race.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// backoff returns a full-jitter delay in [0, min(MaxDelay, BaseDelay*2^attempt)).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 62 {
		attempt = 62
	}
	d := time.Duration(math.MaxInt64)
	if p.BaseDelay <= time.Duration(math.MaxInt64>>attempt) {
		d = p.BaseDelay << attempt
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(d)))
}

// wait sleeps before retry number attempt, returning early on cancellation.
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	d := p.backoff(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
