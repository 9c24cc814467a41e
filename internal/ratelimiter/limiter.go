package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// PublishLimiter throttles how fast a worker appends events to the stream, so
// a large backlog of due items drains as a steady flow instead of one burst.
type PublishLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter granting ratePerSec tokens per second. Burst equals
// the rate. ratePerSec <= 0 disables throttling.
func New(ratePerSec int) *PublishLimiter {
	if ratePerSec <= 0 {
		return &PublishLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &PublishLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// Wait blocks until a token is available or ctx is done.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (l *PublishLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
