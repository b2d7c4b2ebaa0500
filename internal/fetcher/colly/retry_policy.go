package collyfetcher

import (
	"context"
	"math"
	"time"
)

// ExponentialRetryPolicy decides which request failures are retried and how
// long to wait between attempts.
type ExponentialRetryPolicy struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewExponentialRetryPolicy builds a policy that doubles from base up to max.
func NewExponentialRetryPolicy(base, maxDelay time.Duration) *ExponentialRetryPolicy {
	if base <= 0 {
		base = time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &ExponentialRetryPolicy{
		baseDelay: base,
		maxDelay:  maxDelay,
	}
}

// ShouldRetry retries any failed attempt, client timeouts included, for as
// long as the caller's context is live. Per-request timeouts surface as
// context.DeadlineExceeded too, so the decision reads ctx rather than err.
func (p *ExponentialRetryPolicy) ShouldRetry(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() == nil
}

// Backoff returns the wait before retry number attempt (zero-based):
// base, 2*base, 4*base, ... capped at the max delay.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(delay)
}
