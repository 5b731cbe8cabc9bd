package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// BucketBudget is a token bucket: one token every refill interval, up to burst.
type BucketBudget struct {
	gate *limiterGate
}

// NewBucketBudget creates a token bucket that refills one token per interval.
func NewBucketBudget(interval time.Duration, burst int) *BucketBudget {
	return &BucketBudget{gate: newLimiterGate(rate.NewLimiter(rate.Every(interval), burst))}
}

// Wait blocks until a token is available.
func (b *BucketBudget) Wait(ctx context.Context) error {
	return b.gate.wait(ctx, StrategyBucket)
}

// SetRate adjusts the refill interval and burst at runtime.
func (b *BucketBudget) SetRate(interval time.Duration, burst int) {
	b.gate.limiter.SetLimit(rate.Every(interval))
	b.gate.limiter.SetBurst(burst)
}
