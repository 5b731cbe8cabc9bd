// Package ratelimit implements the shared request budget that caps the
// aggregate request rate of every goroutine talking to the Fieldwire API.
//
// A Budget is consulted before each network call. Three strategies are
// available: a minimum interval between granted slots, a token bucket, and a
// sliding window of at most N grants.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Prometheus metrics for budget slot acquisition.
var (
	budgetGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldwire_rate_budget_grants_total",
		Help: "Total request slots granted by strategy",
	}, []string{"strategy"})

	budgetWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldwire_rate_budget_wait_seconds",
		Help:    "Time spent waiting for a request slot by strategy",
		Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"strategy"})
)

// Budget hands out request slots shared by all goroutines.
// Wait blocks until a slot is granted or ctx is done.
type Budget interface {
	Wait(ctx context.Context) error
}

// Strategy selects a Budget implementation.
type Strategy string

const (
	// StrategyInterval enforces a minimum interval between granted slots.
	StrategyInterval Strategy = "interval"

	// StrategyBucket is a token bucket with a refill rate and burst capacity.
	StrategyBucket Strategy = "bucket"

	// StrategyWindow grants at most MaxRequests slots per sliding Window.
	StrategyWindow Strategy = "window"
)

// Config holds the budget configuration.
type Config struct {
	Strategy Strategy

	// Interval is the minimum time between slots (interval) and the refill
	// period of one token (bucket).
	Interval time.Duration

	// Burst is the bucket capacity.
	Burst int

	// MaxRequests and Window configure the sliding window.
	MaxRequests int
	Window      time.Duration
}

// DefaultConfig returns the Fieldwire-safe default of 10 requests per second.
func DefaultConfig() Config {
	return Config{
		Strategy:    StrategyInterval,
		Interval:    100 * time.Millisecond,
		Burst:       1,
		MaxRequests: 10,
		Window:      time.Second,
	}
}

// New builds the budget selected by cfg.Strategy.
func New(cfg Config) (Budget, error) {
	switch cfg.Strategy {
	case StrategyInterval, "":
		if cfg.Interval <= 0 {
			return nil, fmt.Errorf("interval must be > 0 (got %s)", cfg.Interval)
		}
		return NewIntervalBudget(cfg.Interval), nil
	case StrategyBucket:
		if cfg.Interval <= 0 {
			return nil, fmt.Errorf("interval must be > 0 (got %s)", cfg.Interval)
		}
		if cfg.Burst < 1 {
			return nil, fmt.Errorf("burst must be >= 1 (got %d)", cfg.Burst)
		}
		return NewBucketBudget(cfg.Interval, cfg.Burst), nil
	case StrategyWindow:
		if cfg.MaxRequests < 1 {
			return nil, fmt.Errorf("max_requests must be >= 1 (got %d)", cfg.MaxRequests)
		}
		if cfg.Window <= 0 {
			return nil, fmt.Errorf("window must be > 0 (got %s)", cfg.Window)
		}
		return NewWindowBudget(cfg.MaxRequests, cfg.Window), nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", cfg.Strategy)
	}
}

// IntervalBudget grants slots at least Interval apart. It is a token bucket
// of capacity one.
type IntervalBudget struct {
	interval time.Duration
	gate     *limiterGate
}

// NewIntervalBudget creates a budget with the given minimum interval.
func NewIntervalBudget(interval time.Duration) *IntervalBudget {
	return &IntervalBudget{
		interval: interval,
		gate:     newLimiterGate(rate.NewLimiter(rate.Every(interval), 1)),
	}
}

// Wait blocks until the next slot is due.
func (b *IntervalBudget) Wait(ctx context.Context) error {
	return b.gate.wait(ctx, StrategyInterval)
}

// Interval returns the configured minimum interval.
func (b *IntervalBudget) Interval() time.Duration {
	return b.interval
}

// turnstile admits one waiter at a time. Only the admitted waiter holds a
// reservation, so a cancelled caller never leaves a slot behind.
type turnstile chan struct{}

func newTurnstile() turnstile {
	return make(turnstile, 1)
}

func (t turnstile) enter(ctx context.Context) error {
	select {
	case t <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t turnstile) leave() {
	<-t
}

// limiterGate serializes Wait on a rate.Limiter. The single outstanding
// reservation is always the limiter's latest, so cancelling it restores
// its token in full.
type limiterGate struct {
	limiter *rate.Limiter
	turn    turnstile
}

func newLimiterGate(limiter *rate.Limiter) *limiterGate {
	return &limiterGate{limiter: limiter, turn: newTurnstile()}
}

func (g *limiterGate) wait(ctx context.Context, strategy Strategy) error {
	start := time.Now()
	if err := g.turn.enter(ctx); err != nil {
		return err
	}
	defer g.turn.leave()

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	observeGrant(strategy, start)
	return nil
}

// sleepUntil waits for slot and aborts on ctx.
func sleepUntil(ctx context.Context, slot time.Time) error {
	if delay := time.Until(slot); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		return nil
	}
	return ctx.Err()
}

func observeGrant(strategy Strategy, start time.Time) {
	budgetGrantsTotal.WithLabelValues(string(strategy)).Inc()
	budgetWaitSeconds.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())
}
