// Package executor runs independent operations in parallel under a
// concurrency ceiling, optionally gated by the shared rate budget.
//
// Results are collected by submission index, so the outcome for operation i is
// always Outcomes[i] regardless of completion order. A failing or panicking
// operation never cancels its siblings.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for batch execution.
var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldwire_operations_total",
		Help: "Total executed operations by result",
	}, []string{"result"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldwire_batch_duration_seconds",
		Help:    "Duration of parallel batches by mode",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"mode"})
)

// Mode selects how a batch result is reported.
type Mode int

const (
	// ModeIndependent reports one outcome per operation, in submission order.
	ModeIndependent Mode = iota

	// ModeAllOrNothing reports only whether every operation succeeded.
	ModeAllOrNothing
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeIndependent:
		return "independent"
	case ModeAllOrNothing:
		return "all_or_nothing"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Operation is a unit of work with its arguments already bound.
type Operation[T any] func(ctx context.Context) (T, error)

// Bind captures arg at construction time.
func Bind[A, T any](fn func(ctx context.Context, arg A) (T, error), arg A) Operation[T] {
	return func(ctx context.Context) (T, error) {
		return fn(ctx, arg)
	}
}

// BindEach builds one operation per argument.
func BindEach[A, T any](fn func(ctx context.Context, arg A) (T, error), args []A) []Operation[T] {
	ops := make([]Operation[T], len(args))
	for i, arg := range args {
		ops[i] = Bind(fn, arg)
	}
	return ops
}

// Config holds executor configuration.
type Config struct {
	// MaxConcurrency is the number of workers.
	MaxConcurrency int

	// Budget, when set, is waited on before each operation is dispatched.
	// Leave it nil when the operations already go through a budgeted gateway.
	Budget ratelimit.Budget
}

// DefaultConfig returns safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
	}
}

// Executor runs batches of operations on a bounded worker pool.
type Executor struct {
	config Config
	logger zerolog.Logger
}

// New creates an executor.
func New(cfg Config, logger zerolog.Logger) (*Executor, error) {
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max_concurrency must be >= 1 (got %d)", cfg.MaxConcurrency)
	}
	return &Executor{
		config: cfg,
		logger: logger.With().Str("component", "executor").Logger(),
	}, nil
}

// MaxConcurrency returns the worker count.
func (e *Executor) MaxConcurrency() int {
	return e.config.MaxConcurrency
}

// ExecuteParallel runs every operation and waits for all of them.
//
// Workers draw indices in submission order. Each result is stored at its
// operation's index. Errors and panics become *OperationError. In
// ModeAllOrNothing the result carries only AllSucceeded.
func ExecuteParallel[T any](ctx context.Context, e *Executor, ops []Operation[T], mode Mode) BatchResult[T] {
	start := time.Now()
	outcomes := make([]Outcome[T], len(ops))

	if len(ops) > 0 {
		queue := make(chan int, len(ops))
		for i := range ops {
			queue <- i
		}
		close(queue)

		workers := min(e.config.MaxConcurrency, len(ops))

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(workerID int) {
				defer wg.Done()
				worker(ctx, e, ops, queue, outcomes, workerID)
			}(w)
		}
		wg.Wait()
	}

	result := BatchResult[T]{Mode: mode, AllSucceeded: true}
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			result.AllSucceeded = false
			failed++
		}
	}
	if mode == ModeIndependent {
		result.Outcomes = outcomes
	}

	batchDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	e.logger.Info().
		Str("mode", mode.String()).
		Int("operations", len(ops)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return result
}

// ExecuteAll runs ops in ModeAllOrNothing and reports whether all succeeded.
func ExecuteAll[T any](ctx context.Context, e *Executor, ops []Operation[T]) bool {
	return ExecuteParallel(ctx, e, ops, ModeAllOrNothing).AllSucceeded
}

// worker processes indices from the queue. Each index is written by exactly
// one worker, so outcomes needs no lock.
func worker[T any](ctx context.Context, e *Executor, ops []Operation[T], queue <-chan int, outcomes []Outcome[T], workerID int) {
	processed := 0
	for idx := range queue {
		if e.config.Budget != nil {
			if err := e.config.Budget.Wait(ctx); err != nil {
				outcomes[idx] = Outcome[T]{Err: &OperationError{Index: idx, Err: fmt.Errorf("rate budget: %w", err)}}
				operationsTotal.WithLabelValues("failure").Inc()
				continue
			}
		}

		value, err := run(ctx, idx, ops[idx])
		outcomes[idx] = Outcome[T]{Value: value, Err: err}
		processed++

		if err != nil {
			e.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("index", idx).
				Msg("Operation failed")
		}
	}

	if processed > 0 {
		e.logger.Debug().
			Int("worker_id", workerID).
			Int("operations_processed", processed).
			Msg("Worker completed")
	}
}

// run calls op, converting errors and panics into *OperationError.
func run[T any](ctx context.Context, idx int, op Operation[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			err = &OperationError{Index: idx, Err: fmt.Errorf("panic: %v", r), Panicked: true}
			operationsTotal.WithLabelValues("panic").Inc()
		}
	}()

	if op == nil {
		operationsTotal.WithLabelValues("failure").Inc()
		return value, &OperationError{Index: idx, Err: ErrNilOperation}
	}

	value, err = op(ctx)
	if err != nil {
		operationsTotal.WithLabelValues("failure").Inc()
		return value, &OperationError{Index: idx, Err: err}
	}
	operationsTotal.WithLabelValues("success").Inc()
	return value, nil
}
