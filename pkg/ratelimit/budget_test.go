package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		wantType    string
	}{
		{
			name:     "default config",
			config:   DefaultConfig(),
			wantType: "interval",
		},
		{
			name:     "empty strategy defaults to interval",
			config:   Config{Interval: 50 * time.Millisecond},
			wantType: "interval",
		},
		{
			name:     "bucket",
			config:   Config{Strategy: StrategyBucket, Interval: 100 * time.Millisecond, Burst: 2},
			wantType: "bucket",
		},
		{
			name:     "window",
			config:   Config{Strategy: StrategyWindow, MaxRequests: 10, Window: time.Second},
			wantType: "window",
		},
		{
			name:        "interval zero",
			config:      Config{Strategy: StrategyInterval},
			expectError: true,
		},
		{
			name:        "bucket without burst",
			config:      Config{Strategy: StrategyBucket, Interval: time.Second},
			expectError: true,
		},
		{
			name:        "window without max requests",
			config:      Config{Strategy: StrategyWindow, Window: time.Second},
			expectError: true,
		},
		{
			name:        "unknown strategy",
			config:      Config{Strategy: "leaky", Interval: time.Second},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatalf("New() expected error, got budget %T", budget)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}

			var got string
			switch budget.(type) {
			case *IntervalBudget:
				got = "interval"
			case *BucketBudget:
				got = "bucket"
			case *WindowBudget:
				got = "window"
			}
			if got != tt.wantType {
				t.Errorf("New() type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestIntervalBudget_SpacesSlots(t *testing.T) {
	budget := NewIntervalBudget(100 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := budget.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	if elapsed < 400*time.Millisecond {
		t.Errorf("5 slots took %v, want >= 400ms", elapsed)
	}
}

func TestIntervalBudget_ConcurrentCallers(t *testing.T) {
	budget := NewIntervalBudget(50 * time.Millisecond)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		grants []time.Time
		wg     sync.WaitGroup
	)

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := budget.Wait(ctx); err != nil {
				t.Errorf("Wait() error = %v", err)
				return
			}
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(grants) != 6 {
		t.Fatalf("grants = %d, want 6", len(grants))
	}

	first, last := grants[0], grants[0]
	for _, g := range grants {
		if g.Before(first) {
			first = g
		}
		if g.After(last) {
			last = g
		}
	}
	if span := last.Sub(first); span < 5*50*time.Millisecond-25*time.Millisecond {
		t.Errorf("grant span = %v, want about 250ms", span)
	}
}

func TestIntervalBudget_ContextCancelled(t *testing.T) {
	budget := NewIntervalBudget(time.Hour)

	if err := budget.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := budget.Wait(ctx); err == nil {
		t.Error("Wait() expected error for a slot past the deadline")
	}
}

func TestBudget_CancelledWaitersReleaseSlots(t *testing.T) {
	tests := []struct {
		name   string
		budget Budget
	}{
		{"interval", NewIntervalBudget(100 * time.Millisecond)},
		{"bucket", NewBucketBudget(100*time.Millisecond, 1)},
		{"window", NewWindowBudget(1, 100*time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			if err := tt.budget.Wait(context.Background()); err != nil {
				t.Fatalf("first Wait() error = %v", err)
			}

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
					defer cancel()
					if err := tt.budget.Wait(ctx); err == nil {
						t.Error("Wait() expected cancellation error")
					}
				}()
			}
			wg.Wait()

			time.Sleep(time.Until(start.Add(150 * time.Millisecond)))

			waitStart := time.Now()
			if err := tt.budget.Wait(context.Background()); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
			if waited := time.Since(waitStart); waited > 50*time.Millisecond {
				t.Errorf("Wait() after cancelled waiters took %v, want immediate", waited)
			}
		})
	}
}

func TestWindowBudget_ContextCancelled(t *testing.T) {
	budget := NewWindowBudget(1, time.Hour)

	if err := budget.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := budget.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
	if n := len(budget.slots); n != 1 {
		t.Errorf("slots after cancelled wait = %d, want 1", n)
	}
}

func TestBucketBudget_Burst(t *testing.T) {
	budget := NewBucketBudget(100*time.Millisecond, 3)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := budget.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst of 3 took %v, want immediate", elapsed)
	}

	if err := budget.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("4th slot after %v, want >= ~100ms", elapsed)
	}
}

func TestWindowBudget_LimitsPerWindow(t *testing.T) {
	budget := NewWindowBudget(2, 100*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := budget.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// Slots: 0, 0, 100, 100, 200ms.
	if elapsed < 190*time.Millisecond {
		t.Errorf("5 slots at 2/100ms took %v, want >= 200ms", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("5 slots at 2/100ms took %v, too slow", elapsed)
	}
}
