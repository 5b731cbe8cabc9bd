package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowBudget grants at most maxRequests slots in any sliding window.
type WindowBudget struct {
	maxRequests int
	window      time.Duration
	turn        turnstile

	mu    sync.Mutex
	slots []time.Time // granted slot times, oldest first
}

// NewWindowBudget creates a sliding window budget.
func NewWindowBudget(maxRequests int, window time.Duration) *WindowBudget {
	return &WindowBudget{
		maxRequests: maxRequests,
		window:      window,
		turn:        newTurnstile(),
		slots:       make([]time.Time, 0, maxRequests),
	}
}

// Wait blocks until granting a slot keeps the window under its limit.
// A cancelled wait gives its slot back.
func (b *WindowBudget) Wait(ctx context.Context) error {
	start := time.Now()
	if err := b.turn.enter(ctx); err != nil {
		return err
	}
	defer b.turn.leave()

	slot, evicted := b.reserve()
	if err := sleepUntil(ctx, slot); err != nil {
		b.release(evicted)
		return err
	}
	observeGrant(StrategyWindow, start)
	return nil
}

// reserve appends the next slot. When the window is full the oldest grant
// is evicted and returned so a cancelled wait can restore it.
func (b *WindowBudget) reserve() (slot, evicted time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	drop := 0
	for drop < len(b.slots) && now.Sub(b.slots[drop]) >= b.window {
		drop++
	}
	b.slots = b.slots[drop:]

	slot = now
	if len(b.slots) >= b.maxRequests {
		evicted = b.slots[0]
		slot = evicted.Add(b.window)
		b.slots = b.slots[1:]
	}
	b.slots = append(b.slots, slot)
	return slot, evicted
}

// release undoes the latest reservation. Waiters are serialized, so it is
// always the last slot.
func (b *WindowBudget) release(evicted time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.slots); n > 0 {
		b.slots = b.slots[:n-1]
	}
	if !evicted.IsZero() {
		b.slots = append([]time.Time{evicted}, b.slots...)
	}
}
