package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingRefresher issues numbered tokens valid for one hour.
type countingRefresher struct {
	clock *fakeClock
	delay time.Duration
	calls atomic.Int32
	fail  atomic.Bool
}

func (r *countingRefresher) Refresh(ctx context.Context) (Grant, error) {
	n := r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail.Load() {
		return Grant{}, &AuthError{Op: "refresh", StatusCode: 500, Err: errors.New("token endpoint down")}
	}
	return Grant{
		AccessToken: fmt.Sprintf("token-%d", n),
		ExpiresAt:   r.clock.Now().Add(time.Hour),
	}, nil
}

func newTestProvider(t *testing.T, r Refresher, clock *fakeClock) *TokenProvider {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	p, err := NewTokenProvider(cfg, r, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTokenProvider() error = %v", err)
	}
	return p
}

func TestNewTokenProvider_Validation(t *testing.T) {
	refresher := RefresherFunc(func(ctx context.Context) (Grant, error) { return Grant{}, nil })

	tests := []struct {
		name        string
		config      Config
		refresher   Refresher
		expectError bool
	}{
		{name: "valid", config: DefaultConfig(), refresher: refresher},
		{name: "nil refresher", config: DefaultConfig(), expectError: true},
		{name: "negative skew", config: Config{Skew: -time.Second}, refresher: refresher, expectError: true},
		{name: "negative retry interval", config: Config{RetryInterval: -time.Second}, refresher: refresher, expectError: true},
		{name: "nil clock defaults", config: Config{}, refresher: refresher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewTokenProvider(tt.config, tt.refresher, zerolog.Nop())
			if tt.expectError {
				if err == nil {
					t.Error("NewTokenProvider() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTokenProvider() unexpected error: %v", err)
			}
			if p.State() != StateIdle {
				t.Errorf("State() = %v, want idle", p.State())
			}
		})
	}
}

func TestTokenProvider_SingleRefreshUnderConcurrency(t *testing.T) {
	clock := newFakeClock()
	refresher := &countingRefresher{clock: clock, delay: 50 * time.Millisecond}
	p := newTestProvider(t, refresher, clock)

	const callers = 50
	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		tokens = make([]string, callers)
		errs   = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = p.Token(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	for i := range tokens {
		if errs[i] != nil {
			t.Errorf("caller %d error = %v", i, errs[i])
		}
		if tokens[i] != "token-1" {
			t.Errorf("caller %d token = %q, want token-1", i, tokens[i])
		}
	}
	if p.State() != StateIdle {
		t.Errorf("State() = %v, want idle", p.State())
	}
}

func TestTokenProvider_NoRefreshBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	refresher := &countingRefresher{clock: clock}
	p := newTestProvider(t, refresher, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := p.Token(ctx); err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		clock.Advance(5 * time.Minute)
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls within lifetime = %d, want 1", got)
	}

	// Inside the skew window the token counts as expired.
	clock.Advance(35 * time.Minute)
	token, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "token-2" {
		t.Errorf("Token() after expiry = %q, want token-2", token)
	}
	if got := refresher.calls.Load(); got != 2 {
		t.Errorf("refresh calls = %d, want 2", got)
	}
	if want := clock.Now().Add(time.Hour); !p.ExpiresAt().Equal(want) {
		t.Errorf("ExpiresAt() = %v, want %v", p.ExpiresAt(), want)
	}
}

func TestTokenProvider_FailurePropagatesToWaiters(t *testing.T) {
	clock := newFakeClock()
	refresher := &countingRefresher{clock: clock, delay: 50 * time.Millisecond}
	refresher.fail.Store(true)
	p := newTestProvider(t, refresher, clock)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Token(context.Background())
		}(i)
	}
	wg.Wait()

	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	for i, err := range errs {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Errorf("caller %d error = %v, want *AuthError", i, err)
		}
	}
	if p.State() != StateIdle {
		t.Errorf("State() = %v, want idle after failure", p.State())
	}
}

func TestTokenProvider_RetryTooSoon(t *testing.T) {
	clock := newFakeClock()
	refresher := &countingRefresher{clock: clock}
	refresher.fail.Store(true)
	p := newTestProvider(t, refresher, clock)
	ctx := context.Background()

	if _, err := p.Token(ctx); err == nil {
		t.Fatal("first Token() expected error")
	}

	_, err := p.Token(ctx)
	if !errors.Is(err, ErrRefreshTooSoon) {
		t.Errorf("Token() inside retry interval error = %v, want ErrRefreshTooSoon", err)
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}

	clock.Advance(6 * time.Second)
	refresher.fail.Store(false)
	token, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token() after retry interval error = %v", err)
	}
	if token != "token-2" {
		t.Errorf("Token() = %q, want token-2", token)
	}
}

func TestTokenProvider_ForceRefreshDedupe(t *testing.T) {
	clock := newFakeClock()
	refresher := &countingRefresher{clock: clock, delay: 20 * time.Millisecond}
	p := newTestProvider(t, refresher, clock)
	ctx := context.Background()

	rejected, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = p.ForceRefresh(ctx, rejected)
		}(i)
	}
	wg.Wait()

	if got := refresher.calls.Load(); got != 2 {
		t.Errorf("refresh calls = %d, want 2", got)
	}
	for i, tok := range results {
		if tok != "token-2" {
			t.Errorf("caller %d token = %q, want token-2", i, tok)
		}
	}

	// A stale rejection of an already replaced token is free.
	tok, err := p.ForceRefresh(ctx, rejected)
	if err != nil || tok != "token-2" {
		t.Errorf("ForceRefresh(stale) = %q, %v; want token-2", tok, err)
	}
	if got := refresher.calls.Load(); got != 2 {
		t.Errorf("refresh calls after stale rejection = %d, want 2", got)
	}
}

func TestTokenProvider_Invalidate(t *testing.T) {
	clock := newFakeClock()
	refresher := &countingRefresher{clock: clock}
	p := newTestProvider(t, refresher, clock)
	ctx := context.Background()

	if _, err := p.Token(ctx); err != nil {
		t.Fatal(err)
	}
	p.Invalidate()
	if !p.ExpiresAt().IsZero() {
		t.Error("ExpiresAt() should be zero after Invalidate")
	}
	tok, err := p.Token(ctx)
	if err != nil || tok != "token-2" {
		t.Errorf("Token() after Invalidate = %q, %v; want token-2", tok, err)
	}
}

func TestTokenProvider_WaiterContextCancelled(t *testing.T) {
	clock := newFakeClock()
	refresher := &countingRefresher{clock: clock, delay: 200 * time.Millisecond}
	p := newTestProvider(t, refresher, clock)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Token(context.Background())
	}()

	// Let the first caller claim the refresh.
	deadline := time.Now().Add(time.Second)
	for p.State() != StateRefreshing && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Token(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiter error = %v, want deadline exceeded", err)
	}

	<-done
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestTokenProvider_EmptyGrant(t *testing.T) {
	clock := newFakeClock()
	p := newTestProvider(t, RefresherFunc(func(ctx context.Context) (Grant, error) {
		return Grant{ExpiresAt: clock.Now().Add(time.Hour)}, nil
	}), clock)

	_, err := p.Token(context.Background())
	if !errors.Is(err, ErrNoAccessToken) {
		t.Errorf("Token() error = %v, want ErrNoAccessToken", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRefreshing, "refreshing"},
		{State(7), "state(7)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
