// Package auth manages the process-wide Fieldwire access token.
//
// A TokenProvider owns exactly one credential. Readers take a lock-free fast
// path while the cached token is valid; when it is not, one goroutine claims
// the refresh and every other caller blocks on the completion signal of that
// refresh instead of issuing its own network call.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for token lifecycle.
var (
	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldwire_token_refreshes_total",
		Help: "Total access token refresh attempts by result",
	}, []string{"result"})

	tokenWaitersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldwire_token_waiters_total",
		Help: "Total callers that waited on an in-flight token refresh",
	})

	tokenRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldwire_token_refresh_duration_seconds",
		Help:    "Duration of access token refresh calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// State is the refresh state of the credential.
type State int

const (
	// StateIdle means no refresh is running.
	StateIdle State = iota

	// StateRefreshing means exactly one goroutine is refreshing the token.
	StateRefreshing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Grant is a token issued by a Refresher.
type Grant struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Refresher obtains a new access token from the remote API.
type Refresher interface {
	Refresh(ctx context.Context) (Grant, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context) (Grant, error)

// Refresh calls f(ctx).
func (f RefresherFunc) Refresh(ctx context.Context) (Grant, error) {
	return f(ctx)
}

// Config holds the token provider configuration.
type Config struct {
	// Skew is subtracted from the expiry when deciding whether a token is still usable.
	Skew time.Duration

	// RetryInterval is the minimum time between a failed refresh and the next attempt.
	// Callers arriving inside this window fail fast with ErrRefreshTooSoon.
	RetryInterval time.Duration

	// Now returns the current time (overridable for tests).
	Now func() time.Time
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Skew:          30 * time.Second,
		RetryInterval: 5 * time.Second,
		Now:           time.Now,
	}
}

// refreshCall is one refresh generation. done is closed exactly once, after
// token and err are final.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// Credential is the single credential record guarded by TokenProvider.mu.
type Credential struct {
	token       string
	expiresAt   time.Time
	state       State
	call        *refreshCall
	lastFailure time.Time
	lastErr     error
}

// snapshot is the immutable view read by the lock-free fast path.
type snapshot struct {
	token     string
	expiresAt time.Time
}

// TokenProvider hands out a valid access token to concurrent callers.
type TokenProvider struct {
	refresher Refresher
	config    Config
	logger    zerolog.Logger

	current atomic.Pointer[snapshot]

	mu   sync.Mutex
	cred Credential
}

// NewTokenProvider creates a token provider around the given refresher.
func NewTokenProvider(cfg Config, refresher Refresher, logger zerolog.Logger) (*TokenProvider, error) {
	if refresher == nil {
		return nil, fmt.Errorf("refresher is required")
	}
	if cfg.Skew < 0 {
		return nil, fmt.Errorf("skew must be >= 0 (got %s)", cfg.Skew)
	}
	if cfg.RetryInterval < 0 {
		return nil, fmt.Errorf("retry_interval must be >= 0 (got %s)", cfg.RetryInterval)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenProvider{
		refresher: refresher,
		config:    cfg,
		logger:    logger.With().Str("component", "token-provider").Logger(),
	}, nil
}

// Token returns a currently valid access token, refreshing it when needed.
// At most one refresh is in flight at any time; concurrent callers wait for
// it and observe its result.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	if snap := p.current.Load(); snap != nil && p.usable(snap.expiresAt) {
		return snap.token, nil
	}
	return p.acquire(ctx, false, "")
}

// ForceRefresh obtains a new token after the server rejected the given one.
// When another goroutine has already replaced the rejected token, the
// replacement is returned without a second network call.
func (p *TokenProvider) ForceRefresh(ctx context.Context, rejected string) (string, error) {
	return p.acquire(ctx, true, rejected)
}

// Invalidate drops the cached token so the next call refreshes it.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cred.token = ""
	p.cred.expiresAt = time.Time{}
	p.current.Store(nil)
}

// State returns the current refresh state.
func (p *TokenProvider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cred.state
}

// ExpiresAt returns the expiry of the cached token (zero when none).
func (p *TokenProvider) ExpiresAt() time.Time {
	if snap := p.current.Load(); snap != nil {
		return snap.expiresAt
	}
	return time.Time{}
}

func (p *TokenProvider) usable(expiresAt time.Time) bool {
	return p.config.Now().Before(expiresAt.Add(-p.config.Skew))
}

func (p *TokenProvider) acquire(ctx context.Context, forced bool, rejected string) (string, error) {
	p.mu.Lock()

	stale := forced && (rejected == "" || p.cred.token == rejected)
	if p.cred.token != "" && !stale && p.usable(p.cred.expiresAt) {
		token := p.cred.token
		p.mu.Unlock()
		return token, nil
	}

	if p.cred.state == StateRefreshing {
		call := p.cred.call
		p.mu.Unlock()
		return p.wait(ctx, call)
	}

	if !p.cred.lastFailure.IsZero() && p.config.Now().Sub(p.cred.lastFailure) < p.config.RetryInterval {
		lastErr := p.cred.lastErr
		p.mu.Unlock()
		tokenRefreshesTotal.WithLabelValues("throttled").Inc()
		p.logger.Warn().
			Dur("retry_interval", p.config.RetryInterval).
			AnErr("last_error", lastErr).
			Msg("Token refresh suppressed after recent failure")
		return "", &AuthError{Op: "refresh", Err: fmt.Errorf("%w: %v", ErrRefreshTooSoon, lastErr)}
	}

	if stale {
		p.cred.token = ""
		p.cred.expiresAt = time.Time{}
		p.current.Store(nil)
	}

	call := &refreshCall{done: make(chan struct{})}
	p.cred.state = StateRefreshing
	p.cred.call = call
	p.mu.Unlock()

	p.logger.Debug().Bool("forced", forced).Msg("Refreshing access token")

	// The refresh runs outside the lock and must not be aborted by the
	// claiming caller's cancellation: waiters depend on its outcome.
	start := time.Now()
	grant, err := p.refresher.Refresh(context.WithoutCancel(ctx))
	tokenRefreshDuration.Observe(time.Since(start).Seconds())
	if err == nil && grant.AccessToken == "" {
		err = ErrNoAccessToken
	}

	p.mu.Lock()
	if err != nil {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			authErr = &AuthError{Op: "refresh", Err: err}
		}
		p.cred.lastFailure = p.config.Now()
		p.cred.lastErr = authErr
		call.err = authErr
		tokenRefreshesTotal.WithLabelValues("failure").Inc()
		p.logger.Error().Err(err).Msg("Access token refresh failed")
	} else {
		p.cred.token = grant.AccessToken
		p.cred.expiresAt = grant.ExpiresAt
		p.cred.lastFailure = time.Time{}
		p.cred.lastErr = nil
		p.current.Store(&snapshot{token: grant.AccessToken, expiresAt: grant.ExpiresAt})
		call.token = grant.AccessToken
		tokenRefreshesTotal.WithLabelValues("success").Inc()
		p.logger.Info().Time("expires_at", grant.ExpiresAt).Msg("Access token refreshed")
	}
	p.cred.state = StateIdle
	p.cred.call = nil
	close(call.done)
	p.mu.Unlock()

	return call.token, call.err
}

// wait blocks until the in-flight refresh completes and returns its result.
func (p *TokenProvider) wait(ctx context.Context, call *refreshCall) (string, error) {
	tokenWaitersTotal.Inc()
	p.logger.Debug().Msg("Waiting for in-flight token refresh")

	select {
	case <-call.done:
	case <-ctx.Done():
		return "", &AuthError{Op: "wait", Err: ctx.Err()}
	}

	if call.err != nil {
		return "", call.err
	}
	return call.token, nil
}
