package auth

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Common errors returned by the token provider.
var (
	// ErrRefreshTooSoon is returned when a refresh is requested while the
	// previous attempt failed less than RetryInterval ago.
	ErrRefreshTooSoon = errors.New("token refresh attempted too soon after a failure")

	// ErrCredentialRejected is returned when the API rejects a freshly
	// refreshed access token.
	ErrCredentialRejected = errors.New("credential rejected")

	// ErrNoAccessToken is returned when the token endpoint answers without an access token.
	ErrNoAccessToken = errors.New("access token not found in response")
)

// Text codes attached to service error envelopes.
const (
	TextCodeAuthFailed      = "UPSTREAM_AUTH_FAILED"
	TextCodeRefreshThrottle = "UPSTREAM_AUTH_REFRESH_THROTTLED"
)

// AuthError reports that a valid credential could not be obtained.
// It is fatal to the call that triggered it but leaves the provider usable.
type AuthError struct {
	// Op is the step that failed: "refresh", "wait" or "request".
	Op string

	// StatusCode is the HTTP status returned by the remote side, if any.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("auth %s failed: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// ToServiceError maps the failure onto a service error envelope.
func (e *AuthError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"op": e.Op}
	if e.StatusCode != 0 {
		metadata["upstream_status"] = e.StatusCode
	}
	if errors.Is(e.Err, ErrRefreshTooSoon) {
		return goerrors.Wrap(e, goerrors.CategoryAuth, "credential refresh throttled").
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(TextCodeRefreshThrottle).
			WithMetadata(metadata)
	}
	return goerrors.Wrap(e, goerrors.CategoryAuth, "upstream authentication failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeAuthFailed).
		WithMetadata(metadata)
}
