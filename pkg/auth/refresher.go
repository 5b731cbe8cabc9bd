package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/ratelimit"
)

// Fieldwire token endpoint defaults.
const (
	DefaultTokenURL      = "https://client-api.super.fieldwire.com/api_keys/jwt"
	DefaultAPIVersion    = "2023-12-25"
	DefaultTokenLifetime = time.Hour

	// APIVersionHeader is required on every Fieldwire request.
	APIVersionHeader = "Fieldwire-Version"
)

// RefresherConfig configures the Fieldwire JWT refresher.
type RefresherConfig struct {
	// APIToken is the long-lived Fieldwire API (bearer) token. REQUIRED.
	APIToken string

	TokenURL   string
	APIVersion string

	// Lifetime is how long an issued access token is considered valid.
	Lifetime time.Duration

	// Budget, when set, is consulted before every token request.
	Budget ratelimit.Budget

	HTTPClient *http.Client
	Now        func() time.Time
}

// DefaultRefresherConfig returns the Fieldwire production configuration.
func DefaultRefresherConfig(apiToken string) RefresherConfig {
	return RefresherConfig{
		APIToken:   apiToken,
		TokenURL:   DefaultTokenURL,
		APIVersion: DefaultAPIVersion,
		Lifetime:   DefaultTokenLifetime,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Now:        time.Now,
	}
}

// JWTRefresher exchanges the API token for a short-lived access token.
type JWTRefresher struct {
	config RefresherConfig
}

type tokenRequest struct {
	APIToken string `json:"api_token"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// NewJWTRefresher creates a refresher for the Fieldwire token endpoint.
func NewJWTRefresher(cfg RefresherConfig) (*JWTRefresher, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("api token is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token url is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultTokenLifetime
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWTRefresher{config: cfg}, nil
}

// Refresh requests a new access token. The endpoint answers 201 Created.
func (r *JWTRefresher) Refresh(ctx context.Context) (Grant, error) {
	if r.config.Budget != nil {
		if err := r.config.Budget.Wait(ctx); err != nil {
			return Grant{}, fmt.Errorf("rate budget: %w", err)
		}
	}

	payload, err := json.Marshal(tokenRequest{APIToken: r.config.APIToken})
	if err != nil {
		return Grant{}, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return Grant{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIVersionHeader, r.config.APIVersion)

	resp, err := r.config.HTTPClient.Do(req)
	if err != nil {
		return Grant{}, &AuthError{Op: "refresh", Err: fmt.Errorf("token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Grant{}, &AuthError{Op: "refresh", StatusCode: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode != http.StatusCreated {
		return Grant{}, &AuthError{
			Op:         "refresh",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("token endpoint returned %s: %s", resp.Status, bytes.TrimSpace(body)),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Grant{}, &AuthError{Op: "refresh", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return Grant{}, &AuthError{Op: "refresh", StatusCode: resp.StatusCode, Err: ErrNoAccessToken}
	}

	return Grant{
		AccessToken: tr.AccessToken,
		ExpiresAt:   r.config.Now().Add(r.config.Lifetime),
	}, nil
}
