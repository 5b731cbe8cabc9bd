// Package client provides the Fieldwire request gateway: one authenticated
// HTTP call per Execute, paced by the shared rate budget, with a single
// credential refresh and retry when the server rejects the access token.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/auth"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/cache"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for gateway operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldwire_requests_total",
		Help: "Total Fieldwire requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldwire_request_duration_seconds",
		Help:    "Fieldwire request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldwire_errors_total",
		Help: "Total Fieldwire request errors by class",
	}, []string{"class"})
)

// DefaultUserAgent identifies this client to the Fieldwire API.
const DefaultUserAgent = "fieldwire-client-go/1.0"

// DefaultExpected are the status codes accepted when none are given.
var DefaultExpected = []int{http.StatusOK, http.StatusCreated}

// TokenSource supplies access tokens. *auth.TokenProvider implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context, rejected string) (string, error)
}

// Config holds the gateway configuration.
type Config struct {
	// Tokens provides the bearer token for every request. REQUIRED.
	Tokens TokenSource

	// Budget, when set, is waited on before every network call.
	Budget ratelimit.Budget

	// BaseURL is the project API root, e.g. https://client-api.us.fieldwire.com/api/v3. REQUIRED.
	BaseURL string

	// APIVersion is sent as Fieldwire-Version.
	APIVersion string

	UserAgent  string
	HTTPClient *http.Client

	// Redis enables the GET response cache when non-nil.
	Redis *redis.Client

	// CacheTTL is used for cached responses without an Expires header.
	CacheTTL time.Duration

	// CacheVary lists request headers that are part of the cache key.
	CacheVary []string

	// AuthRejected reports whether a response means the token was rejected.
	// Defaults to status 401.
	AuthRejected func(resp *http.Response) bool

	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(tokens TokenSource, baseURL string) Config {
	return Config{
		Tokens:     tokens,
		BaseURL:    baseURL,
		APIVersion: auth.DefaultAPIVersion,
		UserAgent:  DefaultUserAgent,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		CacheTTL:   30 * time.Second,
		CacheVary:  []string{"Fieldwire-Filter", "Fieldwire-Per-Page"},
	}
}

// Client is the Fieldwire request gateway.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	budget     ratelimit.Budget
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger

	last atomic.Pointer[Response]
}

// New creates a new gateway.
func New(cfg Config) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache_ttl must be >= 0 (got %s)", cfg.CacheTTL)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = auth.DefaultAPIVersion
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.AuthRejected == nil {
		cfg.AuthRejected = func(resp *http.Response) bool {
			return resp.StatusCode == http.StatusUnauthorized
		}
	}

	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}

	c := &Client{
		httpClient: cfg.HTTPClient,
		tokens:     cfg.Tokens,
		budget:     cfg.Budget,
		config:     cfg,
		logger:     base.With().Str("component", "request-gateway").Logger(),
	}
	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}
	return c, nil
}

// Execute performs one authenticated request.
//
// A budget slot is acquired before every network call. When the server
// rejects the token, the token is refreshed once and the request retried
// once; a second rejection is an *auth.AuthError. Transport failures are a
// *RequestError. Any other status is returned as a Response; statuses
// outside expected (default 200, 201) are logged but not turned into errors.
func (c *Client) Execute(ctx context.Context, req Request, expected ...int) (*Response, error) {
	if len(expected) == 0 {
		expected = DefaultExpected
	}

	target, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	body, err := req.encodeBody()
	if err != nil {
		return nil, &RequestError{Method: req.Method, Target: target.String(), Class: ErrorClassUnexpected, Err: err}
	}

	method := req.method()
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}

	var lookup *cacheLookup
	if c.cache != nil && method == http.MethodGet {
		lookup = c.lookupCache(ctx, target, header)
	}

	resp, err := c.doWithAuthRetry(ctx, method, target, header, body)
	if err != nil {
		return nil, err
	}

	if lookup != nil {
		resp = c.storeCache(ctx, lookup, resp)
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	c.last.Store(resp)

	if !ValidateResponse(resp, expected...) {
		c.logger.Warn().
			Str("method", method).
			Str("target", target.String()).
			Int("status", resp.StatusCode).
			Ints("expected", expected).
			Str("body", resp.snippet()).
			Msg("Unexpected response status")
	}

	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, target string, header http.Header, expected ...int) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodGet, Target: target, Header: header}, expected...)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, target string, body any, expected ...int) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodPost, Target: target, Body: body}, expected...)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, target string, body any, expected ...int) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodPatch, Target: target, Body: body}, expected...)
}

// Delete performs a DELETE request. Fieldwire answers deletes with 204.
func (c *Client) Delete(ctx context.Context, target string, expected ...int) (*Response, error) {
	if len(expected) == 0 {
		expected = []int{http.StatusOK, http.StatusNoContent}
	}
	return c.Execute(ctx, Request{Method: http.MethodDelete, Target: target}, expected...)
}

// LastResponse returns the most recent response of any goroutine.
// Diagnostic only; concurrent callers overwrite each other.
func (c *Client) LastResponse() *Response {
	return c.last.Load()
}

// BaseURL returns the configured project API root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
