// Package testutil provides a mock Fieldwire API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Paths served by MockFieldwire.
const (
	TokenPath = "/api_keys/jwt"
	APIPrefix = "/api/v3"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockFieldwire is a configurable mock of the Fieldwire token endpoint and
// project API. Every API request must carry a token issued by the mock that
// has not been revoked, otherwise it is answered with 401.
type MockFieldwire struct {
	server *httptest.Server

	// APIToken is the long-lived token accepted by the token endpoint.
	APIToken string

	// TokenDelay slows down the token endpoint.
	TokenDelay time.Duration

	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	issued   map[string]bool // token -> still valid
	failAuth int             // remaining token requests answered with 500

	// Tracking
	RequestCount      int
	TokenRequestCount int
	ConditionalCount  int
	LastRequestHeader http.Header
}

// NewMockFieldwire creates a new mock server accepting apiToken.
func NewMockFieldwire(apiToken string) *MockFieldwire {
	mock := &MockFieldwire{
		APIToken: apiToken,
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		issued:   make(map[string]bool),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == TokenPath {
			mock.handleToken(w, r)
			return
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		valid := mock.issued[token]
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if !valid {
			writeJSON(w, http.StatusUnauthorized, `{"error":"invalid access token"}`)
			return
		}

		if exists {
			handler(w, r)
			return
		}
		writeJSON(w, http.StatusNotFound, `{"error":"not found"}`)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockFieldwire) URL() string {
	return m.server.URL
}

// TokenURL returns the token endpoint URL.
func (m *MockFieldwire) TokenURL() string {
	return m.server.URL + TokenPath
}

// BaseURL returns the project API base URL.
func (m *MockFieldwire) BaseURL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockFieldwire) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockFieldwire) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.TokenRequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
}

// RevokeTokens invalidates every access token issued so far.
func (m *MockFieldwire) RevokeTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token := range m.issued {
		m.issued[token] = false
	}
}

// FailTokenRequests makes the next n token requests fail with 500.
func (m *MockFieldwire) FailTokenRequests(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAuth = n
}

// SetHandler sets a custom handler for a path below the API prefix.
func (m *MockFieldwire) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[APIPrefix+path] = handler
}

// SetResponse configures a simple response for a path below the API prefix.
func (m *MockFieldwire) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPages serves pages as a cursor-paginated list. Page i is returned for
// last_synced_at "cursor-i" (no cursor means page 0); every page but the last
// answers X-Has-More: true and the cursor of the next page.
func (m *MockFieldwire) SetPages(path string, pages [][]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		index := 0
		if cursor := r.URL.Query().Get("last_synced_at"); cursor != "" {
			n, err := strconv.Atoi(strings.TrimPrefix(cursor, "cursor-"))
			if err != nil || n < 0 || n >= len(pages) {
				writeJSON(w, http.StatusBadRequest, `{"error":"bad cursor"}`)
				return
			}
			index = n
		}
		if len(pages) == 0 {
			writeJSON(w, http.StatusNotFound, `{"error":"no items"}`)
			return
		}

		body, _ := json.Marshal(pages[index])
		if index+1 < len(pages) {
			w.Header().Set("X-Has-More", "true")
			w.Header().Set("X-Last-Synced-At", fmt.Sprintf("cursor-%d", index+1))
		} else {
			w.Header().Set("X-Has-More", "false")
		}
		writeJSON(w, http.StatusOK, string(body))
	})
}

// GetRequestCount returns the number of API requests made to the server.
func (m *MockFieldwire) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetTokenRequestCount returns the number of token endpoint calls.
func (m *MockFieldwire) GetTokenRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenRequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockFieldwire) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetLastRequestHeader returns the headers of the most recent API request.
func (m *MockFieldwire) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

func (m *MockFieldwire) handleToken(w http.ResponseWriter, r *http.Request) {
	if m.TokenDelay > 0 {
		time.Sleep(m.TokenDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokenRequestCount++

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, `{"error":"method not allowed"}`)
		return
	}
	if m.failAuth > 0 {
		m.failAuth--
		writeJSON(w, http.StatusInternalServerError, `{"error":"token service unavailable"}`)
		return
	}

	var req struct {
		APIToken string `json:"api_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIToken != m.APIToken {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid api token"}`)
		return
	}

	token := fmt.Sprintf("access-%d", len(m.issued)+1)
	m.issued[token] = true
	writeJSON(w, http.StatusCreated, fmt.Sprintf(`{"access_token":%q}`, token))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// NewConditionalHandler creates a handler that responds with 304 when the
// request carries etag in If-None-Match.
func NewConditionalHandler(etag string, data string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		writeJSON(w, http.StatusOK, data)
	}
}
