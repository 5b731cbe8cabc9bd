package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewJWTRefresher_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      RefresherConfig
		expectError bool
	}{
		{name: "defaults", config: DefaultRefresherConfig("secret")},
		{name: "missing api token", config: DefaultRefresherConfig(""), expectError: true},
		{name: "missing token url", config: RefresherConfig{APIToken: "secret"}, expectError: true},
		{name: "zero values filled", config: RefresherConfig{APIToken: "secret", TokenURL: "http://localhost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewJWTRefresher(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("NewJWTRefresher() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJWTRefresher() unexpected error: %v", err)
			}
			if r.config.APIVersion == "" || r.config.Lifetime <= 0 || r.config.HTTPClient == nil || r.config.Now == nil {
				t.Errorf("defaults not applied: %+v", r.config)
			}
		})
	}
}

func TestJWTRefresher_Refresh(t *testing.T) {
	var gotBody map[string]string
	var gotVersion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotVersion = r.Header.Get(APIVersionHeader)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"access_token":"jwt-abc"}`))
	}))
	defer server.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultRefresherConfig("secret")
	cfg.TokenURL = server.URL
	cfg.Now = func() time.Time { return now }

	r, err := NewJWTRefresher(cfg)
	if err != nil {
		t.Fatal(err)
	}

	grant, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if grant.AccessToken != "jwt-abc" {
		t.Errorf("AccessToken = %q, want jwt-abc", grant.AccessToken)
	}
	if want := now.Add(DefaultTokenLifetime); !grant.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", grant.ExpiresAt, want)
	}
	if gotBody["api_token"] != "secret" {
		t.Errorf("request api_token = %q, want secret", gotBody["api_token"])
	}
	if gotVersion != DefaultAPIVersion {
		t.Errorf("%s = %q, want %q", APIVersionHeader, gotVersion, DefaultAPIVersion)
	}
}

func TestJWTRefresher_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantErr    error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"bad token"}`, wantStatus: 401},
		{name: "ok instead of created", status: http.StatusOK, body: `{"access_token":"x"}`, wantStatus: 200},
		{name: "missing token", status: http.StatusCreated, body: `{}`, wantStatus: 201, wantErr: ErrNoAccessToken},
		{name: "invalid json", status: http.StatusCreated, body: `not json`, wantStatus: 201},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			cfg := DefaultRefresherConfig("secret")
			cfg.TokenURL = server.URL
			r, err := NewJWTRefresher(cfg)
			if err != nil {
				t.Fatal(err)
			}

			_, err = r.Refresh(context.Background())
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("Refresh() error = %v, want *AuthError", err)
			}
			if authErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", authErr.StatusCode, tt.wantStatus)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Refresh() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJWTRefresher_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cfg := DefaultRefresherConfig("secret")
	cfg.TokenURL = url
	r, _ := NewJWTRefresher(cfg)

	_, err := r.Refresh(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Refresh() error = %v, want *AuthError", err)
	}
	if authErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", authErr.StatusCode)
	}
}
