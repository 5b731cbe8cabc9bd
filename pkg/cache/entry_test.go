package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestCacheEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{
			name:    "expired entry",
			expires: time.Now().Add(-1 * time.Hour),
			want:    true,
		},
		{
			name:    "valid entry",
			expires: time.Now().Add(1 * time.Hour),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_TTL(t *testing.T) {
	entry := &CacheEntry{Expires: time.Now().Add(-time.Minute)}
	if got := entry.TTL(); got != 0 {
		t.Errorf("TTL() of expired entry = %v, want 0", got)
	}

	entry = &CacheEntry{Expires: time.Now().Add(5 * time.Minute)}
	if got := entry.TTL(); got < 4*time.Minute+59*time.Second || got > 5*time.Minute {
		t.Errorf("TTL() = %v, want about 5m", got)
	}
}

func TestNewEntry(t *testing.T) {
	lastMod := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	header := http.Header{
		"Etag":          []string{`"abc123"`},
		"Last-Modified": []string{lastMod.Format(http.TimeFormat)},
		"Content-Type":  []string{"application/json"},
	}
	body := []byte(`[{"id":1}]`)

	entry := NewEntry(http.StatusOK, header, body, 30*time.Second)

	if string(entry.Data) != string(body) {
		t.Errorf("Data = %s, want %s", entry.Data, body)
	}
	if entry.ETag != `"abc123"` {
		t.Errorf("ETag = %q, want %q", entry.ETag, `"abc123"`)
	}
	if !entry.LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, lastMod)
	}
	if ttl := entry.TTL(); ttl <= 25*time.Second || ttl > 30*time.Second {
		t.Errorf("TTL() = %v, want fallback of ~30s", ttl)
	}

	body[0] = 'x'
	if entry.Data[0] == 'x' {
		t.Error("NewEntry must copy the body")
	}
}

func TestExpiresFrom(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		headers http.Header
		want    time.Time
	}{
		{
			name:    "valid expires header",
			headers: http.Header{"Expires": []string{future.UTC().Format(http.TimeFormat)}},
			want:    future,
		},
		{
			name:    "no expires header",
			headers: http.Header{},
			want:    now.Add(time.Minute),
		},
		{
			name:    "invalid expires header",
			headers: http.Header{"Expires": []string{"not a date"}},
			want:    now.Add(time.Minute),
		},
		{
			name:    "expires in the past",
			headers: http.Header{"Expires": []string{now.Add(-time.Hour).UTC().Format(http.TimeFormat)}},
			want:    now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpiresFrom(tt.headers, time.Minute)
			if diff := got.Sub(tt.want); diff < -2*time.Second || diff > 2*time.Second {
				t.Errorf("ExpiresFrom() = %v, want about %v (diff %v)", got, tt.want, diff)
			}
		})
	}
}
