package cache

import (
	"net/http"
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "endpoint only",
			key:  CacheKey{Endpoint: "/projects/42/tasks"},
			want: "fieldwire:projects/42/tasks",
		},
		{
			name: "query params sorted",
			key: CacheKey{
				Endpoint: "/projects/42/tasks",
				QueryParams: url.Values{
					"last_synced_at": []string{"2024-01-01"},
					"a":              []string{"1", "2"},
				},
			},
			want: "fieldwire:projects/42/tasks:a=1,2:last_synced_at=2024-01-01",
		},
		{
			name: "vary headers",
			key: CacheKey{
				Endpoint: "/projects/42/tasks",
				Vary: map[string]string{
					"Fieldwire-Per-Page": "1000",
					"Fieldwire-Filter":   "active",
				},
			},
			want: "fieldwire:projects/42/tasks:h:Fieldwire-Filter=active:h:Fieldwire-Per-Page=1000",
		},
		{
			name: "empty key",
			key:  CacheKey{},
			want: "fieldwire",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewCacheKey(t *testing.T) {
	u, err := url.Parse("https://client-api.us.fieldwire.com/api/v3/projects/42/tasks?last_synced_at=x")
	if err != nil {
		t.Fatal(err)
	}
	h := http.Header{}
	h.Set("Fieldwire-Filter", "deleted")
	h.Set("Authorization", "Bearer secret")

	key := NewCacheKey(u, h, []string{"fieldwire-filter", "Fieldwire-Per-Page"})

	want := "fieldwire:api/v3/projects/42/tasks:last_synced_at=x:h:Fieldwire-Filter=deleted"
	if got := key.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	a := CacheKey{Endpoint: "/x", QueryParams: url.Values{"b": {"2"}, "a": {"1"}, "c": {"3"}}}
	b := CacheKey{Endpoint: "x/", QueryParams: url.Values{"c": {"3"}, "a": {"1"}, "b": {"2"}}}

	for i := 0; i < 10; i++ {
		if a.String() != b.String() {
			t.Fatalf("keys differ: %q vs %q", a.String(), b.String())
		}
	}
}
