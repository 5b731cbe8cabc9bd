package cache

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached response.
type CacheKey struct {
	// Endpoint is the request path (e.g. "/projects/42/tasks")
	Endpoint string

	QueryParams url.Values

	// Vary holds request header values that change the response
	// (e.g. {"Fieldwire-Filter": "active"}).
	Vary map[string]string
}

// NewCacheKey builds a key for a request, picking the vary headers out of h.
func NewCacheKey(u *url.URL, h http.Header, varyHeaders []string) CacheKey {
	key := CacheKey{
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
	for _, name := range varyHeaders {
		if v := h.Get(name); v != "" {
			if key.Vary == nil {
				key.Vary = make(map[string]string, len(varyHeaders))
			}
			key.Vary[http.CanonicalHeaderKey(name)] = v
		}
	}
	return key
}

// String generates a deterministic key.
// Format: fieldwire:endpoint:query1=a,b:h:Header=value
//
// Example:
//
//	fieldwire:projects/42/tasks:last_synced_at=2024-01-01:h:Fieldwire-Filter=active
func (k CacheKey) String() string {
	parts := []string{"fieldwire"}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, key+"="+strings.Join(k.QueryParams[key], ","))
		}
	}

	if len(k.Vary) > 0 {
		headerKeys := make([]string, 0, len(k.Vary))
		for key := range k.Vary {
			headerKeys = append(headerKeys, key)
		}
		sort.Strings(headerKeys)

		for _, key := range headerKeys {
			parts = append(parts, "h", key+"="+k.Vary[key])
		}
	}

	return strings.Join(parts, ":")
}
