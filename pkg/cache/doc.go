// Package cache provides an optional Redis-backed cache for successful GET
// responses of the Fieldwire API.
//
// Entries are keyed by endpoint, query parameters and the request headers that
// change the result set (for example Fieldwire-Filter or Fieldwire-Per-Page).
// When an entry carries an ETag or Last-Modified value the gateway revalidates
// it with a conditional request and serves the cached body on 304 Not Modified.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/projects/42/tasks",
//		QueryParams: url.Values{"last_synced_at": []string{"2024-01-01T00:00:00Z"}},
//		Vary:        map[string]string{"Fieldwire-Filter": "active"},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(200, header, body, 30*time.Second))
//	}
//
// # Metrics
//
//   - fieldwire_cache_hits_total - Cache hits
//   - fieldwire_cache_misses_total - Cache misses
//   - fieldwire_cache_not_modified_total - 304 responses served from cache
//   - fieldwire_cache_conditional_requests_total - Revalidation requests sent
//   - fieldwire_cache_errors_total{operation} - Redis operation errors
//
// Credentials are never cached; only response bodies are stored.
package cache
