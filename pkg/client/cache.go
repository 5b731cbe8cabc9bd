package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/cache"
)

// cacheLookup carries a GET request's cache state from before the call to after it.
type cacheLookup struct {
	key   cache.CacheKey
	entry *cache.CacheEntry
}

// lookupCache loads the cached entry for the request and, when it can be
// revalidated, adds conditional headers to header.
func (c *Client) lookupCache(ctx context.Context, target *url.URL, header http.Header) *cacheLookup {
	lookup := &cacheLookup{key: cache.NewCacheKey(target, header, c.config.CacheVary)}

	entry, err := c.cache.Get(ctx, lookup.key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("target", target.String()).Msg("Cache get error")
		}
		return lookup
	}
	lookup.entry = entry

	if cache.ShouldMakeConditionalRequest(entry) && header.Get("If-None-Match") == "" && header.Get("If-Modified-Since") == "" {
		cache.AddConditionalHeaders(header, entry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("target", target.String()).
			Str("etag", entry.ETag).
			Msg("Making conditional request")
	}
	return lookup
}

// storeCache answers 304 from the cached entry and stores fresh 200 bodies.
func (c *Client) storeCache(ctx context.Context, lookup *cacheLookup, resp *Response) *Response {
	switch {
	case resp.StatusCode == http.StatusNotModified && lookup.entry != nil:
		cache.NotModifiedResponses.Inc()
		if err := c.cache.Touch(ctx, lookup.key, cache.ExpiresFrom(resp.Header, c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to extend cache entry")
		}
		c.logger.Debug().Str("key", lookup.key.String()).Msg("304 Not Modified, serving cached body")
		return &Response{
			StatusCode: lookup.entry.StatusCode,
			Status:     http.StatusText(lookup.entry.StatusCode),
			Header:     lookup.entry.Headers.Clone(),
			Body:       lookup.entry.Data,
			RequestID:  resp.RequestID,
			FromCache:  true,
		}

	case resp.StatusCode == http.StatusOK:
		entry := cache.NewEntry(resp.StatusCode, resp.Header, resp.Body, c.config.CacheTTL)
		if entry.TTL() <= 0 {
			return resp
		}
		if err := c.cache.Set(ctx, lookup.key, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().Str("key", lookup.key.String()).Dur("ttl", entry.TTL()).Msg("Cached response")
		}
	}
	return resp
}
