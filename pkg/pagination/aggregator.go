package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for pagination.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldwire_pages_fetched_total",
		Help: "Total list pages fetched",
	})

	paginationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldwire_pagination_errors_total",
		Help: "Total failed aggregations by reason",
	}, []string{"reason"})
)

// Config holds aggregator configuration.
type Config struct {
	// MaxPages caps the pages fetched per aggregation.
	MaxPages int

	// PageSize is sent as Fieldwire-Per-Page by HTTPFetcher.
	PageSize int
}

// DefaultConfig returns safe default configuration for Fieldwire.
func DefaultConfig() Config {
	return Config{
		MaxPages: 1000,
		PageSize: 1000,
	}
}

// PageFetcher fetches one page. An empty cursor requests the first page.
type PageFetcher interface {
	FetchPage(ctx context.Context, desc Descriptor, cursor string) (Page, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, desc Descriptor, cursor string) (Page, error)

// FetchPage calls f(ctx, desc, cursor).
func (f PageFetcherFunc) FetchPage(ctx context.Context, desc Descriptor, cursor string) (Page, error) {
	return f(ctx, desc, cursor)
}

// Aggregator collects every page of a list into one slice.
type Aggregator struct {
	config Config
	logger zerolog.Logger
}

// NewAggregator creates an aggregator. Non-positive values fall back to defaults.
func NewAggregator(cfg Config, logger zerolog.Logger) *Aggregator {
	defaults := DefaultConfig()
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaults.MaxPages
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaults.PageSize
	}
	return &Aggregator{
		config: cfg,
		logger: logger.With().Str("component", "pagination").Logger(),
	}
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.config
}

// FetchAll fetches pages sequentially until one reports no more data and
// returns all items in arrival order. On any failure it returns a
// *PaginationError and no items.
func (a *Aggregator) FetchAll(ctx context.Context, desc Descriptor, fetcher PageFetcher) ([]json.RawMessage, error) {
	start := time.Now()
	var (
		items  []json.RawMessage
		cursor string
	)

	for page := 0; ; page++ {
		if page >= a.config.MaxPages {
			return nil, a.fail(desc, ReasonPageLimit, page, fmt.Errorf("more than %d pages", a.config.MaxPages))
		}

		p, err := fetcher.FetchPage(ctx, desc, cursor)
		if err != nil {
			return nil, a.fail(desc, ReasonFetchFailed, page, err)
		}
		pagesFetchedTotal.Inc()
		items = append(items, p.Items...)

		a.logger.Debug().
			Str("target", desc.Target).
			Int("page", page).
			Int("items", len(p.Items)).
			Bool("has_more", p.HasMore).
			Str("cursor", p.Cursor).
			Msg("Page fetched")

		if !p.HasMore {
			a.logger.Info().
				Str("target", desc.Target).
				Int("pages", page+1).
				Int("items", len(items)).
				Dur("duration", time.Since(start)).
				Msg("Fetch complete")
			return items, nil
		}
		if p.Cursor == "" {
			return nil, a.fail(desc, ReasonMissingCursor, page, nil)
		}
		cursor = p.Cursor
	}
}

func (a *Aggregator) fail(desc Descriptor, reason Reason, page int, err error) error {
	var pe *PaginationError
	if errors.As(err, &pe) {
		reason = pe.Reason
		err = pe.Err
	}
	paginationErrorsTotal.WithLabelValues(string(reason)).Inc()
	a.logger.Warn().
		Err(err).
		Str("target", desc.Target).
		Str("reason", string(reason)).
		Int("page", page).
		Msg("Pagination failed")
	return &PaginationError{Target: desc.Target, Reason: reason, Page: page, Err: err}
}

// Decode unmarshals every item into T.
func Decode[T any](items []json.RawMessage) ([]T, error) {
	out := make([]T, len(items))
	for i, raw := range items {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			return nil, &PaginationError{Reason: ReasonDecodeFailed, Err: fmt.Errorf("item %d: %w", i, err)}
		}
	}
	return out, nil
}
