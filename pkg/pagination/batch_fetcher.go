package pagination

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/executor"
	"github.com/rs/zerolog/log"
)

// BatchFetcher aggregates several independent lists in parallel.
type BatchFetcher struct {
	aggregator *Aggregator
	fetcher    PageFetcher
	executor   *executor.Executor
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(aggregator *Aggregator, fetcher PageFetcher, exec *executor.Executor) *BatchFetcher {
	return &BatchFetcher{
		aggregator: aggregator,
		fetcher:    fetcher,
		executor:   exec,
	}
}

// FetchMany runs FetchAll for every descriptor on the executor's worker
// pool. Outcomes[i] holds the items (or *PaginationError) of descs[i].
func (bf *BatchFetcher) FetchMany(ctx context.Context, descs []Descriptor) executor.BatchResult[[]json.RawMessage] {
	start := time.Now()

	ops := executor.BindEach(func(ctx context.Context, desc Descriptor) ([]json.RawMessage, error) {
		return bf.aggregator.FetchAll(ctx, desc, bf.fetcher)
	}, descs)

	result := executor.ExecuteParallel(ctx, bf.executor, ops, executor.ModeIndependent)

	log.Info().
		Int("lists", len(descs)).
		Int("succeeded", result.Succeeded()).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return result
}
