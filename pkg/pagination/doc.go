// Package pagination aggregates cursor-paginated Fieldwire list endpoints.
//
// Fieldwire returns at most Fieldwire-Per-Page items per response and signals
// more data with "X-Has-More: true" plus an opaque cursor in
// X-Last-Synced-At, which is passed back as the last_synced_at query
// parameter. Pages are fetched strictly one after another because each
// cursor comes from the previous response.
//
// Example usage:
//
//	agg := pagination.NewAggregator(pagination.DefaultConfig(), logger)
//	fetcher := pagination.NewHTTPFetcher(gateway, pagination.DefaultConfig().PageSize)
//	items, err := agg.FetchAll(ctx, pagination.Descriptor{
//		Target:  "/projects/" + projectID + "/tasks",
//		Headers: http.Header{"Fieldwire-Filter": {"active"}},
//	}, fetcher)
//
// The aggregator:
//   - Requests the first page without a cursor
//   - Appends items in arrival order
//   - Stops when a page reports no more data
//   - Fails with ReasonMissingCursor when more data is reported without a cursor
//   - Fails with ReasonPageLimit after MaxPages pages
//   - Never returns partial results
//
// BatchFetcher runs many independent aggregations in parallel through the
// executor; each aggregation stays sequential.
package pagination
