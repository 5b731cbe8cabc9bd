// Package metrics exposes the Prometheus metrics of the Fieldwire client.
// All metrics are defined in their respective packages (auth, client, cache,
// ratelimit, pagination, executor) and registered via promauto on the default
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Token Metrics (pkg/auth):
//   - fieldwire_token_refreshes_total{result} (Counter): Refresh attempts (success, failure, throttled)
//   - fieldwire_token_waiters_total (Counter): Callers that waited on an in-flight refresh
//   - fieldwire_token_refresh_duration_seconds (Histogram): Refresh call duration
//
// Rate Budget Metrics (pkg/ratelimit):
//   - fieldwire_rate_budget_grants_total{strategy} (Counter): Slots granted
//   - fieldwire_rate_budget_wait_seconds{strategy} (Histogram): Time spent waiting for a slot
//
// Request Metrics (pkg/client):
//   - fieldwire_requests_total{method, status} (Counter): Requests by method and HTTP status
//   - fieldwire_request_duration_seconds{method} (Histogram): Request duration
//   - fieldwire_errors_total{class} (Counter): Errors by class (auth, network, client, server)
//   - fieldwire_auth_retries_total (Counter): Requests retried after a token rejection
//
// Cache Metrics (pkg/cache):
//   - fieldwire_cache_hits_total (Counter): Cache hits
//   - fieldwire_cache_misses_total (Counter): Cache misses
//   - fieldwire_cache_not_modified_total (Counter): 304 responses served from cache
//   - fieldwire_cache_conditional_requests_total (Counter): Conditional requests sent
//   - fieldwire_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pagination Metrics (pkg/pagination):
//   - fieldwire_pages_fetched_total (Counter): Pages fetched
//   - fieldwire_pagination_errors_total{reason} (Counter): Failed aggregations by reason
//
// Executor Metrics (pkg/executor):
//   - fieldwire_operations_total{result} (Counter): Operations by result (success, failure, panic)
//   - fieldwire_batch_duration_seconds{mode} (Histogram): Batch duration by mode
//
// Example Prometheus Queries:
//
//	# Token refresh failure rate
//	rate(fieldwire_token_refreshes_total{result="failure"}[5m])
//
//	# Auth retry ratio
//	rate(fieldwire_auth_retries_total[5m]) / sum(rate(fieldwire_requests_total[5m]))
//
//	# P95 time waiting for a rate budget slot
//	histogram_quantile(0.95, rate(fieldwire_rate_budget_wait_seconds_bucket[5m]))
