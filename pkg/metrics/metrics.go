// Package metrics provides the centralized Prometheus registry reference for
// the archive client. All metrics are defined in their respective packages
// (client, cache, pacer, dedup, harvest) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the archive client.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Pacing Metrics (pkg/pacer):
//   - pullpush_pacer_delay_seconds (Gauge): Current inter-request delay
//   - pullpush_pacer_pool_remaining (Gauge): Requests left in the local pool
//   - pullpush_pacer_throttles_total (Counter): Streams put to sleep waiting for a refill
//
// Request Metrics (pkg/client):
//   - pullpush_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - pullpush_request_duration_seconds{endpoint} (Histogram): Request duration
//   - pullpush_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - pullpush_retries_total{error_class} (Counter): Retry attempts by error class
//   - pullpush_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - pullpush_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Merge Metrics (pkg/dedup):
//   - pullpush_records_merged_total (Counter): Records passed through the merge engine
//   - pullpush_duplicates_total{action} (Counter): Duplicate observations by action
//
// Harvest Metrics (pkg/harvest):
//   - pullpush_pages_fetched_total{endpoint} (Counter): Pages fetched by endpoint
//   - pullpush_streams_failed_total (Counter): Pagination streams that failed
//
// Cache Metrics (pkg/cache):
//   - pullpush_cache_hits_total (Counter): Page cache hits
//   - pullpush_cache_misses_total (Counter): Page cache misses
//   - pullpush_cache_size_bytes (Gauge): Bytes written to the cache
//   - pullpush_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache hit rate
//   rate(pullpush_cache_hits_total[5m]) /
//   (rate(pullpush_cache_hits_total[5m]) + rate(pullpush_cache_misses_total[5m]))
//
//   # Request error rate
//   rate(pullpush_errors_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(pullpush_request_duration_seconds_bucket[5m]))
