// Package metrics provides the centralized Prometheus metrics registry
// for the caching engine. All metrics are defined in their respective
// packages (cachestore, mutation, retry, remote, aggregate, navigation,
// prefs, pagination) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the engine.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cachestore):
//   - og_cache_hits_total{kind} (Counter): Cache hits by entry kind
//   - og_cache_misses_total (Counter): Cache misses
//   - og_cache_entries (Gauge): Current number of cached entries
//   - og_cache_evictions_total (Counter): Entries evicted after expiry
//   - og_cache_invalidations_total (Counter): Entries marked stale
//   - og_cache_refetches_total{result} (Counter): Background refetches by result (ok, error, superseded)
//   - og_cache_cancelled_fetches_total (Counter): In-flight fetches cancelled
//
// Mutation Metrics (pkg/mutation):
//   - og_mutations_total{kind, outcome} (Counter): Mutations by entity kind and outcome
//   - og_mutation_duration_seconds{kind} (Histogram): Time from begin to settle
//   - og_speculative_applies_total (Counter): Speculative cache writes
//   - og_reconciliation_failures_total (Counter): Rollbacks that needed prefix invalidation
//
// Retry Metrics (pkg/retry):
//   - og_retries_total{error_class} (Counter): Retry attempts by error class
//   - og_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - og_retry_exhausted_total{error_class} (Counter): Calls that exhausted max attempts
//
// Backend Metrics (pkg/remote):
//   - og_backend_requests_total{kind, method, status} (Counter): Backend requests
//   - og_backend_request_duration_seconds{kind} (Histogram): Backend request duration
//   - og_backend_errors_total{class} (Counter): Backend errors by class
//
// Aggregate Metrics (pkg/aggregate):
//   - og_aggregate_requests_total{source} (Counter): Aggregate answers by source (cache-derived, authoritative)
//
// Navigation Metrics (pkg/navigation, pkg/prefs):
//   - og_navigation_resolutions_total{provenance} (Counter): Context resolutions by provenance
//   - og_sibling_lookups_total{result} (Counter): Sibling lookups by result (hit, loading, absent)
//   - og_preference_reads_total{result} (Counter): Preference reads by result
//   - og_preference_writes_total (Counter): Preference writes
//
// Warmer Metrics (pkg/pagination):
//   - og_pages_warmed_total (Counter): List pages prefetched into the cache
//   - og_page_warm_failures_total (Counter): List page prefetch failures
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(og_cache_hits_total[5m])) /
//   (sum(rate(og_cache_hits_total[5m])) + sum(rate(og_cache_misses_total[5m])))
//
//   # Mutation Rollback Rate
//   sum(rate(og_mutations_total{outcome="rolled_back"}[5m])) /
//   sum(rate(og_mutations_total[5m]))
//
//   # Aggregate Cache-Derived Share
//   rate(og_aggregate_requests_total{source="cache-derived"}[5m]) /
//   sum(rate(og_aggregate_requests_total[5m]))
//
//   # P95 Backend Latency
//   histogram_quantile(0.95, rate(og_backend_request_duration_seconds_bucket[5m]))
