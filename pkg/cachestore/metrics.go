package cachestore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks hits by entry kind.
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "og_cache_hits_total",
			Help: "Total number of cache hits by entry kind",
		},
		[]string{"kind"},
	)

	// cacheMisses tracks misses.
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "og_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// cacheEntries tracks the current number of cached entries.
	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "og_cache_entries",
			Help: "Current number of cached entries",
		},
	)

	// cacheEvictions tracks janitor evictions.
	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "og_cache_evictions_total",
			Help: "Total number of entries evicted after their eviction window",
		},
	)

	// cacheInvalidations tracks explicit invalidations.
	cacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "og_cache_invalidations_total",
			Help: "Total number of entries explicitly invalidated",
		},
	)

	// cacheRefetches tracks background refetches by result.
	cacheRefetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "og_cache_refetches_total",
			Help: "Total number of background refetches by result",
		},
		[]string{"result"}, // "ok", "error", "superseded"
	)

	// cacheCancelledFetches tracks cancelled in-flight fetches.
	cacheCancelledFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "og_cache_cancelled_fetches_total",
			Help: "Total number of in-flight fetches cancelled",
		},
	)
)
