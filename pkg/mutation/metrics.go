package mutation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationsTotal tracks settled mutations by entity kind and outcome.
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "og_mutations_total",
			Help: "Total number of settled mutations by entity kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// mutationDuration tracks time from begin to settle.
	mutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "og_mutation_duration_seconds",
			Help:    "Mutation duration from begin to settle by entity kind",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	// speculativeApplies tracks speculative cache writes.
	speculativeApplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "og_speculative_applies_total",
			Help: "Total number of speculative cache writes",
		},
	)

	// reconciliationFailures tracks rollbacks or invalidations that
	// themselves failed and were escalated.
	reconciliationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "og_reconciliation_failures_total",
			Help: "Total number of failed rollbacks or invalidations escalated to prefix invalidation",
		},
	)
)
