package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StateMismatchesTotal counts push reports REST disagreed with.
	StateMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_state_mismatches_total",
		Help: "Total number of push order reports overridden by REST",
	})

	// DriftCancelsTotal counts maker orders cancelled on hedge-bound drift.
	DriftCancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_drift_cancels_total",
		Help: "Total number of resting orders cancelled on hedge-bound drift",
	})

	// HedgeRetriesTotal counts hedge orders reissued after partial fills.
	HedgeRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_hedge_retries_total",
		Help: "Total number of hedge order retries",
	})

	// UnwindsTotal counts hedge shortfalls reversed back on Predict.
	UnwindsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_unwinds_total",
		Help: "Total number of unwound hedge shortfalls",
	})

	// PausesTotal counts task pauses on out-of-bounds hedge books.
	PausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_execution_pauses_total",
		Help: "Total number of task pauses",
	})

	// ExecutionDurationSeconds observes wall time per task run.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_execution_task_duration_seconds",
		Help:    "Task run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)
