package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MappingsBuiltTotal tracks mappings successfully enriched and published.
	MappingsBuiltTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_discovery_mappings_built_total",
		Help: "Total number of cross-venue mappings built",
	})

	// RefreshDurationSeconds tracks mapping refresh latency.
	RefreshDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_discovery_refresh_duration_seconds",
		Help:    "Duration of mapping refresh passes",
		Buckets: prometheus.DefBuckets,
	})

	// RefreshErrorsTotal tracks refresh and enrichment failures.
	RefreshErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_discovery_refresh_errors_total",
		Help: "Total number of mapping refresh failures",
	})
)
