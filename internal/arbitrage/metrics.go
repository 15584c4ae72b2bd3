package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesDetectedTotal counts feasible arb evaluations by side and style.
	OpportunitiesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_opportunities_detected_total",
			Help: "Total number of feasible arbitrage evaluations",
		},
		[]string{"arb_side", "style"},
	)

	// CloseOpportunitiesTotal counts valid close computations by style.
	CloseOpportunitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_close_opportunities_total",
			Help: "Total number of valid close opportunities computed",
		},
		[]string{"style"},
	)
)
