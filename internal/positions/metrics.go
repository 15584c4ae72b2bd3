package positions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileRunsTotal counts reconciliation passes.
	ReconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_positions_reconcile_runs_total",
		Help: "Total number of position reconciliation passes",
	})

	// ReconcileFailuresTotal counts passes that produced no report.
	ReconcileFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_positions_reconcile_failures_total",
		Help: "Total number of failed reconciliation passes",
	})

	// MatchedPairsGauge is the matched pair count of the latest report.
	MatchedPairsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_positions_matched_pairs",
		Help: "Matched delta-neutral pairs in the latest report",
	})

	// UnmatchedGauge is the unmatched position count of the latest report.
	UnmatchedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_positions_unmatched",
		Help: "Unmatched positions in the latest report",
	})

	// CloseQuotesGauge is the number of evaluated unwind quotes.
	CloseQuotesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_positions_close_quotes",
		Help: "Matched pairs with evaluated unwind quotes",
	})
)
