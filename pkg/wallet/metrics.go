package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// NativeBalance tracks the gas token balance per venue wallet.
	NativeBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_wallet_native_balance",
		Help: "Gas token balance of the venue wallet (native units)",
	}, []string{"venue"})

	// CollateralBalance tracks the collateral token balance per venue wallet.
	CollateralBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_wallet_collateral_balance",
		Help: "Collateral token balance of the venue wallet (USD)",
	}, []string{"venue"})

	// CollateralAllowance tracks the allowance granted to the exchange.
	CollateralAllowance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_wallet_collateral_allowance",
		Help: "Collateral approved to the venue exchange contract (USD)",
	}, []string{"venue"})

	// UpdateErrorsTotal counts failed collateral polls.
	UpdateErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_wallet_update_errors_total",
		Help: "Total number of failed collateral polls",
	}, []string{"venue"})

	// UpdateDuration observes the time taken to poll one venue's collateral.
	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_wallet_update_duration_seconds",
		Help:    "Time taken to fetch wallet collateral state (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// LastUpdateTimestamp records the last successful poll per venue.
	LastUpdateTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_wallet_last_update_timestamp",
		Help: "Unix timestamp of last successful collateral poll",
	}, []string{"venue"})
)
