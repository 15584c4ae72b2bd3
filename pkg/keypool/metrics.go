package keypool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RateLimitedTotal counts keys put into cooldown.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_keypool_rate_limited_total",
		Help: "Total number of API keys put into rate-limit cooldown",
	})

	// ExhaustedTotal counts requests served while every key was cooling down.
	ExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_keypool_exhausted_total",
		Help: "Total number of key requests served from an exhausted pool",
	})

	// CooledKeys tracks keys currently in cooldown.
	CooledKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_keypool_cooled_keys",
		Help: "Number of API keys currently in cooldown",
	})
)
