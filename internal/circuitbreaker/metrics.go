package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FailuresTotal counts recorded endpoint failures.
	FailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_breaker_failures_total",
		Help: "Total number of REST endpoint failures recorded",
	})

	// TripsTotal counts breaker trips (consecutive-failure limit reached).
	TripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	})

	// CooldownServesTotal counts requests answered from cache during cooldown.
	CooldownServesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_breaker_cooldown_serves_total",
		Help: "Total number of requests short-circuited during cooldown",
	})
)
