package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks applied book snapshots by venue.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_orderbook_updates_total",
			Help: "Total number of orderbook snapshots applied",
		},
		[]string{"venue"},
	)

	// StaleSnapshotsTotal counts snapshots dropped for non-monotonic timestamps.
	StaleSnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_orderbook_stale_snapshots_total",
		Help: "Total number of out-of-order snapshots dropped",
	})

	// SnapshotsTracked tracks the number of books in memory.
	SnapshotsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_orderbook_snapshots_tracked",
		Help: "Number of orderbook snapshots tracked in memory",
	})

	// ListenersActive tracks registered listeners.
	ListenersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_orderbook_listeners_active",
		Help: "Number of registered orderbook listeners",
	})

	// ListenerPanicsTotal counts recovered listener panics.
	ListenerPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_orderbook_listener_panics_total",
		Help: "Total number of recovered listener panics",
	})
)
