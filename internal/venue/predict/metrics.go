package predict

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ParseFailuresTotal counts WS frames that failed to parse.
	ParseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_predict_ws_parse_failures_total",
		Help: "Total number of unparseable Predict WS frames",
	})

	// HeartbeatsTotal counts echoed venue heartbeats.
	HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_predict_heartbeats_total",
		Help: "Total number of heartbeat frames echoed back",
	})

	// AuthRefreshesTotal counts JWT refresh round trips.
	AuthRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_predict_auth_refreshes_total",
		Help: "Total number of JWT refreshes",
	})

	// OrderFilledEventsTotal counts decoded on-chain fills.
	OrderFilledEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_predict_order_filled_events_total",
		Help: "Total number of on-chain OrderFilled events observed",
	})

	// ChainReconnectsTotal counts on-chain subscription reconnects.
	ChainReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_predict_chain_reconnects_total",
		Help: "Total number of on-chain watcher reconnect attempts",
	})
)
