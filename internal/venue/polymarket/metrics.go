package polymarket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ParseFailuresTotal counts WS frames that failed to parse.
	ParseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_polymarket_ws_parse_failures_total",
		Help: "Total number of unparseable Polymarket WS frames",
	})

	// TradeEventsTotal counts market-channel trade and price-change events.
	TradeEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_polymarket_trade_events_total",
		Help: "Total number of Polymarket market-channel trade events",
	})

	// UserOrderEventsTotal counts user-channel order events.
	UserOrderEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_polymarket_user_order_events_total",
		Help: "Total number of Polymarket user-channel order events",
	})

	// UserTradeEventsTotal counts user-channel trade events.
	UserTradeEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_polymarket_user_trade_events_total",
		Help: "Total number of Polymarket user-channel trade events",
	})

	// OrdersPlacedTotal counts order submissions by result.
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_polymarket_orders_placed_total",
		Help: "Total number of Polymarket order submissions",
	}, []string{"result"})
)
