package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks currently open WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_websocket_active_connections",
		Help: "Number of active WebSocket connections",
	})

	// MessagesReceivedTotal counts inbound frames.
	MessagesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_websocket_messages_received_total",
		Help: "Total number of WebSocket frames received",
	})

	// MessagesDroppedTotal counts frames dropped because the buffer was full.
	MessagesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_websocket_messages_dropped_total",
		Help: "Total number of WebSocket frames dropped",
	})

	// ReconnectAttemptsTotal counts reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_websocket_reconnect_attempts_total",
		Help: "Total number of reconnection attempts",
	})

	// ReconnectFailuresTotal counts failed reconnection attempts.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_websocket_reconnect_failures_total",
		Help: "Total number of failed reconnection attempts",
	})

	// ConnectionDuration observes how long connections stay up.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_websocket_connection_duration_seconds",
		Help:    "Duration of WebSocket connections before disconnect",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)
