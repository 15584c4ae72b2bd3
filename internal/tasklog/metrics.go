package tasklog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsWrittenTotal counts appended task events.
	EventsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_tasklog_events_written_total",
		Help: "Total number of task events appended to jsonl logs",
	})

	// SnapshotsWrittenTotal counts appended order-book snapshots.
	SnapshotsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_tasklog_snapshots_written_total",
		Help: "Total number of order-book snapshots appended to jsonl logs",
	})

	// WriteFailuresTotal counts failed log appends.
	WriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_tasklog_write_failures_total",
		Help: "Total number of failed log appends",
	})
)
