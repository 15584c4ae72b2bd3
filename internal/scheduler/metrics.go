package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksSubmittedTotal counts accepted task submissions.
	TasksSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_scheduler_tasks_submitted_total",
		Help: "Total number of tasks accepted into the queue",
	})

	// TasksCompletedTotal counts tasks finishing COMPLETED.
	TasksCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_scheduler_tasks_completed_total",
		Help: "Total number of tasks that completed",
	})

	// TasksFailedTotal counts tasks finishing FAILED.
	TasksFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_scheduler_tasks_failed_total",
		Help: "Total number of tasks that failed",
	})

	// TasksCancelledTotal counts tasks finishing CANCELLED.
	TasksCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_scheduler_tasks_cancelled_total",
		Help: "Total number of tasks that were cancelled",
	})

	// TasksRunningGauge tracks concurrently running task workers.
	TasksRunningGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_scheduler_tasks_running",
		Help: "Number of task workers currently running",
	})
)
