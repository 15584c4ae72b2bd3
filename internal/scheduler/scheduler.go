// Package scheduler owns the task lifecycle: FIFO intake with one active
// task per market, create-time validation, dispatch to the execution
// runner, and manual cancellation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/execution"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskRunner executes one task to a terminal outcome.
type TaskRunner interface {
	Run(ctx context.Context, task *types.Task, sink execution.Sink) error
}

// TaskLog is a per-task durable log. Close flushes the task summary.
type TaskLog interface {
	execution.Sink
	Close(task *types.Task) error
}

// LogFactory opens the durable log for a task.
type LogFactory interface {
	Open(task *types.Task) (TaskLog, error)
}

// LogFactoryFunc adapts a function to LogFactory.
type LogFactoryFunc func(task *types.Task) (TaskLog, error)

func (f LogFactoryFunc) Open(task *types.Task) (TaskLog, error) { return f(task) }

// Config holds scheduler configuration.
type Config struct {
	Runner TaskRunner
	Logs   LogFactory
	// QueueDepth bounds pending tasks across all markets.
	QueueDepth int
	// DefaultMaxHedgeRetries applies to tasks submitted without one.
	DefaultMaxHedgeRetries int
	Logger                 *zap.Logger
}

// Scheduler serializes task create/cancel and runs one worker per task.
// At most one non-terminal task exists per Predict market.
type Scheduler struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	tasks   map[string]*types.Task
	order   []string
	active  map[string]string // predict market id -> task id
	cancels map[string]context.CancelFunc

	pending chan *types.Task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("task runner required")
	}
	if cfg.Logs == nil {
		return nil, fmt.Errorf("log factory required")
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 128
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Scheduler{
		cfg:     cfg,
		logger:  cfg.Logger,
		tasks:   make(map[string]*types.Task),
		active:  make(map[string]string),
		cancels: make(map[string]context.CancelFunc),
		pending: make(chan *types.Task, cfg.QueueDepth),
	}, nil
}

// Start launches the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.dispatch()
	s.logger.Info("scheduler-started")
}

// Stop cancels all running tasks and waits for workers to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler-stopped")
}

// Submit validates and enqueues a task. The task's market must not already
// carry a non-terminal task.
func (s *Scheduler) Submit(task *types.Task) (*types.Task, error) {
	if err := ValidateTask(task); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	market := task.Mapping.PredictMarketID
	if holder, busy := s.active[market]; busy {
		return nil, fmt.Errorf("market %s held by task %s: %w", market, holder, types.ErrMarketBusy)
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.MaxHedgeRetries <= 0 {
		task.MaxHedgeRetries = s.cfg.DefaultMaxHedgeRetries
	}
	task.Status = types.TaskQueued
	task.CreatedAt = time.Now()

	select {
	case s.pending <- task:
	default:
		return nil, fmt.Errorf("task queue full (%d pending)", cap(s.pending))
	}

	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	s.active[market] = task.ID
	TasksSubmittedTotal.Inc()

	s.logger.Info("task-queued",
		zap.String("task-id", task.ID),
		zap.String("market-id", market),
		zap.String("kind", string(task.Kind)),
		zap.String("strategy", string(task.Strategy)))
	return task, nil
}

// Cancel moves a task to terminal CANCELLED. Queued tasks are marked
// directly; running tasks have their context cancelled and finalize in
// their worker.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("task %s already terminal (%s)", taskID, task.Status)
	}

	if task.Status == types.TaskQueued {
		task.Status = types.TaskCancelled
		task.FinishedAt = time.Now()
		delete(s.active, task.Mapping.PredictMarketID)
		s.logger.Info("task-cancelled-while-queued", zap.String("task-id", taskID))
		return nil
	}

	if cancel, ok := s.cancels[taskID]; ok {
		cancel()
	}
	s.logger.Info("task-cancel-requested", zap.String("task-id", taskID))
	return nil
}

// Get returns a task by id.
func (s *Scheduler) Get(taskID string) (*types.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	return task, ok
}

// List returns all tasks in creation order.
func (s *Scheduler) List() []*types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id])
	}
	return out
}

func (s *Scheduler) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case task := <-s.pending:
			s.mu.Lock()
			if task.Status != types.TaskQueued {
				// Cancelled while queued.
				s.mu.Unlock()
				continue
			}
			task.Status = types.TaskRunning
			task.StartedAt = time.Now()
			taskCtx, cancel := context.WithCancel(s.ctx)
			s.cancels[task.ID] = cancel
			s.mu.Unlock()

			s.wg.Add(1)
			go s.runTask(taskCtx, task)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task *types.Task) {
	defer s.wg.Done()

	log, err := s.cfg.Logs.Open(task)
	if err != nil {
		s.logger.Error("task-log-open-failed",
			zap.String("task-id", task.ID), zap.Error(err))
		s.finalize(task, types.TaskFailed, nil)
		return
	}

	TasksRunningGauge.Inc()
	defer TasksRunningGauge.Dec()

	runErr := s.cfg.Runner.Run(ctx, task, &statusSink{sched: s, task: task, inner: log})

	status := types.TaskCompleted
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status = types.TaskCancelled
	default:
		status = types.TaskFailed
	}
	s.finalize(task, status, log)

	s.logger.Info("task-finished",
		zap.String("task-id", task.ID),
		zap.String("status", string(status)),
		zap.Error(runErr))
}

func (s *Scheduler) finalize(task *types.Task, status types.TaskStatus, log TaskLog) {
	s.mu.Lock()
	task.Status = status
	task.FinishedAt = time.Now()
	delete(s.active, task.Mapping.PredictMarketID)
	delete(s.cancels, task.ID)
	s.mu.Unlock()

	switch status {
	case types.TaskCompleted:
		TasksCompletedTotal.Inc()
	case types.TaskFailed:
		TasksFailedTotal.Inc()
	case types.TaskCancelled:
		TasksCancelledTotal.Inc()
	}

	if log != nil {
		if err := log.Close(task); err != nil {
			s.logger.Warn("task-log-close-failed",
				zap.String("task-id", task.ID), zap.Error(err))
		}
	}
}

// statusSink mirrors pause/resume events into the scheduler-visible task
// status while forwarding everything to the durable log.
type statusSink struct {
	sched *Scheduler
	task  *types.Task
	inner execution.Sink
}

func (w *statusSink) Event(kind types.TaskEventKind, orderID string, payload interface{}) {
	switch kind {
	case types.EventPause:
		w.setStatus(types.TaskPaused)
	case types.EventResume:
		w.setStatus(types.TaskRunning)
	}
	w.inner.Event(kind, orderID, payload)
}

func (w *statusSink) Snapshot(snap types.BookSnapshot) {
	w.inner.Snapshot(snap)
}

func (w *statusSink) setStatus(status types.TaskStatus) {
	w.sched.mu.Lock()
	defer w.sched.mu.Unlock()
	if !w.task.Status.IsTerminal() {
		w.task.Status = status
	}
}
