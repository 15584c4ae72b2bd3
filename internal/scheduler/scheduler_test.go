package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/execution"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeRunner struct {
	mu      sync.Mutex
	started chan string
	block   bool
	err     error
	emit    []types.TaskEventKind
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan string, 16)}
}

func (r *fakeRunner) Run(ctx context.Context, task *types.Task, sink execution.Sink) error {
	r.started <- task.ID

	r.mu.Lock()
	emit := r.emit
	block := r.block
	err := r.err
	r.mu.Unlock()

	for _, kind := range emit {
		sink.Event(kind, "", nil)
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

type memLog struct {
	mu     sync.Mutex
	events []types.TaskEventKind
	closed bool
}

func (l *memLog) Event(kind types.TaskEventKind, _ string, _ interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, kind)
}

func (l *memLog) Snapshot(_ types.BookSnapshot) {}

func (l *memLog) Close(_ *types.Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *memLog) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type memLogFactory struct {
	mu   sync.Mutex
	logs map[string]*memLog
}

func newMemLogFactory() *memLogFactory {
	return &memLogFactory{logs: make(map[string]*memLog)}
}

func (f *memLogFactory) Open(task *types.Task) (TaskLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	log := &memLog{}
	f.logs[task.ID] = log
	return log, nil
}

func (f *memLogFactory) logFor(taskID string) *memLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[taskID]
}

func newTestScheduler(t *testing.T, runner TaskRunner) (*Scheduler, *memLogFactory) {
	t.Helper()

	logs := newMemLogFactory()
	sched, err := New(Config{Runner: runner, Logs: logs, Logger: zap.NewNop()})
	require.NoError(t, err)
	return sched, logs
}

func validTask(marketID string) *types.Task {
	return &types.Task{
		Kind:     types.TaskBuy,
		Strategy: types.StrategyTaker,
		Mapping: types.MarketMapping{
			PredictMarketID:       marketID,
			PolymarketConditionID: "c-" + marketID,
			PredictYesTokenID:     "pY",
			PredictNoTokenID:      "pN",
			PolymarketYesTokenID:  "qY",
			PolymarketNoTokenID:   "qN",
		},
		ArbSide:  types.OutcomeYes,
		Quantity: dec("10"),
		Params: types.TaskParams{
			PredictAskPrice:  dec("0.55"),
			PolymarketMaxAsk: dec("0.35"),
			MaxTotalCost:     dec("0.90"),
		},
	}
}

func TestValidateTask(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(task *types.Task)
		wantField string
	}{
		{"valid buy taker", func(*types.Task) {}, ""},
		{"bad kind", func(task *types.Task) { task.Kind = "HOLD" }, "kind"},
		{"bad strategy", func(task *types.Task) { task.Strategy = "SNIPER" }, "strategy"},
		{"bad side", func(task *types.Task) { task.ArbSide = types.OutcomeUnknown }, "arbSide"},
		{"zero quantity", func(task *types.Task) { task.Quantity = decimal.Zero }, "quantity"},
		{"no market", func(task *types.Task) { task.Mapping.PredictMarketID = "" }, "mapping.predictMarketId"},
		{
			"buy taker missing max cost",
			func(task *types.Task) { task.Params.MaxTotalCost = decimal.Zero },
			"maxTotalCost",
		},
		{
			"buy maker missing buffer",
			func(task *types.Task) {
				task.Strategy = types.StrategyMaker
				task.Params = types.TaskParams{
					PredictPrice:     dec("0.55"),
					PolymarketMaxAsk: dec("0.35"),
				}
			},
			"minProfitBuffer",
		},
		{
			"buy maker missing limit",
			func(task *types.Task) {
				task.Strategy = types.StrategyMaker
				task.Params = types.TaskParams{
					PolymarketMaxAsk: dec("0.35"),
					MinProfitBuffer:  dec("0.05"),
				}
			},
			"predictPrice",
		},
		{
			"sell taker missing entry cost",
			func(task *types.Task) {
				task.Kind = types.TaskSell
				task.Params = types.TaskParams{
					PredictPrice:     dec("0.60"),
					PolymarketMinBid: dec("0.50"),
				}
			},
			"entryCost",
		},
		{
			"sell maker complete",
			func(task *types.Task) {
				task.Kind = types.TaskSell
				task.Strategy = types.StrategyMaker
				task.Params = types.TaskParams{
					PredictAskPrice:  dec("0.60"),
					PolymarketMinBid: dec("0.50"),
					EntryCost:        dec("0.90"),
				}
			},
			"",
		},
		{
			"sell maker missing min bid",
			func(task *types.Task) {
				task.Kind = types.TaskSell
				task.Strategy = types.StrategyMaker
				task.Params = types.TaskParams{
					PredictAskPrice: dec("0.60"),
					EntryCost:       dec("0.90"),
				}
			},
			"polymarketMinBid",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask("m1")
			tt.mutate(task)

			err := ValidateTask(task)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *types.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestSubmitRejectsBusyMarket(t *testing.T) {
	sched, _ := newTestScheduler(t, newFakeRunner())

	_, err := sched.Submit(validTask("m1"))
	require.NoError(t, err)

	_, err = sched.Submit(validTask("m1"))
	require.ErrorIs(t, err, types.ErrMarketBusy)

	// A different market queues fine.
	_, err = sched.Submit(validTask("m2"))
	require.NoError(t, err)
}

func TestTaskRunsToCompletion(t *testing.T) {
	runner := newFakeRunner()
	sched, logs := newTestScheduler(t, runner)
	sched.Start(context.Background())
	defer sched.Stop()

	task, err := sched.Submit(validTask("m1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := sched.Get(task.ID)
		return got.Status == types.TaskCompleted
	}, time.Second, 5*time.Millisecond)

	got, _ := sched.Get(task.ID)
	assert.False(t, got.StartedAt.IsZero())
	assert.False(t, got.FinishedAt.IsZero())
	assert.True(t, logs.logFor(task.ID).isClosed())

	// The market frees up once the task is terminal.
	_, err = sched.Submit(validTask("m1"))
	require.NoError(t, err)
}

func TestRunnerErrorFailsTask(t *testing.T) {
	runner := newFakeRunner()
	runner.err = fmt.Errorf("hedge shortfall")
	sched, _ := newTestScheduler(t, runner)
	sched.Start(context.Background())
	defer sched.Stop()

	task, err := sched.Submit(validTask("m1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := sched.Get(task.ID)
		return got.Status == types.TaskFailed
	}, time.Second, 5*time.Millisecond)
}

func TestCancelRunningTask(t *testing.T) {
	runner := newFakeRunner()
	runner.block = true
	sched, logs := newTestScheduler(t, runner)
	sched.Start(context.Background())
	defer sched.Stop()

	task, err := sched.Submit(validTask("m1"))
	require.NoError(t, err)

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("task never started")
	}

	require.NoError(t, sched.Cancel(task.ID))
	require.Eventually(t, func() bool {
		got, _ := sched.Get(task.ID)
		return got.Status == types.TaskCancelled
	}, time.Second, 5*time.Millisecond)
	assert.True(t, logs.logFor(task.ID).isClosed())
}

func TestCancelQueuedTask(t *testing.T) {
	// No Start: the task stays queued.
	sched, _ := newTestScheduler(t, newFakeRunner())

	task, err := sched.Submit(validTask("m1"))
	require.NoError(t, err)

	require.NoError(t, sched.Cancel(task.ID))
	got, _ := sched.Get(task.ID)
	assert.Equal(t, types.TaskCancelled, got.Status)

	// Cancelling a terminal task is an error.
	require.Error(t, sched.Cancel(task.ID))

	// The market is free again.
	_, err = sched.Submit(validTask("m1"))
	require.NoError(t, err)
}

func TestCancelUnknownTask(t *testing.T) {
	sched, _ := newTestScheduler(t, newFakeRunner())
	require.Error(t, sched.Cancel("nope"))
}

func TestPauseEventReflectsInStatus(t *testing.T) {
	runner := newFakeRunner()
	runner.emit = []types.TaskEventKind{types.EventPause}
	runner.block = true
	sched, logs := newTestScheduler(t, runner)
	sched.Start(context.Background())
	defer sched.Stop()

	task, err := sched.Submit(validTask("m1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := sched.Get(task.ID)
		return got.Status == types.TaskPaused
	}, time.Second, 5*time.Millisecond)

	// The pause event still reached the durable log.
	log := logs.logFor(task.ID)
	log.mu.Lock()
	events := append([]types.TaskEventKind(nil), log.events...)
	log.mu.Unlock()
	assert.Contains(t, events, types.EventPause)

	require.NoError(t, sched.Cancel(task.ID))
	require.Eventually(t, func() bool {
		got, _ := sched.Get(task.ID)
		return got.Status == types.TaskCancelled
	}, time.Second, 5*time.Millisecond)
}

func TestListReturnsCreationOrder(t *testing.T) {
	sched, _ := newTestScheduler(t, newFakeRunner())

	first, err := sched.Submit(validTask("m1"))
	require.NoError(t, err)
	second, err := sched.Submit(validTask("m2"))
	require.NoError(t, err)

	list := sched.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestSubmitDefaultsHedgeRetries(t *testing.T) {
	logs := newMemLogFactory()
	sched, err := New(Config{
		Runner:                 newFakeRunner(),
		Logs:                   logs,
		DefaultMaxHedgeRetries: 4,
		Logger:                 zap.NewNop(),
	})
	require.NoError(t, err)

	defaulted, err := sched.Submit(validTask("m1"))
	require.NoError(t, err)
	assert.Equal(t, 4, defaulted.MaxHedgeRetries)

	explicit := validTask("m2")
	explicit.MaxHedgeRetries = 1
	submitted, err := sched.Submit(explicit)
	require.NoError(t, err)
	assert.Equal(t, 1, submitted.MaxHedgeRetries)
}
