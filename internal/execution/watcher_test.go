package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqTrader serves a scripted sequence of status reads, sticking on the
// last one.
type seqTrader struct {
	mu       sync.Mutex
	statuses []*types.OpenOrder
	reads    int
}

func (t *seqTrader) Place(context.Context, OrderRequest) (*PlacedOrder, error) {
	return nil, nil
}

func (t *seqTrader) Cancel(context.Context, string) error { return nil }

func (t *seqTrader) Status(_ context.Context, _ string) (*types.OpenOrder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.reads
	if idx >= len(t.statuses) {
		idx = len(t.statuses) - 1
	}
	t.reads++
	cp := *t.statuses[idx]
	return &cp, nil
}

type fakeWatcher struct {
	final *types.OrderFinal
	delay time.Duration
}

func (w *fakeWatcher) Wait(ctx context.Context, _ *PlacedOrder, _ time.Duration) (*types.OrderFinal, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(w.delay):
		return w.final, nil
	}
}

func newWatchRunner(t *testing.T) *Runner {
	t.Helper()

	runner, err := NewRunner(RunnerConfig{
		Predict:      &seqTrader{},
		Polymarket:   &seqTrader{},
		Books:        newFakeBooks(),
		PollInterval: 2 * time.Millisecond,
	})
	require.NoError(t, err)
	return runner
}

func TestAwaitTerminalPollsToTerminal(t *testing.T) {
	trader := &seqTrader{statuses: []*types.OpenOrder{
		{OrderID: "o1", Status: types.OrderLive},
		{OrderID: "o1", Status: types.OrderPartiallyFilled, Filled: dec("3")},
		{OrderID: "o1", Status: types.OrderFilled, Filled: dec("10")},
	}}
	runner := newWatchRunner(t)

	order, err := runner.awaitTerminal(context.Background(), trader, nil,
		&PlacedOrder{OrderID: "o1"}, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.OrderFilled, order.Status)
	assert.True(t, order.Filled.Equal(dec("10")))
}

func TestAwaitTerminalPushConfirmedByREST(t *testing.T) {
	trader := &seqTrader{statuses: []*types.OpenOrder{
		{OrderID: "o1", Status: types.OrderFilled, Filled: dec("10")},
	}}
	watcher := &fakeWatcher{
		final: &types.OrderFinal{OrderID: "o1", Status: types.OrderFilled},
	}
	runner := newWatchRunner(t)

	start := time.Now()
	order, err := runner.awaitTerminal(context.Background(), trader, watcher,
		&PlacedOrder{OrderID: "o1"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.OrderFilled, order.Status)
	// The push signal resolves well before the watch deadline.
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitTerminalRESTOverridesPush(t *testing.T) {
	// Push claims CANCELLED but REST says FILLED. REST wins.
	trader := &seqTrader{statuses: []*types.OpenOrder{
		{OrderID: "o1", Status: types.OrderFilled, Filled: dec("7")},
	}}
	watcher := &fakeWatcher{
		final: &types.OrderFinal{OrderID: "o1", Status: types.OrderCancelled},
	}
	runner := newWatchRunner(t)

	order, err := runner.awaitTerminal(context.Background(), trader, watcher,
		&PlacedOrder{OrderID: "o1"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.OrderFilled, order.Status)
	assert.True(t, order.Filled.Equal(dec("7")))
}

func TestAwaitTerminalTimeoutReturnsLastRead(t *testing.T) {
	trader := &seqTrader{statuses: []*types.OpenOrder{
		{OrderID: "o1", Status: types.OrderPartiallyFilled, Filled: dec("3")},
	}}
	runner := newWatchRunner(t)

	order, err := runner.awaitTerminal(context.Background(), trader, nil,
		&PlacedOrder{OrderID: "o1"}, 30*time.Millisecond)
	require.ErrorIs(t, err, ErrWatchTimeout)
	// Partial fills straddling the timeout survive in the returned order.
	require.NotNil(t, order)
	assert.True(t, order.Filled.Equal(dec("3")))
}

func TestAwaitTerminalContextCancelled(t *testing.T) {
	trader := &seqTrader{statuses: []*types.OpenOrder{
		{OrderID: "o1", Status: types.OrderLive},
	}}
	runner := newWatchRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(15*time.Millisecond, cancel)

	_, err := runner.awaitTerminal(ctx, trader, nil,
		&PlacedOrder{OrderID: "o1"}, 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
