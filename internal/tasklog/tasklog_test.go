package tasklog

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func logTask(id string) *types.Task {
	return &types.Task{
		ID:       id,
		Kind:     types.TaskBuy,
		Strategy: types.StrategyTaker,
		Mapping: types.MarketMapping{
			PredictMarketID:       "m1",
			PolymarketConditionID: "c1",
		},
		ArbSide:  types.OutcomeYes,
		Quantity: decimal.RequireFromString("10"),
		Status:   types.TaskQueued,
	}
}

func readEvents(t *testing.T, path string) []types.TaskEvent {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []types.TaskEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev types.TaskEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		out = append(out, ev)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestWriterSequencesGapFree(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(Config{Dir: dir, Logger: zap.NewNop()})
	require.NoError(t, err)

	task := logTask("t1")
	w, err := store.Open(task)
	require.NoError(t, err)

	w.Event(types.EventTaskStarted, "", nil)
	w.Event(types.EventOrderSubmitted, "o1", map[string]string{"price": "0.55"})
	w.Event(types.EventOrderFilled, "o1", nil)
	require.NoError(t, w.Close(task))

	events := readEvents(t, filepath.Join(dir, "t1", eventsFile))
	require.Len(t, events, 4)
	// TASK_CREATED opens the log at sequence 1.
	assert.Equal(t, types.EventTaskCreated, events[0].Kind)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Sequence)
		assert.Equal(t, "t1", ev.TaskID)
	}
	assert.Equal(t, "o1", events[1].OrderID)
	assert.JSONEq(t, `{"price":"0.55"}`, string(events[1].Payload))
}

func TestWriterResumesSequenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(Config{Dir: dir, Logger: zap.NewNop()})
	require.NoError(t, err)

	task := logTask("t1")
	w, err := store.Open(task)
	require.NoError(t, err)
	w.Event(types.EventTaskStarted, "", nil)
	require.NoError(t, w.Close(task))

	w, err = store.Open(task)
	require.NoError(t, err)
	w.Event(types.EventOrderSubmitted, "o1", nil)
	require.NoError(t, w.Close(task))

	events := readEvents(t, filepath.Join(dir, "t1", eventsFile))
	require.Len(t, events, 3)
	// No duplicate TASK_CREATED, no gap.
	assert.Equal(t, types.EventTaskCreated, events[0].Kind)
	assert.Equal(t, int64(3), events[2].Sequence)
	assert.Equal(t, types.EventOrderSubmitted, events[2].Kind)
}

func TestSnapshotsUseOwnCounter(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(Config{Dir: dir, Logger: zap.NewNop()})
	require.NoError(t, err)

	task := logTask("t1")
	w, err := store.Open(task)
	require.NoError(t, err)

	w.Snapshot(types.BookSnapshot{TotalCost: decimal.RequireFromString("0.85"), Valid: true})
	w.Event(types.EventOrderSubmitted, "o1", nil)
	w.Snapshot(types.BookSnapshot{TotalCost: decimal.RequireFromString("0.86"), Valid: true})
	require.NoError(t, w.Close(task))

	events := readEvents(t, filepath.Join(dir, "t1", eventsFile))
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[1].Sequence)

	f, err := os.Open(filepath.Join(dir, "t1", booksFile))
	require.NoError(t, err)
	defer f.Close()

	var snaps []types.BookSnapshot
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var snap types.BookSnapshot
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &snap))
		snaps = append(snaps, snap)
	}
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(1), snaps[0].Sequence)
	assert.Equal(t, int64(2), snaps[1].Sequence)
	assert.Equal(t, "t1", snaps[0].TaskID)
}

func TestCloseWritesSummary(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(Config{Dir: dir, Logger: zap.NewNop()})
	require.NoError(t, err)

	task := logTask("t1")
	w, err := store.Open(task)
	require.NoError(t, err)

	task.Status = types.TaskCompleted
	task.Counters.FilledQty = decimal.RequireFromString("10")
	task.Counters.HedgedQty = decimal.RequireFromString("10")
	require.NoError(t, w.Close(task))

	data, err := os.ReadFile(filepath.Join(dir, "t1", summaryFile))
	require.NoError(t, err)

	var got types.Task
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.True(t, got.Counters.FilledQty.Equal(decimal.RequireFromString("10")))
}

// memIndex records index writes for import tests.
type memIndex struct {
	mu     sync.Mutex
	tasks  map[string]types.TaskStatus
	events map[string]map[int64]bool
	snaps  int
	orders []string
}

func newMemIndex() *memIndex {
	return &memIndex{
		tasks:  make(map[string]types.TaskStatus),
		events: make(map[string]map[int64]bool),
	}
}

func (m *memIndex) UpsertTask(_ context.Context, task *types.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task.Status
	return nil
}

func (m *memIndex) InsertEvent(_ context.Context, ev *types.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[ev.TaskID] == nil {
		m.events[ev.TaskID] = make(map[int64]bool)
	}
	m.events[ev.TaskID][ev.Sequence] = true
	return nil
}

func (m *memIndex) InsertSnapshot(_ context.Context, _ *types.BookSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps++
	return nil
}

func (m *memIndex) InsertOrder(_ context.Context, _, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, orderID)
	return nil
}

func (m *memIndex) Close() error { return nil }

func TestImportIngestsTaskLogs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(Config{Dir: dir, Logger: zap.NewNop()})
	require.NoError(t, err)

	task := logTask("t1")
	w, err := store.Open(task)
	require.NoError(t, err)
	w.Event(types.EventTaskStarted, "", nil)
	w.Event(types.EventOrderSubmitted, "o1", nil)
	w.Snapshot(types.BookSnapshot{Valid: true})
	task.Status = types.TaskCompleted
	require.NoError(t, w.Close(task))

	index := newMemIndex()
	require.NoError(t, Import(context.Background(), dir, index, zap.NewNop()))

	assert.Equal(t, types.TaskCompleted, index.tasks["t1"])
	assert.Len(t, index.events["t1"], 3)
	assert.Equal(t, 1, index.snaps)
	assert.Equal(t, []string{"o1"}, index.orders)
}

func TestLiveIndexMirrorsWrites(t *testing.T) {
	dir := t.TempDir()
	index := newMemIndex()
	store, err := NewStore(Config{Dir: dir, Index: index, Logger: zap.NewNop()})
	require.NoError(t, err)

	task := logTask("t1")
	w, err := store.Open(task)
	require.NoError(t, err)
	w.Event(types.EventOrderSubmitted, "o1", nil)
	require.NoError(t, w.Close(task))

	assert.Len(t, index.events["t1"], 2)
	assert.Equal(t, []string{"o1"}, index.orders)
	assert.Contains(t, index.tasks, "t1")
}
