package storage

import (
	"context"
	"fmt"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"go.uber.org/zap"
)

// ConsoleStore implements Store by pretty-printing terminal task summaries.
// Events and snapshots stay in the jsonl log only.
type ConsoleStore struct {
	logger *zap.Logger
}

// NewConsoleStore creates a new console store.
func NewConsoleStore(logger *zap.Logger) *ConsoleStore {
	logger.Info("console-index-initialized")
	return &ConsoleStore{logger: logger}
}

// UpsertTask prints a summary once the task reaches a terminal status.
func (c *ConsoleStore) UpsertTask(ctx context.Context, task *types.Task) error {
	if !task.Status.IsTerminal() {
		return nil
	}

	fmt.Println("\n" + "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("📋 TASK %s — %s\n", task.ID[:8], task.Status)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Market:   %s (%s %s %s)\n",
		task.Mapping.EventTitle, task.Kind, task.Strategy, task.ArbSide)
	fmt.Printf("Target:   %s shares\n", task.Quantity)
	fmt.Printf("Filled:   %s @ avg %s (predict)\n",
		task.Counters.FilledQty, task.Counters.AvgPredictPrice)
	fmt.Printf("Hedged:   %s @ avg %s (polymarket)\n",
		task.Counters.HedgedQty, task.Counters.AvgPolyPrice)
	fmt.Printf("Pauses:   %d   Hedge retries: %d\n",
		task.Counters.PauseCount, task.Counters.HedgeRetryCount)
	if task.Counters.UnwindLoss.IsPositive() {
		fmt.Printf("⚠️  Unwind loss: %s\n", task.Counters.UnwindLoss)
	}
	if task.Counters.LastReason != "" {
		fmt.Printf("Reason:   %s\n", task.Counters.LastReason)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return nil
}

// InsertEvent is a no-op for console storage.
func (c *ConsoleStore) InsertEvent(ctx context.Context, ev *types.TaskEvent) error {
	return nil
}

// InsertSnapshot is a no-op for console storage.
func (c *ConsoleStore) InsertSnapshot(ctx context.Context, snap *types.BookSnapshot) error {
	return nil
}

// InsertOrder is a no-op for console storage.
func (c *ConsoleStore) InsertOrder(ctx context.Context, taskID, orderID string) error {
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStore) Close() error {
	c.logger.Info("closing-console-index")
	return nil
}
