// Package storage indexes tasks, their event logs and order-book snapshots
// in a relational store. The durable source of truth is the per-task jsonl
// log; this index exists for querying.
package storage

import (
	"context"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
)

// Store is the relational task index.
type Store interface {
	// UpsertTask inserts or refreshes a task row with its counters.
	UpsertTask(ctx context.Context, task *types.Task) error

	// InsertEvent records one task event. Idempotent on (task_id, sequence).
	InsertEvent(ctx context.Context, ev *types.TaskEvent) error

	// InsertSnapshot records one order-book snapshot. Idempotent on
	// (task_id, sequence).
	InsertSnapshot(ctx context.Context, snap *types.BookSnapshot) error

	// InsertOrder links a venue order id to its task.
	InsertOrder(ctx context.Context, taskID, orderID string) error

	// Close closes the store connection.
	Close() error
}

// Placeholders use the $N form, which both postgres and sqlite accept.
const (
	upsertTaskQuery = `
		INSERT INTO tasks (
			id, kind, strategy, market_id, condition_id, arb_side, quantity,
			status, filled_qty, hedged_qty, avg_predict_price, avg_poly_price,
			realized_pnl, unwind_loss, pause_count, hedge_retry_count,
			last_reason, created_at, started_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			filled_qty = excluded.filled_qty,
			hedged_qty = excluded.hedged_qty,
			avg_predict_price = excluded.avg_predict_price,
			avg_poly_price = excluded.avg_poly_price,
			realized_pnl = excluded.realized_pnl,
			unwind_loss = excluded.unwind_loss,
			pause_count = excluded.pause_count,
			hedge_retry_count = excluded.hedge_retry_count,
			last_reason = excluded.last_reason,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`

	insertEventQuery = `
		INSERT INTO events (task_id, sequence, timestamp_ms, kind, order_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (task_id, sequence) DO NOTHING
	`

	insertSnapshotQuery = `
		INSERT INTO orderbook_snapshots (task_id, sequence, timestamp_ms, total_cost, profit_pct, valid, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id, sequence) DO NOTHING
	`

	insertOrderQuery = `
		INSERT INTO orders (task_id, order_id)
		VALUES ($1, $2)
		ON CONFLICT (order_id) DO NOTHING
	`
)
