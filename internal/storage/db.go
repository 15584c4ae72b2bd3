package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// dbStore runs the index queries against any database/sql driver that
// understands $N placeholders.
type dbStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func (s *dbStore) UpsertTask(ctx context.Context, task *types.Task) error {
	_, err := s.db.ExecContext(ctx, upsertTaskQuery,
		task.ID,
		string(task.Kind),
		string(task.Strategy),
		task.Mapping.PredictMarketID,
		task.Mapping.PolymarketConditionID,
		string(task.ArbSide),
		task.Quantity.String(),
		string(task.Status),
		task.Counters.FilledQty.String(),
		task.Counters.HedgedQty.String(),
		task.Counters.AvgPredictPrice.String(),
		task.Counters.AvgPolyPrice.String(),
		task.Counters.RealizedPnL.String(),
		task.Counters.UnwindLoss.String(),
		task.Counters.PauseCount,
		task.Counters.HedgeRetryCount,
		task.Counters.LastReason,
		task.CreatedAt,
		task.StartedAt,
		task.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}

	s.logger.Debug("task-indexed",
		zap.String("task-id", task.ID),
		zap.String("status", string(task.Status)))
	return nil
}

func (s *dbStore) InsertEvent(ctx context.Context, ev *types.TaskEvent) error {
	_, err := s.db.ExecContext(ctx, insertEventQuery,
		ev.TaskID,
		ev.Sequence,
		ev.TimestampMs,
		string(ev.Kind),
		ev.OrderID,
		[]byte(ev.Payload),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *dbStore) InsertSnapshot(ctx context.Context, snap *types.BookSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertSnapshotQuery,
		snap.TaskID,
		snap.Sequence,
		snap.TimestampMs,
		snap.TotalCost.String(),
		snap.ProfitPct.String(),
		snap.Valid,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *dbStore) InsertOrder(ctx context.Context, taskID, orderID string) error {
	if _, err := s.db.ExecContext(ctx, insertOrderQuery, taskID, orderID); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}
