package tasklog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apri1one/predict-arb-sub004/internal/storage"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Import ingests all task logs under dir into a relational index. Safe to
// rerun: inserts are idempotent on (task_id, sequence).
func Import(ctx context.Context, dir string, index storage.Store, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log root: %w", err)
	}

	var imported int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := importTask(ctx, filepath.Join(dir, entry.Name()), index); err != nil {
			logger.Warn("task-import-failed",
				zap.String("task-id", entry.Name()), zap.Error(err))
			continue
		}
		imported++
	}

	logger.Info("task-logs-imported",
		zap.Int("imported", imported), zap.Int("scanned", len(entries)))
	return nil
}

func importTask(ctx context.Context, dir string, index storage.Store) error {
	summary, err := os.ReadFile(filepath.Join(dir, summaryFile))
	if err == nil {
		var task types.Task
		if err := json.Unmarshal(summary, &task); err != nil {
			return fmt.Errorf("parse summary: %w", err)
		}
		if err := index.UpsertTask(ctx, &task); err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read summary: %w", err)
	}

	if err := eachLine(filepath.Join(dir, eventsFile), func(data []byte) error {
		var ev types.TaskEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("parse event: %w", err)
		}
		if err := index.InsertEvent(ctx, &ev); err != nil {
			return err
		}
		if ev.Kind == types.EventOrderSubmitted && ev.OrderID != "" {
			return index.InsertOrder(ctx, ev.TaskID, ev.OrderID)
		}
		return nil
	}); err != nil {
		return err
	}

	return eachLine(filepath.Join(dir, booksFile), func(data []byte) error {
		var snap types.BookSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}
		return index.InsertSnapshot(ctx, &snap)
	})
}

func eachLine(path string, fn func(data []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
