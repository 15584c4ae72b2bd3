package storage

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local sqlite file. Used for single-node
// deployments and for the offline jsonl importer.
type SQLiteStore struct {
	dbStore
}

// NewSQLiteStore opens (and if needed initializes) a sqlite task index.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{dbStore{db: db, logger: logger}}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite-index-opened", zap.String("path", path))
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			strategy TEXT NOT NULL,
			market_id TEXT NOT NULL,
			condition_id TEXT NOT NULL,
			arb_side TEXT NOT NULL,
			quantity TEXT NOT NULL,
			status TEXT NOT NULL,
			filled_qty TEXT NOT NULL,
			hedged_qty TEXT NOT NULL,
			avg_predict_price TEXT NOT NULL,
			avg_poly_price TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			unwind_loss TEXT NOT NULL,
			pause_count INTEGER NOT NULL,
			hedge_retry_count INTEGER NOT NULL,
			last_reason TEXT,
			created_at TIMESTAMP,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			task_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			kind TEXT NOT NULL,
			order_id TEXT,
			payload BLOB,
			PRIMARY KEY (task_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS orderbook_snapshots (
			task_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			total_cost TEXT,
			profit_pct TEXT,
			valid INTEGER NOT NULL,
			payload BLOB,
			PRIMARY KEY (task_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing-sqlite-index")
	return s.db.Close()
}
