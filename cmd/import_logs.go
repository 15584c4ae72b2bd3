package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/storage"
	"github.com/apri1one/predict-arb-sub004/internal/tasklog"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var importLogsCmd = &cobra.Command{
	Use:   "import-logs",
	Short: "Import task log files into the relational index",
	Long: `Walks the on-disk task log directory and ingests every task's
events, snapshots and summary into the configured index. Import is
idempotent; already ingested rows are upserted.

Set TASK_INDEX_DRIVER and TASK_INDEX_DSN to pick the index backend.

Examples:
  # Into the default sqlite index
  TASK_INDEX_DRIVER=sqlite predict-arb import-logs

  # From a copied log directory into postgres
  TASK_INDEX_DRIVER=postgres TASK_INDEX_DSN=postgres://... \
    predict-arb import-logs --dir /backup/logs/tasks`,
	Args: cobra.NoArgs,
	RunE: runImportLogs,
}

//nolint:gochecknoglobals // Cobra boilerplate
var importLogsDir string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(importLogsCmd)
	importLogsCmd.Flags().StringVar(&importLogsDir, "dir", "", "Task log directory (default <DATA_DIR>/logs/tasks)")
}

func runImportLogs(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	dir := importLogsDir
	if dir == "" {
		dir = filepath.Join(cfg.DataDir, "logs", "tasks")
	}

	var index storage.Store
	switch cfg.IndexDriver {
	case "sqlite":
		path := cfg.IndexDSN
		if path == "" {
			path = filepath.Join(cfg.DataDir, "logs", "index.db")
		}
		index, err = storage.NewSQLiteStore(path, logger)
	case "postgres":
		index, err = storage.NewPostgresStoreDSN(cfg.IndexDSN, logger)
	default:
		return fmt.Errorf("TASK_INDEX_DRIVER must be 'sqlite' or 'postgres' for import")
	}
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer func() {
		_ = index.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := tasklog.Import(ctx, dir, index, logger); err != nil {
		return fmt.Errorf("import logs: %w", err)
	}

	fmt.Printf("Imported task logs from %s\n", dir)
	return nil
}
