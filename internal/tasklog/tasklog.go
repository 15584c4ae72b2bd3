// Package tasklog owns the durable per-task log: append-only events.jsonl
// and orderbooks.jsonl files plus a summary.json written on terminal
// status. Writes can be mirrored into a relational index; the files remain
// the source of truth.
package tasklog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/storage"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	eventsFile  = "events.jsonl"
	booksFile   = "orderbooks.jsonl"
	summaryFile = "summary.json"
)

// Config holds task log configuration.
type Config struct {
	// Dir is the log root; one subdirectory per task id.
	Dir string
	// Index optionally mirrors writes into a relational store.
	Index  storage.Store
	Logger *zap.Logger
}

// Store opens per-task writers under a shared log root.
type Store struct {
	cfg    Config
	logger *zap.Logger
}

// NewStore creates the log root.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join("data", "logs", "tasks")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log root: %w", err)
	}
	return &Store{cfg: cfg, logger: cfg.Logger}, nil
}

// Open returns the writer for a task, resuming sequence numbers from any
// existing log so replays never introduce gaps or duplicates.
func (s *Store) Open(task *types.Task) (*Writer, error) {
	dir := filepath.Join(s.cfg.Dir, task.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create task dir: %w", err)
	}

	seq, err := lastSequence(filepath.Join(dir, eventsFile))
	if err != nil {
		return nil, err
	}
	snapSeq, err := lastSequence(filepath.Join(dir, booksFile))
	if err != nil {
		return nil, err
	}

	flags := os.O_APPEND | os.O_CREATE | os.O_WRONLY
	events, err := os.OpenFile(filepath.Join(dir, eventsFile), flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open events log: %w", err)
	}
	books, err := os.OpenFile(filepath.Join(dir, booksFile), flags, 0o644)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("open orderbooks log: %w", err)
	}

	w := &Writer{
		taskID:  task.ID,
		dir:     dir,
		seq:     seq,
		snapSeq: snapSeq,
		events:  events,
		books:   books,
		index:   s.cfg.Index,
		logger:  s.logger,
	}

	if seq == 0 {
		w.Event(types.EventTaskCreated, "", task)
	}
	if s.cfg.Index != nil {
		if err := s.cfg.Index.UpsertTask(context.Background(), task); err != nil {
			s.logger.Warn("task-index-upsert-failed",
				zap.String("task-id", task.ID), zap.Error(err))
		}
	}
	return w, nil
}

// lastSequence scans an existing jsonl file for its highest sequence.
func lastSequence(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var last int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var line struct {
			Sequence int64 `json:"sequence"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Sequence > last {
			last = line.Sequence
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	return last, nil
}

// Writer appends one task's events and snapshots. Sequences are monotonic
// and gap-free per file.
type Writer struct {
	mu      sync.Mutex
	taskID  string
	dir     string
	seq     int64
	snapSeq int64
	events  *os.File
	books   *os.File
	index   storage.Store
	logger  *zap.Logger
}

// Event appends one event line. The payload is marshalled as-is.
func (w *Writer) Event(kind types.TaskEventKind, orderID string, payload interface{}) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			w.logger.Error("event-payload-marshal-failed",
				zap.String("task-id", w.taskID), zap.String("kind", string(kind)), zap.Error(err))
		} else {
			raw = data
		}
	}

	w.mu.Lock()
	w.seq++
	ev := types.TaskEvent{
		TaskID:      w.taskID,
		Sequence:    w.seq,
		TimestampMs: time.Now().UnixMilli(),
		Kind:        kind,
		OrderID:     orderID,
		Payload:     raw,
	}
	err := w.appendLine(w.events, ev)
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("event-write-failed",
			zap.String("task-id", w.taskID), zap.String("kind", string(kind)), zap.Error(err))
		WriteFailuresTotal.Inc()
		return
	}
	EventsWrittenTotal.Inc()

	if w.index != nil {
		if err := w.index.InsertEvent(context.Background(), &ev); err != nil {
			w.logger.Warn("event-index-failed",
				zap.String("task-id", w.taskID), zap.Error(err))
		}
		if kind == types.EventOrderSubmitted && orderID != "" {
			if err := w.index.InsertOrder(context.Background(), w.taskID, orderID); err != nil {
				w.logger.Warn("order-index-failed",
					zap.String("task-id", w.taskID), zap.Error(err))
			}
		}
	}
}

// Snapshot appends one order-book snapshot line. Snapshots carry their own
// sequence counter so event sequences stay gap-free.
func (w *Writer) Snapshot(snap types.BookSnapshot) {
	w.mu.Lock()
	w.snapSeq++
	snap.Sequence = w.snapSeq
	snap.TaskID = w.taskID
	if snap.TimestampMs == 0 {
		snap.TimestampMs = time.Now().UnixMilli()
	}
	err := w.appendLine(w.books, snap)
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("snapshot-write-failed",
			zap.String("task-id", w.taskID), zap.Error(err))
		WriteFailuresTotal.Inc()
		return
	}
	SnapshotsWrittenTotal.Inc()

	if w.index != nil {
		if err := w.index.InsertSnapshot(context.Background(), &snap); err != nil {
			w.logger.Warn("snapshot-index-failed",
				zap.String("task-id", w.taskID), zap.Error(err))
		}
	}
}

// Close writes summary.json from the task's terminal state and closes the
// log files.
func (w *Writer) Close(task *types.Task) error {
	summary, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, summaryFile), summary, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	w.mu.Lock()
	eventsErr := w.events.Close()
	booksErr := w.books.Close()
	w.mu.Unlock()

	if w.index != nil {
		if err := w.index.UpsertTask(context.Background(), task); err != nil {
			w.logger.Warn("task-index-upsert-failed",
				zap.String("task-id", task.ID), zap.Error(err))
		}
	}

	if eventsErr != nil {
		return eventsErr
	}
	return booksErr
}

func (w *Writer) appendLine(f *os.File, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
