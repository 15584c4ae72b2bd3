package httpserver

import (
	"errors"
	"net/http"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// TaskHandler adapts task create/list/cancel requests onto the scheduler.
type TaskHandler struct {
	tasks  TaskService
	logger *zap.Logger
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(tasks TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleCreate handles POST /api/tasks.
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var task types.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, h.logger, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.tasks.Submit(&task)
	if err != nil {
		var vErr *types.ValidationError
		switch {
		case errors.Is(err, types.ErrMarketBusy):
			writeError(w, h.logger, err.Error(), http.StatusConflict)
		case errors.As(err, &vErr):
			writeError(w, h.logger, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("task-create-failed", zap.Error(err))
			writeError(w, h.logger, "internal error", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("task-created-via-api",
		zap.String("task-id", created.ID),
		zap.String("market-id", created.Mapping.PredictMarketID),
		zap.String("kind", string(created.Kind)))
	writeJSON(w, h.logger, created, http.StatusCreated)
}

// HandleList handles GET /api/tasks.
func (h *TaskHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, h.tasks.List(), http.StatusOK)
}

// HandleGet handles GET /api/tasks/{taskID}.
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, ok := h.tasks.Get(taskID)
	if !ok {
		writeError(w, h.logger, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, h.logger, task, http.StatusOK)
}

// HandleCancel handles DELETE /api/tasks/{taskID}.
func (h *TaskHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, ok := h.tasks.Get(taskID)
	if !ok {
		writeError(w, h.logger, "task not found", http.StatusNotFound)
		return
	}

	if err := h.tasks.Cancel(taskID); err != nil {
		writeError(w, h.logger, err.Error(), http.StatusConflict)
		return
	}

	h.logger.Info("task-cancel-requested", zap.String("task-id", taskID))
	// Cancellation is asynchronous for running tasks; the caller polls the
	// task until it reaches a terminal status.
	writeJSON(w, h.logger, task, http.StatusAccepted)
}

// CloseOpportunityHandler serves the reconciler's matched-pair close quotes.
type CloseOpportunityHandler struct {
	quotes CloseQuoteSource
	logger *zap.Logger
}

// NewCloseOpportunityHandler creates a new close-opportunity handler.
func NewCloseOpportunityHandler(quotes CloseQuoteSource, logger *zap.Logger) *CloseOpportunityHandler {
	return &CloseOpportunityHandler{quotes: quotes, logger: logger}
}

// HandleList handles GET /api/close-opportunities.
func (h *CloseOpportunityHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, h.quotes.CloseQuotes(), http.StatusOK)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
