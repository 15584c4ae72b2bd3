package types

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// TaskKind distinguishes opening trades from position unwinds.
type TaskKind string

const (
	TaskBuy  TaskKind = "BUY"
	TaskSell TaskKind = "SELL"
)

// TaskStrategy selects the Predict leg style.
type TaskStrategy string

const (
	StrategyMaker TaskStrategy = "MAKER"
	StrategyTaker TaskStrategy = "TAKER"
)

// TaskStatus is the scheduler-visible lifecycle state.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "QUEUED"
	TaskRunning   TaskStatus = "RUNNING"
	TaskPaused    TaskStatus = "PAUSED"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// IsTerminal reports whether the task status is sticky.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// TaskParams carries the price parameters whose required subset depends on
// (kind, strategy). Zero decimals mean "not provided".
type TaskParams struct {
	// PredictPrice is the Predict limit price (MAKER) or reference price
	// (SELL TAKER).
	PredictPrice decimal.Decimal `json:"predict_price,omitempty"`
	// PredictAskPrice is the Predict taker/ask price (BUY TAKER, SELL MAKER).
	PredictAskPrice decimal.Decimal `json:"predict_ask_price,omitempty"`
	// PolymarketMaxAsk bounds the hedge leg for BUY tasks.
	PolymarketMaxAsk decimal.Decimal `json:"polymarket_max_ask,omitempty"`
	// PolymarketMinBid bounds the hedge leg for SELL tasks.
	PolymarketMinBid decimal.Decimal `json:"polymarket_min_bid,omitempty"`
	// MaxTotalCost caps the combined two-leg cost (BUY TAKER).
	MaxTotalCost decimal.Decimal `json:"max_total_cost,omitempty"`
	// MinProfitBuffer is the required edge below cost 1 (BUY MAKER).
	MinProfitBuffer decimal.Decimal `json:"min_profit_buffer,omitempty"`
	// EntryCost is the per-share cost basis being unwound (SELL only).
	EntryCost decimal.Decimal `json:"entry_cost,omitempty"`
}

// TaskCounters aggregates execution progress. Updated only by the task
// runner; persisted into summary.json on terminal status.
type TaskCounters struct {
	FilledQty        decimal.Decimal `json:"filled_qty"`
	HedgedQty        decimal.Decimal `json:"hedged_qty"`
	AvgPredictPrice  decimal.Decimal `json:"avg_predict_price"`
	AvgPolyPrice     decimal.Decimal `json:"avg_poly_price"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	UnwindLoss       decimal.Decimal `json:"unwind_loss"`
	PauseCount       int             `json:"pause_count"`
	HedgeRetryCount  int             `json:"hedge_retry_count"`
	PredictOrderIDs  []string        `json:"predict_order_ids,omitempty"`
	PolyOrderIDs     []string        `json:"poly_order_ids,omitempty"`
	LastReason       string          `json:"last_reason,omitempty"`
}

// Task is the persisted unit of scheduled work: one hedged two-leg trade.
type Task struct {
	ID              string          `json:"id"`
	Kind            TaskKind        `json:"kind"`
	Strategy        TaskStrategy    `json:"strategy"`
	Mapping         MarketMapping   `json:"mapping"`
	ArbSide         Outcome         `json:"arb_side"`
	Quantity        decimal.Decimal `json:"quantity"`
	Params          TaskParams      `json:"params"`
	FeeRateBps      int64           `json:"fee_rate_bps"`
	OrderTimeout    time.Duration   `json:"order_timeout"`
	MaxHedgeRetries int             `json:"max_hedge_retries"`
	Status          TaskStatus      `json:"status"`
	Counters        TaskCounters    `json:"counters"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       time.Time       `json:"started_at,omitempty"`
	FinishedAt      time.Time       `json:"finished_at,omitempty"`
}

// TaskEventKind enumerates the append-only log entries a task emits.
type TaskEventKind string

const (
	EventTaskCreated    TaskEventKind = "TASK_CREATED"
	EventTaskStarted    TaskEventKind = "TASK_STARTED"
	EventOrderSubmitted TaskEventKind = "ORDER_SUBMITTED"
	EventOrderFilled    TaskEventKind = "ORDER_FILLED"
	EventOrderCancelled TaskEventKind = "ORDER_CANCELLED"
	EventPause          TaskEventKind = "PAUSE"
	EventResume         TaskEventKind = "RESUME"
	EventHedgeAttempt   TaskEventKind = "HEDGE_ATTEMPT"
	EventHedgeComplete  TaskEventKind = "HEDGE_COMPLETE"
	EventUnwindStart    TaskEventKind = "UNWIND_START"
	EventTaskComplete   TaskEventKind = "TASK_COMPLETE"
	EventTaskFailed     TaskEventKind = "TASK_FAILED"
	EventTaskCancelled  TaskEventKind = "TASK_CANCELLED"
)

// TaskEvent is one append-only log entry. (TaskID, Sequence) is unique and
// gap-free per task; sequences, not timestamps, drive ordering.
type TaskEvent struct {
	TaskID      string          `json:"task_id"`
	Sequence    int64           `json:"sequence"`
	TimestampMs int64           `json:"timestamp_ms"`
	Kind        TaskEventKind   `json:"kind"`
	Priority    string          `json:"priority,omitempty"`
	ExecutorID  string          `json:"executor_id,omitempty"`
	AttemptID   string          `json:"attempt_id,omitempty"`
	OrderID     string          `json:"order_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// BookSnapshot captures both venues' books and the derived arb metrics at a
// decision point. Attached to the task log alongside events.
type BookSnapshot struct {
	TaskID       string               `json:"task_id"`
	Sequence     int64                `json:"sequence"`
	TimestampMs  int64                `json:"timestamp_ms"`
	PredictBook  *NormalizedOrderBook `json:"predict_book,omitempty"`
	PolyBook     *NormalizedOrderBook `json:"poly_book,omitempty"`
	TotalCost    decimal.Decimal      `json:"total_cost"`
	ProfitPct    decimal.Decimal      `json:"profit_pct"`
	Valid        bool                 `json:"valid"`
	MaxDepth     decimal.Decimal      `json:"max_depth"`
}
