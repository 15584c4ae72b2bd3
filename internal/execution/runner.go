package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sink receives a task's append-only events and book snapshots. Sequencing
// and persistence belong to the sink; the runner only reports.
type Sink interface {
	Event(kind types.TaskEventKind, orderID string, payload interface{})
	Snapshot(snap types.BookSnapshot)
}

// RunnerConfig holds task runner configuration.
type RunnerConfig struct {
	Predict      Trader
	Polymarket   Trader
	PredictWatch TerminalWatcher
	PolyWatch    TerminalWatcher
	Books        BookSource

	// PollInterval paces the REST status poll channel.
	PollInterval time.Duration
	// PauseRecheck paces book rechecks while a task is paused.
	PauseRecheck time.Duration
	// DriftCheck paces hedge-bound checks while a maker order rests.
	DriftCheck time.Duration
	// OrderTimeout bounds one order watch when the task sets none.
	OrderTimeout time.Duration

	Logger *zap.Logger
}

// Runner executes hedged two-leg tasks: a Predict leg filled first, each
// fill immediately hedged on Polymarket, shortfalls unwound back on
// Predict.
type Runner struct {
	cfg    RunnerConfig
	logger *zap.Logger
}

// NewRunner creates a task runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Predict == nil || cfg.Polymarket == nil {
		return nil, fmt.Errorf("both venue traders required")
	}
	if cfg.Books == nil {
		return nil, fmt.Errorf("book source required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.PauseRecheck <= 0 {
		cfg.PauseRecheck = time.Second
	}
	if cfg.DriftCheck <= 0 {
		cfg.DriftCheck = 500 * time.Millisecond
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Runner{cfg: cfg, logger: cfg.Logger}, nil
}

// legPlan is a task resolved into concrete tokens, sides and bounds.
type legPlan struct {
	predictToken string
	polyToken    string
	// side applies to both legs: a buy is hedged by a buy of the paired
	// token, a sell by a sell.
	side         types.Side
	predictPrice decimal.Decimal
	taker        bool
	// hedgeBound caps the hedge leg: max ask for buys, min bid for sells.
	hedgeBound decimal.Decimal
	entryCost  decimal.Decimal
	tick       decimal.Decimal
}

func resolveLegs(task *types.Task) (*legPlan, error) {
	predictToken, err := task.Mapping.PredictTokenFor(task.ArbSide)
	if err != nil {
		return nil, err
	}
	polyOutcome := task.Mapping.PolymarketOutcomeFor(task.ArbSide)
	polyToken, err := task.Mapping.PolymarketTokenFor(polyOutcome)
	if err != nil {
		return nil, err
	}

	plan := &legPlan{
		predictToken: predictToken,
		polyToken:    polyToken,
		tick:         task.Mapping.TickSize,
		taker:        task.Strategy == types.StrategyTaker,
	}

	switch task.Kind {
	case types.TaskBuy:
		plan.side = types.SideBuy
		plan.hedgeBound = task.Params.PolymarketMaxAsk
		if plan.taker {
			plan.predictPrice = task.Params.PredictAskPrice
		} else {
			plan.predictPrice = task.Params.PredictPrice
		}
	case types.TaskSell:
		plan.side = types.SideSell
		plan.hedgeBound = task.Params.PolymarketMinBid
		plan.entryCost = task.Params.EntryCost
		if plan.taker {
			plan.predictPrice = task.Params.PredictPrice
		} else {
			plan.predictPrice = task.Params.PredictAskPrice
		}
	default:
		return nil, fmt.Errorf("unknown task kind %q", task.Kind)
	}

	if !plan.predictPrice.IsPositive() {
		return nil, &types.ValidationError{Field: "predictPrice", Reason: "required"}
	}
	return plan, nil
}

// Run executes the task to a terminal event. The caller owns task.Status;
// Run reports the outcome through the sink and its return value.
func (r *Runner) Run(ctx context.Context, task *types.Task, sink Sink) error {
	start := time.Now()
	defer func() {
		ExecutionDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	legs, err := resolveLegs(task)
	if err != nil {
		sink.Event(types.EventTaskFailed, "", map[string]string{"reason": err.Error()})
		return err
	}

	sink.Event(types.EventTaskStarted, "", nil)

	err = r.runLegs(ctx, task, legs, sink)
	switch {
	case err == nil:
		sink.Event(types.EventTaskComplete, "", task.Counters)
		return nil
	case errors.Is(err, context.Canceled):
		sink.Event(types.EventTaskCancelled, "", task.Counters)
		return err
	default:
		task.Counters.LastReason = err.Error()
		sink.Event(types.EventTaskFailed, "", map[string]string{"reason": err.Error()})
		return err
	}
}

func (r *Runner) runLegs(ctx context.Context, task *types.Task, legs *legPlan, sink Sink) error {
	target := AlignQuantity(task.Quantity)
	if !target.IsPositive() {
		return &types.ValidationError{Field: "quantity", Reason: "below 0.01 share granularity"}
	}

	for task.Counters.HedgedQty.LessThan(target) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !r.entryViable(task, legs) {
			if err := r.pause(ctx, task, legs, sink); err != nil {
				return err
			}
			continue
		}

		remaining := AlignQuantity(target.Sub(task.Counters.HedgedQty))
		if !remaining.IsPositive() {
			break
		}

		final, err := r.fillPredictLeg(ctx, task, legs, remaining, sink)
		if err != nil {
			return err
		}

		fillDelta := decimal.Zero
		fillPrice := legs.predictPrice
		if final != nil {
			fillDelta = final.Filled
			if final.Price.IsPositive() {
				fillPrice = final.Price
			}
		}
		if !fillDelta.IsPositive() {
			continue
		}

		task.Counters.AvgPredictPrice = weightedAvg(
			task.Counters.AvgPredictPrice, task.Counters.FilledQty, fillPrice, fillDelta)
		task.Counters.FilledQty = task.Counters.FilledQty.Add(fillDelta)
		sink.Event(types.EventOrderFilled, final.OrderID, final)

		entryCost := legs.entryCost
		if task.Kind == types.TaskBuy {
			entryCost = fillPrice
		}
		if err := r.hedge(ctx, task, legs, fillDelta, entryCost, sink); err != nil {
			return err
		}
	}
	return nil
}

// fillPredictLeg places one Predict order for the remaining quantity and
// watches it to terminal. Maker orders are cancelled when the hedge bound
// drifts away while they rest.
func (r *Runner) fillPredictLeg(ctx context.Context, task *types.Task, legs *legPlan, qty decimal.Decimal, sink Sink) (*types.OpenOrder, error) {
	price := AlignPrice(legs.predictPrice, legs.tick, legs.side == types.SideSell)

	req := OrderRequest{
		TokenID:    legs.predictToken,
		Side:       legs.side,
		Price:      price,
		Size:       qty,
		FeeRateBps: task.FeeRateBps,
		NegRisk:    task.Mapping.NegRisk,
		Taker:      legs.taker,
	}

	placed, err := r.placeWithRetry(ctx, r.cfg.Predict, req)
	if err != nil {
		return nil, err
	}
	task.Counters.PredictOrderIDs = append(task.Counters.PredictOrderIDs, placed.OrderID)
	sink.Event(types.EventOrderSubmitted, placed.OrderID, req)
	r.snapshot(task, legs, sink)

	// A resting maker order is cancelled the moment the hedge side drifts
	// out of bounds.
	watchCtx, stopDrift := context.WithCancel(ctx)
	defer stopDrift()
	if !legs.taker {
		go r.driftMonitor(watchCtx, legs, placed)
	}

	final, werr := r.awaitTerminal(ctx, r.cfg.Predict, r.cfg.PredictWatch, placed, r.orderTimeout(task))
	stopDrift()

	if werr != nil {
		if errors.Is(werr, ErrWatchTimeout) {
			// Cancel the resting remainder; partial fills were already
			// reconciled against REST.
			if cerr := r.cfg.Predict.Cancel(ctx, placed.OrderID); cerr != nil {
				r.logger.Warn("cancel-after-timeout-failed",
					zap.String("order-id", placed.OrderID), zap.Error(cerr))
			}
			sink.Event(types.EventOrderCancelled, placed.OrderID, nil)
			return final, nil
		}
		return final, werr
	}

	if final != nil && final.Status == types.OrderCancelled {
		sink.Event(types.EventOrderCancelled, placed.OrderID, nil)
	}
	return final, nil
}

// driftMonitor cancels a resting order when the hedge bound is breached.
func (r *Runner) driftMonitor(ctx context.Context, legs *legPlan, placed *PlacedOrder) {
	ticker := time.NewTicker(r.cfg.DriftCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.hedgeViable(legs) {
				continue
			}
			r.logger.Info("hedge-bound-drift-cancelling",
				zap.String("order-id", placed.OrderID),
				zap.String("token-id", legs.predictToken))
			DriftCancelsTotal.Inc()
			if err := r.cfg.Predict.Cancel(ctx, placed.OrderID); err != nil {
				r.logger.Warn("drift-cancel-failed",
					zap.String("order-id", placed.OrderID), zap.Error(err))
			}
			return
		}
	}
}

// hedge fires marketable Polymarket orders until qty is covered, then
// unwinds any shortfall back on Predict.
func (r *Runner) hedge(ctx context.Context, task *types.Task, legs *legPlan, qty, entryCost decimal.Decimal, sink Sink) error {
	remaining := qty

	for attempt := 0; attempt <= task.MaxHedgeRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !remaining.IsPositive() {
			break
		}
		if attempt > 0 {
			task.Counters.HedgeRetryCount++
			HedgeRetriesTotal.Inc()
		}

		price, ok := r.hedgePrice(legs)
		if !ok {
			sink.Event(types.EventHedgeAttempt, "", map[string]string{
				"reason": "hedge price out of bounds", "remaining": remaining.String(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.PauseRecheck):
			}
			continue
		}

		req := OrderRequest{
			TokenID:    legs.polyToken,
			Side:       legs.side,
			Price:      price,
			Size:       remaining,
			FeeRateBps: task.FeeRateBps,
			NegRisk:    task.Mapping.NegRisk,
			Taker:      true,
		}
		sink.Event(types.EventHedgeAttempt, "", req)

		placed, err := r.placeWithRetry(ctx, r.cfg.Polymarket, req)
		if err != nil {
			return fmt.Errorf("hedge placement: %w", err)
		}
		task.Counters.PolyOrderIDs = append(task.Counters.PolyOrderIDs, placed.OrderID)

		final, werr := r.awaitTerminal(ctx, r.cfg.Polymarket, r.cfg.PolyWatch, placed, r.orderTimeout(task))
		if werr != nil && !errors.Is(werr, ErrWatchTimeout) {
			return werr
		}

		if final != nil && final.Filled.IsPositive() {
			fillPrice := price
			if final.Price.IsPositive() {
				fillPrice = final.Price
			}
			task.Counters.AvgPolyPrice = weightedAvg(
				task.Counters.AvgPolyPrice, task.Counters.HedgedQty, fillPrice, final.Filled)
			task.Counters.HedgedQty = task.Counters.HedgedQty.Add(final.Filled)
			remaining = remaining.Sub(final.Filled)
		}
	}

	if remaining.IsPositive() {
		return r.unwind(ctx, task, legs, remaining, entryCost, sink)
	}

	sink.Event(types.EventHedgeComplete, "", map[string]string{
		"hedged": qty.String(),
	})
	return nil
}

// unwind reverses the unhedged Predict residual with a marketable order on
// the opposite side, recording the realized loss.
func (r *Runner) unwind(ctx context.Context, task *types.Task, legs *legPlan, shortfall, entryCost decimal.Decimal, sink Sink) error {
	UnwindsTotal.Inc()
	sink.Event(types.EventUnwindStart, "", map[string]string{
		"shortfall": shortfall.String(),
	})

	side := types.SideSell
	roundUp := false
	levelPrice, ok := r.predictTouch(legs, false)
	if legs.side == types.SideSell {
		// A SELL task unwinds by buying the sold shares back.
		side = types.SideBuy
		roundUp = true
		levelPrice, ok = r.predictTouch(legs, true)
	}
	if !ok {
		return fmt.Errorf("unwind: no %s liquidity on predict book", side)
	}

	req := OrderRequest{
		TokenID: legs.predictToken,
		Side:    side,
		Price:   AlignPrice(levelPrice, legs.tick, roundUp),
		Size:    shortfall,
		NegRisk: task.Mapping.NegRisk,
		Taker:   true,
	}
	placed, err := r.placeWithRetry(ctx, r.cfg.Predict, req)
	if err != nil {
		return fmt.Errorf("unwind placement: %w", err)
	}
	task.Counters.PredictOrderIDs = append(task.Counters.PredictOrderIDs, placed.OrderID)

	final, werr := r.awaitTerminal(ctx, r.cfg.Predict, r.cfg.PredictWatch, placed, r.orderTimeout(task))
	if werr != nil && !errors.Is(werr, ErrWatchTimeout) {
		return werr
	}

	salvaged := decimal.Zero
	unwound := decimal.Zero
	if final != nil {
		unwound = final.Filled
		if final.Price.IsPositive() {
			salvaged = final.Price
		}
	}

	loss := entryCost.Sub(salvaged).Mul(shortfall)
	if loss.IsNegative() {
		loss = decimal.Zero
	}
	task.Counters.UnwindLoss = task.Counters.UnwindLoss.Add(loss)
	// The unwound shares no longer count toward the Predict fill.
	task.Counters.FilledQty = task.Counters.FilledQty.Sub(unwound)

	return fmt.Errorf("hedge shortfall %s unwound with loss %s", shortfall, loss)
}

// pause parks the task until the hedge bound comes back inside range.
func (r *Runner) pause(ctx context.Context, task *types.Task, legs *legPlan, sink Sink) error {
	task.Counters.PauseCount++
	PausesTotal.Inc()
	sink.Event(types.EventPause, "", map[string]int{"pause_count": task.Counters.PauseCount})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.PauseRecheck):
		}
		if r.entryViable(task, legs) {
			sink.Event(types.EventResume, "", nil)
			return nil
		}
	}
}

// entryViable gates new Predict orders on the hedge side being in bounds,
// plus the strategy's own cost guard.
func (r *Runner) entryViable(task *types.Task, legs *legPlan) bool {
	if !r.hedgeViable(legs) {
		return false
	}

	if task.Kind == types.TaskBuy {
		book, ok := r.cfg.Books.Get(types.VenuePolymarket, legs.polyToken)
		if !ok {
			return false
		}
		ask, ok := book.BestAsk()
		if !ok {
			return false
		}

		total := legs.predictPrice.Add(ask.Price)
		if legs.taker {
			return !total.GreaterThan(task.Params.MaxTotalCost)
		}
		if task.Params.MinProfitBuffer.IsPositive() {
			return !total.GreaterThan(decimal.NewFromInt(1).Sub(task.Params.MinProfitBuffer))
		}
	}
	return true
}

// hedgeViable reports whether the Polymarket touch is inside the bound.
func (r *Runner) hedgeViable(legs *legPlan) bool {
	_, ok := r.hedgePrice(legs)
	return ok
}

// hedgePrice returns the marketable hedge price: the touch clamped by the
// task bound. Out-of-bounds books yield no price.
func (r *Runner) hedgePrice(legs *legPlan) (decimal.Decimal, bool) {
	book, ok := r.cfg.Books.Get(types.VenuePolymarket, legs.polyToken)
	if !ok {
		return decimal.Decimal{}, false
	}

	if legs.side == types.SideBuy {
		ask, ok := book.BestAsk()
		if !ok || ask.Price.GreaterThan(legs.hedgeBound) {
			return decimal.Decimal{}, false
		}
		return ask.Price, true
	}

	bid, ok := book.BestBid()
	if !ok || bid.Price.LessThan(legs.hedgeBound) {
		return decimal.Decimal{}, false
	}
	return bid.Price, true
}

// predictTouch returns the Predict best bid (ask=false) or ask (ask=true).
func (r *Runner) predictTouch(legs *legPlan, ask bool) (decimal.Decimal, bool) {
	book, ok := r.cfg.Books.Get(types.VenuePredict, legs.predictToken)
	if !ok {
		return decimal.Decimal{}, false
	}
	if ask {
		level, ok := book.BestAsk()
		return level.Price, ok
	}
	level, ok := book.BestBid()
	return level.Price, ok
}

// placeWithRetry retries transient placement failures with backoff; fatal
// rejections surface immediately.
func (r *Runner) placeWithRetry(ctx context.Context, trader Trader, req OrderRequest) (*PlacedOrder, error) {
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < 4; attempt++ {
		placed, err := trader.Place(ctx, req)
		if err == nil {
			return placed, nil
		}
		if isFatalOrderError(err) {
			return nil, err
		}
		lastErr = err
		r.logger.Warn("order-placement-retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("placement retries exhausted: %w", lastErr)
}

// isFatalOrderError classifies placement failures. Signature, balance and
// tick rejections fail the task; transport and throttle errors retry.
func isFatalOrderError(err error) bool {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		return true
	}
	var aerr *types.AuthError
	if errors.As(err, &aerr) {
		// The auth layer already refreshed once before surfacing this.
		return true
	}
	var xerr *types.ExchangeError
	if errors.As(err, &xerr) {
		if xerr.Code == "" {
			return true
		}
		return types.IsFatalExchangeCode(xerr.Code)
	}
	return false
}

func (r *Runner) orderTimeout(task *types.Task) time.Duration {
	if task.OrderTimeout > 0 {
		return task.OrderTimeout
	}
	return r.cfg.OrderTimeout
}

func (r *Runner) snapshot(task *types.Task, legs *legPlan, sink Sink) {
	predictBook, _ := r.cfg.Books.Get(types.VenuePredict, legs.predictToken)
	polyBook, _ := r.cfg.Books.Get(types.VenuePolymarket, legs.polyToken)

	snap := types.BookSnapshot{
		TaskID:      task.ID,
		TimestampMs: time.Now().UnixMilli(),
		PredictBook: predictBook,
		PolyBook:    polyBook,
	}
	if polyBook != nil {
		if ask, ok := polyBook.BestAsk(); ok {
			snap.TotalCost = legs.predictPrice.Add(ask.Price)
			snap.Valid = true
		}
	}
	sink.Snapshot(snap)
}

func weightedAvg(avg, qty, price, add decimal.Decimal) decimal.Decimal {
	total := qty.Add(add)
	if !total.IsPositive() {
		return avg
	}
	return avg.Mul(qty).Add(price.Mul(add)).Div(total).Round(4)
}
