package execution

import (
	"context"
	"errors"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"go.uber.org/zap"
)

// ErrWatchTimeout marks an order that reached no terminal status inside the
// watch window. The returned order carries the last REST read so callers
// can reconcile partial fills before unwinding.
var ErrWatchTimeout = errors.New("order watch timeout")

// confirmAttempts bounds the quick REST reads done after a push signal.
const confirmAttempts = 5

// awaitTerminal blocks until the order reaches a terminal status. Push
// channels (venue user WS, on-chain watcher) race a REST poll; any push
// signal triggers an authoritative REST read. REST always wins: a push
// report REST disagrees with is logged and dropped.
func (r *Runner) awaitTerminal(ctx context.Context, trader Trader, watcher TerminalWatcher, placed *PlacedOrder, timeout time.Duration) (*types.OpenOrder, error) {
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	signals := make(chan types.OrderFinal, 1)
	if watcher != nil {
		go func() {
			final, err := watcher.Wait(watchCtx, placed, timeout)
			if err != nil || final == nil {
				return
			}
			select {
			case signals <- *final:
			default:
			}
		}()
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	var last *types.OpenOrder
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()

		case <-deadline.C:
			// Reconcile once more before giving up.
			if order, err := trader.Status(ctx, placed.OrderID); err == nil {
				last = order
				if order.Status.IsTerminal() {
					return order, nil
				}
			}
			return last, ErrWatchTimeout

		case final := <-signals:
			order := r.confirm(ctx, trader, placed.OrderID, final.Status)
			if order != nil {
				return order, nil
			}

		case <-poll.C:
			order, err := trader.Status(ctx, placed.OrderID)
			if err != nil {
				r.logger.Debug("order-poll-failed",
					zap.String("order-id", placed.OrderID), zap.Error(err))
				continue
			}
			last = order
			if order.Status.IsTerminal() {
				return order, nil
			}
		}
	}
}

// confirm reads REST after a push signal. REST may lag the push by a
// moment, so a few quick reads are attempted before falling back to the
// regular poll loop.
func (r *Runner) confirm(ctx context.Context, trader Trader, orderID string, wsStatus types.OrderStatus) *types.OpenOrder {
	for attempt := 0; attempt < confirmAttempts; attempt++ {
		order, err := trader.Status(ctx, orderID)
		if err == nil && order.Status.IsTerminal() {
			if order.Status != wsStatus {
				mismatch := &types.StateMismatchError{
					OrderID: orderID, WSStatus: wsStatus, RESTStatus: order.Status,
				}
				r.logger.Info("order-state-mismatch", zap.Error(mismatch))
				StateMismatchesTotal.Inc()
			}
			return order
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}

	r.logger.Info("push-signal-unconfirmed-by-rest",
		zap.String("order-id", orderID), zap.String("ws-status", string(wsStatus)))
	return nil
}
