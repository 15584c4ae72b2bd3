package polymarket

import (
	"context"
	"testing"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestUserStream(t *testing.T) *UserStream {
	t.Helper()

	s, err := NewUserStream(UserStreamConfig{
		URL:         "wss://example.invalid/ws/user",
		Credentials: Credentials{APIKey: "k", Secret: refSecretStd, Passphrase: "p"},
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return s
}

func TestWaitForOrderFinalFromLiveEvent(t *testing.T) {
	s := newTestUserStream(t)

	done := make(chan struct{})
	var final *types.OrderFinal
	var waitErr error
	go func() {
		defer close(done)
		final, waitErr = s.WaitForOrderFinal(context.Background(), "0xabc", 5*time.Second)
	}()

	// Let the waiter register before the event lands.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.waiters["0xabc"]) == 1
	}, time.Second, 5*time.Millisecond)

	s.handleFrame([]byte(`{"event_type":"order","id":"0xabc","asset_id":"a1",
		"status":"MATCHED","price":"0.45","size_matched":"10","original_size":"10"}`))

	<-done
	require.NoError(t, waitErr)
	assert.Equal(t, types.OrderFilled, final.Status)
	assert.True(t, final.FilledQty.Equal(decimal.RequireFromString("10")))
}

func TestWaitForOrderFinalFromRecentCache(t *testing.T) {
	s := newTestUserStream(t)

	// Terminal event arrives before anyone waits (fast IOC fill).
	s.handleFrame([]byte(`{"event_type":"order","id":"0xfast","asset_id":"a1",
		"status":"CANCELED","price":"0.45","size_matched":"3","original_size":"10"}`))

	final, err := s.WaitForOrderFinal(context.Background(), "0xfast", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.OrderCancelled, final.Status)
	assert.True(t, final.FilledQty.Equal(decimal.RequireFromString("3")))
}

func TestWaitForOrderFinalTimeoutUnregisters(t *testing.T) {
	s := newTestUserStream(t)

	_, err := s.WaitForOrderFinal(context.Background(), "0xnever", 10*time.Millisecond)
	require.Error(t, err)

	s.mu.Lock()
	_, registered := s.waiters["0xnever"]
	s.mu.Unlock()
	assert.False(t, registered, "expired waiter must be unregistered")
}

func TestWaitForOrderFinalContextCancel(t *testing.T) {
	s := newTestUserStream(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.WaitForOrderFinal(ctx, "0xctx", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNonTerminalOrderEventDoesNotRelease(t *testing.T) {
	s := newTestUserStream(t)

	var events []OrderEvent
	s.AddOrderEventListener(func(ev OrderEvent) {
		events = append(events, ev)
	})

	s.handleFrame([]byte(`{"event_type":"order","id":"0xlive","asset_id":"a1",
		"status":"LIVE","price":"0.45","size_matched":"4","original_size":"10"}`))

	require.Len(t, events, 1)
	assert.Equal(t, types.OrderPartiallyFilled, events[0].Status)

	// A LIVE partial fill is not terminal; waiters stay blocked.
	_, err := s.WaitForOrderFinal(context.Background(), "0xlive", 10*time.Millisecond)
	assert.Error(t, err)
}

func TestTradeEventFanOut(t *testing.T) {
	s := newTestUserStream(t)

	var trades []UserTradeEvent
	id := s.AddTradeEventListener(func(ev UserTradeEvent) {
		trades = append(trades, ev)
	})

	s.handleFrame([]byte(`{"event_type":"trade","id":"t1","taker_order_id":"0xtaker",
		"asset_id":"a1","side":"buy","price":"0.52","size":"7","status":"MATCHED",
		"maker_orders":[{"order_id":"0xm1"},{"order_id":"0xm2"}]}`))

	require.Len(t, trades, 1)
	assert.Equal(t, "0xtaker", trades[0].TakerOrderID)
	assert.Equal(t, types.SideBuy, trades[0].Side)
	assert.Equal(t, []string{"0xm1", "0xm2"}, trades[0].MakerOrders)

	s.RemoveListener(id)
	s.handleFrame([]byte(`{"event_type":"trade","id":"t2","taker_order_id":"0xtaker",
		"asset_id":"a1","side":"sell","price":"0.5","size":"1","status":"MATCHED"}`))
	assert.Len(t, trades, 1)
}

func TestTradeEventResolvesTakerWaiter(t *testing.T) {
	s := newTestUserStream(t)

	done := make(chan struct{})
	var final *types.OrderFinal
	var waitErr error
	go func() {
		defer close(done)
		final, waitErr = s.WaitForOrderFinal(context.Background(), "0xioc", 5*time.Second)
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.waiters["0xioc"]) == 1
	}, time.Second, 5*time.Millisecond)

	// No order event: the fill is reported only through the trade channel.
	s.handleFrame([]byte(`{"event_type":"trade","id":"t1","taker_order_id":"0xioc",
		"asset_id":"a1","side":"buy","price":"0.52","size":"7","status":"MATCHED"}`))

	<-done
	require.NoError(t, waitErr)
	assert.Equal(t, types.OrderFilled, final.Status)
	assert.True(t, final.FilledQty.Equal(decimal.RequireFromString("7")))
	assert.True(t, final.AvgPrice.Equal(decimal.RequireFromString("0.52")))
}

func TestTradeEventCachedForLateWaiter(t *testing.T) {
	s := newTestUserStream(t)

	// Fast IOC: the trade lands before the place response returns, so the
	// waiter registers after the fact.
	s.handleFrame([]byte(`{"event_type":"trade","id":"t1","taker_order_id":"0xfastioc",
		"asset_id":"a1","side":"buy","price":"0.52","size":"7","status":"MATCHED"}`))

	final, err := s.WaitForOrderFinal(context.Background(), "0xfastioc", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.OrderFilled, final.Status)
	assert.True(t, final.FilledQty.Equal(decimal.RequireFromString("7")))

	// Trades without a taker id resolve nothing.
	s.handleFrame([]byte(`{"event_type":"trade","id":"t2",
		"asset_id":"a1","side":"sell","price":"0.5","size":"1","status":"MATCHED"}`))
	_, err = s.WaitForOrderFinal(context.Background(), "", 10*time.Millisecond)
	assert.Error(t, err)
}

func TestRecentEventExpiry(t *testing.T) {
	s := newTestUserStream(t)

	base := time.Now()
	s.now = func() time.Time { return base }

	s.handleFrame([]byte(`{"event_type":"order","id":"0xold","asset_id":"a1",
		"status":"MATCHED","price":"0.45","size_matched":"10","original_size":"10"}`))

	// Inside the TTL the cached event answers immediately.
	s.now = func() time.Time { return base.Add(30 * time.Second) }
	final, err := s.WaitForOrderFinal(context.Background(), "0xold", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.OrderFilled, final.Status)

	// Past the TTL the cache no longer answers.
	s.now = func() time.Time { return base.Add(2 * recentEventTTL) }
	_, err = s.WaitForOrderFinal(context.Background(), "0xold", 10*time.Millisecond)
	assert.Error(t, err)
}
