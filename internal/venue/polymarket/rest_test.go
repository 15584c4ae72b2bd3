package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/circuitbreaker"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()

	breakers, err := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureLimit: 3,
		Cooldown:     time.Minute,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)

	c, err := NewClient(ClientConfig{
		CLOBURL:        serverURL,
		DataAPIURL:     serverURL,
		Credentials:    Credentials{APIKey: "k", Secret: refSecretStd, Passphrase: "p", Address: "0x1"},
		RequestTimeout: 5 * time.Second,
		Breakers:       breakers,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func TestGetOrderBookNormalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "777", r.URL.Query().Get("token_id"))
		w.Header().Set("Content-Type", "application/json")
		// Bids and asks arrive unsorted.
		_, _ = w.Write([]byte(`{
			"market": "0xcond",
			"asset_id": "777",
			"timestamp": "1700000000123",
			"bids": [{"price":"0.40","size":"10"},{"price":"0.45","size":"5"}],
			"asks": [{"price":"0.55","size":"7"},{"price":"0.50","size":"3"}]
		}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	book, err := c.GetOrderBook(context.Background(), "777")
	require.NoError(t, err)

	assert.Equal(t, types.VenuePolymarket, book.Venue)
	assert.Equal(t, "0xcond", book.MarketID)
	assert.Equal(t, int64(1700000000123), book.UpdateTimestampMs)

	// Asks ascending, bids descending.
	require.Len(t, book.Asks, 2)
	assert.True(t, book.Asks[0].Price.Equal(decimal.RequireFromString("0.50")))
	require.Len(t, book.Bids, 2)
	assert.True(t, book.Bids[0].Price.Equal(decimal.RequireFromString("0.45")))
}

func TestGetOrderBookServesCacheDuringCooldown(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"market":"m","asset_id":"9","timestamp":"1000","bids":[],"asks":[{"price":"0.5","size":"1"}]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	first, err := c.GetOrderBook(context.Background(), "9")
	require.NoError(t, err)

	// Second call fails; the cached book is served instead.
	second, err := c.GetOrderBook(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, first.UpdateTimestampMs, second.UpdateTimestampMs)

	// Breaker now cooling down; no live request is attempted.
	third, err := c.GetOrderBook(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, first.UpdateTimestampMs, third.UpdateTimestampMs)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetPositionsMapsOutcomes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "0xproxy", r.URL.Query().Get("user"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"asset":"t1","conditionId":"c1","title":"Event A","outcome":"Yes","size":12.5,"avgPrice":0.47,"currentValue":6.1},
			{"asset":"t2","conditionId":"c1","title":"Event A","outcome":"No","size":3,"avgPrice":0.5,"currentValue":1.4}
		]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	positions, err := c.GetPositions(context.Background(), "0xproxy")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, types.OutcomeYes, positions[0].Outcome)
	assert.True(t, positions[0].Shares.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, types.OutcomeNo, positions[1].Outcome)
}

func TestRestErrorTaxonomy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("token_id") {
		case "throttled":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`not found`))
		}
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).GetOrderBook(context.Background(), "throttled")
	var rlErr *types.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, types.VenuePolymarket, rlErr.Venue)

	// Fresh client: the first failure put the previous one's breaker into
	// cooldown.
	_, err = newTestClient(t, server.URL).GetOrderBook(context.Background(), "missing")
	var httpErr *types.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
}

func TestMapOrderStatus(t *testing.T) {
	ten := decimal.RequireFromString("10")
	tests := []struct {
		status  string
		matched string
		want    types.OrderStatus
	}{
		{"LIVE", "0", types.OrderLive},
		{"LIVE", "4", types.OrderPartiallyFilled},
		{"MATCHED", "10", types.OrderFilled},
		{"CANCELED", "0", types.OrderCancelled},
		{"CANCELLED", "3", types.OrderCancelled},
		{"EXPIRED", "0", types.OrderExpired},
		{"DELAYED", "0", types.OrderLive},
		{"weird", "10", types.OrderFilled},
		{"weird", "0", types.OrderPending},
	}
	for _, tt := range tests {
		got := mapOrderStatus(tt.status, ten, decimal.RequireFromString(tt.matched))
		assert.Equal(t, tt.want, got, "status=%s matched=%s", tt.status, tt.matched)
	}
}

func TestRawOrderToOpenOrder(t *testing.T) {
	raw := rawOrder{
		ID:           "0xorder",
		Market:       "0xcond",
		AssetID:      "55",
		Side:         "buy",
		Price:        "0.47",
		OriginalSize: "100",
		SizeMatched:  "40",
		Status:       "LIVE",
		Outcome:      "yes",
		CreatedAt:    1700000000,
	}

	order, err := raw.toOpenOrder()
	require.NoError(t, err)

	assert.Equal(t, types.SideBuy, order.Side)
	assert.Equal(t, types.OutcomeYes, order.Outcome)
	assert.Equal(t, types.OrderPartiallyFilled, order.Status)
	assert.True(t, order.Remaining().Equal(decimal.RequireFromString("60")))
}

func TestParseLooseDecimal(t *testing.T) {
	assert.True(t, parseLooseDecimal([]byte(`"0.01"`)).Equal(decimal.RequireFromString("0.01")))
	assert.True(t, parseLooseDecimal([]byte(`0.01`)).Equal(decimal.RequireFromString("0.01")))
	assert.True(t, parseLooseDecimal(nil).IsZero())
	assert.True(t, parseLooseDecimal([]byte(`"abc"`)).IsZero())
}
