package predict

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/circuitbreaker"
	"github.com/apri1one/predict-arb-sub004/pkg/keypool"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRESTClient(t *testing.T, serverURL string, keys []string) (*Client, *keypool.Pool) {
	t.Helper()

	pool, err := keypool.New(keys, time.Minute)
	require.NoError(t, err)

	breakers, err := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureLimit: 3,
		Cooldown:     time.Minute,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)

	c, err := NewClient(ClientConfig{
		BaseURL:        serverURL,
		ScanKeys:       pool,
		TradeKey:       "trade-key",
		RequestTimeout: 5 * time.Second,
		Breakers:       breakers,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	return c, pool
}

func TestScanKeysRotate(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"markets":[]}`))
	}))
	defer server.Close()

	c, _ := newTestRESTClient(t, server.URL, []string{"k1", "k2"})

	_, err := c.GetMarkets(context.Background(), "")
	require.NoError(t, err)
	_, err = c.GetMarkets(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"k1", "k2"}, seen)
}

func TestRateLimitCoolsScanKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, pool := newTestRESTClient(t, server.URL, []string{"k1", "k2"})

	_, err := c.GetMarkets(context.Background(), "")
	var rlErr *types.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "k1", rlErr.Key)
	assert.Equal(t, 1, pool.Size()-pool.Available())
}

func TestGetOrderBookNormalizesAndCaches(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/v1/orderbook", r.URL.Path)
		assert.Equal(t, "m1", r.URL.Query().Get("marketId"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"marketId": "m1",
			"tokenId": "tok-yes",
			"updatedAt": 1700000000500,
			"asks": [{"price":"0.62","quantity":"4"},{"price":"0.60","quantity":"9"}],
			"bids": [{"price":"0.55","quantity":"3"},{"price":"0.58","quantity":"6"}]
		}`))
	}))
	defer server.Close()

	c, _ := newTestRESTClient(t, server.URL, []string{"k1"})

	book, err := c.GetOrderBook(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, types.VenuePredict, book.Venue)
	assert.Equal(t, "tok-yes", book.AssetID)
	assert.Equal(t, int64(1700000000500), book.UpdateTimestampMs)
	assert.True(t, book.Asks[0].Price.Equal(decimal.RequireFromString("0.60")))
	assert.True(t, book.Bids[0].Price.Equal(decimal.RequireFromString("0.58")))

	// The 502 reply falls back to the cached book.
	again, err := c.GetOrderBook(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, book.UpdateTimestampMs, again.UpdateTimestampMs)
}

func TestGetPositionsGraphQL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"positions":[
			{"marketId":"m1","tokenId":"t1","outcomeName":"Yes","eventTitle":"Event A",
			 "shares":"25","avgEntryPrice":"0.44","markValue":"11.3"},
			{"marketId":"m2","tokenId":"t2","outcomeName":"Draw","eventTitle":"Event B",
			 "shares":"3","avgEntryPrice":"0.2","markValue":"0.5"}
		]}}`))
	}))
	defer server.Close()

	c, _ := newTestRESTClient(t, server.URL, []string{"k1"})

	positions, err := c.GetPositions(context.Background(), testSmartWallet)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, types.OutcomeYes, positions[0].Outcome)
	assert.True(t, positions[0].Shares.Equal(decimal.RequireFromString("25")))
	// Non-binary outcome names stay unknown rather than defaulting to YES.
	assert.Equal(t, types.OutcomeUnknown, positions[1].Outcome)
}

func TestMapPredictStatus(t *testing.T) {
	ten := decimal.RequireFromString("10")
	tests := []struct {
		status string
		filled string
		want   types.OrderStatus
	}{
		{"OPEN", "0", types.OrderLive},
		{"OPEN", "2", types.OrderPartiallyFilled},
		{"FILLED", "10", types.OrderFilled},
		{"CANCELLED", "1", types.OrderCancelled},
		{"EXPIRED", "0", types.OrderExpired},
		{"REJECTED", "0", types.OrderFailed},
		{"???", "10", types.OrderFilled},
		{"???", "0", types.OrderPending},
	}
	for _, tt := range tests {
		got := mapPredictStatus(tt.status, ten, decimal.RequireFromString(tt.filled))
		assert.Equal(t, tt.want, got, "status=%s filled=%s", tt.status, tt.filled)
	}
}

func TestOpenOrderOutcomeUnknown(t *testing.T) {
	raw := rawPredictOrder{
		OrderID:   "o1",
		OrderHash: "0xhash",
		MarketID:  "m1",
		TokenID:   "t1",
		Side:      "buy",
		Price:     "0.5",
		Quantity:  "10",
		Filled:    "0",
		Status:    "OPEN",
		CreatedAt: 1700000000000,
	}

	order, err := raw.toOpenOrder()
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUnknown, order.Outcome)
	assert.Equal(t, "0xhash", order.OrderHash)
	assert.Equal(t, types.SideBuy, order.Side)
}
