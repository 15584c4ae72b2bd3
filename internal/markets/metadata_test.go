package markets

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/apri1one/predict-arb-sub004/internal/venue/polymarket"
	"github.com/apri1one/predict-arb-sub004/internal/venue/predict"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePredict struct {
	mu      sync.Mutex
	markets []predict.Market
	err     error
	calls   int
}

func (f *fakePredict) GetMarkets(_ context.Context, _ string) ([]predict.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.markets, f.err
}

type fakePolymarket struct {
	mu    sync.Mutex
	infos map[string]*polymarket.MarketInfo
	err   error
}

func (f *fakePolymarket) GetMarket(_ context.Context, conditionID string) (*polymarket.MarketInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.infos[conditionID]
	if !ok {
		return nil, fmt.Errorf("unknown condition %s", conditionID)
	}
	return info, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPredictMetadata(t *testing.T) {
	pred := &fakePredict{markets: []predict.Market{
		{MarketID: "m1", TickSize: "0.01", MinOrderSize: "1", NegRisk: true},
		{MarketID: "m2", TickSize: "bogus"},
	}}
	f := NewFetcher(pred, nil, zap.NewNop())

	got, err := f.PredictMetadata(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, got["m1"].TickSize.Equal(dec("0.01")))
	assert.True(t, got["m1"].MinOrderSize.Equal(dec("1")))
	assert.True(t, got["m1"].NegRisk)

	// Unparseable tick falls back to 0.01; missing min order stays zero.
	assert.True(t, got["m2"].TickSize.Equal(dec("0.01")))
	assert.True(t, got["m2"].MinOrderSize.IsZero())
}

func TestPredictMetadataError(t *testing.T) {
	pred := &fakePredict{err: fmt.Errorf("boom")}
	f := NewFetcher(pred, nil, zap.NewNop())

	_, err := f.PredictMetadata(context.Background())
	require.Error(t, err)
}

func TestPolymarketMetadata(t *testing.T) {
	poly := &fakePolymarket{infos: map[string]*polymarket.MarketInfo{
		"c1": {
			ConditionID:  "c1",
			TickSize:     dec("0.001"),
			MinOrderSize: dec("5"),
			NegRisk:      true,
		},
		"c2": {ConditionID: "c2"},
	}}
	f := NewFetcher(nil, poly, zap.NewNop())

	got, err := f.PolymarketMetadata(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, got.TickSize.Equal(dec("0.001")))
	assert.True(t, got.MinOrderSize.Equal(dec("5")))
	assert.True(t, got.NegRisk)

	// Zero-valued fields take the CLOB defaults.
	got, err = f.PolymarketMetadata(context.Background(), "c2")
	require.NoError(t, err)
	assert.True(t, got.TickSize.Equal(dec("0.01")))
	assert.True(t, got.MinOrderSize.Equal(dec("5")))

	_, err = f.PolymarketMetadata(context.Background(), "missing")
	require.Error(t, err)
}
