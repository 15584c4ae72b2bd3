// Package markets warms per-token trading metadata (tick size, minimum
// order size, negRisk) from both venues' REST APIs into the orderbook
// cache, so sizing and price alignment never block on a network fetch.
package markets

import (
	"context"
	"fmt"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/orderbook"
	"github.com/apri1one/predict-arb-sub004/internal/venue/polymarket"
	"github.com/apri1one/predict-arb-sub004/internal/venue/predict"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PredictSource lists Predict market metadata.
type PredictSource interface {
	GetMarkets(ctx context.Context, status string) ([]predict.Market, error)
}

// PolymarketSource reads CLOB metadata for one condition.
type PolymarketSource interface {
	GetMarket(ctx context.Context, conditionID string) (*polymarket.MarketInfo, error)
}

var (
	defaultTickSize     = decimal.RequireFromString("0.01")
	defaultMinOrderSize = decimal.RequireFromString("5")
)

// Fetcher resolves orderbook metadata for venue tokens.
type Fetcher struct {
	predict    PredictSource
	polymarket PolymarketSource
	logger     *zap.Logger
}

// NewFetcher creates a metadata fetcher over both venue REST clients.
func NewFetcher(pred PredictSource, poly PolymarketSource, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{predict: pred, polymarket: poly, logger: logger}
}

// PredictMetadata fetches metadata for all open Predict markets, keyed by
// market id. Both outcome tokens of a market share the same constraints.
func (f *Fetcher) PredictMetadata(ctx context.Context) (map[string]orderbook.Metadata, error) {
	start := time.Now()
	defer func() {
		MetadataFetchDuration.Observe(time.Since(start).Seconds())
	}()

	markets, err := f.predict.GetMarkets(ctx, "OPEN")
	if err != nil {
		MetadataFetchErrorsTotal.Inc()
		return nil, fmt.Errorf("list predict markets: %w", err)
	}

	out := make(map[string]orderbook.Metadata, len(markets))
	for i := range markets {
		out[markets[i].MarketID] = predictMetadata(&markets[i])
	}
	return out, nil
}

// PolymarketMetadata fetches metadata for one CLOB condition.
func (f *Fetcher) PolymarketMetadata(ctx context.Context, conditionID string) (orderbook.Metadata, error) {
	start := time.Now()
	defer func() {
		MetadataFetchDuration.Observe(time.Since(start).Seconds())
	}()

	info, err := f.polymarket.GetMarket(ctx, conditionID)
	if err != nil {
		MetadataFetchErrorsTotal.Inc()
		return orderbook.Metadata{}, fmt.Errorf("fetch condition %s: %w", conditionID, err)
	}

	meta := orderbook.Metadata{
		TickSize:     info.TickSize,
		MinOrderSize: info.MinOrderSize,
		NegRisk:      info.NegRisk,
	}
	if !meta.TickSize.IsPositive() {
		meta.TickSize = defaultTickSize
	}
	if !meta.MinOrderSize.IsPositive() {
		// The CLOB omits the field on some markets; 5 shares is its floor.
		meta.MinOrderSize = defaultMinOrderSize
	}
	return meta, nil
}

func predictMetadata(market *predict.Market) orderbook.Metadata {
	meta := orderbook.Metadata{NegRisk: market.NegRisk}

	tick, err := decimal.NewFromString(market.TickSize)
	if err != nil || !tick.IsPositive() {
		tick = defaultTickSize
	}
	meta.TickSize = tick

	if market.MinOrderSize != "" {
		if min, err := decimal.NewFromString(market.MinOrderSize); err == nil && min.IsPositive() {
			meta.MinOrderSize = min
		}
	}
	return meta
}
