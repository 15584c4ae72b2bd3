// Package execution drives hedged two-leg order flow: one leg on each
// venue, fill confirmation raced across WS, on-chain and REST channels,
// with REST as the source of truth.
package execution

import (
	"context"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/venue/polymarket"
	"github.com/apri1one/predict-arb-sub004/internal/venue/predict"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OrderRequest is the venue-neutral order the runner issues.
type OrderRequest struct {
	TokenID    string
	Side       types.Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	FeeRateBps int64
	NegRisk    bool
	// YieldBearing selects the Predict yield-bearing exchange contract.
	YieldBearing bool
	// Taker requests marketable execution: FAK on Polymarket, an
	// aggressive limit on Predict.
	Taker bool
}

// PlacedOrder identifies a submitted order on its venue.
type PlacedOrder struct {
	OrderID   string
	OrderHash string
}

// Trader is one venue's order surface.
type Trader interface {
	Place(ctx context.Context, req OrderRequest) (*PlacedOrder, error)
	Cancel(ctx context.Context, orderID string) error
	Status(ctx context.Context, orderID string) (*types.OpenOrder, error)
}

// TerminalWatcher resolves an order's terminal event over a push channel.
// The report is a hint; the runner always confirms against REST.
type TerminalWatcher interface {
	Wait(ctx context.Context, placed *PlacedOrder, timeout time.Duration) (*types.OrderFinal, error)
}

// BookSource reads cached order books.
type BookSource interface {
	Get(venue types.Venue, assetID string) (*types.NormalizedOrderBook, bool)
}

// PredictGateway adapts the Predict signer, REST client and chain watcher.
type PredictGateway struct {
	Signer  *predict.Signer
	Client  *predict.Client
	Watcher *predict.ChainWatcher
}

func (g *PredictGateway) Place(ctx context.Context, req OrderRequest) (*PlacedOrder, error) {
	order, err := g.Signer.BuildOrder(predict.PredictOrderSpec{
		TokenID:      req.TokenID,
		Side:         req.Side,
		Price:        req.Price,
		Size:         req.Size,
		FeeRateBps:   req.FeeRateBps,
		NegRisk:      req.NegRisk,
		YieldBearing: req.YieldBearing,
	})
	if err != nil {
		return nil, err
	}

	signed, err := g.Signer.SignOrder(order, req.NegRisk, req.YieldBearing)
	if err != nil {
		return nil, err
	}

	resp, err := g.Client.PlaceOrder(ctx, signed)
	if err != nil {
		return nil, err
	}
	return &PlacedOrder{OrderID: resp.OrderID, OrderHash: resp.OrderHash}, nil
}

func (g *PredictGateway) Cancel(ctx context.Context, orderID string) error {
	return g.Client.CancelOrder(ctx, orderID)
}

func (g *PredictGateway) Status(ctx context.Context, orderID string) (*types.OpenOrder, error) {
	return g.Client.GetOrderStatus(ctx, orderID)
}

// Wait resolves through the on-chain OrderFilled watcher. The chain event
// only proves a fill happened; quantities come from REST.
func (g *PredictGateway) Wait(ctx context.Context, placed *PlacedOrder, timeout time.Duration) (*types.OrderFinal, error) {
	if g.Watcher == nil || placed.OrderHash == "" {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if _, err := g.Watcher.WatchOrder(ctx, common.HexToHash(placed.OrderHash), timeout); err != nil {
		return nil, err
	}
	return &types.OrderFinal{OrderID: placed.OrderID, Status: types.OrderFilled}, nil
}

// PolymarketGateway adapts the CLOB order builder, REST client and user WS.
type PolymarketGateway struct {
	Builder *polymarket.OrderBuilder
	Client  *polymarket.Client
	User    *polymarket.UserStream
}

func (g *PolymarketGateway) Place(ctx context.Context, req OrderRequest) (*PlacedOrder, error) {
	orderType := polymarket.OrderTypeGTC
	if req.Taker {
		orderType = polymarket.OrderTypeFAK
	}

	signed, err := g.Builder.Build(polymarket.OrderSpec{
		TokenID:    req.TokenID,
		Side:       req.Side,
		Price:      req.Price,
		Size:       req.Size,
		FeeRateBps: int(req.FeeRateBps),
		NegRisk:    req.NegRisk,
		Type:       orderType,
	})
	if err != nil {
		return nil, err
	}

	resp, err := g.Client.PlaceOrder(ctx, signed)
	if err != nil {
		return nil, err
	}
	return &PlacedOrder{OrderID: resp.OrderID}, nil
}

func (g *PolymarketGateway) Cancel(ctx context.Context, orderID string) error {
	return g.Client.CancelOrder(ctx, orderID)
}

func (g *PolymarketGateway) Status(ctx context.Context, orderID string) (*types.OpenOrder, error) {
	return g.Client.GetOrderStatus(ctx, orderID)
}

func (g *PolymarketGateway) Wait(ctx context.Context, placed *PlacedOrder, timeout time.Duration) (*types.OrderFinal, error) {
	if g.User == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.User.WaitForOrderFinal(ctx, placed.OrderID, timeout)
}
