package arbitrage

import (
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
)

// BuyArb is the result of evaluating one arb side (YES or NO) of a market
// pair for an opening trade: a Predict leg plus a Polymarket hedge at its
// ask.
type BuyArb struct {
	ArbSide types.Outcome

	// Maker: rest at the Predict bid, hedge at the Polymarket ask.
	MakerCost     decimal.Decimal
	MakerFeasible bool
	MakerMaxQty   decimal.Decimal
	MakerProfit   decimal.Decimal // per share, before the points reward

	// Taker: cross the Predict ask (fee applies), hedge at the Polymarket ask.
	TakerCost     decimal.Decimal
	TakerFee      decimal.Decimal
	TakerFeasible bool
	TakerMaxQty   decimal.Decimal
	TakerProfit   decimal.Decimal
}

// ComputeBuyArb evaluates one arb side. predictBook and polyBook must both
// already be views of the traded outcomes: the Predict book of the arb-side
// outcome and the Polymarket book of the hedging (complementary) outcome.
// maxPosition caps quantities; pass zero for unbounded.
func ComputeBuyArb(arbSide types.Outcome, predictBook, polyBook *types.NormalizedOrderBook, feeRateBps int64, maxPosition decimal.Decimal) BuyArb {
	result := BuyArb{ArbSide: arbSide}

	polyAsk, polyOK := polyBook.BestAsk()
	if !polyOK {
		return result
	}

	// Maker leg: Predict bid + Polymarket ask. Cost exactly 1 is feasible,
	// the maker rebate/points reward keeps it positive.
	if predictBid, ok := predictBook.BestBid(); ok {
		cost := Round4(predictBid.Price.Add(polyAsk.Price))
		result.MakerCost = cost
		if cost.LessThanOrEqual(one.Add(Epsilon)) {
			result.MakerFeasible = true
			result.MakerMaxQty = capQty(polyAsk.Size, maxPosition)
			result.MakerProfit = Round4(one.Sub(cost))
		}
	}

	// Taker leg: Predict ask + fee + Polymarket ask. Strictly below 1.
	if predictAsk, ok := predictBook.BestAsk(); ok {
		fee := TakerFee(predictAsk.Price, feeRateBps)
		cost := Round4(predictAsk.Price.Add(polyAsk.Price).Add(fee))
		result.TakerCost = cost
		result.TakerFee = fee
		if cost.LessThan(one.Sub(Epsilon)) {
			result.TakerFeasible = true
			qty := decimal.Min(predictAsk.Size, polyAsk.Size)
			result.TakerMaxQty = capQty(qty, maxPosition)
			result.TakerProfit = Round4(one.Sub(cost))
		}
	}

	return result
}

// ComputeBothSides evaluates the YES and NO arb sides of a mapped pair.
// predictYes and polyYes are the venues' native YES books; complementary
// views are synthesized by price inversion. isInverted flips which
// Polymarket outcome hedges each Predict side.
func ComputeBothSides(predictYes, polyYes *types.NormalizedOrderBook, mapping *types.MarketMapping, maxPosition decimal.Decimal) (yes BuyArb, no BuyArb) {
	polyNo := polyYes.Inverted()
	predictNo := predictYes.Inverted()

	yesHedge, noHedge := polyNo, polyYes
	if mapping.IsInverted {
		yesHedge, noHedge = polyYes, polyNo
	}

	yes = ComputeBuyArb(types.OutcomeYes, predictYes, yesHedge, mapping.FeeRateBps, maxPosition)
	no = ComputeBuyArb(types.OutcomeNo, predictNo, noHedge, mapping.FeeRateBps, maxPosition)
	return yes, no
}

// CumulativeDepth walks one side of a book from the top until price moves
// more than maxSlippagePct away from the best level, returning total
// quantity and the size-weighted average price.
func CumulativeDepth(levels []types.BookLevel, maxSlippagePct decimal.Decimal) (totalQty, avgPrice decimal.Decimal) {
	if len(levels) == 0 {
		return decimal.Zero, decimal.Zero
	}

	best := levels[0].Price
	band := best.Mul(maxSlippagePct.Div(decimal.NewFromInt(100)))

	notional := decimal.Zero
	for _, lvl := range levels {
		if lvl.Price.Sub(best).Abs().GreaterThan(band) {
			break
		}
		totalQty = totalQty.Add(lvl.Size)
		notional = notional.Add(lvl.Price.Mul(lvl.Size))
	}

	if totalQty.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return totalQty, Round4(notional.Div(totalQty))
}

func capQty(qty, maxPosition decimal.Decimal) decimal.Decimal {
	if maxPosition.IsPositive() && maxPosition.LessThan(qty) {
		return maxPosition
	}
	return qty
}
