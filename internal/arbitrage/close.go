package arbitrage

import (
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
)

// CloseMetrics describes one style of matched-pair unwind.
type CloseMetrics struct {
	EstProfitPerShare decimal.Decimal `json:"est_profit_per_share"`
	MinPolyBid        decimal.Decimal `json:"min_poly_bid"`
	Valid             bool            `json:"valid"`
}

// CloseOpportunity carries both unwind styles for a matched pair.
type CloseOpportunity struct {
	TT CloseMetrics `json:"tt"` // taker on both legs
	MT CloseMetrics `json:"mt"` // maker on Predict, taker on Polymarket
}

// ComputeCloseTT evaluates a Taker-Taker unwind: hit the Predict bid (fee
// applies) and the Polymarket bid simultaneously. Valid when profitable and
// the Polymarket bid depth covers the requested quantity.
func ComputeCloseTT(predictBid, polyBid, polyBidDepth, entryCostPerShare, quantity decimal.Decimal, feeRateBps int64) CloseMetrics {
	fee := TakerFee(predictBid, feeRateBps)
	net := Round4(predictBid.Sub(fee))

	profit := Round4(net.Add(polyBid).Sub(entryCostPerShare))
	minPolyBid := Round4(entryCostPerShare.Sub(net))

	return CloseMetrics{
		EstProfitPerShare: profit,
		MinPolyBid:        minPolyBid,
		Valid:             profit.IsPositive() && polyBidDepth.GreaterThanOrEqual(quantity),
	}
}

// ComputeCloseMT evaluates a Maker-Taker unwind: rest a sell at the supplied
// Predict ask (no fee) and hit the Polymarket bid once it fills.
func ComputeCloseMT(predictAsk, polyBid, polyBidDepth, entryCostPerShare, quantity decimal.Decimal) CloseMetrics {
	profit := Round4(predictAsk.Add(polyBid).Sub(entryCostPerShare))
	minPolyBid := Round4(entryCostPerShare.Sub(predictAsk))

	return CloseMetrics{
		EstProfitPerShare: profit,
		MinPolyBid:        minPolyBid,
		Valid:             profit.IsPositive() && polyBidDepth.GreaterThanOrEqual(quantity),
	}
}

// ComputeClose evaluates both unwind styles for a matched pair given the
// current top of book on each venue. predictBook is the Predict book of the
// held outcome; polyBook the Polymarket book of the paired outcome.
// predictAsk is the operator-supplied M-T limit price; zero skips M-T.
func ComputeClose(pair *types.MatchedPair, predictBook, polyBook *types.NormalizedOrderBook, predictAsk decimal.Decimal) CloseOpportunity {
	var opp CloseOpportunity

	polyBid, polyOK := polyBook.BestBid()
	if !polyOK {
		return opp
	}

	if predictBid, ok := predictBook.BestBid(); ok {
		opp.TT = ComputeCloseTT(predictBid.Price, polyBid.Price, polyBid.Size,
			pair.EntryCostPerShare, pair.MatchedShares, pair.Mapping.FeeRateBps)
	}

	if predictAsk.IsPositive() {
		opp.MT = ComputeCloseMT(predictAsk, polyBid.Price, polyBid.Size,
			pair.EntryCostPerShare, pair.MatchedShares)
	}

	return opp
}
