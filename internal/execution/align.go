package execution

import (
	"github.com/shopspring/decimal"
)

// shareGranularity is the smallest tradable share increment on either venue.
var shareGranularity = decimal.RequireFromString("0.01")

// AlignQuantity floors a share quantity to 0.01 granularity.
func AlignQuantity(q decimal.Decimal) decimal.Decimal {
	if q.IsNegative() {
		return decimal.Zero
	}
	return q.Div(shareGranularity).Floor().Mul(shareGranularity)
}

// AlignPrice snaps a price onto the market's tick grid. Buy prices round
// down, sell prices round up, so alignment never crosses the caller's limit.
func AlignPrice(p, tickSize decimal.Decimal, roundUp bool) decimal.Decimal {
	if tickSize.IsZero() || tickSize.IsNegative() {
		return p
	}
	ticks := p.Div(tickSize)
	if roundUp {
		ticks = ticks.Ceil()
	} else {
		ticks = ticks.Floor()
	}
	return ticks.Mul(tickSize)
}
