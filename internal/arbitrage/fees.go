// Package arbitrage computes two-leg arbitrage and close opportunities over
// normalized binary-outcome books. All price arithmetic is fixed-point
// decimal with 4-dp intermediate rounding; never binary-float equality.
package arbitrage

import "github.com/shopspring/decimal"

var (
	one = decimal.NewFromInt(1)

	// Epsilon is the boundary tolerance for cost comparisons.
	Epsilon = decimal.New(1, -4) // 1e-4

	// feeRebate: Predict refunds 10% of the taker fee.
	feeRebate = decimal.RequireFromString("0.9")

	tenThousand = decimal.NewFromInt(10000)
)

// Round4 applies the 4-decimal intermediate rounding used throughout.
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}

// TakerFee is the Predict per-share taker fee:
// (bps/10000) * min(p, 1-p) * (1 - 10% rebate). Maker orders pay no fee.
func TakerFee(price decimal.Decimal, feeRateBps int64) decimal.Decimal {
	if feeRateBps <= 0 {
		return decimal.Zero
	}

	edge := price
	if comp := one.Sub(price); comp.LessThan(edge) {
		edge = comp
	}

	rate := decimal.NewFromInt(feeRateBps).Div(tenThousand)
	return Round4(rate.Mul(edge).Mul(feeRebate))
}
