package types

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BookLevel is a single (price, size) level of one side of a book.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// NormalizedOrderBook is the venue-neutral view of one asset's book.
// Asks are sorted ascending, bids descending. All prices are in (0,1).
type NormalizedOrderBook struct {
	Venue             Venue           `json:"venue"`
	MarketID          string          `json:"market_id"`
	AssetID           string          `json:"asset_id"`
	UpdateTimestampMs int64           `json:"update_timestamp_ms"`
	Asks              []BookLevel     `json:"asks"`
	Bids              []BookLevel     `json:"bids"`
	MinOrderSize      decimal.Decimal `json:"min_order_size"`
	TickSize          decimal.Decimal `json:"tick_size"`
	NegRisk           bool            `json:"neg_risk"`
}

// BestAsk returns the lowest ask, or false when the side is empty.
func (b *NormalizedOrderBook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// BestBid returns the highest bid, or false when the side is empty.
func (b *NormalizedOrderBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// Clone returns a deep copy so readers never alias cache-owned slices.
func (b *NormalizedOrderBook) Clone() *NormalizedOrderBook {
	cp := *b
	cp.Asks = append([]BookLevel(nil), b.Asks...)
	cp.Bids = append([]BookLevel(nil), b.Bids...)
	return &cp
}

// Inverted synthesizes the complementary-outcome view of the book:
// every price p becomes 1-p, bids become asks and vice versa, sizes are
// preserved. Sorting is restored for the swapped sides.
func (b *NormalizedOrderBook) Inverted() *NormalizedOrderBook {
	one := decimal.NewFromInt(1)

	invert := func(levels []BookLevel) []BookLevel {
		out := make([]BookLevel, 0, len(levels))
		for _, lvl := range levels {
			out = append(out, BookLevel{Price: one.Sub(lvl.Price), Size: lvl.Size})
		}
		return out
	}

	cp := *b
	cp.Asks = invert(b.Bids) // YES bids -> NO asks
	cp.Bids = invert(b.Asks) // YES asks -> NO bids
	SortLevels(cp.Asks, true)
	SortLevels(cp.Bids, false)
	return &cp
}

// SortLevels sorts price levels in place, ascending for asks and
// descending for bids.
func SortLevels(levels []BookLevel, ascending bool) {
	sort.SliceStable(levels, func(i, j int) bool {
		if ascending {
			return levels[i].Price.LessThan(levels[j].Price)
		}
		return levels[i].Price.GreaterThan(levels[j].Price)
	})
}
