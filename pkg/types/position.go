package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one venue's holding in one outcome of one market.
// Positions are read models: they are only mutated by reconciliation reads.
type Position struct {
	Venue         Venue           `json:"venue"`
	MarketID      string          `json:"market_id"`
	TokenID       string          `json:"token_id"`
	EventTitle    string          `json:"event_title"`
	Outcome       Outcome         `json:"outcome"`
	Shares        decimal.Decimal `json:"shares"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	MarkValue     decimal.Decimal `json:"mark_value"`
}

// UnmatchedReason classifies position shares that could not be paired.
type UnmatchedReason string

const (
	UnmatchedNoMapping         UnmatchedReason = "no_mapping"
	UnmatchedNoCounterpart     UnmatchedReason = "no_counterpart"
	UnmatchedDirectionMismatch UnmatchedReason = "direction_mismatch"
)

// MatchedPair references two opposing positions forming a delta-neutral
// pair. Recomputed on every reconciliation tick, never stored.
type MatchedPair struct {
	Mapping           *MarketMapping  `json:"mapping"`
	Predict           Position        `json:"predict"`
	Polymarket        Position        `json:"polymarket"`
	MatchedShares     decimal.Decimal `json:"matched_shares"`
	EntryCostPerShare decimal.Decimal `json:"entry_cost_per_share"`
}

// UnmatchedPosition is a position (or residual) with no delta-neutral pair.
type UnmatchedPosition struct {
	Position Position        `json:"position"`
	Shares   decimal.Decimal `json:"shares"`
	Reason   UnmatchedReason `json:"reason"`
}

// PositionReport is the result of one reconciliation pass. AsOf exposes the
// staleness of the underlying reads; cached replies keep their old AsOf.
type PositionReport struct {
	Pairs     []MatchedPair       `json:"pairs"`
	Unmatched []UnmatchedPosition `json:"unmatched"`
	AsOf      time.Time           `json:"as_of"`
	Stale     bool                `json:"stale"`
}
