package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MarketMapping pairs a Predict market with its Polymarket counterpart.
// Exactly one token per venue is the YES token; the NO side is always
// derivable by price inversion.
type MarketMapping struct {
	PredictMarketID       string          `json:"predict_market_id"`
	PolymarketConditionID string          `json:"polymarket_condition_id"`
	PredictYesTokenID     string          `json:"predict_yes_token_id"`
	PredictNoTokenID      string          `json:"predict_no_token_id"`
	PolymarketYesTokenID  string          `json:"polymarket_yes_token_id"`
	PolymarketNoTokenID   string          `json:"polymarket_no_token_id"`
	// IsInverted is true when YES on Predict corresponds to NO on Polymarket.
	IsInverted bool            `json:"is_inverted"`
	NegRisk    bool            `json:"neg_risk"`
	TickSize   decimal.Decimal `json:"tick_size"`
	FeeRateBps int64           `json:"fee_rate_bps"`
	EventTitle string          `json:"event_title"`
}

// PolymarketOutcomeFor translates an arb side expressed in Predict outcomes
// into the Polymarket outcome that hedges it.
func (m *MarketMapping) PolymarketOutcomeFor(arbSide Outcome) Outcome {
	if arbSide == OutcomeUnknown {
		return OutcomeUnknown
	}
	// The hedge leg buys the complement of the Predict leg. Inversion flips
	// which Polymarket token that complement lives on.
	hedge := arbSide.Opposite()
	if m.IsInverted {
		hedge = hedge.Opposite()
	}
	return hedge
}

// PolymarketTokenFor returns the Polymarket token id for an outcome.
func (m *MarketMapping) PolymarketTokenFor(outcome Outcome) (string, error) {
	switch outcome {
	case OutcomeYes:
		return m.PolymarketYesTokenID, nil
	case OutcomeNo:
		return m.PolymarketNoTokenID, nil
	default:
		return "", fmt.Errorf("no polymarket token for outcome %q", outcome)
	}
}

// PredictTokenFor returns the Predict token id for an outcome.
func (m *MarketMapping) PredictTokenFor(outcome Outcome) (string, error) {
	switch outcome {
	case OutcomeYes:
		return m.PredictYesTokenID, nil
	case OutcomeNo:
		return m.PredictNoTokenID, nil
	default:
		return "", fmt.Errorf("no predict token for outcome %q", outcome)
	}
}

// OutcomeForToken derives the outcome of a token id on either venue.
// Returns OutcomeUnknown for token ids that do not belong to the mapping.
func (m *MarketMapping) OutcomeForToken(tokenID string) Outcome {
	switch tokenID {
	case m.PredictYesTokenID, m.PolymarketYesTokenID:
		return OutcomeYes
	case m.PredictNoTokenID, m.PolymarketNoTokenID:
		return OutcomeNo
	default:
		return OutcomeUnknown
	}
}
