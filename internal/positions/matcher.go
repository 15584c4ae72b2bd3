package positions

import (
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
)

// Match pairs the two venues' positions through the market mappings.
// Shares that cannot be paired come back classified: positions on markets
// without a mapping, positions whose counterpart venue holds nothing, and
// positions whose outcomes do not hedge each other. Residual shares above
// the matched minimum count as missing a counterpart.
func Match(mappings []*types.MarketMapping, predict, polymarket []types.Position) ([]types.MatchedPair, []types.UnmatchedPosition) {
	byToken := func(list []types.Position) map[string]*types.Position {
		m := make(map[string]*types.Position, len(list))
		for i := range list {
			if list[i].Shares.IsPositive() {
				m[list[i].TokenID] = &list[i]
			}
		}
		return m
	}
	predictByToken := byToken(predict)
	polyByToken := byToken(polymarket)
	consumed := make(map[string]struct{})

	var pairs []types.MatchedPair
	var unmatched []types.UnmatchedPosition

	for _, mapping := range mappings {
		ppos := firstOf(predictByToken, mapping.PredictYesTokenID, mapping.PredictNoTokenID)
		qpos := firstOf(polyByToken, mapping.PolymarketYesTokenID, mapping.PolymarketNoTokenID)

		if ppos == nil && qpos == nil {
			continue
		}
		if ppos != nil {
			consumed[ppos.TokenID] = struct{}{}
		}
		if qpos != nil {
			consumed[qpos.TokenID] = struct{}{}
		}

		if ppos == nil || qpos == nil {
			lone := ppos
			if lone == nil {
				lone = qpos
			}
			unmatched = append(unmatched, types.UnmatchedPosition{
				Position: *lone,
				Shares:   lone.Shares,
				Reason:   types.UnmatchedNoCounterpart,
			})
			continue
		}

		predictOutcome := resolveOutcome(mapping, ppos)
		polyOutcome := resolveOutcome(mapping, qpos)

		if mapping.PolymarketOutcomeFor(predictOutcome) != polyOutcome {
			unmatched = append(unmatched,
				types.UnmatchedPosition{Position: *ppos, Shares: ppos.Shares, Reason: types.UnmatchedDirectionMismatch},
				types.UnmatchedPosition{Position: *qpos, Shares: qpos.Shares, Reason: types.UnmatchedDirectionMismatch},
			)
			continue
		}

		matched := decimalMin(ppos.Shares, qpos.Shares)
		pairs = append(pairs, types.MatchedPair{
			Mapping:           mapping,
			Predict:           *ppos,
			Polymarket:        *qpos,
			MatchedShares:     matched,
			EntryCostPerShare: ppos.AvgEntryPrice.Add(qpos.AvgEntryPrice),
		})

		if residual := ppos.Shares.Sub(matched); residual.IsPositive() {
			unmatched = append(unmatched, types.UnmatchedPosition{
				Position: *ppos, Shares: residual, Reason: types.UnmatchedNoCounterpart,
			})
		}
		if residual := qpos.Shares.Sub(matched); residual.IsPositive() {
			unmatched = append(unmatched, types.UnmatchedPosition{
				Position: *qpos, Shares: residual, Reason: types.UnmatchedNoCounterpart,
			})
		}
	}

	// Anything the mappings never touched.
	for _, list := range [][]types.Position{predict, polymarket} {
		for i := range list {
			if !list[i].Shares.IsPositive() {
				continue
			}
			if _, ok := consumed[list[i].TokenID]; ok {
				continue
			}
			unmatched = append(unmatched, types.UnmatchedPosition{
				Position: list[i],
				Shares:   list[i].Shares,
				Reason:   types.UnmatchedNoMapping,
			})
		}
	}

	return pairs, unmatched
}

// resolveOutcome prefers the venue-reported outcome and falls back to the
// mapping's token ids. Predict multi-outcome positions arrive with an
// unknown outcome.
func resolveOutcome(mapping *types.MarketMapping, pos *types.Position) types.Outcome {
	if pos.Outcome != types.OutcomeUnknown {
		return pos.Outcome
	}
	return mapping.OutcomeForToken(pos.TokenID)
}

func firstOf(index map[string]*types.Position, tokenIDs ...string) *types.Position {
	for _, id := range tokenIDs {
		if id == "" {
			continue
		}
		if pos, ok := index[id]; ok {
			return pos
		}
	}
	return nil
}

func decimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
