package scheduler

import (
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
)

// ValidateTask checks the field set a task needs before it may queue. The
// required price parameters depend on (kind, strategy).
func ValidateTask(task *types.Task) error {
	switch task.Kind {
	case types.TaskBuy, types.TaskSell:
	default:
		return &types.ValidationError{Field: "kind", Reason: "must be BUY or SELL"}
	}
	switch task.Strategy {
	case types.StrategyMaker, types.StrategyTaker:
	default:
		return &types.ValidationError{Field: "strategy", Reason: "must be MAKER or TAKER"}
	}
	switch task.ArbSide {
	case types.OutcomeYes, types.OutcomeNo:
	default:
		return &types.ValidationError{Field: "arbSide", Reason: "must be YES or NO"}
	}

	if !task.Quantity.IsPositive() {
		return &types.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if task.Mapping.PredictMarketID == "" {
		return &types.ValidationError{Field: "mapping.predictMarketId", Reason: "required"}
	}
	if task.Mapping.PolymarketConditionID == "" {
		return &types.ValidationError{Field: "mapping.polymarketConditionId", Reason: "required"}
	}

	for _, f := range requiredParams(task.Kind, task.Strategy) {
		if !f.value(&task.Params).IsPositive() {
			return &types.ValidationError{Field: f.name, Reason: "required"}
		}
	}
	return nil
}

type paramField struct {
	name  string
	value func(p *types.TaskParams) decimal.Decimal
}

var (
	fieldPredictPrice    = paramField{"predictPrice", func(p *types.TaskParams) decimal.Decimal { return p.PredictPrice }}
	fieldPredictAskPrice = paramField{"predictAskPrice", func(p *types.TaskParams) decimal.Decimal { return p.PredictAskPrice }}
	fieldPolyMaxAsk      = paramField{"polymarketMaxAsk", func(p *types.TaskParams) decimal.Decimal { return p.PolymarketMaxAsk }}
	fieldPolyMinBid      = paramField{"polymarketMinBid", func(p *types.TaskParams) decimal.Decimal { return p.PolymarketMinBid }}
	fieldMaxTotalCost    = paramField{"maxTotalCost", func(p *types.TaskParams) decimal.Decimal { return p.MaxTotalCost }}
	fieldMinProfitBuffer = paramField{"minProfitBuffer", func(p *types.TaskParams) decimal.Decimal { return p.MinProfitBuffer }}
	fieldEntryCost       = paramField{"entryCost", func(p *types.TaskParams) decimal.Decimal { return p.EntryCost }}
)

func requiredParams(kind types.TaskKind, strategy types.TaskStrategy) []paramField {
	switch {
	case kind == types.TaskBuy && strategy == types.StrategyTaker:
		return []paramField{fieldPredictAskPrice, fieldPolyMaxAsk, fieldMaxTotalCost}
	case kind == types.TaskBuy && strategy == types.StrategyMaker:
		return []paramField{fieldPredictPrice, fieldPolyMaxAsk, fieldMinProfitBuffer}
	case kind == types.TaskSell && strategy == types.StrategyTaker:
		return []paramField{fieldPredictPrice, fieldPolyMinBid, fieldEntryCost}
	case kind == types.TaskSell && strategy == types.StrategyMaker:
		return []paramField{fieldPredictAskPrice, fieldPolyMinBid, fieldEntryCost}
	default:
		return nil
	}
}
