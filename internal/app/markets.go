package app

import (
	"context"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"go.uber.org/zap"
)

// feedSubscriber is a market-data stream's subscription surface.
type feedSubscriber interface {
	Subscribe(ids []string) error
}

// metadataWarmer pushes venue metadata for a mapping into the book cache.
type metadataWarmer interface {
	Warm(ctx context.Context, mappings []*types.MarketMapping) error
}

// handleNewMappings consumes discovery's channel and brings each mapping's
// market data online: metadata first, then both venues' book feeds.
func (a *App) handleNewMappings() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case mapping, ok := <-a.discovery.NewMappingsChan():
			if !ok {
				return
			}
			attachMappingFeeds(a.ctx, a.logger, a.warmer, a.predictStream, a.polyStream, mapping)
		}
	}
}

// attachMappingFeeds warms metadata and subscribes the Predict market and
// both Polymarket tokens. Subscription failures are logged, not fatal; the
// streams replay their subscription sets on reconnect.
func attachMappingFeeds(
	ctx context.Context,
	logger *zap.Logger,
	warmer metadataWarmer,
	predictFeed feedSubscriber,
	polyFeed feedSubscriber,
	mapping *types.MarketMapping,
) {
	if err := warmer.Warm(ctx, []*types.MarketMapping{mapping}); err != nil {
		logger.Warn("mapping-metadata-warm-failed",
			zap.String("market-id", mapping.PredictMarketID),
			zap.Error(err))
	}

	if err := predictFeed.Subscribe([]string{mapping.PredictMarketID}); err != nil {
		logger.Error("predict-subscribe-failed",
			zap.String("market-id", mapping.PredictMarketID),
			zap.Error(err))
	}

	if err := polyFeed.Subscribe([]string{
		mapping.PolymarketYesTokenID,
		mapping.PolymarketNoTokenID,
	}); err != nil {
		logger.Error("polymarket-subscribe-failed",
			zap.String("condition-id", mapping.PolymarketConditionID),
			zap.Error(err))
	}

	logger.Info("mapping-feeds-attached",
		zap.String("market-id", mapping.PredictMarketID),
		zap.String("condition-id", mapping.PolymarketConditionID),
		zap.String("title", mapping.EventTitle))
}
