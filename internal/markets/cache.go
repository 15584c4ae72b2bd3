package markets

import (
	"context"
	"fmt"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/orderbook"
	"github.com/apri1one/predict-arb-sub004/pkg/cache"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"go.uber.org/zap"
)

// BookMetadataSink receives warmed per-token metadata.
type BookMetadataSink interface {
	SetAssetMetadata(venue types.Venue, assetID string, meta orderbook.Metadata)
}

// MappingFeed supplies the mappings whose tokens need warming.
type MappingFeed interface {
	Mappings() []*types.MarketMapping
	NewMappingsChan() <-chan *types.MarketMapping
}

// WarmerConfig holds metadata warmer configuration.
type WarmerConfig struct {
	Fetcher *Fetcher
	Books   BookMetadataSink
	// Cache remembers warmed mappings so re-warms skip the REST round trip.
	Cache  cache.Cache
	TTL    time.Duration
	Logger *zap.Logger
}

// Warmer pushes venue metadata for mapped tokens into the orderbook cache.
type Warmer struct {
	cfg    WarmerConfig
	logger *zap.Logger
}

// NewWarmer creates a metadata warmer.
func NewWarmer(cfg WarmerConfig) (*Warmer, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher required")
	}
	if cfg.Books == nil {
		return nil, fmt.Errorf("book metadata sink required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Warmer{cfg: cfg, logger: cfg.Logger}, nil
}

// Run warms the feed's current mappings, then every mapping it publishes,
// until the context ends or the feed closes its channel.
func (w *Warmer) Run(ctx context.Context, feed MappingFeed) error {
	if err := w.Warm(ctx, feed.Mappings()); err != nil {
		w.logger.Error("initial-metadata-warm-failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case mapping, ok := <-feed.NewMappingsChan():
			if !ok {
				return nil
			}
			if err := w.Warm(ctx, []*types.MarketMapping{mapping}); err != nil {
				w.logger.Error("metadata-warm-failed",
					zap.String("market-id", mapping.PredictMarketID),
					zap.Error(err))
			}
		}
	}
}

// Warm fetches metadata for each mapping's four tokens and stores it in the
// book cache. Already-warmed mappings inside the TTL are skipped. One bad
// mapping does not fail the pass.
func (w *Warmer) Warm(ctx context.Context, mappings []*types.MarketMapping) error {
	pending := make([]*types.MarketMapping, 0, len(mappings))
	for _, m := range mappings {
		if w.warmed(m.PredictMarketID) {
			MetadataCacheHitsTotal.Inc()
			continue
		}
		MetadataCacheMissesTotal.Inc()
		pending = append(pending, m)
	}
	if len(pending) == 0 {
		return nil
	}

	predictMeta, err := w.cfg.Fetcher.PredictMetadata(ctx)
	if err != nil {
		return err
	}

	for _, mapping := range pending {
		pm, ok := predictMeta[mapping.PredictMarketID]
		if !ok {
			// Market dropped out of OPEN between discovery and warm; the
			// mapping's own snapshot is better than nothing.
			pm = orderbook.Metadata{
				TickSize: mapping.TickSize,
				NegRisk:  mapping.NegRisk,
			}
		}

		poly, err := w.cfg.Fetcher.PolymarketMetadata(ctx, mapping.PolymarketConditionID)
		if err != nil {
			w.logger.Warn("polymarket-metadata-fetch-failed",
				zap.String("condition-id", mapping.PolymarketConditionID),
				zap.Error(err))
			continue
		}

		w.cfg.Books.SetAssetMetadata(types.VenuePredict, mapping.PredictYesTokenID, pm)
		w.cfg.Books.SetAssetMetadata(types.VenuePredict, mapping.PredictNoTokenID, pm)
		w.cfg.Books.SetAssetMetadata(types.VenuePolymarket, mapping.PolymarketYesTokenID, poly)
		w.cfg.Books.SetAssetMetadata(types.VenuePolymarket, mapping.PolymarketNoTokenID, poly)
		w.markWarmed(mapping.PredictMarketID)

		w.logger.Debug("metadata-warmed",
			zap.String("market-id", mapping.PredictMarketID),
			zap.String("predict-tick", pm.TickSize.String()),
			zap.String("polymarket-tick", poly.TickSize.String()))
	}
	return nil
}

func (w *Warmer) warmed(marketID string) bool {
	if w.cfg.Cache == nil {
		return false
	}
	_, ok := w.cfg.Cache.Get("warmed:" + marketID)
	return ok
}

func (w *Warmer) markWarmed(marketID string) {
	if w.cfg.Cache == nil {
		return
	}
	if !w.cfg.Cache.Set("warmed:"+marketID, true, w.cfg.TTL) {
		w.logger.Warn("failed-to-mark-warmed", zap.String("market-id", marketID))
	}
}
