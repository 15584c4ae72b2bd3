// Package discovery maintains the cross-venue market mapping set: operator
// declared Predict/Polymarket pairs enriched with live metadata from both
// venues' REST APIs.
package discovery

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/venue/polymarket"
	"github.com/apri1one/predict-arb-sub004/internal/venue/predict"
	"github.com/apri1one/predict-arb-sub004/pkg/cache"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PairSpec is one operator-declared market pairing as read from the
// mapping file. Token ids, tick size and fees come from the venues.
type PairSpec struct {
	PredictMarketID       string `json:"predict_market_id"`
	PolymarketConditionID string `json:"polymarket_condition_id"`
	// IsInverted is true when YES on Predict corresponds to NO on Polymarket.
	IsInverted bool `json:"is_inverted"`
}

// PredictSource lists Predict market metadata.
type PredictSource interface {
	GetMarkets(ctx context.Context, status string) ([]predict.Market, error)
}

// PolymarketSource reads CLOB metadata for one condition.
type PolymarketSource interface {
	GetMarket(ctx context.Context, conditionID string) (*polymarket.MarketInfo, error)
}

// Config holds mapping discovery configuration.
type Config struct {
	MappingFile     string
	Predict         PredictSource
	Polymarket      PolymarketSource
	Cache           cache.Cache
	RefreshInterval time.Duration
	Logger          *zap.Logger
}

// Service builds and refreshes MarketMappings from the pair file.
type Service struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	mappings map[string]*types.MarketMapping // keyed by predict market id

	newMappingsCh chan *types.MarketMapping
}

// New creates a mapping discovery service.
func New(cfg Config) (*Service, error) {
	if cfg.MappingFile == "" {
		return nil, fmt.Errorf("mapping file required")
	}
	if cfg.Predict == nil || cfg.Polymarket == nil {
		return nil, fmt.Errorf("both venue metadata sources required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Service{
		cfg:           cfg,
		logger:        cfg.Logger,
		mappings:      make(map[string]*types.MarketMapping),
		newMappingsCh: make(chan *types.MarketMapping, 100),
	}, nil
}

// Run refreshes the mapping set until the context ends.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("mapping-discovery-starting",
		zap.String("mapping-file", s.cfg.MappingFile),
		zap.Duration("refresh-interval", s.cfg.RefreshInterval))

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	if err := s.refresh(ctx); err != nil {
		s.logger.Error("initial-refresh-failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("mapping-discovery-stopping")
			close(s.newMappingsCh)
			return ctx.Err()
		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				s.logger.Error("refresh-failed", zap.Error(err))
			}
		}
	}
}

// refresh reloads the pair file and enriches any pairs not yet mapped.
// Refresh performs a single mapping build pass. The CLI uses this for
// one-shot runs; Run calls it on every tick.
func (s *Service) Refresh(ctx context.Context) error {
	return s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) error {
	start := time.Now()
	defer func() {
		RefreshDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	specs, err := loadPairSpecs(s.cfg.MappingFile)
	if err != nil {
		RefreshErrorsTotal.Inc()
		return fmt.Errorf("load pair specs: %w", err)
	}

	pending := s.pendingSpecs(specs)
	if len(pending) == 0 {
		return nil
	}

	markets, err := s.cfg.Predict.GetMarkets(ctx, "OPEN")
	if err != nil {
		RefreshErrorsTotal.Inc()
		return fmt.Errorf("list predict markets: %w", err)
	}
	byID := make(map[string]*predict.Market, len(markets))
	for i := range markets {
		byID[markets[i].MarketID] = &markets[i]
	}

	var built int
	for _, spec := range pending {
		market, ok := byID[spec.PredictMarketID]
		if !ok {
			s.logger.Debug("skipping-pair-predict-market-not-open",
				zap.String("market-id", spec.PredictMarketID))
			continue
		}

		mapping, err := s.buildMapping(ctx, spec, market)
		if err != nil {
			RefreshErrorsTotal.Inc()
			s.logger.Warn("pair-enrichment-failed",
				zap.String("market-id", spec.PredictMarketID),
				zap.String("condition-id", spec.PolymarketConditionID),
				zap.Error(err))
			continue
		}

		s.mu.Lock()
		s.mappings[mapping.PredictMarketID] = mapping
		s.mu.Unlock()
		s.cacheMapping(mapping)
		built++

		select {
		case s.newMappingsCh <- mapping:
			MappingsBuiltTotal.Inc()
			s.logger.Info("new-mapping-discovered",
				zap.String("market-id", mapping.PredictMarketID),
				zap.String("condition-id", mapping.PolymarketConditionID),
				zap.String("title", mapping.EventTitle),
				zap.Bool("inverted", mapping.IsInverted))
		default:
			s.logger.Warn("new-mappings-channel-full",
				zap.String("market-id", mapping.PredictMarketID))
		}
	}

	s.logger.Debug("refresh-complete",
		zap.Int("pairs", len(specs)),
		zap.Int("built", built),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (s *Service) pendingSpecs(specs []PairSpec) []PairSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []PairSpec
	for _, spec := range specs {
		if _, ok := s.mappings[spec.PredictMarketID]; !ok {
			pending = append(pending, spec)
		}
	}
	return pending
}

func (s *Service) buildMapping(ctx context.Context, spec PairSpec, market *predict.Market) (*types.MarketMapping, error) {
	if market.YesTokenID == "" || market.NoTokenID == "" {
		return nil, fmt.Errorf("predict market %s missing outcome tokens", market.MarketID)
	}

	info, err := s.cfg.Polymarket.GetMarket(ctx, spec.PolymarketConditionID)
	if err != nil {
		return nil, fmt.Errorf("fetch polymarket metadata: %w", err)
	}

	polyYes := tokenForOutcome(info, "Yes")
	polyNo := tokenForOutcome(info, "No")
	if polyYes == "" || polyNo == "" {
		return nil, fmt.Errorf("condition %s missing Yes or No token", spec.PolymarketConditionID)
	}

	predictTick, err := decimal.NewFromString(market.TickSize)
	if err != nil || !predictTick.IsPositive() {
		predictTick = decimal.RequireFromString("0.01")
	}
	// Orders must align on both venues, so the coarser tick wins.
	tick := predictTick
	if info.TickSize.GreaterThan(tick) {
		tick = info.TickSize
	}

	title := market.EventTitle
	if market.OutcomeName != "" {
		title = market.EventTitle + " - " + market.OutcomeName
	}

	return &types.MarketMapping{
		PredictMarketID:       market.MarketID,
		PolymarketConditionID: info.ConditionID,
		PredictYesTokenID:     market.YesTokenID,
		PredictNoTokenID:      market.NoTokenID,
		PolymarketYesTokenID:  polyYes,
		PolymarketNoTokenID:   polyNo,
		IsInverted:            spec.IsInverted,
		NegRisk:               info.NegRisk,
		TickSize:              tick,
		FeeRateBps:            int64(market.FeeRateBps),
		EventTitle:            title,
	}, nil
}

func tokenForOutcome(info *polymarket.MarketInfo, outcome string) string {
	for _, token := range info.Tokens {
		if token.Outcome == outcome {
			return token.TokenID
		}
	}
	return ""
}

// Mappings returns all built mappings.
func (s *Service) Mappings() []*types.MarketMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.MarketMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	return out
}

// MappingFor returns the mapping for a Predict market id.
func (s *Service) MappingFor(predictMarketID string) (*types.MarketMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[predictMarketID]
	return m, ok
}

// NewMappingsChan returns the channel delivering freshly built mappings.
// Consumers subscribe their book feeds from it.
func (s *Service) NewMappingsChan() <-chan *types.MarketMapping {
	return s.newMappingsCh
}

func (s *Service) cacheMapping(mapping *types.MarketMapping) {
	if s.cfg.Cache == nil {
		return
	}

	const cacheTTL = 24 * time.Hour
	if !s.cfg.Cache.Set(mapping.PredictMarketID, mapping, cacheTTL) {
		s.logger.Warn("failed-to-cache-mapping",
			zap.String("market-id", mapping.PredictMarketID))
	}
}

func loadPairSpecs(path string) ([]PairSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var specs []PairSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, spec := range specs {
		if spec.PredictMarketID == "" || spec.PolymarketConditionID == "" {
			return nil, fmt.Errorf("pair missing market or condition id")
		}
	}
	return specs, nil
}
