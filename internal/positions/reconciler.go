// Package positions reconciles holdings across both venues into matched
// delta-neutral pairs and computes unwind opportunities for them.
package positions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/arbitrage"
	"github.com/apri1one/predict-arb-sub004/pkg/cache"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source reads one venue's positions for an owner address.
type Source interface {
	GetPositions(ctx context.Context, owner string) ([]types.Position, error)
}

// MappingSource supplies the current market mappings.
type MappingSource interface {
	Mappings() []*types.MarketMapping
}

// BookSource reads cached order books; satisfied by the orderbook cache.
type BookSource interface {
	Get(venue types.Venue, assetID string) (*types.NormalizedOrderBook, bool)
}

// Config holds reconciler configuration.
type Config struct {
	Predict          Source
	Polymarket       Source
	PredictWallet    string
	PolymarketWallet string
	Mappings         MappingSource
	Books            BookSource
	// Cache deduplicates bursts of position reads; entries live for CacheTTL.
	Cache    cache.Cache
	CacheTTL time.Duration
	Interval time.Duration
	Logger   *zap.Logger
}

// CloseQuote is one matched pair with its unwind economics attached.
type CloseQuote struct {
	Pair        types.MatchedPair         `json:"pair"`
	Opportunity arbitrage.CloseOpportunity `json:"opportunity"`
	// PredictAsk is the resting price the M-T style was evaluated at.
	PredictAsk decimal.Decimal `json:"predict_ask"`
	AsOf       time.Time       `json:"as_of"`
}

// Reconciler periodically reads both venues' positions, pairs them through
// the market mappings and publishes the latest report. Venue read failures
// fall back to the last successful list; the report keeps the old AsOf and
// is flagged stale.
type Reconciler struct {
	cfg    Config
	logger *zap.Logger
	group  singleflight.Group

	mu        sync.RWMutex
	lastGood  map[types.Venue]venueSnapshot
	report    *types.PositionReport
	quotes    []CloseQuote

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

type venueSnapshot struct {
	positions []types.Position
	asOf      time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Predict == nil || cfg.Polymarket == nil {
		return nil, fmt.Errorf("both venue sources required")
	}
	if cfg.Mappings == nil {
		return nil, fmt.Errorf("mapping source required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}

	return &Reconciler{
		cfg:      cfg,
		logger:   cfg.Logger,
		lastGood: make(map[types.Venue]venueSnapshot),
		now:      time.Now,
	}, nil
}

// Start launches the periodic reconciliation loop.
func (r *Reconciler) Start() error {
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.loop()

	return nil
}

// Stop terminates the loop.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	// First pass immediately so the HTTP surface has data at startup.
	r.tick()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Reconciler) tick() {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Interval)
	defer cancel()

	report, err := r.Reconcile(ctx)
	if err != nil {
		ReconcileFailuresTotal.Inc()
		r.logger.Warn("reconcile-failed", zap.Error(err))
		return
	}

	quotes := r.computeQuotes(report)

	r.mu.Lock()
	r.report = report
	r.quotes = quotes
	r.mu.Unlock()

	MatchedPairsGauge.Set(float64(len(report.Pairs)))
	UnmatchedGauge.Set(float64(len(report.Unmatched)))
	CloseQuotesGauge.Set(float64(len(quotes)))
}

// Reconcile performs one reconciliation pass.
func (r *Reconciler) Reconcile(ctx context.Context) (*types.PositionReport, error) {
	ReconcileRunsTotal.Inc()

	predictSnap, predictStale, err := r.readPositions(ctx, types.VenuePredict, r.cfg.Predict, r.cfg.PredictWallet)
	if err != nil {
		return nil, fmt.Errorf("read predict positions: %w", err)
	}
	polySnap, polyStale, err := r.readPositions(ctx, types.VenuePolymarket, r.cfg.Polymarket, r.cfg.PolymarketWallet)
	if err != nil {
		return nil, fmt.Errorf("read polymarket positions: %w", err)
	}

	pairs, unmatched := Match(r.cfg.Mappings.Mappings(), predictSnap.positions, polySnap.positions)

	asOf := predictSnap.asOf
	if polySnap.asOf.Before(asOf) {
		asOf = polySnap.asOf
	}

	return &types.PositionReport{
		Pairs:     pairs,
		Unmatched: unmatched,
		AsOf:      asOf,
		Stale:     predictStale || polyStale,
	}, nil
}

// readPositions reads one venue with short-TTL caching and single-flight
// dedup. A failed read is answered from the last successful list when one
// exists; only a failure with no history is an error.
func (r *Reconciler) readPositions(ctx context.Context, venue types.Venue, src Source, owner string) (venueSnapshot, bool, error) {
	key := "positions/" + string(venue)

	if r.cfg.Cache != nil {
		if cached, ok := r.cfg.Cache.Get(key); ok {
			if snap, ok := cached.(venueSnapshot); ok {
				return snap, false, nil
			}
		}
	}

	result, err, _ := r.group.Do(key, func() (interface{}, error) {
		positions, err := src.GetPositions(ctx, owner)
		if err != nil {
			return nil, err
		}
		snap := venueSnapshot{positions: positions, asOf: r.now()}

		if r.cfg.Cache != nil {
			r.cfg.Cache.Set(key, snap, r.cfg.CacheTTL)
		}
		r.mu.Lock()
		r.lastGood[venue] = snap
		r.mu.Unlock()

		return snap, nil
	})
	if err == nil {
		return result.(venueSnapshot), false, nil
	}

	r.mu.RLock()
	snap, ok := r.lastGood[venue]
	r.mu.RUnlock()
	if !ok {
		return venueSnapshot{}, false, err
	}

	r.logger.Warn("positions-read-failed-serving-cache",
		zap.String("venue", string(venue)), zap.Error(err))
	return snap, true, nil
}

// computeQuotes evaluates both unwind styles for every matched pair using
// the cached books. Pairs without live books on both legs are skipped.
func (r *Reconciler) computeQuotes(report *types.PositionReport) []CloseQuote {
	if r.cfg.Books == nil {
		return nil
	}

	quotes := make([]CloseQuote, 0, len(report.Pairs))
	for i := range report.Pairs {
		pair := &report.Pairs[i]

		predictBook, ok := r.cfg.Books.Get(types.VenuePredict, pair.Predict.TokenID)
		if !ok {
			continue
		}
		polyBook, ok := r.cfg.Books.Get(types.VenuePolymarket, pair.Polymarket.TokenID)
		if !ok {
			continue
		}

		// The venue's own best ask is the natural M-T resting price.
		var predictAsk decimal.Decimal
		if ask, ok := predictBook.BestAsk(); ok {
			predictAsk = ask.Price
		}

		quotes = append(quotes, CloseQuote{
			Pair:        *pair,
			Opportunity: arbitrage.ComputeClose(pair, predictBook, polyBook, predictAsk),
			PredictAsk:  predictAsk,
			AsOf:        report.AsOf,
		})
	}
	return quotes
}

// Latest returns the most recent report, or nil before the first pass.
func (r *Reconciler) Latest() *types.PositionReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.report
}

// CloseQuotes returns the most recent unwind quotes.
func (r *Reconciler) CloseQuotes() []CloseQuote {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CloseQuote, len(r.quotes))
	copy(out, r.quotes)
	return out
}
