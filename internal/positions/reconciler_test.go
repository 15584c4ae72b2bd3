package positions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu        sync.Mutex
	calls     int
	positions []types.Position
	err       error
}

func (f *fakeSource) GetPositions(_ context.Context, _ string) ([]types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.positions, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMappings struct {
	list []*types.MarketMapping
}

func (f *fakeMappings) Mappings() []*types.MarketMapping { return f.list }

type fakeBooks map[string]*types.NormalizedOrderBook

func (f fakeBooks) Get(venue types.Venue, assetID string) (*types.NormalizedOrderBook, bool) {
	book, ok := f[string(venue)+"/"+assetID]
	return book, ok
}

// fakeCache is a deterministic stand-in for the ristretto cache, whose
// writes land asynchronously.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]interface{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]interface{})}
}

func (c *fakeCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *fakeCache) Set(key string, value interface{}, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return true
}

func (c *fakeCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *fakeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]interface{})
}

func (c *fakeCache) Close() {}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testMapping(inverted bool) *types.MarketMapping {
	return &types.MarketMapping{
		PredictMarketID:       "pm1",
		PolymarketConditionID: "cond1",
		PredictYesTokenID:     "pY",
		PredictNoTokenID:      "pN",
		PolymarketYesTokenID:  "qY",
		PolymarketNoTokenID:   "qN",
		IsInverted:            inverted,
		FeeRateBps:            200,
		EventTitle:            "Event One",
	}
}

func position(venue types.Venue, tokenID string, outcome types.Outcome, shares, avgPrice string) types.Position {
	return types.Position{
		Venue:         venue,
		TokenID:       tokenID,
		Outcome:       outcome,
		Shares:        dec(shares),
		AvgEntryPrice: dec(avgPrice),
	}
}

func TestMatchPairsWithResidual(t *testing.T) {
	pairs, unmatched := Match(
		[]*types.MarketMapping{testMapping(false)},
		[]types.Position{position(types.VenuePredict, "pY", types.OutcomeYes, "10", "0.45")},
		[]types.Position{position(types.VenuePolymarket, "qN", types.OutcomeNo, "8", "0.50")},
	)

	require.Len(t, pairs, 1)
	assert.True(t, pairs[0].MatchedShares.Equal(dec("8")))
	assert.True(t, pairs[0].EntryCostPerShare.Equal(dec("0.95")))

	require.Len(t, unmatched, 1)
	assert.Equal(t, types.UnmatchedNoCounterpart, unmatched[0].Reason)
	assert.True(t, unmatched[0].Shares.Equal(dec("2")), "excess predict shares are residual")
}

func TestMatchDirectionMismatch(t *testing.T) {
	pairs, unmatched := Match(
		[]*types.MarketMapping{testMapping(false)},
		[]types.Position{position(types.VenuePredict, "pY", types.OutcomeYes, "10", "0.45")},
		[]types.Position{position(types.VenuePolymarket, "qY", types.OutcomeYes, "10", "0.50")},
	)

	assert.Empty(t, pairs, "same-direction holdings do not hedge")
	require.Len(t, unmatched, 2)
	for _, u := range unmatched {
		assert.Equal(t, types.UnmatchedDirectionMismatch, u.Reason)
	}
}

func TestMatchInvertedAlignsSameOutcome(t *testing.T) {
	pairs, _ := Match(
		[]*types.MarketMapping{testMapping(true)},
		[]types.Position{position(types.VenuePredict, "pY", types.OutcomeYes, "5", "0.45")},
		[]types.Position{position(types.VenuePolymarket, "qY", types.OutcomeYes, "5", "0.50")},
	)

	require.Len(t, pairs, 1, "inversion makes YES/YES a hedge")
	assert.True(t, pairs[0].MatchedShares.Equal(dec("5")))
}

func TestMatchClassifiesLonePositions(t *testing.T) {
	pairs, unmatched := Match(
		[]*types.MarketMapping{testMapping(false)},
		[]types.Position{
			position(types.VenuePredict, "pY", types.OutcomeYes, "10", "0.45"),
			position(types.VenuePredict, "unmapped-token", types.OutcomeYes, "3", "0.30"),
		},
		nil,
	)

	assert.Empty(t, pairs)
	require.Len(t, unmatched, 2)

	reasons := map[string]types.UnmatchedReason{}
	for _, u := range unmatched {
		reasons[u.Position.TokenID] = u.Reason
	}
	assert.Equal(t, types.UnmatchedNoCounterpart, reasons["pY"])
	assert.Equal(t, types.UnmatchedNoMapping, reasons["unmapped-token"])
}

func TestMatchResolvesUnknownOutcomeFromMapping(t *testing.T) {
	// Predict multi-outcome positions arrive with an unknown outcome; the
	// mapping's token ids settle it.
	pairs, _ := Match(
		[]*types.MarketMapping{testMapping(false)},
		[]types.Position{position(types.VenuePredict, "pY", types.OutcomeUnknown, "5", "0.45")},
		[]types.Position{position(types.VenuePolymarket, "qN", types.OutcomeNo, "5", "0.50")},
	)

	require.Len(t, pairs, 1)
}

func TestMatchSkipsZeroSharePositions(t *testing.T) {
	pairs, unmatched := Match(
		[]*types.MarketMapping{testMapping(false)},
		[]types.Position{position(types.VenuePredict, "pY", types.OutcomeYes, "0", "0.45")},
		nil,
	)
	assert.Empty(t, pairs)
	assert.Empty(t, unmatched)
}

func newTestReconciler(t *testing.T, predict, poly *fakeSource, opts func(*Config)) *Reconciler {
	t.Helper()

	cfg := Config{
		Predict:          predict,
		Polymarket:       poly,
		PredictWallet:    "0xwalletA",
		PolymarketWallet: "0xwalletB",
		Mappings:         &fakeMappings{list: []*types.MarketMapping{testMapping(false)}},
		Logger:           zap.NewNop(),
	}
	if opts != nil {
		opts(&cfg)
	}

	r, err := NewReconciler(cfg)
	require.NoError(t, err)
	return r
}

func TestReconcileBuildsReport(t *testing.T) {
	predict := &fakeSource{positions: []types.Position{
		position(types.VenuePredict, "pY", types.OutcomeYes, "10", "0.45"),
	}}
	poly := &fakeSource{positions: []types.Position{
		position(types.VenuePolymarket, "qN", types.OutcomeNo, "10", "0.50"),
	}}

	r := newTestReconciler(t, predict, poly, nil)

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Stale)
	assert.Len(t, report.Pairs, 1)
	assert.False(t, report.AsOf.IsZero())
}

func TestReconcileServesLastGoodOnFailure(t *testing.T) {
	predict := &fakeSource{positions: []types.Position{
		position(types.VenuePredict, "pY", types.OutcomeYes, "10", "0.45"),
	}}
	poly := &fakeSource{positions: []types.Position{
		position(types.VenuePolymarket, "qN", types.OutcomeNo, "10", "0.50"),
	}}

	r := newTestReconciler(t, predict, poly, nil)

	first, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.False(t, first.Stale)

	// Predict starts failing; the old list keeps serving, flagged stale.
	predict.mu.Lock()
	predict.err = fmt.Errorf("boom")
	predict.mu.Unlock()

	second, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Stale)
	assert.Len(t, second.Pairs, 1)
	assert.False(t, second.AsOf.After(first.AsOf), "stale report keeps the old read time")
}

func TestReconcileFailsWithoutHistory(t *testing.T) {
	predict := &fakeSource{err: fmt.Errorf("boom")}
	poly := &fakeSource{}

	r := newTestReconciler(t, predict, poly, nil)

	_, err := r.Reconcile(context.Background())
	assert.Error(t, err)
}

func TestReadPositionsCachedWithinTTL(t *testing.T) {
	predict := &fakeSource{}
	poly := &fakeSource{}

	r := newTestReconciler(t, predict, poly, func(cfg *Config) {
		cfg.Cache = newFakeCache()
		cfg.CacheTTL = 5 * time.Second
	})

	_, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	_, err = r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, predict.callCount(), "second pass served from cache")
	assert.Equal(t, 1, poly.callCount())
}

func closeBooks() fakeBooks {
	return fakeBooks{
		"predict/pY": {
			Venue:   types.VenuePredict,
			AssetID: "pY",
			Bids:    []types.BookLevel{{Price: dec("0.55"), Size: dec("100")}},
			Asks:    []types.BookLevel{{Price: dec("0.58"), Size: dec("100")}},
		},
		"polymarket/qN": {
			Venue:   types.VenuePolymarket,
			AssetID: "qN",
			Bids:    []types.BookLevel{{Price: dec("0.50"), Size: dec("100")}},
			Asks:    []types.BookLevel{{Price: dec("0.52"), Size: dec("100")}},
		},
	}
}

func TestComputeQuotesEvaluatesBothStyles(t *testing.T) {
	predict := &fakeSource{positions: []types.Position{
		position(types.VenuePredict, "pY", types.OutcomeYes, "10", "0.45"),
	}}
	poly := &fakeSource{positions: []types.Position{
		position(types.VenuePolymarket, "qN", types.OutcomeNo, "10", "0.50"),
	}}

	r := newTestReconciler(t, predict, poly, func(cfg *Config) {
		cfg.Books = closeBooks()
	})

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	quotes := r.computeQuotes(report)
	require.Len(t, quotes, 1)

	// Entry 0.95; T-T: 0.55 net of 2% fee on the Predict leg plus the 0.50
	// Polymarket bid clears the basis.
	assert.True(t, quotes[0].Opportunity.TT.Valid)
	assert.True(t, quotes[0].Opportunity.MT.Valid)
	assert.True(t, quotes[0].PredictAsk.Equal(dec("0.58")))
}

func TestComputeQuotesSkipsPairsWithoutBooks(t *testing.T) {
	predict := &fakeSource{positions: []types.Position{
		position(types.VenuePredict, "pY", types.OutcomeYes, "10", "0.45"),
	}}
	poly := &fakeSource{positions: []types.Position{
		position(types.VenuePolymarket, "qN", types.OutcomeNo, "10", "0.50"),
	}}

	r := newTestReconciler(t, predict, poly, func(cfg *Config) {
		cfg.Books = fakeBooks{}
	})

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.computeQuotes(report))
}
