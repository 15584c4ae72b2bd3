package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/venue/polymarket"
	"github.com/apri1one/predict-arb-sub004/internal/venue/predict"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePredict struct {
	mu      sync.Mutex
	markets []predict.Market
	err     error
	calls   int
}

func (f *fakePredict) GetMarkets(_ context.Context, _ string) ([]predict.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.markets, f.err
}

type fakePolymarket struct {
	mu    sync.Mutex
	infos map[string]*polymarket.MarketInfo
	err   error
}

func (f *fakePolymarket) GetMarket(_ context.Context, conditionID string) (*polymarket.MarketInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.infos[conditionID]
	if !ok {
		return nil, fmt.Errorf("unknown condition %s", conditionID)
	}
	return info, nil
}

func writePairFile(t *testing.T, specs string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mappings.json")
	require.NoError(t, os.WriteFile(path, []byte(specs), 0o644))
	return path
}

func testMarket(id string) predict.Market {
	return predict.Market{
		MarketID:   id,
		EventTitle: "Will it rain tomorrow?",
		YesTokenID: id + "-yes",
		NoTokenID:  id + "-no",
		TickSize:   "0.01",
		FeeRateBps: 200,
		Status:     "OPEN",
	}
}

func testInfo(conditionID string) *polymarket.MarketInfo {
	return &polymarket.MarketInfo{
		ConditionID: conditionID,
		Question:    "Will it rain tomorrow?",
		TickSize:    decimal.RequireFromString("0.001"),
		Tokens: []polymarket.MarketToken{
			{TokenID: conditionID + "-y", Outcome: "Yes"},
			{TokenID: conditionID + "-n", Outcome: "No"},
		},
	}
}

func newTestService(t *testing.T, path string, pred PredictSource, poly PolymarketSource) *Service {
	t.Helper()

	svc, err := New(Config{
		MappingFile: path,
		Predict:     pred,
		Polymarket:  poly,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return svc
}

func TestRefreshBuildsMappings(t *testing.T) {
	path := writePairFile(t, `[
		{"predict_market_id": "m1", "polymarket_condition_id": "c1"},
		{"predict_market_id": "m2", "polymarket_condition_id": "c2", "is_inverted": true}
	]`)
	pred := &fakePredict{markets: []predict.Market{testMarket("m1"), testMarket("m2")}}
	poly := &fakePolymarket{infos: map[string]*polymarket.MarketInfo{
		"c1": testInfo("c1"),
		"c2": testInfo("c2"),
	}}
	svc := newTestService(t, path, pred, poly)

	require.NoError(t, svc.refresh(context.Background()))

	mappings := svc.Mappings()
	require.Len(t, mappings, 2)

	m1, ok := svc.MappingFor("m1")
	require.True(t, ok)
	assert.Equal(t, "m1-yes", m1.PredictYesTokenID)
	assert.Equal(t, "c1-n", m1.PolymarketNoTokenID)
	assert.False(t, m1.IsInverted)
	assert.Equal(t, int64(200), m1.FeeRateBps)
	// Predict's 0.01 tick is coarser than the CLOB's 0.001.
	assert.True(t, m1.TickSize.Equal(decimal.RequireFromString("0.01")))

	m2, ok := svc.MappingFor("m2")
	require.True(t, ok)
	assert.True(t, m2.IsInverted)
}

func TestRefreshPublishesNewMappings(t *testing.T) {
	path := writePairFile(t, `[{"predict_market_id": "m1", "polymarket_condition_id": "c1"}]`)
	pred := &fakePredict{markets: []predict.Market{testMarket("m1")}}
	poly := &fakePolymarket{infos: map[string]*polymarket.MarketInfo{"c1": testInfo("c1")}}
	svc := newTestService(t, path, pred, poly)

	require.NoError(t, svc.refresh(context.Background()))

	select {
	case mapping := <-svc.NewMappingsChan():
		assert.Equal(t, "m1", mapping.PredictMarketID)
	case <-time.After(time.Second):
		t.Fatal("no mapping published")
	}
}

func TestRefreshSkipsAlreadyBuilt(t *testing.T) {
	path := writePairFile(t, `[{"predict_market_id": "m1", "polymarket_condition_id": "c1"}]`)
	pred := &fakePredict{markets: []predict.Market{testMarket("m1")}}
	poly := &fakePolymarket{infos: map[string]*polymarket.MarketInfo{"c1": testInfo("c1")}}
	svc := newTestService(t, path, pred, poly)

	require.NoError(t, svc.refresh(context.Background()))
	require.NoError(t, svc.refresh(context.Background()))

	// Second pass found nothing pending and never hit the venue APIs.
	assert.Equal(t, 1, pred.calls)
	assert.Len(t, svc.Mappings(), 1)
}

func TestRefreshTitleIncludesOutcomeName(t *testing.T) {
	market := testMarket("m1")
	market.OutcomeName = "Team A"

	path := writePairFile(t, `[{"predict_market_id": "m1", "polymarket_condition_id": "c1"}]`)
	pred := &fakePredict{markets: []predict.Market{market}}
	poly := &fakePolymarket{infos: map[string]*polymarket.MarketInfo{"c1": testInfo("c1")}}
	svc := newTestService(t, path, pred, poly)

	require.NoError(t, svc.refresh(context.Background()))

	m, ok := svc.MappingFor("m1")
	require.True(t, ok)
	assert.Equal(t, "Will it rain tomorrow? - Team A", m.EventTitle)
}

func TestRefreshToleratesEnrichmentFailure(t *testing.T) {
	path := writePairFile(t, `[
		{"predict_market_id": "m1", "polymarket_condition_id": "c1"},
		{"predict_market_id": "m2", "polymarket_condition_id": "missing"}
	]`)
	pred := &fakePredict{markets: []predict.Market{testMarket("m1"), testMarket("m2")}}
	poly := &fakePolymarket{infos: map[string]*polymarket.MarketInfo{"c1": testInfo("c1")}}
	svc := newTestService(t, path, pred, poly)

	// One bad pair does not fail the pass.
	require.NoError(t, svc.refresh(context.Background()))
	assert.Len(t, svc.Mappings(), 1)
}

func TestLoadPairSpecsRejectsIncomplete(t *testing.T) {
	path := writePairFile(t, `[{"predict_market_id": "m1"}]`)

	_, err := loadPairSpecs(path)
	require.Error(t, err)
}

func TestMappingsSatisfyReconcilerSource(t *testing.T) {
	path := writePairFile(t, `[{"predict_market_id": "m1", "polymarket_condition_id": "c1"}]`)
	pred := &fakePredict{markets: []predict.Market{testMarket("m1")}}
	poly := &fakePolymarket{infos: map[string]*polymarket.MarketInfo{"c1": testInfo("c1")}}
	svc := newTestService(t, path, pred, poly)

	require.NoError(t, svc.refresh(context.Background()))

	var mappings []*types.MarketMapping = svc.Mappings()
	require.Len(t, mappings, 1)
	// Alignment helpers work off the built mapping.
	assert.Equal(t, types.OutcomeNo, mappings[0].PolymarketOutcomeFor(types.OutcomeYes))
}
