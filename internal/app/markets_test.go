package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeFeed struct {
	subscribed [][]string
	err        error
}

func (f *fakeFeed) Subscribe(ids []string) error {
	if f.err != nil {
		return f.err
	}
	f.subscribed = append(f.subscribed, ids)
	return nil
}

type fakeWarmer struct {
	warmed []*types.MarketMapping
	err    error
}

func (f *fakeWarmer) Warm(_ context.Context, mappings []*types.MarketMapping) error {
	if f.err != nil {
		return f.err
	}
	f.warmed = append(f.warmed, mappings...)
	return nil
}

func feedMapping() *types.MarketMapping {
	return &types.MarketMapping{
		PredictMarketID:       "m1",
		PolymarketConditionID: "c1",
		PredictYesTokenID:     "m1-yes",
		PredictNoTokenID:      "m1-no",
		PolymarketYesTokenID:  "c1-y",
		PolymarketNoTokenID:   "c1-n",
		TickSize:              decimal.RequireFromString("0.01"),
		EventTitle:            "Will it rain tomorrow?",
	}
}

func TestAttachMappingFeeds(t *testing.T) {
	warmer := &fakeWarmer{}
	predictFeed := &fakeFeed{}
	polyFeed := &fakeFeed{}

	attachMappingFeeds(context.Background(), zap.NewNop(), warmer, predictFeed, polyFeed, feedMapping())

	assert.Len(t, warmer.warmed, 1)
	assert.Equal(t, [][]string{{"m1"}}, predictFeed.subscribed)
	assert.Equal(t, [][]string{{"c1-y", "c1-n"}}, polyFeed.subscribed)
}

func TestAttachMappingFeedsWarmFailureStillSubscribes(t *testing.T) {
	warmer := &fakeWarmer{err: fmt.Errorf("venue down")}
	predictFeed := &fakeFeed{}
	polyFeed := &fakeFeed{}

	attachMappingFeeds(context.Background(), zap.NewNop(), warmer, predictFeed, polyFeed, feedMapping())

	// Metadata can warm later; the book feeds come online regardless.
	assert.Len(t, predictFeed.subscribed, 1)
	assert.Len(t, polyFeed.subscribed, 1)
}

func TestAttachMappingFeedsSubscribeFailureIsNotFatal(t *testing.T) {
	warmer := &fakeWarmer{}
	predictFeed := &fakeFeed{err: fmt.Errorf("not connected")}
	polyFeed := &fakeFeed{}

	attachMappingFeeds(context.Background(), zap.NewNop(), warmer, predictFeed, polyFeed, feedMapping())

	assert.Len(t, polyFeed.subscribed, 1)
}
