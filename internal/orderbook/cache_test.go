package orderbook

import (
	"testing"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func level(price, size string) types.BookLevel {
	return types.BookLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func testBook(asset string, ts int64) *types.NormalizedOrderBook {
	return &types.NormalizedOrderBook{
		Venue:             types.VenuePredict,
		MarketID:          "0x12ab",
		AssetID:           asset,
		UpdateTimestampMs: ts,
		Asks:              []types.BookLevel{level("0.66", "5"), level("0.61", "10")},
		Bids:              []types.BookLevel{level("0.55", "20"), level("0.60", "10")},
	}
}

func TestApplySortsAndMergesMetadata(t *testing.T) {
	c := NewCache(zap.NewNop())
	c.SetAssetMetadata(types.VenuePredict, "yes", Metadata{
		MinOrderSize: decimal.RequireFromString("5"),
		TickSize:     decimal.RequireFromString("0.01"),
		NegRisk:      true,
	})

	require.NoError(t, c.Apply(testBook("yes", 100)))

	book, ok := c.Get(types.VenuePredict, "yes")
	require.True(t, ok)

	assert.True(t, book.Asks[0].Price.Equal(decimal.RequireFromString("0.61")))
	assert.True(t, book.Asks[1].Price.Equal(decimal.RequireFromString("0.66")))
	assert.True(t, book.Bids[0].Price.Equal(decimal.RequireFromString("0.60")))
	assert.True(t, book.Bids[1].Price.Equal(decimal.RequireFromString("0.55")))

	assert.True(t, book.MinOrderSize.Equal(decimal.RequireFromString("5")))
	assert.True(t, book.TickSize.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, book.NegRisk)
}

func TestApplyRejectsMissingAssetID(t *testing.T) {
	c := NewCache(zap.NewNop())
	assert.Error(t, c.Apply(&types.NormalizedOrderBook{Venue: types.VenuePredict}))
}

func TestApplyDropsStaleSnapshot(t *testing.T) {
	c := NewCache(zap.NewNop())

	require.NoError(t, c.Apply(testBook("yes", 200)))

	stale := testBook("yes", 100)
	stale.Bids = []types.BookLevel{level("0.99", "1")}
	require.NoError(t, c.Apply(stale))

	book, ok := c.Get(types.VenuePredict, "yes")
	require.True(t, ok)
	assert.Equal(t, int64(200), book.UpdateTimestampMs)

	best, ok := book.BestBid()
	require.True(t, ok)
	assert.True(t, best.Price.Equal(decimal.RequireFromString("0.60")))
}

func TestGetReturnsCopy(t *testing.T) {
	c := NewCache(zap.NewNop())
	require.NoError(t, c.Apply(testBook("yes", 100)))

	first, ok := c.Get(types.VenuePredict, "yes")
	require.True(t, ok)
	first.Bids[0].Price = decimal.RequireFromString("0.01")

	second, ok := c.Get(types.VenuePredict, "yes")
	require.True(t, ok)
	assert.True(t, second.Bids[0].Price.Equal(decimal.RequireFromString("0.60")))
}

func TestListenerFilterAndFanOut(t *testing.T) {
	c := NewCache(zap.NewNop())

	var all, yesOnly, otherVenue []string
	c.AddListener(types.VenuePredict, "", func(b *types.NormalizedOrderBook) {
		all = append(all, b.AssetID)
	})
	c.AddListener(types.VenuePredict, "yes", func(b *types.NormalizedOrderBook) {
		yesOnly = append(yesOnly, b.AssetID)
	})
	c.AddListener(types.VenuePolymarket, "", func(b *types.NormalizedOrderBook) {
		otherVenue = append(otherVenue, b.AssetID)
	})

	require.NoError(t, c.Apply(testBook("yes", 100)))
	require.NoError(t, c.Apply(testBook("no", 100)))

	assert.Equal(t, []string{"yes", "no"}, all)
	assert.Equal(t, []string{"yes"}, yesOnly)
	assert.Empty(t, otherVenue)
}

func TestListenerPanicDoesNotBreakSiblings(t *testing.T) {
	c := NewCache(zap.NewNop())

	c.AddListener(types.VenuePredict, "", func(*types.NormalizedOrderBook) {
		panic("boom")
	})
	delivered := 0
	c.AddListener(types.VenuePredict, "", func(*types.NormalizedOrderBook) {
		delivered++
	})

	require.NoError(t, c.Apply(testBook("yes", 100)))
	assert.Equal(t, 1, delivered)
}

func TestRemoveListener(t *testing.T) {
	c := NewCache(zap.NewNop())

	delivered := 0
	id := c.AddListener(types.VenuePredict, "", func(*types.NormalizedOrderBook) {
		delivered++
	})

	require.NoError(t, c.Apply(testBook("yes", 100)))
	c.RemoveListener(id)
	require.NoError(t, c.Apply(testBook("yes", 200)))

	assert.Equal(t, 1, delivered)
}

func TestRemoveAllListenersScopedToVenue(t *testing.T) {
	c := NewCache(zap.NewNop())

	predictHits, polyHits := 0, 0
	c.AddListener(types.VenuePredict, "", func(*types.NormalizedOrderBook) {
		predictHits++
	})
	c.AddListener(types.VenuePolymarket, "", func(*types.NormalizedOrderBook) {
		polyHits++
	})

	c.RemoveAllListeners(types.VenuePredict)

	require.NoError(t, c.Apply(testBook("yes", 100)))
	poly := testBook("tok", 100)
	poly.Venue = types.VenuePolymarket
	require.NoError(t, c.Apply(poly))

	assert.Zero(t, predictHits)
	assert.Equal(t, 1, polyHits)
}

func TestEvictRemovesBook(t *testing.T) {
	c := NewCache(zap.NewNop())
	require.NoError(t, c.Apply(testBook("yes", 100)))

	c.Evict(types.VenuePredict, "yes")

	_, ok := c.Get(types.VenuePredict, "yes")
	assert.False(t, ok)
}
