// Package orderbook holds the normalized per-(venue, asset) book cache fed
// by the venue WebSocket clients, and fans updates out to listeners.
package orderbook

import (
	"fmt"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ListenerFunc receives book updates. Listeners run synchronously inside the
// producing receive loop and must not block; heavy work is offloaded by the
// listener itself.
type ListenerFunc func(book *types.NormalizedOrderBook)

// Metadata carries the REST-sourced fields missing from WS payloads.
type Metadata struct {
	MinOrderSize decimal.Decimal
	TickSize     decimal.Decimal
	NegRisk      bool
}

type bookKey struct {
	venue types.Venue
	asset string
}

type listener struct {
	id          string
	venue       types.Venue
	filterAsset string // empty matches all assets
	fn          ListenerFunc
}

// Cache maps (venue, assetId) to the latest NormalizedOrderBook. Single
// producer per asset; readers get copies and accept eventual consistency.
type Cache struct {
	mu        sync.RWMutex
	books     map[bookKey]*types.NormalizedOrderBook
	meta      map[bookKey]Metadata
	listeners map[string]*listener
	logger    *zap.Logger
}

// NewCache creates an empty cache.
func NewCache(logger *zap.Logger) *Cache {
	return &Cache{
		books:     make(map[bookKey]*types.NormalizedOrderBook),
		meta:      make(map[bookKey]Metadata),
		listeners: make(map[string]*listener),
		logger:    logger,
	}
}

// SetAssetMetadata warms the metadata merged into every later snapshot.
func (c *Cache) SetAssetMetadata(venue types.Venue, assetID string, meta Metadata) {
	c.mu.Lock()
	c.meta[bookKey{venue, assetID}] = meta
	c.mu.Unlock()
}

// Metadata returns the cached metadata for an asset.
func (c *Cache) Metadata(venue types.Venue, assetID string) (Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, ok := c.meta[bookKey{venue, assetID}]
	return meta, ok
}

// Apply normalizes and stores a snapshot, then notifies listeners.
// Sides are re-sorted, cached metadata merged, and stale out-of-order
// snapshots (older timestamp than the stored book) dropped.
func (c *Cache) Apply(book *types.NormalizedOrderBook) error {
	if book.AssetID == "" {
		return fmt.Errorf("snapshot missing asset id")
	}
	if book.UpdateTimestampMs == 0 {
		book.UpdateTimestampMs = time.Now().UnixMilli()
	}

	types.SortLevels(book.Asks, true)
	types.SortLevels(book.Bids, false)

	key := bookKey{book.Venue, book.AssetID}

	c.mu.Lock()
	if prev, ok := c.books[key]; ok && prev.UpdateTimestampMs > book.UpdateTimestampMs {
		c.mu.Unlock()
		StaleSnapshotsTotal.Inc()
		return nil
	}
	if meta, ok := c.meta[key]; ok {
		book.MinOrderSize = meta.MinOrderSize
		book.TickSize = meta.TickSize
		book.NegRisk = meta.NegRisk
	}
	c.books[key] = book
	SnapshotsTracked.Set(float64(len(c.books)))

	targets := make([]*listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		if l.venue == book.Venue && (l.filterAsset == "" || l.filterAsset == book.AssetID) {
			targets = append(targets, l)
		}
	}
	c.mu.Unlock()

	UpdatesTotal.WithLabelValues(string(book.Venue)).Inc()

	// Each listener receives its own copy; a panicking listener must not
	// break delivery to siblings.
	for _, l := range targets {
		c.deliver(l, book.Clone())
	}

	return nil
}

func (c *Cache) deliver(l *listener, book *types.NormalizedOrderBook) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("orderbook-listener-panic",
				zap.String("listener-id", l.id),
				zap.String("asset-id", book.AssetID),
				zap.Any("panic", r))
			ListenerPanicsTotal.Inc()
		}
	}()
	l.fn(book)
}

// Get returns a copy of the latest book for an asset.
func (c *Cache) Get(venue types.Venue, assetID string) (*types.NormalizedOrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	book, ok := c.books[bookKey{venue, assetID}]
	if !ok {
		return nil, false
	}
	return book.Clone(), true
}

// Evict removes a book when its subscription is released.
func (c *Cache) Evict(venue types.Venue, assetID string) {
	c.mu.Lock()
	delete(c.books, bookKey{venue, assetID})
	SnapshotsTracked.Set(float64(len(c.books)))
	c.mu.Unlock()
}

// AddListener registers a book listener; filterAssetID narrows delivery to
// one asset when non-empty. Returns the listener id.
func (c *Cache) AddListener(venue types.Venue, filterAssetID string, fn ListenerFunc) string {
	id := uuid.NewString()

	c.mu.Lock()
	c.listeners[id] = &listener{id: id, venue: venue, filterAsset: filterAssetID, fn: fn}
	ListenersActive.Set(float64(len(c.listeners)))
	c.mu.Unlock()

	return id
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
func (c *Cache) RemoveListener(id string) {
	c.mu.Lock()
	delete(c.listeners, id)
	ListenersActive.Set(float64(len(c.listeners)))
	c.mu.Unlock()
}

// RemoveAllListeners drops every listener, used by Disconnect(clearListeners).
func (c *Cache) RemoveAllListeners(venue types.Venue) {
	c.mu.Lock()
	for id, l := range c.listeners {
		if l.venue == venue {
			delete(c.listeners, id)
		}
	}
	ListenersActive.Set(float64(len(c.listeners)))
	c.mu.Unlock()
}
