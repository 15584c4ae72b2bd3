package polymarket

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/orderbook"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	ws "github.com/apri1one/predict-arb-sub004/pkg/websocket"
	"github.com/google/uuid"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TradeEvent is a price-change or last-trade notification delivered to
// trade listeners, separate from the book fan-out.
type TradeEvent struct {
	AssetID   string
	EventType string
	Price     decimal.Decimal
	Side      types.Side
	Size      decimal.Decimal
}

// TradeListenerFunc receives trade events. Runs inside the receive loop;
// must not block.
type TradeListenerFunc func(ev TradeEvent)

// MarketStreamConfig holds market channel configuration.
type MarketStreamConfig struct {
	URL                   string
	Cache                 *orderbook.Cache
	PingInterval          time.Duration
	DialTimeout           time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	ReconnectMaxAttempts  int
	MessageBufferSize     int
	Logger                *zap.Logger
}

// MarketStream is the Polymarket market-channel WebSocket client. It keeps
// the subscription set, replays it on reconnect, and feeds parsed book
// snapshots into the shared cache.
type MarketStream struct {
	cfg    MarketStreamConfig
	cache  *orderbook.Cache
	logger *zap.Logger

	mu             sync.Mutex
	client         *ws.Client
	subscribed     map[string]struct{}
	tradeListeners map[string]TradeListenerFunc

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewMarketStream creates a market stream. Connect must be called before
// Subscribe takes effect on the wire.
func NewMarketStream(cfg MarketStreamConfig) (*MarketStream, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("market ws url required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("orderbook cache required")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 4096
	}
	if cfg.ReconnectBackoffMult < 1.0 {
		cfg.ReconnectBackoffMult = 2.0
	}

	return &MarketStream{
		cfg:            cfg,
		cache:          cfg.Cache,
		logger:         cfg.Logger,
		subscribed:     make(map[string]struct{}),
		tradeListeners: make(map[string]TradeListenerFunc),
	}, nil
}

type subscribeMessage struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// Connect dials the market channel and starts the receive loop. The
// current subscription set is replayed after every (re)connect.
func (s *MarketStream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return fmt.Errorf("already connected")
	}

	client, err := ws.New(ws.Config{
		Endpoints:             []string{s.cfg.URL},
		DialTimeout:           s.cfg.DialTimeout,
		PingInterval:          s.cfg.PingInterval,
		ReconnectInitialDelay: s.cfg.ReconnectInitialDelay,
		ReconnectMaxDelay:     s.cfg.ReconnectMaxDelay,
		ReconnectBackoffMult:  s.cfg.ReconnectBackoffMult,
		ReconnectMaxAttempts:  s.cfg.ReconnectMaxAttempts,
		MessageBufferSize:     s.cfg.MessageBufferSize,
		Logger:                s.logger.Named("market-ws"),
		Ping: func(c *ws.Client) error {
			return c.WriteText([]byte("PING"))
		},
		OnConnect: func(_ context.Context, c *ws.Client) error {
			return s.replaySubscriptions(c)
		},
	})
	if err != nil {
		return fmt.Errorf("create ws client: %w", err)
	}

	err = client.Start()
	if err != nil {
		return fmt.Errorf("start ws client: %w", err)
	}
	s.client = client

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.receiveLoop(ctx, client.Messages())

	return nil
}

// Disconnect stops the stream. With clearListeners the registered book and
// trade listeners are dropped too; otherwise they survive a later Connect.
func (s *MarketStream) Disconnect(clearListeners bool) {
	s.mu.Lock()
	client := s.client
	cancel := s.cancel
	s.client = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Stop()
	}
	s.wg.Wait()

	if clearListeners {
		s.cache.RemoveAllListeners(types.VenuePolymarket)
		s.mu.Lock()
		s.tradeListeners = make(map[string]TradeListenerFunc)
		s.mu.Unlock()
	}
}

// Subscribe adds assets to the subscription set and forwards only the
// newly added ones to the wire; the full set is replayed on reconnect.
// The venue replies with a full book snapshot per newly subscribed asset.
func (s *MarketStream) Subscribe(assetIDs []string) error {
	s.mu.Lock()
	added := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if _, ok := s.subscribed[id]; ok {
			continue
		}
		s.subscribed[id] = struct{}{}
		added = append(added, id)
	}
	client := s.client
	s.mu.Unlock()

	if client == nil || !client.Connected() || len(added) == 0 {
		return nil
	}
	return client.WriteJSON(subscribeMessage{Type: "market", AssetsIDs: added})
}

// Unsubscribe removes assets from the set and evicts their cached books.
// The wire protocol has no unsubscribe op; the narrowed set takes effect on
// the next reconnect.
func (s *MarketStream) Unsubscribe(assetIDs []string) {
	s.mu.Lock()
	for _, id := range assetIDs {
		delete(s.subscribed, id)
	}
	s.mu.Unlock()

	for _, id := range assetIDs {
		s.cache.Evict(types.VenuePolymarket, id)
	}
}

// AddOrderBookListener registers a cache listener scoped to this venue.
func (s *MarketStream) AddOrderBookListener(filterAssetID string, fn orderbook.ListenerFunc) string {
	return s.cache.AddListener(types.VenuePolymarket, filterAssetID, fn)
}

// RemoveOrderBookListener unregisters a cache listener.
func (s *MarketStream) RemoveOrderBookListener(id string) {
	s.cache.RemoveListener(id)
}

// AddTradeListener registers a trade-event listener.
func (s *MarketStream) AddTradeListener(fn TradeListenerFunc) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.tradeListeners[id] = fn
	s.mu.Unlock()
	return id
}

// RemoveTradeListener unregisters a trade-event listener.
func (s *MarketStream) RemoveTradeListener(id string) {
	s.mu.Lock()
	delete(s.tradeListeners, id)
	s.mu.Unlock()
}

// GetOrderBook returns the cached book for an asset.
func (s *MarketStream) GetOrderBook(assetID string) (*types.NormalizedOrderBook, bool) {
	return s.cache.Get(types.VenuePolymarket, assetID)
}

// SetAssetMetadata warms REST-sourced metadata missing from WS payloads.
func (s *MarketStream) SetAssetMetadata(assetID string, meta orderbook.Metadata) {
	s.cache.SetAssetMetadata(types.VenuePolymarket, assetID, meta)
}

func (s *MarketStream) replaySubscriptions(c *ws.Client) error {
	s.mu.Lock()
	msg := s.subscribeMessageLocked()
	s.mu.Unlock()

	if len(msg.AssetsIDs) == 0 {
		return nil
	}
	return c.WriteJSON(msg)
}

func (s *MarketStream) subscribeMessageLocked() subscribeMessage {
	ids := make([]string, 0, len(s.subscribed))
	for id := range s.subscribed {
		ids = append(ids, id)
	}
	return subscribeMessage{Type: "market", AssetsIDs: ids}
}

func (s *MarketStream) receiveLoop(ctx context.Context, frames <-chan []byte) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			s.handleFrame(frame)
		}
	}
}

type marketEvent struct {
	EventType string     `json:"event_type"`
	Market    string     `json:"market"`
	AssetID   string     `json:"asset_id"`
	Timestamp string     `json:"timestamp"`
	Bids      []rawLevel `json:"bids"`
	Asks      []rawLevel `json:"asks"`
	Changes   []struct {
		Price string `json:"price"`
		Side  string `json:"side"`
		Size  string `json:"size"`
	} `json:"changes"`
	Price string `json:"price"`
	Side  string `json:"side"`
	Size  string `json:"size"`
}

// handleFrame parses one wire frame. The first reply after a subscribe is
// an array with a full book per asset; later frames are single events.
// Plaintext PONG and duplicate-subscribe rejections are tolerated.
func (s *MarketStream) handleFrame(frame []byte) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("PONG")) {
		return
	}
	if bytes.Contains(trimmed, []byte("INVALID OPERATION")) && trimmed[0] != '{' && trimmed[0] != '[' {
		s.logger.Debug("duplicate-subscribe-tolerated")
		return
	}

	switch trimmed[0] {
	case '[':
		var events []marketEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			s.logger.Warn("parse-batch-frame-failed", zap.Error(err))
			ParseFailuresTotal.Inc()
			return
		}
		for i := range events {
			s.handleEvent(&events[i])
		}
	case '{':
		var event marketEvent
		if err := json.Unmarshal(trimmed, &event); err != nil {
			s.logger.Warn("parse-frame-failed", zap.Error(err))
			ParseFailuresTotal.Inc()
			return
		}
		s.handleEvent(&event)
	default:
		s.logger.Debug("ignoring-plaintext-frame", zap.ByteString("frame", trimmed))
	}
}

func (s *MarketStream) handleEvent(ev *marketEvent) {
	switch ev.EventType {
	case "book", "":
		s.applyBookSnapshot(ev)
	case "price_change":
		s.applyPriceChange(ev)
	case "last_trade_price":
		s.emitTrade(TradeEvent{
			AssetID:   ev.AssetID,
			EventType: ev.EventType,
			Price:     looseDecimal(ev.Price),
			Side:      types.Side(ev.Side),
			Size:      looseDecimal(ev.Size),
		})
	case "tick_size_change":
		// Metadata refresh happens over REST on the next warm cycle.
		s.logger.Info("tick-size-change", zap.String("asset-id", ev.AssetID))
	default:
	}
}

func (s *MarketStream) applyBookSnapshot(ev *marketEvent) {
	if ev.AssetID == "" {
		return
	}

	book, err := normalizeBook(&rawBook{
		Market:    ev.Market,
		AssetID:   ev.AssetID,
		Timestamp: ev.Timestamp,
		Bids:      ev.Bids,
		Asks:      ev.Asks,
	})
	if err != nil {
		s.logger.Warn("normalize-ws-book-failed",
			zap.String("asset-id", ev.AssetID), zap.Error(err))
		ParseFailuresTotal.Inc()
		return
	}

	if err := s.cache.Apply(book); err != nil {
		s.logger.Warn("apply-ws-book-failed",
			zap.String("asset-id", ev.AssetID), zap.Error(err))
	}
}

// applyPriceChange merges level deltas into the cached book. A size of
// zero removes the level. Without a cached base the delta is dropped; the
// next full snapshot rebuilds the book.
func (s *MarketStream) applyPriceChange(ev *marketEvent) {
	book, ok := s.cache.Get(types.VenuePolymarket, ev.AssetID)
	if !ok {
		s.logger.Debug("price-change-without-base-book",
			zap.String("asset-id", ev.AssetID))
		return
	}

	for _, change := range ev.Changes {
		price := looseDecimal(change.Price)
		size := looseDecimal(change.Size)

		side := types.Side(change.Side)
		switch side {
		case types.SideSell:
			book.Asks = mergeLevel(book.Asks, price, size)
		case types.SideBuy:
			book.Bids = mergeLevel(book.Bids, price, size)
		}

		s.emitTrade(TradeEvent{
			AssetID:   ev.AssetID,
			EventType: ev.EventType,
			Price:     price,
			Side:      side,
			Size:      size,
		})
	}

	if ts, err := parseMillis(ev.Timestamp); err == nil && ts > 0 {
		book.UpdateTimestampMs = ts
	} else {
		book.UpdateTimestampMs = time.Now().UnixMilli()
	}

	if err := s.cache.Apply(book); err != nil {
		s.logger.Warn("apply-price-change-failed",
			zap.String("asset-id", ev.AssetID), zap.Error(err))
	}
}

// mergeLevel replaces or removes the level at price, keeping order for the
// caller to re-sort on Apply.
func mergeLevel(levels []types.BookLevel, price, size decimal.Decimal) []types.BookLevel {
	for i := range levels {
		if levels[i].Price.Equal(price) {
			if size.IsZero() {
				return append(levels[:i], levels[i+1:]...)
			}
			levels[i].Size = size
			return levels
		}
	}
	if size.IsZero() {
		return levels
	}
	return append(levels, types.BookLevel{Price: price, Size: size})
}

func (s *MarketStream) emitTrade(ev TradeEvent) {
	s.mu.Lock()
	targets := make([]TradeListenerFunc, 0, len(s.tradeListeners))
	for _, fn := range s.tradeListeners {
		targets = append(targets, fn)
	}
	s.mu.Unlock()

	TradeEventsTotal.Inc()
	for _, fn := range targets {
		fn(ev)
	}
}

func looseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
