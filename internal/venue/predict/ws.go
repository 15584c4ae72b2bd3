package predict

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/orderbook"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	ws "github.com/apri1one/predict-arb-sub004/pkg/websocket"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// MarketStreamConfig holds Predict market feed configuration.
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

// MarketStream is the Predict market-data WebSocket client. Subscriptions
// are topic-based with incrementing request ids; the venue heartbeat is
// echoed back verbatim.
type MarketStream struct {
	cfg    MarketStreamConfig
	cache  *orderbook.Cache
	logger *zap.Logger

	mu         sync.Mutex
	client     *ws.Client
	subscribed map[string]struct{} // market ids
	requestID  int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewMarketStream creates a Predict market stream.
func NewMarketStream(cfg MarketStreamConfig) (*MarketStream, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("market ws url required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("orderbook cache required")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 4096
	}
	if cfg.ReconnectBackoffMult < 1.0 {
		cfg.ReconnectBackoffMult = 2.0
	}

	return &MarketStream{
		cfg:        cfg,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
		subscribed: make(map[string]struct{}),
	}, nil
}

type wsRequest struct {
	Method    string   `json:"method"`
	RequestID int      `json:"requestId"`
	Params    []string `json:"params"`
}

// Connect dials the feed and starts the receive loop.
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
		Logger:                s.logger.Named("predict-ws"),
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

// Disconnect stops the stream.
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
		s.cache.RemoveAllListeners(types.VenuePredict)
	}
}

// Subscribe adds orderbook topics for the given markets.
func (s *MarketStream) Subscribe(marketIDs []string) error {
	s.mu.Lock()
	topics := make([]string, 0, len(marketIDs))
	for _, id := range marketIDs {
		if _, ok := s.subscribed[id]; ok {
			continue
		}
		s.subscribed[id] = struct{}{}
		topics = append(topics, "orderbook/"+id)
	}
	client := s.client
	s.requestID++
	req := wsRequest{Method: "subscribe", RequestID: s.requestID, Params: topics}
	s.mu.Unlock()

	if client == nil || !client.Connected() || len(topics) == 0 {
		return nil
	}
	return client.WriteJSON(req)
}

// Unsubscribe removes markets and evicts their cached books.
func (s *MarketStream) Unsubscribe(marketIDs []string) error {
	s.mu.Lock()
	topics := make([]string, 0, len(marketIDs))
	for _, id := range marketIDs {
		if _, ok := s.subscribed[id]; !ok {
			continue
		}
		delete(s.subscribed, id)
		topics = append(topics, "orderbook/"+id)
	}
	client := s.client
	s.requestID++
	req := wsRequest{Method: "unsubscribe", RequestID: s.requestID, Params: topics}
	s.mu.Unlock()

	for _, id := range marketIDs {
		s.cache.Evict(types.VenuePredict, id)
	}

	if client == nil || !client.Connected() || len(topics) == 0 {
		return nil
	}
	return client.WriteJSON(req)
}

// AddOrderBookListener registers a cache listener scoped to this venue.
func (s *MarketStream) AddOrderBookListener(filterAssetID string, fn orderbook.ListenerFunc) string {
	return s.cache.AddListener(types.VenuePredict, filterAssetID, fn)
}

// RemoveOrderBookListener unregisters a cache listener.
func (s *MarketStream) RemoveOrderBookListener(id string) {
	s.cache.RemoveListener(id)
}

// GetOrderBook returns the cached book for an asset.
func (s *MarketStream) GetOrderBook(assetID string) (*types.NormalizedOrderBook, bool) {
	return s.cache.Get(types.VenuePredict, assetID)
}

// SetAssetMetadata warms REST-sourced metadata.
func (s *MarketStream) SetAssetMetadata(assetID string, meta orderbook.Metadata) {
	s.cache.SetAssetMetadata(types.VenuePredict, assetID, meta)
}

func (s *MarketStream) replaySubscriptions(c *ws.Client) error {
	s.mu.Lock()
	topics := make([]string, 0, len(s.subscribed))
	for id := range s.subscribed {
		topics = append(topics, "orderbook/"+id)
	}
	s.requestID++
	req := wsRequest{Method: "subscribe", RequestID: s.requestID, Params: topics}
	s.mu.Unlock()

	if len(topics) == 0 {
		return nil
	}
	return c.WriteJSON(req)
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

type wsEnvelope struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

func (s *MarketStream) handleFrame(frame []byte) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return
	}

	var env wsEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		s.logger.Warn("parse-frame-failed", zap.Error(err))
		ParseFailuresTotal.Inc()
		return
	}

	// Heartbeats must be echoed back or the venue drops the socket.
	if env.Type == "M" && env.Topic == "heartbeat" {
		s.echoHeartbeat(env.Data)
		return
	}

	switch env.Topic {
	case "":
		// Subscribe acks and errors.
		s.logger.Debug("ws-control-frame", zap.ByteString("frame", trimmed))
	default:
		if env.Type == "M" {
			s.handleBookMessage(env.Data)
		}
	}
}

func (s *MarketStream) echoHeartbeat(data json.RawMessage) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil || !client.Connected() {
		return
	}

	reply := struct {
		Method string          `json:"method"`
		Data   json.RawMessage `json:"data"`
	}{Method: "heartbeat", Data: data}

	if err := client.WriteJSON(reply); err != nil {
		s.logger.Warn("heartbeat-echo-failed", zap.Error(err))
	}
	HeartbeatsTotal.Inc()
}

func (s *MarketStream) handleBookMessage(data json.RawMessage) {
	var raw rawPredictBook
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("parse-book-payload-failed", zap.Error(err))
		ParseFailuresTotal.Inc()
		return
	}
	if raw.MarketID == "" && raw.TokenID == "" {
		return
	}

	book, err := normalizePredictBook(raw.MarketID, &raw)
	if err != nil {
		s.logger.Warn("normalize-ws-book-failed",
			zap.String("market-id", raw.MarketID), zap.Error(err))
		ParseFailuresTotal.Inc()
		return
	}

	if err := s.cache.Apply(book); err != nil {
		s.logger.Warn("apply-ws-book-failed",
			zap.String("market-id", raw.MarketID), zap.Error(err))
	}
}
