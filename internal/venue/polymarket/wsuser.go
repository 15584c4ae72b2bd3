package polymarket

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	ws "github.com/apri1one/predict-arb-sub004/pkg/websocket"
	"github.com/google/uuid"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// recentEventTTL keeps the last event per order so a waiter registered
// after a fast fill (IOC completing before the place response returns)
// still observes it.
const recentEventTTL = 60 * time.Second

// OrderEvent is a user-channel order update.
type OrderEvent struct {
	OrderID     string
	AssetID     string
	Status      types.OrderStatus
	SizeMatched decimal.Decimal
	Original    decimal.Decimal
	Price       decimal.Decimal
	Timestamp   time.Time
}

// UserTradeEvent is a user-channel trade (fill) notification. For IOC
// orders a trade event means a fill occurred; the final quantities come
// from a REST status read.
type UserTradeEvent struct {
	TradeID      string
	TakerOrderID string
	AssetID      string
	Price        decimal.Decimal
	Size         decimal.Decimal
	Side         types.Side
	Status       string
	MakerOrders  []string
	Timestamp    time.Time
}

// OrderEventListenerFunc receives order events inside the receive loop.
type OrderEventListenerFunc func(ev OrderEvent)

// TradeEventListenerFunc receives trade events inside the receive loop.
type TradeEventListenerFunc func(ev UserTradeEvent)

// UserStreamConfig holds user channel configuration.
type UserStreamConfig struct {
	URL                   string
	Credentials           Credentials
	PingInterval          time.Duration
	DialTimeout           time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	ReconnectMaxAttempts  int
	MessageBufferSize     int
	Logger                *zap.Logger
}

// UserStream is the authenticated Polymarket user-channel client. It fans
// order and trade events out to listeners and answers WaitForOrderFinal.
type UserStream struct {
	cfg    UserStreamConfig
	logger *zap.Logger

	mu             sync.Mutex
	client         *ws.Client
	orderListeners map[string]OrderEventListenerFunc
	tradeListeners map[string]TradeEventListenerFunc
	waiters        map[string][]chan types.OrderFinal
	recent         map[string]recentOrderEvent

	wg     sync.WaitGroup
	cancel context.CancelFunc
	now    func() time.Time
}

type recentOrderEvent struct {
	final types.OrderFinal
	seen  time.Time
}

// NewUserStream creates a user stream.
func NewUserStream(cfg UserStreamConfig) (*UserStream, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("user ws url required")
	}
	if cfg.Credentials.APIKey == "" || cfg.Credentials.Secret == "" {
		return nil, fmt.Errorf("hmac credentials required")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 1024
	}
	if cfg.ReconnectBackoffMult < 1.0 {
		cfg.ReconnectBackoffMult = 2.0
	}

	return &UserStream{
		cfg:            cfg,
		logger:         cfg.Logger,
		orderListeners: make(map[string]OrderEventListenerFunc),
		tradeListeners: make(map[string]TradeEventListenerFunc),
		waiters:        make(map[string][]chan types.OrderFinal),
		recent:         make(map[string]recentOrderEvent),
		now:            time.Now,
	}, nil
}

type userSubscribeMessage struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
	Auth    struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	} `json:"auth"`
}

// Connect dials and authenticates the user channel.
func (s *UserStream) Connect() error {
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
		Logger:                s.logger.Named("user-ws"),
		Ping: func(c *ws.Client) error {
			return c.WriteText([]byte("PING"))
		},
		OnConnect: func(_ context.Context, c *ws.Client) error {
			msg := userSubscribeMessage{Type: "USER", Markets: []string{}}
			msg.Auth.APIKey = s.cfg.Credentials.APIKey
			msg.Auth.Secret = s.cfg.Credentials.Secret
			msg.Auth.Passphrase = s.cfg.Credentials.Passphrase
			return c.WriteJSON(msg)
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

	s.wg.Add(2)
	go s.receiveLoop(ctx, client.Messages())
	go s.expireLoop(ctx)

	return nil
}

// Disconnect stops the stream and fails pending waiters.
func (s *UserStream) Disconnect(clearListeners bool) {
	s.mu.Lock()
	client := s.client
	cancel := s.cancel
	s.client = nil
	s.cancel = nil
	waiters := s.waiters
	s.waiters = make(map[string][]chan types.OrderFinal)
	if clearListeners {
		s.orderListeners = make(map[string]OrderEventListenerFunc)
		s.tradeListeners = make(map[string]TradeEventListenerFunc)
	}
	s.mu.Unlock()

	for _, chans := range waiters {
		for _, ch := range chans {
			close(ch)
		}
	}

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Stop()
	}
	s.wg.Wait()
}

// AddOrderEventListener registers an order-event listener.
func (s *UserStream) AddOrderEventListener(fn OrderEventListenerFunc) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.orderListeners[id] = fn
	s.mu.Unlock()
	return id
}

// AddTradeEventListener registers a trade-event listener.
func (s *UserStream) AddTradeEventListener(fn TradeEventListenerFunc) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.tradeListeners[id] = fn
	s.mu.Unlock()
	return id
}

// RemoveListener unregisters either kind of listener.
func (s *UserStream) RemoveListener(id string) {
	s.mu.Lock()
	delete(s.orderListeners, id)
	delete(s.tradeListeners, id)
	s.mu.Unlock()
}

// WaitForOrderFinal blocks until a terminal event for the order arrives or
// the timeout elapses. Recently seen terminal events are answered from the
// short-lived cache. The waiter is unregistered on expiry.
func (s *UserStream) WaitForOrderFinal(ctx context.Context, orderID string, timeout time.Duration) (*types.OrderFinal, error) {
	ch := make(chan types.OrderFinal, 1)

	s.mu.Lock()
	if rec, ok := s.recent[orderID]; ok && s.now().Sub(rec.seen) < recentEventTTL {
		s.mu.Unlock()
		final := rec.final
		return &final, nil
	}
	s.waiters[orderID] = append(s.waiters[orderID], ch)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case final, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("user stream disconnected while waiting for order %s", orderID)
		}
		return &final, nil
	case <-timer.C:
		s.removeWaiter(orderID, ch)
		return nil, fmt.Errorf("timeout waiting for order %s", orderID)
	case <-ctx.Done():
		s.removeWaiter(orderID, ch)
		return nil, ctx.Err()
	}
}

func (s *UserStream) removeWaiter(orderID string, ch chan types.OrderFinal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chans := s.waiters[orderID]
	for i := range chans {
		if chans[i] == ch {
			s.waiters[orderID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(s.waiters[orderID]) == 0 {
		delete(s.waiters, orderID)
	}
}

func (s *UserStream) receiveLoop(ctx context.Context, frames <-chan []byte) {
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

// expireLoop evicts recent-event cache entries past their TTL.
func (s *UserStream) expireLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(recentEventTTL / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for id, rec := range s.recent {
				if now.Sub(rec.seen) >= recentEventTTL {
					delete(s.recent, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

type userEvent struct {
	EventType    string   `json:"event_type"`
	ID           string   `json:"id"`
	AssetID      string   `json:"asset_id"`
	Status       string   `json:"status"`
	Type         string   `json:"type"`
	Side         string   `json:"side"`
	Price        string   `json:"price"`
	Size         string   `json:"size"`
	SizeMatched  string   `json:"size_matched"`
	OriginalSize string   `json:"original_size"`
	TakerOrderID string   `json:"taker_order_id"`
	Timestamp    string   `json:"timestamp"`
	MakerOrders  []struct {
		OrderID string `json:"order_id"`
	} `json:"maker_orders"`
}

func (s *UserStream) handleFrame(frame []byte) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("PONG")) {
		return
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		s.logger.Debug("ignoring-plaintext-frame", zap.ByteString("frame", trimmed))
		return
	}

	var events []userEvent
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			s.logger.Warn("parse-user-batch-failed", zap.Error(err))
			ParseFailuresTotal.Inc()
			return
		}
	} else {
		var ev userEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			s.logger.Warn("parse-user-frame-failed", zap.Error(err))
			ParseFailuresTotal.Inc()
			return
		}
		events = append(events, ev)
	}

	for i := range events {
		s.handleEvent(&events[i])
	}
}

func (s *UserStream) handleEvent(ev *userEvent) {
	switch ev.EventType {
	case "order":
		s.handleOrderEvent(ev)
	case "trade":
		s.handleTradeEvent(ev)
	default:
	}
}

func (s *UserStream) handleOrderEvent(ev *userEvent) {
	matched := looseDecimal(ev.SizeMatched)
	original := looseDecimal(ev.OriginalSize)
	status := mapOrderStatus(ev.Status, original, matched)

	event := OrderEvent{
		OrderID:     ev.ID,
		AssetID:     ev.AssetID,
		Status:      status,
		SizeMatched: matched,
		Original:    original,
		Price:       looseDecimal(ev.Price),
		Timestamp:   parseEventTime(ev.Timestamp, s.now),
	}

	UserOrderEventsTotal.Inc()

	s.mu.Lock()
	listeners := make([]OrderEventListenerFunc, 0, len(s.orderListeners))
	for _, fn := range s.orderListeners {
		listeners = append(listeners, fn)
	}

	var notify []chan types.OrderFinal
	if status.IsTerminal() {
		final := types.OrderFinal{
			OrderID:   ev.ID,
			Status:    status,
			FilledQty: matched,
			AvgPrice:  event.Price,
		}
		s.recent[ev.ID] = recentOrderEvent{final: final, seen: s.now()}
		notify = s.waiters[ev.ID]
		delete(s.waiters, ev.ID)
		s.mu.Unlock()

		for _, ch := range notify {
			ch <- final
			close(ch)
		}
	} else {
		s.mu.Unlock()
	}

	for _, fn := range listeners {
		fn(event)
	}
}

func (s *UserStream) handleTradeEvent(ev *userEvent) {
	makerIDs := make([]string, 0, len(ev.MakerOrders))
	for _, m := range ev.MakerOrders {
		makerIDs = append(makerIDs, m.OrderID)
	}

	event := UserTradeEvent{
		TradeID:      ev.ID,
		TakerOrderID: ev.TakerOrderID,
		AssetID:      ev.AssetID,
		Price:        looseDecimal(ev.Price),
		Size:         looseDecimal(ev.Size),
		Side:         types.Side(strings.ToUpper(ev.Side)),
		Status:       ev.Status,
		MakerOrders:  makerIDs,
		Timestamp:    parseEventTime(ev.Timestamp, s.now),
	}

	UserTradeEventsTotal.Inc()

	s.mu.Lock()
	listeners := make([]TradeEventListenerFunc, 0, len(s.tradeListeners))
	for _, fn := range s.tradeListeners {
		listeners = append(listeners, fn)
	}

	// A trade on the taker order means a fill happened. Resolve waiters
	// with a FILLED hint; the caller's REST confirm read settles the
	// exact quantities.
	var notify []chan types.OrderFinal
	var final types.OrderFinal
	if ev.TakerOrderID != "" {
		final = types.OrderFinal{
			OrderID:   ev.TakerOrderID,
			Status:    types.OrderFilled,
			FilledQty: event.Size,
			AvgPrice:  event.Price,
		}
		s.recent[ev.TakerOrderID] = recentOrderEvent{final: final, seen: s.now()}
		notify = s.waiters[ev.TakerOrderID]
		delete(s.waiters, ev.TakerOrderID)
	}
	s.mu.Unlock()

	for _, ch := range notify {
		ch <- final
		close(ch)
	}

	for _, fn := range listeners {
		fn(event)
	}
}

func parseEventTime(s string, now func() time.Time) time.Time {
	ts, err := parseMillis(s)
	if err != nil || ts <= 0 {
		return now()
	}
	return time.UnixMilli(ts)
}
