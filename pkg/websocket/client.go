// Package websocket provides the shared WebSocket client used by every
// venue feed: dial with endpoint rotation, read/ping/reconnect loops,
// exponential-backoff reconnection and raw-frame delivery.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the connection state machine position.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// Config holds WebSocket client configuration.
type Config struct {
	// Endpoints is the rotation list; each reconnect attempt tries the next.
	Endpoints             []string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	// ReconnectMaxAttempts caps attempts per outage; 0 means unlimited.
	ReconnectMaxAttempts int
	MessageBufferSize    int
	Logger               *zap.Logger

	// Ping writes a venue heartbeat frame. Nil sends a control ping.
	Ping func(c *Client) error
	// OnConnect runs after every successful (re)connect, before the read
	// loop resumes. Used for auth handshakes and subscription replay.
	OnConnect func(ctx context.Context, c *Client) error
}

// Client manages a single WebSocket connection with automatic reconnection.
// Raw frames are delivered on Messages(); parsing belongs to the venue
// clients.
type Client struct {
	config          Config
	logger          *zap.Logger
	reconnectMgr    *ReconnectManager
	endpoints       *EndpointRotation
	conn            *websocket.Conn
	messageChan     chan []byte
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	mu              sync.RWMutex
	state           atomic.Int32
	shouldReconnect atomic.Bool
	connectionStart atomic.Int64
}

// New creates a new WebSocket client.
func New(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
		MaxAttempts:       cfg.ReconnectMaxAttempts,
	}

	c := &Client{
		config:       cfg,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		endpoints:    NewEndpointRotation(cfg.Endpoints),
		messageChan:  make(chan []byte, cfg.MessageBufferSize),
		ctx:          ctx,
		cancel:       cancel,
	}
	c.shouldReconnect.Store(true)

	return c, nil
}

// Start dials the first endpoint and launches the read/ping/reconnect loops.
func (c *Client) Start() error {
	c.logger.Info("websocket-client-starting", zap.Strings("endpoints", c.config.Endpoints))

	err := c.connect(c.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	c.wg.Add(3)
	go c.readLoop()
	go c.pingLoop()
	go c.reconnectLoop()

	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connected reports whether the socket is currently up.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// connect establishes a WebSocket connection to the next rotation endpoint.
func (c *Client) connect(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))

	endpoint := c.endpoints.Next()
	dialer := websocket.Dialer{HandshakeTimeout: c.config.DialTimeout}

	c.logger.Info("connecting-to-websocket", zap.String("endpoint", endpoint))

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	c.connectionStart.Store(time.Now().Unix())
	ActiveConnections.Inc()

	if c.config.OnConnect != nil {
		err = c.config.OnConnect(ctx, c)
		if err != nil {
			c.state.Store(int32(StateDisconnected))
			ActiveConnections.Dec()
			_ = conn.Close()
			return fmt.Errorf("on-connect hook: %w", err)
		}
	}

	c.logger.Info("websocket-connected", zap.String("endpoint", endpoint))

	return nil
}

// WriteJSON marshals v and writes it as a text frame.
func (c *Client) WriteJSON(v interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteJSON(v)
}

// WriteText writes a raw text frame.
func (c *Client) WriteText(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the channel of raw inbound frames.
func (c *Client) Messages() <-chan []byte {
	return c.messageChan
}

// readLoop reads frames until the connection drops.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}

			c.logger.Warn("read-error", zap.Error(err))

			startTime := c.connectionStart.Load()
			if startTime > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			c.state.Store(int32(StateDisconnected))
			ActiveConnections.Dec()
			return
		}

		MessagesReceivedTotal.Inc()

		select {
		case c.messageChan <- message:
		default:
			c.logger.Warn("message-channel-full", zap.Int("bytes", len(message)))
			MessagesDroppedTotal.Inc()
		}
	}
}

// pingLoop sends the venue heartbeat on a fixed interval.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.Connected() {
				continue
			}

			var err error
			if c.config.Ping != nil {
				err = c.config.Ping(c)
			} else {
				c.mu.RLock()
				conn := c.conn
				c.mu.RUnlock()
				if conn == nil {
					continue
				}
				err = conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			}
			if err != nil {
				c.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop reconnects after disconnection unless Stop was called.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if c.State() != StateDisconnected {
			time.Sleep(time.Second)
			continue
		}

		if !c.shouldReconnect.Load() {
			return
		}

		c.state.Store(int32(StateReconnecting))
		c.logger.Warn("connection-lost-initiating-reconnect")

		err := c.reconnectMgr.Reconnect(c.ctx, c.connect)
		if err != nil {
			if err == context.Canceled {
				return
			}
			c.logger.Error("reconnection-failed", zap.Error(err))
			c.state.Store(int32(StateDisconnected))
			continue
		}

		c.logger.Info("reconnection-complete-restarting-read-loop")

		c.wg.Add(1)
		go c.readLoop()
	}
}

// Stop closes the connection and disables reconnection. Safe to call from
// exceptional exit paths; all loops terminate and timers are released.
func (c *Client) Stop() {
	c.logger.Info("closing-websocket-client")

	c.shouldReconnect.Store(false)
	c.cancel()

	c.mu.RLock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.RUnlock()

	c.wg.Wait()
	close(c.messageChan)

	if c.State() == StateConnected {
		ActiveConnections.Dec()
	}
	c.state.Store(int32(StateDisconnected))

	c.logger.Info("websocket-client-closed")
}
