package predict

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// recentEventTTL keeps decoded fills around so a watcher registered after
// a fast fill still observes the event.
const recentEventTTL = 60 * time.Second

// OrderFilledTopic is the event signature hash of
// OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256).
var OrderFilledTopic = common.HexToHash("0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6")

// OrderFilledEvent is a decoded on-chain fill.
type OrderFilledEvent struct {
	OrderHash         common.Hash
	Maker             common.Address
	Taker             common.Address
	MakerAssetID      *big.Int
	TakerAssetID      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int
	BlockNumber       uint64
	TxHash            common.Hash
}

// logSubscriber is the slice of ethclient the watcher needs.
type logSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error)
	Close()
}

// dialFunc opens a subscriber; swapped out in tests.
type dialFunc func(ctx context.Context, url string) (logSubscriber, error)

func dialEthClient(ctx context.Context, url string) (logSubscriber, error) {
	return ethclient.DialContext(ctx, url)
}

// ChainWatcherConfig holds on-chain watcher configuration.
type ChainWatcherConfig struct {
	// Endpoints are BSC WSS urls; each reconnect tries the next.
	Endpoints      []string
	Contracts      ExchangeContracts
	SmartWallet    common.Address
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

// ChainWatcher subscribes to OrderFilled logs on the four exchange
// contracts, filtered on maker=self and taker=self, and answers
// WatchOrder by order hash. Events are retained for a short TTL so a
// watcher registered after a fast fill still observes it.
type ChainWatcher struct {
	cfg    ChainWatcherConfig
	logger *zap.Logger
	dial   dialFunc

	mu      sync.Mutex
	recent  map[common.Hash]recentFill
	waiters map[common.Hash][]chan OrderFilledEvent
	nextEP  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

type recentFill struct {
	event OrderFilledEvent
	seen  time.Time
}

// NewChainWatcher creates a watcher.
func NewChainWatcher(cfg ChainWatcherConfig) (*ChainWatcher, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one wss endpoint required")
	}
	if cfg.SmartWallet == (common.Address{}) {
		return nil, fmt.Errorf("smart wallet address required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}

	return &ChainWatcher{
		cfg:     cfg,
		logger:  cfg.Logger,
		dial:    dialEthClient,
		recent:  make(map[common.Hash]recentFill),
		waiters: make(map[common.Hash][]chan OrderFilledEvent),
		now:     time.Now,
	}, nil
}

// Start launches the subscription loop.
func (w *ChainWatcher) Start() error {
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.wg.Add(2)
	go w.run()
	go w.expireLoop()

	return nil
}

// Stop terminates subscriptions and fails pending watchers.
func (w *ChainWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.mu.Lock()
	waiters := w.waiters
	w.waiters = make(map[common.Hash][]chan OrderFilledEvent)
	w.mu.Unlock()

	for _, chans := range waiters {
		for _, ch := range chans {
			close(ch)
		}
	}
}

// WatchOrder blocks until the order's OrderFilled event is seen or the
// timeout elapses. The listener is unregistered on expiry.
func (w *ChainWatcher) WatchOrder(ctx context.Context, orderHash common.Hash, timeout time.Duration) (*OrderFilledEvent, error) {
	ch := make(chan OrderFilledEvent, 1)

	w.mu.Lock()
	if rec, ok := w.recent[orderHash]; ok && w.now().Sub(rec.seen) < recentEventTTL {
		w.mu.Unlock()
		event := rec.event
		return &event, nil
	}
	w.waiters[orderHash] = append(w.waiters[orderHash], ch)
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case event, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("chain watcher stopped while watching %s", orderHash.Hex())
		}
		return &event, nil
	case <-timer.C:
		w.removeWaiter(orderHash, ch)
		return nil, fmt.Errorf("timeout watching order %s", orderHash.Hex())
	case <-ctx.Done():
		w.removeWaiter(orderHash, ch)
		return nil, ctx.Err()
	}
}

func (w *ChainWatcher) removeWaiter(orderHash common.Hash, ch chan OrderFilledEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	chans := w.waiters[orderHash]
	for i := range chans {
		if chans[i] == ch {
			w.waiters[orderHash] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(w.waiters[orderHash]) == 0 {
		delete(w.waiters, orderHash)
	}
}

// run dials endpoints in rotation and keeps two subscriptions alive, one
// filtered on maker=self and one on taker=self.
func (w *ChainWatcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		endpoint := w.nextEndpoint()
		err := w.subscribeOnce(endpoint)
		if err != nil && w.ctx.Err() == nil {
			w.logger.Warn("chain-subscription-lost",
				zap.String("endpoint", endpoint), zap.Error(err))
			ChainReconnectsTotal.Inc()
		}

		select {
		case <-w.ctx.Done():
			return
		case <-time.After(w.cfg.ReconnectDelay):
		}
	}
}

func (w *ChainWatcher) nextEndpoint() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	ep := w.cfg.Endpoints[w.nextEP%len(w.cfg.Endpoints)]
	w.nextEP++
	return ep
}

func (w *ChainWatcher) subscribeOnce(endpoint string) error {
	client, err := w.dial(w.ctx, endpoint)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer client.Close()

	addresses := []common.Address{
		w.cfg.Contracts.CTF,
		w.cfg.Contracts.NegRiskCTF,
		w.cfg.Contracts.YieldBearing,
		w.cfg.Contracts.YieldBearingNegRisk,
	}
	selfTopic := common.BytesToHash(w.cfg.SmartWallet.Bytes())

	logs := make(chan ethtypes.Log, 256)

	// maker = self
	makerSub, err := client.SubscribeFilterLogs(w.ctx, ethereum.FilterQuery{
		Addresses: addresses,
		Topics:    [][]common.Hash{{OrderFilledTopic}, nil, {selfTopic}},
	}, logs)
	if err != nil {
		return fmt.Errorf("subscribe maker logs: %w", err)
	}
	defer makerSub.Unsubscribe()

	// taker = self
	takerSub, err := client.SubscribeFilterLogs(w.ctx, ethereum.FilterQuery{
		Addresses: addresses,
		Topics:    [][]common.Hash{{OrderFilledTopic}, nil, nil, {selfTopic}},
	}, logs)
	if err != nil {
		return fmt.Errorf("subscribe taker logs: %w", err)
	}
	defer takerSub.Unsubscribe()

	w.logger.Info("chain-watcher-subscribed",
		zap.String("endpoint", endpoint),
		zap.String("smart-wallet", w.cfg.SmartWallet.Hex()))

	for {
		select {
		case <-w.ctx.Done():
			return nil
		case err := <-makerSub.Err():
			return fmt.Errorf("maker subscription: %w", err)
		case err := <-takerSub.Err():
			return fmt.Errorf("taker subscription: %w", err)
		case lg := <-logs:
			w.handleLog(lg)
		}
	}
}

func (w *ChainWatcher) handleLog(lg ethtypes.Log) {
	event, err := decodeOrderFilled(lg)
	if err != nil {
		w.logger.Warn("decode-order-filled-failed",
			zap.String("tx", lg.TxHash.Hex()), zap.Error(err))
		return
	}

	OrderFilledEventsTotal.Inc()
	w.logger.Debug("order-filled-observed",
		zap.String("order-hash", event.OrderHash.Hex()),
		zap.Uint64("block", event.BlockNumber))

	w.mu.Lock()
	w.recent[event.OrderHash] = recentFill{event: *event, seen: w.now()}
	notify := w.waiters[event.OrderHash]
	delete(w.waiters, event.OrderHash)
	w.mu.Unlock()

	for _, ch := range notify {
		ch <- *event
		close(ch)
	}
}

// decodeOrderFilled parses an OrderFilled log. Topics carry the order
// hash, maker and taker; the data section carries five uint256 words.
func decodeOrderFilled(lg ethtypes.Log) (*OrderFilledEvent, error) {
	if len(lg.Topics) < 4 {
		return nil, fmt.Errorf("expected 4 topics, got %d", len(lg.Topics))
	}
	if lg.Topics[0] != OrderFilledTopic {
		return nil, fmt.Errorf("unexpected event signature %s", lg.Topics[0].Hex())
	}
	if len(lg.Data) < 5*32 {
		return nil, fmt.Errorf("data too short: %d bytes", len(lg.Data))
	}

	word := func(i int) *big.Int {
		return new(big.Int).SetBytes(lg.Data[i*32 : (i+1)*32])
	}

	return &OrderFilledEvent{
		OrderHash:         lg.Topics[1],
		Maker:             common.BytesToAddress(lg.Topics[2].Bytes()),
		Taker:             common.BytesToAddress(lg.Topics[3].Bytes()),
		MakerAssetID:      word(0),
		TakerAssetID:      word(1),
		MakerAmountFilled: word(2),
		TakerAmountFilled: word(3),
		Fee:               word(4),
		BlockNumber:       lg.BlockNumber,
		TxHash:            lg.TxHash,
	}, nil
}

// expireLoop evicts recent fills past their TTL.
func (w *ChainWatcher) expireLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(recentEventTTL / 4)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			now := w.now()
			w.mu.Lock()
			for hash, rec := range w.recent {
				if now.Sub(rec.seen) >= recentEventTTL {
					delete(w.recent, hash)
				}
			}
			w.mu.Unlock()
		}
	}
}
