package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// VenueWallet binds a collateral reader to one venue's trading wallet.
type VenueWallet struct {
	Name   string
	Client *Client
	Owner  common.Address
}

// TrackerConfig holds tracker configuration.
type TrackerConfig struct {
	Wallets      []VenueWallet
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Tracker periodically polls each venue wallet's collateral state into
// Prometheus gauges.
type Tracker struct {
	wallets      []VenueWallet
	pollInterval time.Duration
	logger       *zap.Logger
}

// New creates a collateral tracker.
func New(cfg *TrackerConfig) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if len(cfg.Wallets) == 0 {
		return nil, errors.New("at least one venue wallet required")
	}
	for _, w := range cfg.Wallets {
		if w.Name == "" || w.Client == nil {
			return nil, errors.New("venue wallet needs a name and a client")
		}
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Tracker{
		wallets:      cfg.Wallets,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}, nil
}

// Run starts the polling loop and blocks until the context ends.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.Int("wallets", len(t.wallets)))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	t.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")
			return ctx.Err()
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// poll performs one polling cycle across all venue wallets. Per-venue
// failures are counted and logged, never fatal.
func (t *Tracker) poll(ctx context.Context) {
	for _, w := range t.wallets {
		start := time.Now()

		callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		col, err := w.Client.GetCollateral(callCtx, w.Owner)
		cancel()

		UpdateDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			UpdateErrorsTotal.WithLabelValues(w.Name).Inc()
			t.logger.Error("collateral-poll-failed",
				zap.String("venue", w.Name),
				zap.Error(err))
			continue
		}

		native, _ := col.Native.Float64()
		token, _ := col.Token.Float64()
		allowance, _ := col.Allowance.Float64()

		NativeBalance.WithLabelValues(w.Name).Set(native)
		CollateralBalance.WithLabelValues(w.Name).Set(token)
		CollateralAllowance.WithLabelValues(w.Name).Set(allowance)
		LastUpdateTimestamp.WithLabelValues(w.Name).Set(float64(time.Now().Unix()))

		t.logger.Debug("collateral-poll-complete",
			zap.String("venue", w.Name),
			zap.String("collateral", col.Token.StringFixed(2)),
			zap.Duration("duration", time.Since(start)))
	}
}
