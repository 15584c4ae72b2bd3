package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apri1one/predict-arb-sub004/internal/circuitbreaker"
	"github.com/apri1one/predict-arb-sub004/internal/discovery"
	"github.com/apri1one/predict-arb-sub004/internal/execution"
	"github.com/apri1one/predict-arb-sub004/internal/markets"
	"github.com/apri1one/predict-arb-sub004/internal/orderbook"
	"github.com/apri1one/predict-arb-sub004/internal/positions"
	"github.com/apri1one/predict-arb-sub004/internal/scheduler"
	"github.com/apri1one/predict-arb-sub004/internal/storage"
	"github.com/apri1one/predict-arb-sub004/internal/tasklog"
	"github.com/apri1one/predict-arb-sub004/internal/venue/polymarket"
	"github.com/apri1one/predict-arb-sub004/internal/venue/predict"
	"github.com/apri1one/predict-arb-sub004/pkg/cache"
	"github.com/apri1one/predict-arb-sub004/pkg/config"
	"github.com/apri1one/predict-arb-sub004/pkg/healthprobe"
	"github.com/apri1one/predict-arb-sub004/pkg/httpserver"
	"github.com/apri1one/predict-arb-sub004/pkg/keypool"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/apri1one/predict-arb-sub004/pkg/wallet"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		ctx:           ctx,
		cancel:        cancel,
	}

	appCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}
	a.appCache = appCache
	a.books = orderbook.NewCache(logger)

	breakers, err := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureLimit: cfg.BreakerFailureLimit,
		Cooldown:     cfg.BreakerCooldown,
		Logger:       logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup breakers: %w", err)
	}

	signer, err := setupPredictSigner(cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup predict signer: %w", err)
	}

	if err := a.setupPredict(cfg, logger, signer, breakers); err != nil {
		cancel()
		return nil, err
	}
	if err := a.setupPolymarket(cfg, logger, breakers); err != nil {
		cancel()
		return nil, err
	}
	if err := a.setupDiscovery(cfg, logger); err != nil {
		cancel()
		return nil, err
	}
	if err := a.setupReconciler(cfg, logger); err != nil {
		cancel()
		return nil, err
	}
	if err := a.setupTaskPipeline(cfg, logger, signer); err != nil {
		cancel()
		return nil, err
	}
	if err := a.setupWalletTracker(cfg, logger); err != nil {
		cancel()
		return nil, err
	}

	a.httpServer = a.setupHTTPServer(cfg, logger)
	return a, nil
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

// setupPredictSigner builds the smart-wallet order signer. Running without
// trade keys is allowed; the engine then only observes.
func setupPredictSigner(cfg *config.Config) (*predict.Signer, error) {
	if cfg.PredictSignerPrivateKey == "" || cfg.PredictSmartWallet == "" {
		return nil, nil
	}
	return predict.NewSigner(cfg.PredictSignerPrivateKey, cfg.PredictSmartWallet, predict.DefaultExchangeContracts)
}

func (a *App) setupPredict(cfg *config.Config, logger *zap.Logger, signer *predict.Signer, breakers *circuitbreaker.Registry) error {
	scanKeys := cfg.ScanKeys()
	if len(scanKeys) == 0 {
		return fmt.Errorf("predict api key required (PREDICT_API_KEY)")
	}
	pool, err := keypool.New(scanKeys, cfg.RateLimitKeyCooldown)
	if err != nil {
		return fmt.Errorf("setup key pool: %w", err)
	}

	var auth *predict.Authenticator
	if signer != nil {
		auth, err = predict.NewAuthenticator(predict.AuthConfig{
			BaseURL:        cfg.PredictAPIBaseURL,
			Signer:         signer,
			RequestTimeout: cfg.RESTRequestTimeout,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("setup predict auth: %w", err)
		}
	}

	a.predictClient, err = predict.NewClient(predict.ClientConfig{
		BaseURL:        cfg.PredictAPIBaseURL,
		ScanKeys:       pool,
		TradeKey:       cfg.TradeKey(),
		Auth:           auth,
		RequestTimeout: cfg.RESTRequestTimeout,
		Breakers:       breakers,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("setup predict client: %w", err)
	}

	a.predictStream, err = predict.NewMarketStream(predict.MarketStreamConfig{
		URL:                   cfg.PredictWSURL,
		Cache:                 a.books,
		PingInterval:          cfg.WSPingInterval,
		DialTimeout:           cfg.WSDialTimeout,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		ReconnectMaxAttempts:  cfg.WSReconnectMaxAttempts,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("setup predict market stream: %w", err)
	}

	if len(cfg.BSCWssURLs) > 0 && cfg.PredictSmartWallet != "" {
		a.chainWatcher, err = predict.NewChainWatcher(predict.ChainWatcherConfig{
			Endpoints:      cfg.BSCWssURLs,
			Contracts:      predict.DefaultExchangeContracts,
			SmartWallet:    common.HexToAddress(cfg.PredictSmartWallet),
			ReconnectDelay: cfg.WSReconnectInitialDelay,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("setup chain watcher: %w", err)
		}
	} else {
		logger.Info("chain-watcher-disabled",
			zap.Int("bsc-endpoints", len(cfg.BSCWssURLs)))
	}
	return nil
}

func (a *App) setupPolymarket(cfg *config.Config, logger *zap.Logger, breakers *circuitbreaker.Registry) error {
	creds := polymarket.Credentials{
		APIKey:     cfg.PolymarketAPIKey,
		Secret:     cfg.PolymarketSecret,
		Passphrase: cfg.PolymarketPassphrase,
		Address:    cfg.PolymarketTraderAddress,
	}

	var err error
	a.polyClient, err = polymarket.NewClient(polymarket.ClientConfig{
		CLOBURL:        cfg.PolymarketCLOBURL,
		DataAPIURL:     cfg.PolymarketDataAPIURL,
		Credentials:    creds,
		RequestTimeout: cfg.RESTRequestTimeout,
		Breakers:       breakers,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("setup polymarket client: %w", err)
	}

	a.polyStream, err = polymarket.NewMarketStream(polymarket.MarketStreamConfig{
		URL:                   cfg.PolymarketWSURL,
		Cache:                 a.books,
		PingInterval:          cfg.WSPingInterval,
		DialTimeout:           cfg.WSDialTimeout,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		ReconnectMaxAttempts:  cfg.WSReconnectMaxAttempts,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("setup polymarket market stream: %w", err)
	}

	if creds.APIKey != "" {
		a.userStream, err = polymarket.NewUserStream(polymarket.UserStreamConfig{
			URL:                   cfg.PolymarketUserWSURL,
			Credentials:           creds,
			PingInterval:          cfg.WSPingInterval,
			DialTimeout:           cfg.WSDialTimeout,
			ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
			ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
			ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
			ReconnectMaxAttempts:  cfg.WSReconnectMaxAttempts,
			MessageBufferSize:     cfg.WSMessageBufferSize,
			Logger:                logger,
		})
		if err != nil {
			return fmt.Errorf("setup polymarket user stream: %w", err)
		}
	} else {
		logger.Info("user-stream-disabled", zap.String("reason", "no clob credentials"))
	}
	return nil
}

func (a *App) setupDiscovery(cfg *config.Config, logger *zap.Logger) error {
	svc, err := discovery.New(discovery.Config{
		MappingFile:     cfg.MappingFile,
		Predict:         a.predictClient,
		Polymarket:      a.polyClient,
		Cache:           a.appCache,
		RefreshInterval: cfg.MappingRefresh,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("setup discovery: %w", err)
	}
	a.discovery = svc

	a.warmer, err = markets.NewWarmer(markets.WarmerConfig{
		Fetcher: markets.NewFetcher(a.predictClient, a.polyClient, logger),
		Books:   a.books,
		Cache:   a.appCache,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("setup metadata warmer: %w", err)
	}
	return nil
}

func (a *App) setupReconciler(cfg *config.Config, logger *zap.Logger) error {
	polyWallet := cfg.PolymarketProxyAddress
	if polyWallet == "" {
		polyWallet = cfg.PolymarketTraderAddress
	}

	rec, err := positions.NewReconciler(positions.Config{
		Predict:          a.predictClient,
		Polymarket:       a.polyClient,
		PredictWallet:    cfg.PredictSmartWallet,
		PolymarketWallet: polyWallet,
		Mappings:         a.discovery,
		Books:            a.books,
		Cache:            a.appCache,
		CacheTTL:         cfg.AccountCacheTTL,
		Interval:         cfg.ReconcileInterval,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("setup reconciler: %w", err)
	}
	a.reconciler = rec
	return nil
}

// setupTaskPipeline wires the durable log, the relational index and the
// scheduler. Without both venues' signing keys the scheduler stays off and
// the engine runs observe-only.
func (a *App) setupTaskPipeline(cfg *config.Config, logger *zap.Logger, signer *predict.Signer) error {
	index, err := setupIndex(cfg, logger)
	if err != nil {
		return fmt.Errorf("setup task index: %w", err)
	}
	a.index = index

	a.taskLogs, err = tasklog.NewStore(tasklog.Config{
		Dir:    filepath.Join(cfg.DataDir, "logs", "tasks"),
		Index:  index,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("setup task log store: %w", err)
	}

	if signer == nil || cfg.PolymarketTraderPrivKey == "" {
		logger.Info("scheduler-disabled",
			zap.String("reason", "missing signing keys, running observe-only"))
		return nil
	}

	builder, err := polymarket.NewOrderBuilder(polymarket.OrderBuilderConfig{
		PrivateKey:    cfg.PolymarketTraderPrivKey,
		ProxyAddress:  cfg.PolymarketProxyAddress,
		SignatureType: cfg.PolymarketSigType,
		APIKey:        cfg.PolymarketAPIKey,
	})
	if err != nil {
		return fmt.Errorf("setup order builder: %w", err)
	}

	predictGW := &execution.PredictGateway{
		Signer:  signer,
		Client:  a.predictClient,
		Watcher: a.chainWatcher,
	}
	polyGW := &execution.PolymarketGateway{
		Builder: builder,
		Client:  a.polyClient,
		User:    a.userStream,
	}

	runner, err := execution.NewRunner(execution.RunnerConfig{
		Predict:      predictGW,
		Polymarket:   polyGW,
		PredictWatch: predictGW,
		PolyWatch:    polyGW,
		Books:        a.books,
		PollInterval: cfg.OrderPollInterval,
		OrderTimeout: cfg.OrderTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("setup task runner: %w", err)
	}

	a.scheduler, err = scheduler.New(scheduler.Config{
		Runner: runner,
		Logs: scheduler.LogFactoryFunc(func(task *types.Task) (scheduler.TaskLog, error) {
			return a.taskLogs.Open(task)
		}),
		DefaultMaxHedgeRetries: cfg.MaxHedgeRetries,
		Logger:                 logger,
	})
	if err != nil {
		return fmt.Errorf("setup scheduler: %w", err)
	}
	return nil
}

// setupWalletTracker polls collateral gauges for whichever venue wallets
// are configured. No wallets means no tracker.
func (a *App) setupWalletTracker(cfg *config.Config, logger *zap.Logger) error {
	var wallets []wallet.VenueWallet

	if cfg.PredictSmartWallet != "" && cfg.BSCRPCURL != "" {
		client, err := wallet.NewClient(wallet.Config{
			RPCURL:        cfg.BSCRPCURL,
			Token:         wallet.BSCUSDT,
			Spender:       predict.DefaultExchangeContracts.CTF,
			TokenDecimals: 18,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("setup predict wallet client: %w", err)
		}
		wallets = append(wallets, wallet.VenueWallet{
			Name:   string(types.VenuePredict),
			Client: client,
			Owner:  common.HexToAddress(cfg.PredictSmartWallet),
		})
	}

	polyWallet := cfg.PolymarketProxyAddress
	if polyWallet == "" {
		polyWallet = cfg.PolymarketTraderAddress
	}
	if polyWallet != "" && cfg.PolygonRPCURL != "" {
		client, err := wallet.NewClient(wallet.Config{
			RPCURL:        cfg.PolygonRPCURL,
			Token:         wallet.PolygonUSDC,
			Spender:       wallet.PolygonCTFExchange,
			TokenDecimals: 6,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("setup polymarket wallet client: %w", err)
		}
		wallets = append(wallets, wallet.VenueWallet{
			Name:   string(types.VenuePolymarket),
			Client: client,
			Owner:  common.HexToAddress(polyWallet),
		})
	}

	if len(wallets) == 0 {
		logger.Info("wallet-tracker-disabled", zap.String("reason", "no venue wallets configured"))
		return nil
	}

	tracker, err := wallet.New(&wallet.TrackerConfig{
		Wallets:      wallets,
		PollInterval: cfg.WalletPollInterval,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("setup wallet tracker: %w", err)
	}
	a.walletTracker = tracker
	return nil
}

func setupIndex(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.IndexDriver {
	case "sqlite":
		path := cfg.IndexDSN
		if path == "" {
			path = filepath.Join(cfg.DataDir, "logs", "index.db")
		}
		return storage.NewSQLiteStore(path, logger)
	case "postgres":
		return storage.NewPostgresStoreDSN(cfg.IndexDSN, logger)
	default:
		return storage.NewConsoleStore(logger), nil
	}
}

func (a *App) setupHTTPServer(cfg *config.Config, logger *zap.Logger) *httpserver.Server {
	httpCfg := &httpserver.Config{
		Port:          cfg.HTTPPort,
		AuthToken:     cfg.APIToken,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		CloseQuotes:   a.reconciler,
		Books:         a.books,
		Mappings:      a.discovery,
	}
	// A typed nil scheduler must not become a non-nil interface.
	if a.scheduler != nil {
		httpCfg.Tasks = a.scheduler
	}
	return httpserver.New(httpCfg)
}
