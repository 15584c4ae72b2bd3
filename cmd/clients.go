package cmd

import (
	"fmt"
	"os"

	"github.com/apri1one/predict-arb-sub004/internal/circuitbreaker"
	"github.com/apri1one/predict-arb-sub004/internal/venue/polymarket"
	"github.com/apri1one/predict-arb-sub004/internal/venue/predict"
	"github.com/apri1one/predict-arb-sub004/pkg/config"
	"github.com/apri1one/predict-arb-sub004/pkg/keypool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// loadCLIConfig loads .env plus environment configuration the way the
// engine does, for one-shot commands.
func loadCLIConfig() (*config.Config, *zap.Logger, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, logger, nil
}

func newCLIBreakers(cfg *config.Config, logger *zap.Logger) (*circuitbreaker.Registry, error) {
	return circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureLimit: cfg.BreakerFailureLimit,
		Cooldown:     cfg.BreakerCooldown,
		Logger:       logger,
	})
}

// newPredictClient builds a REST client for Predict. Trade routes work
// only when the signer keys are configured.
func newPredictClient(cfg *config.Config, logger *zap.Logger) (*predict.Client, error) {
	scanKeys := cfg.ScanKeys()
	if len(scanKeys) == 0 {
		return nil, fmt.Errorf("PREDICT_API_KEY not set")
	}

	pool, err := keypool.New(scanKeys, cfg.RateLimitKeyCooldown)
	if err != nil {
		return nil, fmt.Errorf("create key pool: %w", err)
	}

	breakers, err := newCLIBreakers(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create breakers: %w", err)
	}

	var auth *predict.Authenticator
	if cfg.PredictSignerPrivateKey != "" && cfg.PredictSmartWallet != "" {
		signer, err := predict.NewSigner(cfg.PredictSignerPrivateKey, cfg.PredictSmartWallet, predict.DefaultExchangeContracts)
		if err != nil {
			return nil, fmt.Errorf("create signer: %w", err)
		}
		auth, err = predict.NewAuthenticator(predict.AuthConfig{
			BaseURL:        cfg.PredictAPIBaseURL,
			Signer:         signer,
			RequestTimeout: cfg.RESTRequestTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create authenticator: %w", err)
		}
	}

	return predict.NewClient(predict.ClientConfig{
		BaseURL:        cfg.PredictAPIBaseURL,
		ScanKeys:       pool,
		TradeKey:       cfg.TradeKey(),
		Auth:           auth,
		RequestTimeout: cfg.RESTRequestTimeout,
		Breakers:       breakers,
		Logger:         logger,
	})
}

func newPolymarketClient(cfg *config.Config, logger *zap.Logger) (*polymarket.Client, error) {
	breakers, err := newCLIBreakers(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create breakers: %w", err)
	}

	return polymarket.NewClient(polymarket.ClientConfig{
		CLOBURL:    cfg.PolymarketCLOBURL,
		DataAPIURL: cfg.PolymarketDataAPIURL,
		Credentials: polymarket.Credentials{
			APIKey:     cfg.PolymarketAPIKey,
			Secret:     cfg.PolymarketSecret,
			Passphrase: cfg.PolymarketPassphrase,
			Address:    cfg.PolymarketTraderAddress,
		},
		RequestTimeout: cfg.RESTRequestTimeout,
		Breakers:       breakers,
		Logger:         logger,
	})
}
