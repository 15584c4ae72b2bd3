package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all engine configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string
	APIToken string // bearer token guarding /api routes
	DataDir  string // root for data/logs/tasks/<taskId>/...

	// Predict
	PredictAPIBaseURL       string
	PredictWSURL            string
	PredictAPIKey           string
	PredictScanAPIKeys      []string // rotation pool for read paths
	PredictTradeAPIKey      string
	PredictSignerPrivateKey string
	PredictSmartWallet      string
	BSCWssURLs              []string // on-chain event WS endpoints, rotated
	BSCRPCURL               string   // HTTP RPC for collateral balance reads

	// Polymarket
	PolymarketCLOBURL       string
	PolymarketDataAPIURL    string
	PolymarketWSURL         string
	PolymarketUserWSURL     string
	PolymarketAPIKey        string
	PolymarketSecret        string
	PolymarketPassphrase    string
	PolymarketTraderAddress string
	PolymarketProxyAddress  string
	PolymarketTraderPrivKey string
	PolymarketSigType       int    // 0 EOA, 1 proxy, 2 gnosis safe
	PolygonRPCURL           string // HTTP RPC for collateral balance reads

	// WebSocket
	WSDialTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSReconnectMaxAttempts  int
	WSMessageBufferSize     int

	// REST
	RESTRequestTimeout   time.Duration
	BreakerFailureLimit  int
	BreakerCooldown      time.Duration
	RateLimitKeyCooldown time.Duration

	// Discovery
	MappingFile    string // operator-declared market pair file
	MappingRefresh time.Duration

	// Reconciliation
	ReconcileInterval  time.Duration
	AccountCacheTTL    time.Duration // ACCOUNT_CACHE_MS
	WalletPollInterval time.Duration // on-chain collateral gauge refresh

	// Execution
	OrderPollInterval time.Duration
	OrderTimeout      time.Duration
	MaxHedgeRetries   int

	// Task index (optional relational store)
	IndexDriver string // "", "sqlite" or "postgres"
	IndexDSN    string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		APIToken: os.Getenv("API_TOKEN"),
		DataDir:  getEnvOrDefault("DATA_DIR", "data"),

		PredictAPIBaseURL:       getEnvOrDefault("PREDICT_API_BASE_URL", "https://api.predict.fun"),
		PredictWSURL:            getEnvOrDefault("PREDICT_WS_URL", "wss://ws.predict.fun"),
		PredictAPIKey:           os.Getenv("PREDICT_API_KEY"),
		PredictScanAPIKeys:      getListOrDefault("PREDICT_API_KEY_SCAN", nil),
		PredictTradeAPIKey:      os.Getenv("PREDICT_API_KEY_TRADE"),
		PredictSignerPrivateKey: os.Getenv("PREDICT_SIGNER_PRIVATE_KEY"),
		PredictSmartWallet:      os.Getenv("PREDICT_SMART_WALLET_ADDRESS"),
		BSCWssURLs:              getListOrDefault("BSC_WSS_URLS", nil),
		BSCRPCURL:               getEnvOrDefault("BSC_RPC_URL", "https://bsc-dataseed.bnbchain.org"),

		PolymarketCLOBURL:       getEnvOrDefault("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		PolymarketDataAPIURL:    getEnvOrDefault("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		PolymarketWSURL:         getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketUserWSURL:     getEnvOrDefault("POLYMARKET_USER_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/user"),
		PolymarketAPIKey:        os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:        os.Getenv("POLYMARKET_API_SECRET"),
		PolymarketPassphrase:    os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketTraderAddress: os.Getenv("POLYMARKET_TRADER_ADDRESS"),
		PolymarketProxyAddress:  os.Getenv("POLYMARKET_PROXY_ADDRESS"),
		PolymarketTraderPrivKey: os.Getenv("POLYMARKET_TRADER_PRIVATE_KEY"),
		PolymarketSigType:       getIntOrDefault("POLYMARKET_SIGNATURE_TYPE", 0),
		PolygonRPCURL:           getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),

		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSReconnectMaxAttempts:  getIntOrDefault("WS_RECONNECT_MAX_ATTEMPTS", 0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		RESTRequestTimeout:   getDurationOrDefault("REST_REQUEST_TIMEOUT", 10*time.Second),
		BreakerFailureLimit:  getIntOrDefault("REST_BREAKER_FAILURES", 3),
		BreakerCooldown:      getDurationOrDefault("REST_BREAKER_COOLDOWN", 60*time.Second),
		RateLimitKeyCooldown: getDurationOrDefault("RATE_LIMIT_KEY_COOLDOWN", 10*time.Second),

		MappingFile:    getEnvOrDefault("MAPPING_FILE", "data/mappings.json"),
		MappingRefresh: getDurationOrDefault("MAPPING_REFRESH_INTERVAL", 5*time.Minute),

		ReconcileInterval:  getDurationOrDefault("RECONCILE_INTERVAL", 30*time.Second),
		AccountCacheTTL:    time.Duration(getIntOrDefault("ACCOUNT_CACHE_MS", 5000)) * time.Millisecond,
		WalletPollInterval: getDurationOrDefault("WALLET_POLL_INTERVAL", 60*time.Second),

		OrderPollInterval: getDurationOrDefault("ORDER_POLL_INTERVAL", 250*time.Millisecond),
		OrderTimeout:      getDurationOrDefault("ORDER_TIMEOUT", 60*time.Second),
		MaxHedgeRetries:   getIntOrDefault("MAX_HEDGE_RETRIES", 3),

		IndexDriver: getEnvOrDefault("TASK_INDEX_DRIVER", ""),
		IndexDSN:    os.Getenv("TASK_INDEX_DSN"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.PredictAPIBaseURL == "" {
		return fmt.Errorf("PREDICT_API_BASE_URL cannot be empty")
	}

	if c.PolymarketCLOBURL == "" {
		return fmt.Errorf("POLYMARKET_CLOB_URL cannot be empty")
	}

	if c.WSReconnectBackoffMult < 1.0 {
		return fmt.Errorf("WS_RECONNECT_BACKOFF_MULTIPLIER must be >= 1.0, got %f", c.WSReconnectBackoffMult)
	}

	if c.IndexDriver != "" && c.IndexDriver != "sqlite" && c.IndexDriver != "postgres" {
		return fmt.Errorf("TASK_INDEX_DRIVER must be empty, 'sqlite' or 'postgres', got %q", c.IndexDriver)
	}

	return nil
}

// ScanKeys returns the key pool for read-heavy Predict calls, falling back
// to the single configured key.
func (c *Config) ScanKeys() []string {
	if len(c.PredictScanAPIKeys) > 0 {
		return c.PredictScanAPIKeys
	}
	if c.PredictAPIKey != "" {
		return []string{c.PredictAPIKey}
	}
	return nil
}

// TradeKey returns the key used for order placement on Predict.
func (c *Config) TradeKey() string {
	if c.PredictTradeAPIKey != "" {
		return c.PredictTradeAPIKey
	}
	return c.PredictAPIKey
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getListOrDefault parses a comma-separated env var. Values may also be
// provisioned across numbered suffixes (KEY, KEY2, KEY3, ...).
func getListOrDefault(key string, defaultValue []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	for i := 2; ; i++ {
		value := os.Getenv(key + strconv.Itoa(i))
		if value == "" {
			break
		}
		out = append(out, strings.TrimSpace(value))
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
