package predict

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/circuitbreaker"
	"github.com/apri1one/predict-arb-sub004/pkg/keypool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestLiveMarketScanLatency measures REST round trips against the live
// venue. Gated behind RUN_LIVE_LATENCY_TEST so CI never hits production.
func TestLiveMarketScanLatency(t *testing.T) {
	if os.Getenv("RUN_LIVE_LATENCY_TEST") != "true" {
		t.Skip("set RUN_LIVE_LATENCY_TEST=true to run against the live venue")
	}
	apiKey := os.Getenv("PREDICT_API_KEY")
	if apiKey == "" {
		t.Skip("PREDICT_API_KEY not set")
	}

	baseURL := os.Getenv("PREDICT_API_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.predict.fun"
	}

	pool, err := keypool.New([]string{apiKey}, 10*time.Second)
	require.NoError(t, err)

	breakers, err := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureLimit: 3,
		Cooldown:     time.Minute,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)

	client, err := NewClient(ClientConfig{
		BaseURL:        baseURL,
		ScanKeys:       pool,
		RequestTimeout: 10 * time.Second,
		Breakers:       breakers,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const rounds = 5
	var total, worst time.Duration
	for i := 0; i < rounds; i++ {
		start := time.Now()
		_, err := client.GetMarkets(ctx, "open")
		elapsed := time.Since(start)
		require.NoError(t, err)

		total += elapsed
		if elapsed > worst {
			worst = elapsed
		}
	}

	t.Logf("market scan latency over %d rounds: avg=%s worst=%s", rounds, total/rounds, worst)
	require.Less(t, worst, 10*time.Second, "live market scan exceeded timeout budget")
}
