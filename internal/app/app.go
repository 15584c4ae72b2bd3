// Package app wires the engine: venue clients and streams, the shared
// orderbook cache, mapping discovery, metadata warm-up, position
// reconciliation, task execution and the HTTP control plane.
package app

import (
	"context"
	"sync"

	"github.com/apri1one/predict-arb-sub004/internal/discovery"
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
	"github.com/apri1one/predict-arb-sub004/pkg/wallet"
	"go.uber.org/zap"
)

// App is the engine orchestrator.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	appCache cache.Cache
	books    *orderbook.Cache

	predictClient *predict.Client
	predictStream *predict.MarketStream
	chainWatcher  *predict.ChainWatcher

	polyClient *polymarket.Client
	polyStream *polymarket.MarketStream
	userStream *polymarket.UserStream

	discovery     *discovery.Service
	warmer        *markets.Warmer
	reconciler    *positions.Reconciler
	walletTracker *wallet.Tracker

	index     storage.Store
	taskLogs  *tasklog.Store
	scheduler *scheduler.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}
