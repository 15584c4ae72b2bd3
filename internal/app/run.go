package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mapping-file", a.cfg.MappingFile),
		zap.Bool("trading-enabled", a.scheduler != nil),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("predict-ws", a.cfg.PredictWSURL),
		zap.String("polymarket-ws", a.cfg.PolymarketWSURL))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give the HTTP server a moment to bind before readiness flips.
	time.Sleep(100 * time.Millisecond)

	if err := a.predictStream.Connect(); err != nil {
		return fmt.Errorf("connect predict stream: %w", err)
	}
	if err := a.polyStream.Connect(); err != nil {
		return fmt.Errorf("connect polymarket stream: %w", err)
	}
	if a.userStream != nil {
		if err := a.userStream.Connect(); err != nil {
			return fmt.Errorf("connect user stream: %w", err)
		}
	}
	if a.chainWatcher != nil {
		if err := a.chainWatcher.Start(); err != nil {
			return fmt.Errorf("start chain watcher: %w", err)
		}
	}

	if a.scheduler != nil {
		a.scheduler.Start(a.ctx)
	}

	if err := a.reconciler.Start(); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}

	a.wg.Add(1)
	go a.runDiscoveryService()

	a.wg.Add(1)
	go a.handleNewMappings()

	if a.walletTracker != nil {
		a.wg.Add(1)
		go a.runWalletTracker()
	}

	return nil
}

func (a *App) runWalletTracker() {
	defer a.wg.Done()
	err := a.walletTracker.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("wallet-tracker-error", zap.Error(err))
	}
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runDiscoveryService() {
	defer a.wg.Done()
	err := a.discovery.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("discovery-service-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
