package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. Order matters: the HTTP
// surface stops accepting work first, then the scheduler cancels running
// tasks, then the data feeds close, and the index last so final task
// summaries still land in it.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	a.reconciler.Stop()

	a.predictStream.Disconnect(true)
	a.polyStream.Disconnect(true)
	if a.userStream != nil {
		a.userStream.Disconnect(true)
	}

	if a.chainWatcher != nil {
		a.chainWatcher.Stop()
	}

	a.wg.Wait()

	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.logger.Error("index-close-error", zap.Error(err))
		}
	}
	a.appCache.Close()

	a.logger.Info("application-shutdown-complete")
	return nil
}
