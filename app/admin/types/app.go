package types

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/riftrewind/rewindx/app/worker"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/redis"
	"github.com/riftrewind/rewindx/pkg/temporal"
	"go.uber.org/zap"
)

// ProgressSource reads job progress for the REST and websocket endpoints.
type ProgressSource interface {
	GetProgress(ctx context.Context, jobID string) (jobs.Progress, error)
	Watch(ctx context.Context, jobID string) (<-chan jobs.Progress, error)
}

type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"hash"`
	Role     string `json:"role"`
}

type App struct {
	// Core submits jobs and serves reads from the record store.
	Core *worker.Core

	// Temporal is nil with the local backend.
	Temporal *temporal.Client

	// Redis is optional; without it progress endpoints answer 503.
	Redis    *redis.Client
	Progress ProgressSource

	DefaultYear int

	Logger *zap.Logger
	Server *http.Server
}

// Start serves until ctx is done, then shuts everything down.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()
	a.Stop()
}

// Stop drains the http server and closes the backends.
func (a *App) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.Server != nil {
		_ = a.Server.Shutdown(shutdownCtx)
	}

	if a.Core != nil {
		a.Core.Close()
		if err := a.Core.Store.Close(); err != nil {
			a.Logger.Error("Failed to close record store", zap.Error(err))
		}
	}
	if a.Temporal != nil {
		a.Logger.Info("Closing Temporal client")
		a.Temporal.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("Failed to close Redis client", zap.Error(err))
		}
	}

	_ = a.Logger.Sync()
	a.Logger.Info("admin shutdown complete")
}
