package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riftrewind/rewindx/pkg/db/postgres"
	"github.com/riftrewind/rewindx/pkg/db/postgres/records"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/logging"
	"github.com/riftrewind/rewindx/pkg/maintenance"
	"github.com/riftrewind/rewindx/pkg/redis"
	"github.com/riftrewind/rewindx/pkg/riot"
	"github.com/riftrewind/rewindx/pkg/temporal"
	"github.com/riftrewind/rewindx/pkg/utils"
	"github.com/robfig/cron/v3"
	temporalworker "go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

// App runs the job workers, the cron triggers and the probe/metrics server.
type App struct {
	Core     *Core
	Records  *records.DB
	Temporal *temporal.Client
	Redis    *redis.Client
	Workers  []temporalworker.Worker

	// Cron fires the recovery, health and cleanup triggers.
	Cron      *cron.Cron
	CronSpecs CronSpecs

	Logger *zap.Logger
	Server *http.Server
}

// Initialize wires the worker from the environment.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg := ConfigFromEnv()

	store, err := records.NewWithPoolConfig(ctx, logger, utils.Env("REWIND_DB", "rewind"), *postgres.GetPoolConfigForComponent("worker"))
	if err != nil {
		logger.Fatal("Unable to initialize record store", zap.Error(err))
	}

	app := &App{Records: store, Logger: logger, CronSpecs: CronSpecsFromEnv()}

	var progress jobs.ProgressReporter = jobs.NopProgress{}
	if utils.EnvBool("REDIS_ENABLED", true) {
		rc, err := redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Redis unavailable, job progress disabled", zap.Error(err))
		} else {
			app.Redis = rc
			progress = redis.NewProgressStore(rc)
		}
	}

	api := riot.New(logger.Named("riot"), riot.OptsFromEnv())
	registry := jobs.NewRegistry(nil)

	var submitter jobs.Submitter
	if cfg.Backend == BackendTemporal {
		app.Temporal, err = temporal.NewClient(ctx, logger)
		if err != nil {
			logger.Fatal("Unable to establish temporal connection", zap.Error(err))
		}
		submitter = jobs.NewTemporalSubmitter(app.Temporal.TClient, registry)
	}

	app.Core, err = NewCore(logger, store, api, submitter, registry, progress, cfg)
	if err != nil {
		logger.Fatal("Unable to build job topology", zap.Error(err))
	}
	if app.Temporal != nil {
		app.Temporal.Queues = registry.Queues()
	}
	RegisterChecks(app.Core.Maintenance, api, app.Temporal, app.Redis)

	if app.Temporal != nil {
		for _, queue := range registry.Queues() {
			opts := jobs.WorkerOptions(registry, queue)
			opts.WorkerStopTimeout = time.Minute
			w := temporalworker.New(app.Temporal.TClient, queue, opts)
			jobs.RegisterWorker(w, registry)
			app.Workers = append(app.Workers, w)
		}
	}

	if err := app.SetupScheduler(ctx); err != nil {
		logger.Fatal("Unable to set up cron triggers", zap.Error(err))
	}
	app.SetupServer()

	logger.Info("Worker initialized",
		zap.String("backend", cfg.Backend),
		zap.Strings("queues", registry.Queues()),
		zap.Int("batch_size", cfg.Scheduler.BatchSize),
		zap.Duration("batch_window", cfg.Scheduler.Window),
	)
	return app
}

// RegisterChecks adds the riot, temporal and redis probes to the health job. Nil clients are skipped.
func RegisterChecks(m *maintenance.Service, api *riot.Client, tc *temporal.Client, rc *redis.Client) {
	platform := utils.Env("RIOT_HEALTH_PLATFORM", "euw1")
	m.Checks["riot"] = func(ctx context.Context) error {
		return api.Status(ctx, platform)
	}
	if tc != nil {
		m.Checks["temporal"] = func(ctx context.Context) error {
			_, err := tc.Health(ctx)
			return err
		}
	}
	if rc != nil {
		m.Checks["redis"] = rc.Health
	}
}

// SetupServer exposes /healthz, /readyz and /metrics.
func (a *App) SetupServer() {
	addr := utils.Env("ADDR", ":3010")

	r := mux.NewRouter()
	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Core.Store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	a.Server = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}

// Start starts the workers, cron and server, and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	for _, w := range a.Workers {
		if err := w.Start(); err != nil {
			a.Logger.Fatal("Unable to start worker", zap.Error(err))
		}
	}
	a.Cron.Start()
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Probe server stopped", zap.Error(err))
		}
	}()
	a.Logger.Info("Worker started", zap.String("addr", a.Server.Addr), zap.Int("temporal_workers", len(a.Workers)))
	<-ctx.Done()
	a.Stop()
}

// Stop shuts everything down in reverse order of Start.
func (a *App) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)
	<-a.Cron.Stop().Done()
	for _, w := range a.Workers {
		w.Stop()
	}
	a.Core.Close()
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.Records.Close()
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
