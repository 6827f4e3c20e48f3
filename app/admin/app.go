package admin

import (
	"context"

	"github.com/riftrewind/rewindx/app/admin/types"
	"github.com/riftrewind/rewindx/app/worker"
	"github.com/riftrewind/rewindx/pkg/db/postgres"
	"github.com/riftrewind/rewindx/pkg/db/postgres/records"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/logging"
	"github.com/riftrewind/rewindx/pkg/redis"
	"github.com/riftrewind/rewindx/pkg/riot"
	"github.com/riftrewind/rewindx/pkg/temporal"
	"github.com/riftrewind/rewindx/pkg/utils"
	"go.uber.org/zap"
)

func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg := worker.ConfigFromEnv()

	store, err := records.NewWithPoolConfig(ctx, logger, utils.Env("REWIND_DB", "rewind"), *postgres.GetPoolConfigForComponent("admin"))
	if err != nil {
		logger.Fatal("Unable to initialize record store", zap.Error(err))
	}

	app := &types.App{Logger: logger, DefaultYear: cfg.Orchestrator.DefaultYear}

	// Redis carries job progress for the status and websocket endpoints (optional)
	var progress jobs.ProgressReporter = jobs.NopProgress{}
	if utils.EnvBool("REDIS_ENABLED", true) {
		app.Redis, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - job progress will not be available", zap.Error(err))
			app.Redis = nil
		} else {
			ps := redis.NewProgressStore(app.Redis)
			app.Progress = ps
			progress = ps
		}
	} else {
		logger.Info("Redis disabled - job progress will not be available")
	}

	var submitter jobs.Submitter
	registry := jobs.NewRegistry(nil)
	if cfg.Backend == worker.BackendTemporal {
		app.Temporal, err = temporal.NewClient(ctx, logger)
		if err != nil {
			logger.Fatal("Unable to establish temporal connection", zap.Error(err))
		}
		submitter = jobs.NewTemporalSubmitter(app.Temporal.TClient, registry)
	}

	api := riot.New(logger.Named("riot"), riot.OptsFromEnv())
	app.Core, err = worker.NewCore(logger, store, api, submitter, registry, progress, cfg)
	if err != nil {
		logger.Fatal("Unable to build job topology", zap.Error(err))
	}

	if app.Temporal != nil {
		app.Temporal.Queues = registry.Queues()
	}
	worker.RegisterChecks(app.Core.Maintenance, api, app.Temporal, app.Redis)

	logger.Info("Admin initialized", zap.String("backend", cfg.Backend), zap.Bool("progress", app.Progress != nil))
	return app
}
