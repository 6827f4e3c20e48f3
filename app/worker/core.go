package worker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/riftrewind/rewindx/pkg/aggregate"
	"github.com/riftrewind/rewindx/pkg/db"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/maintenance"
	"github.com/riftrewind/rewindx/pkg/orchestrator"
	"github.com/riftrewind/rewindx/pkg/processor"
	"github.com/riftrewind/rewindx/pkg/riot"
	"github.com/riftrewind/rewindx/pkg/scheduler"
	"github.com/riftrewind/rewindx/pkg/utils"
	"go.uber.org/zap"
)

const (
	BackendTemporal = "temporal"
	BackendLocal    = "local"
)

// Config holds the sync tunables shared by every process that runs or submits jobs.
type Config struct {
	Backend      string
	Scheduler    scheduler.Config
	Orchestrator orchestrator.Config
	Local        jobs.LocalOptions
}

// ConfigFromEnv reads JOB_BACKEND and the SYNC_* keys.
func ConfigFromEnv() Config {
	return Config{
		Backend: strings.ToLower(utils.Env("JOB_BACKEND", BackendTemporal)),
		Scheduler: scheduler.Config{
			BatchSize:    utils.EnvInt("SYNC_BATCH_SIZE", 2000),
			Window:       utils.EnvDuration("SYNC_BATCH_WINDOW", 10*time.Second),
			AwaitTimeout: utils.EnvDuration("SYNC_AWAIT_TIMEOUT", scheduler.DefaultAwaitTimeout),
			Workers:      utils.EnvInt("SYNC_AWAIT_WORKERS", 64),
		},
		Orchestrator: orchestrator.ConfigFromEnv(),
		Local: jobs.LocalOptions{
			Workers:           utils.EnvInt("LOCAL_WORKERS", 0),
			DisableRateLimits: utils.EnvBool("LOCAL_DISABLE_RATE_LIMITS", false),
		},
	}
}

// Core is the job topology: every handler registered, bound to one submitter.
type Core struct {
	Logger       *zap.Logger
	Store        db.Store
	API          riot.API
	Registry     *jobs.Registry
	Submitter    jobs.Submitter
	Local        *jobs.LocalSubmitter
	Scheduler    *scheduler.Scheduler
	Aggregator   *aggregate.Aggregator
	Orchestrator *orchestrator.Orchestrator
	Maintenance  *maintenance.Service
}

// NewCore registers every job type. When submitter is nil the in-process backend is used.
func NewCore(logger *zap.Logger, store db.Store, api riot.API, submitter jobs.Submitter, registry *jobs.Registry, progress jobs.ProgressReporter, cfg Config) (*Core, error) {
	if registry == nil {
		registry = jobs.NewRegistry(nil)
	}
	c := &Core{Logger: logger, Store: store, API: api, Registry: registry, Submitter: submitter}
	if c.Submitter == nil {
		c.Local = jobs.NewLocalSubmitter(logger.Named("jobs"), registry, cfg.Local)
		c.Submitter = c.Local
	}

	sched, err := scheduler.New(logger.Named("scheduler"), cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	c.Scheduler = sched
	c.Aggregator = aggregate.New(store, logger.Named("aggregate"))

	matches := &processor.MatchProcessor{
		Logger:     logger.Named("match"),
		Store:      store,
		API:        api,
		Aggregator: c.Aggregator,
		Submitter:  c.Submitter,
	}
	timelines := &processor.TimelineProcessor{Logger: logger.Named("timeline"), Store: store, API: api}

	c.Orchestrator = orchestrator.New(logger.Named("orchestrator"), store, api, c.Submitter, sched, c.Aggregator, progress, cfg.Orchestrator)
	c.Maintenance = maintenance.New(logger.Named("maintenance"), store, c.Aggregator, c.Submitter, cfg.Orchestrator.DefaultYear)

	err = errors.Join(
		registry.Register(jobs.TypeProcessMatch, jobs.Typed(matches.Process)),
		registry.Register(jobs.TypeProcessTimeline, jobs.Typed(timelines.Process)),
		c.Orchestrator.Register(registry),
		c.Maintenance.Register(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}
	return c, nil
}

// Close stops the pools owned by the core. The store is left open.
func (c *Core) Close() {
	if c.Local != nil {
		c.Local.Stop()
	}
	c.Scheduler.Stop()
}
