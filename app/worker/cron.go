package worker

import (
	"context"
	"time"

	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronSpecs are six-field (with seconds) cron expressions. An empty spec disables the trigger.
type CronSpecs struct {
	Recovery      string
	Health        string
	Cleanup       string
	RetentionDays int
}

// CronSpecsFromEnv reads RECOVERY_CRON, HEALTH_CRON, CLEANUP_CRON and CLEANUP_RETENTION_DAYS.
func CronSpecsFromEnv() CronSpecs {
	return CronSpecs{
		Recovery:      utils.Env("RECOVERY_CRON", "0 0 */6 * * *"),
		Health:        utils.Env("HEALTH_CRON", "0 0 * * * *"),
		Cleanup:       utils.Env("CLEANUP_CRON", ""),
		RetentionDays: utils.EnvInt("CLEANUP_RETENTION_DAYS", 30),
	}
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct{ *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) { l.Debugw(msg, keysAndValues...) }
func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}

// SetupScheduler registers the enabled triggers. Each run is bounded by its own timeout.
func (a *App) SetupScheduler(ctx context.Context) error {
	logger := cronLogger{a.Logger.Named("cron").Sugar()}
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	return RegisterTriggers(ctx, a.Cron, a.Core, a.CronSpecs, a.Logger)
}

// RegisterTriggers adds the recovery, health and cleanup triggers of specs to c.
func RegisterTriggers(ctx context.Context, c *cron.Cron, core *Core, specs CronSpecs, logger *zap.Logger) error {
	add := func(name, spec string, timeout time.Duration, fn func(ctx context.Context) error) error {
		if spec == "" {
			logger.Info("Cron trigger disabled", zap.String("trigger", name))
			return nil
		}
		_, err := c.AddFunc(spec, func() {
			rctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := fn(rctx); err != nil {
				logger.Warn("Cron trigger failed", zap.String("trigger", name), zap.Error(err))
			}
		})
		if err == nil {
			logger.Info("Cron trigger registered", zap.String("trigger", name), zap.String("spec", spec))
		}
		return err
	}

	if err := add("recovery", specs.Recovery, 5*time.Minute, func(ctx context.Context) error {
		_, err := core.Maintenance.RetryIncomplete(ctx, 0)
		return err
	}); err != nil {
		return err
	}
	if err := add("health", specs.Health, time.Minute, func(ctx context.Context) error {
		_, err := core.Submitter.Submit(ctx, jobs.TypeHealthCheck, jobs.HealthCheckJob{})
		return err
	}); err != nil {
		return err
	}
	return add("cleanup", specs.Cleanup, time.Minute, func(ctx context.Context) error {
		_, err := core.Submitter.Submit(ctx, jobs.TypeCleanup, jobs.CleanupJob{RetentionDays: specs.RetentionDays})
		return err
	})
}
