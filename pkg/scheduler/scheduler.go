// Package scheduler runs independent jobs in fixed-size batches with a pause between batches,
// keeping calls to the external API under its request ceiling.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/metrics"
	"go.uber.org/zap"
)

// DefaultAwaitTimeout bounds how long one job is awaited.
const DefaultAwaitTimeout = 30 * time.Second

// DispatchFunc submits the job for one id.
type DispatchFunc func(ctx context.Context, id string) (jobs.Handle, error)

// Config sizes batches to the external ceiling: at most BatchSize jobs per Window.
type Config struct {
	BatchSize    int
	Window       time.Duration
	AwaitTimeout time.Duration
	// Workers bounds concurrent awaits inside a batch. Zero uses BatchSize.
	Workers int
}

// Result reports per-id outcomes. Failed keeps input order.
type Result struct {
	Succeeded int      `json:"succeeded"`
	Failed    []string `json:"failed"`
	Batches   int      `json:"batches"`
}

// Scheduler is safe for concurrent use by independent runs.
type Scheduler struct {
	cfg    Config
	logger *zap.Logger
	pool   pond.Pool
	// sleep waits between batches; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a scheduler. BatchSize must be positive.
func New(logger *zap.Logger, cfg Config) (*Scheduler, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("scheduler: batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = DefaultAwaitTimeout
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = cfg.BatchSize
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		pool:   pond.NewPool(workers),
		sleep:  sleepCtx,
	}, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run dispatches ids batch by batch. A batch is fully drained, every job finished or timed
// out, before the pause that precedes the next one. A failing job never affects its siblings.
// Only context cancellation stops the run early; ids never dispatched are then reported as failed.
func (s *Scheduler) Run(ctx context.Context, ids []string, dispatch DispatchFunc) (Result, error) {
	res := Result{Failed: make([]string, 0)}
	if len(ids) == 0 {
		return res, nil
	}

	total := (len(ids) + s.cfg.BatchSize - 1) / s.cfg.BatchSize
	for start := 0; start < len(ids); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, ids[start:]...)
			return res, err
		}
		end := min(start+s.cfg.BatchSize, len(ids))
		batch := ids[start:end]
		res.Batches++

		ok, failed := s.runBatch(ctx, batch, dispatch)
		res.Succeeded += ok
		res.Failed = append(res.Failed, failed...)
		metrics.SchedulerBatchesTotal.Inc()

		s.logger.Info("Batch finished",
			zap.Int("batch", res.Batches),
			zap.Int("batches", total),
			zap.Int("size", len(batch)),
			zap.Int("succeeded", ok),
			zap.Int("failed", len(failed)),
		)

		if end < len(ids) {
			if err := s.sleep(ctx, s.cfg.Window); err != nil {
				res.Failed = append(res.Failed, ids[end:]...)
				return res, err
			}
		}
	}
	return res, nil
}

func (s *Scheduler) runBatch(ctx context.Context, batch []string, dispatch DispatchFunc) (int, []string) {
	outcomes := make([]bool, len(batch))

	handles := make([]jobs.Handle, len(batch))
	for i, id := range batch {
		h, err := dispatch(ctx, id)
		if err != nil {
			s.logger.Warn("Dispatch failed", zap.String("id", id), zap.Error(err))
			continue
		}
		handles[i] = h
	}

	var mu sync.Mutex
	group := s.pool.NewGroupContext(ctx)
	for i, h := range handles {
		if h == nil {
			continue
		}
		group.Submit(func() {
			res, err := h.Await(ctx, s.cfg.AwaitTimeout)
			switch {
			case err != nil:
				s.logger.Warn("Job not finished in time", zap.String("id", batch[i]), zap.String("job_id", h.ID()), zap.Error(err))
			case !res.Success:
				s.logger.Warn("Job failed", zap.String("id", batch[i]), zap.String("job_id", h.ID()), zap.String("error", res.Error))
			default:
				mu.Lock()
				outcomes[i] = true
				mu.Unlock()
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.logger.Warn("Batch await group encountered error", zap.Error(err))
	}

	succeeded := 0
	failed := make([]string, 0)
	for i, ok := range outcomes {
		if ok {
			succeeded++
			metrics.SchedulerJobsTotal.WithLabelValues("succeeded").Inc()
			continue
		}
		failed = append(failed, batch[i])
		metrics.SchedulerJobsTotal.WithLabelValues("failed").Inc()
	}
	return succeeded, failed
}

// Stop releases the await pool.
func (s *Scheduler) Stop() {
	s.pool.StopAndWait()
}
