package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/riftrewind/rewindx/pkg/metrics"
	"github.com/riftrewind/rewindx/pkg/retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LocalOptions configures the in-process backend.
type LocalOptions struct {
	// Workers bounds concurrently running jobs. Zero uses four per CPU.
	Workers int
	// DisableRateLimits skips the per-type token buckets.
	DisableRateLimits bool
}

// LocalSubmitter runs jobs on a pond pool inside the current process, applying each type's
// retry policy with retry.WithBackoff and its rate limit with a token bucket.
type LocalSubmitter struct {
	logger   *zap.Logger
	registry *Registry
	pool     pond.Pool
	running  *xsync.Map[string, *localHandle]
	limiters *xsync.Map[Type, *rate.Limiter]
	opts     LocalOptions
	stopped  atomic.Bool
}

var _ Submitter = (*LocalSubmitter)(nil)

// NewLocalSubmitter returns a submitter bound to registry.
func NewLocalSubmitter(logger *zap.Logger, registry *Registry, opts LocalOptions) *LocalSubmitter {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 4
	}
	return &LocalSubmitter{
		logger:   logger,
		registry: registry,
		pool:     pond.NewPool(workers),
		running:  xsync.NewMap[string, *localHandle](),
		limiters: xsync.NewMap[Type, *rate.Limiter](),
		opts:     opts,
	}
}

// Submit schedules the job. The job outlives ctx's cancellation but keeps its values.
func (s *LocalSubmitter) Submit(ctx context.Context, t Type, payload any) (Handle, error) {
	def, err := s.registry.Definition(t)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}

	id := NewJobID(t, payload)
	h, loaded := s.running.LoadOrStore(id, &localHandle{id: id, done: make(chan struct{})})
	if loaded {
		s.logger.Debug("Job already running, attaching", zap.String("job_id", id))
		return h, nil
	}

	if s.stopped.Load() {
		s.running.Delete(id)
		return nil, fmt.Errorf("submit %s: local backend stopped", t)
	}
	jobCtx := WithJobID(context.WithoutCancel(ctx), id)
	s.pool.Submit(func() { s.execute(jobCtx, def, raw, h) })
	return h, nil
}

func (s *LocalSubmitter) limiter(def Definition) *rate.Limiter {
	l, _ := s.limiters.LoadOrCompute(def.Type, func() (*rate.Limiter, bool) {
		burst := def.RateLimit.Events
		if burst <= 0 {
			burst = 1
		}
		return rate.NewLimiter(def.RateLimit.Limit(), burst), false
	})
	return l
}

func (s *LocalSubmitter) execute(ctx context.Context, def Definition, payload json.RawMessage, h *localHandle) {
	defer s.running.Delete(h.id)
	logger := s.logger.With(zap.String("job_id", h.id), zap.String("type", string(def.Type)))
	start := time.Now()

	var data json.RawMessage
	attempt := 0
	err := retry.WithBackoff(ctx, def.Policy, logger, string(def.Type), func() error {
		attempt++
		if attempt > 1 {
			metrics.JobRetriesTotal.WithLabelValues(string(def.Type)).Inc()
		}
		if !s.opts.DisableRateLimits {
			if err := s.limiter(def).Wait(ctx); err != nil {
				return err
			}
		}
		attemptCtx := ctx
		if def.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, def.Timeout)
			defer cancel()
		}
		out, err := s.registry.Run(attemptCtx, def.Type, payload)
		if err != nil {
			return err
		}
		data = out
		return nil
	})

	outcome := "success"
	res := Result{Success: true, Data: data}
	if err != nil {
		outcome = "failure"
		if retry.IsPermanent(err) {
			outcome = "permanent"
		}
		res = Result{Success: false, Error: err.Error()}
		logger.Warn("Job failed", zap.Int("attempts", attempt), zap.Error(err))
	} else {
		logger.Debug("Job finished", zap.Int("attempts", attempt), zap.Duration("took", time.Since(start)))
	}
	metrics.RecordJob(string(def.Type), outcome, time.Since(start))
	h.complete(res)
}

// Stop waits for running jobs and rejects new submissions.
func (s *LocalSubmitter) Stop() {
	s.stopped.Store(true)
	s.pool.StopAndWait()
}

type localHandle struct {
	id     string
	done   chan struct{}
	once   sync.Once
	result Result
}

func (h *localHandle) ID() string { return h.id }

func (h *localHandle) complete(res Result) {
	h.once.Do(func() {
		h.result = res
		close(h.done)
	})
}

func (h *localHandle) Await(ctx context.Context, timeout time.Duration) (Result, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-h.done:
		return h.result, nil
	case <-expired:
		return Result{}, fmt.Errorf("job %s: %w", h.id, ErrAwaitTimeout)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
