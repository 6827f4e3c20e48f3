package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeHandle struct {
	id    string
	delay time.Duration
	res   jobs.Result
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Await(ctx context.Context, timeout time.Duration) (jobs.Result, error) {
	if h.delay > timeout {
		return jobs.Result{}, jobs.ErrAwaitTimeout
	}
	return h.res, nil
}

type recorder struct {
	mu         sync.Mutex
	sleeps     []time.Duration
	dispatched []string
	// inWindow counts dispatches since the last pause
	inWindow int
	maxWin   int
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	r.inWindow = 0
	return nil
}

func (r *recorder) dispatch(newHandle func(id string) (jobs.Handle, error)) DispatchFunc {
	return func(_ context.Context, id string) (jobs.Handle, error) {
		r.mu.Lock()
		r.dispatched = append(r.dispatched, id)
		r.inWindow++
		r.maxWin = max(r.maxWin, r.inWindow)
		r.mu.Unlock()
		return newHandle(id)
	}
}

func newTestScheduler(t *testing.T, cfg Config, rec *recorder) *Scheduler {
	t.Helper()
	s, err := New(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	s.sleep = rec.sleep
	t.Cleanup(s.Stop)
	return s
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("M%d", i+1)
	}
	return out
}

func ok(id string) (jobs.Handle, error) {
	return &fakeHandle{id: id, res: jobs.Result{Success: true}}, nil
}

func TestEmptyInputRunsNoBatches(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(t, Config{BatchSize: 3, Window: 10 * time.Second}, rec)

	res, err := s.Run(context.Background(), nil, rec.dispatch(ok))
	require.NoError(t, err)
	assert.Zero(t, res.Batches)
	assert.Zero(t, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Empty(t, rec.sleeps)
}

func TestRateLimitConformance(t *testing.T) {
	for _, tc := range []struct{ n, r int }{{1, 3}, {3, 3}, {7, 3}, {10, 2}, {100, 30}} {
		t.Run(fmt.Sprintf("n=%d,r=%d", tc.n, tc.r), func(t *testing.T) {
			rec := &recorder{}
			s := newTestScheduler(t, Config{BatchSize: tc.r, Window: 10 * time.Second}, rec)

			res, err := s.Run(context.Background(), ids(tc.n), rec.dispatch(ok))
			require.NoError(t, err)

			batches := (tc.n + tc.r - 1) / tc.r
			assert.Equal(t, batches, res.Batches)
			assert.Equal(t, tc.n, res.Succeeded)
			assert.LessOrEqual(t, rec.maxWin, tc.r, "more than R dispatches inside one window")
			require.Len(t, rec.sleeps, batches-1, "no pause after the final batch")
			for _, d := range rec.sleeps {
				assert.Equal(t, 10*time.Second, d)
			}
			assert.Equal(t, ids(tc.n), rec.dispatched)
		})
	}
}

func TestPartialFailureDoesNotAffectSiblings(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(t, Config{BatchSize: 5, Window: time.Second}, rec)

	res, err := s.Run(context.Background(), ids(5), rec.dispatch(func(id string) (jobs.Handle, error) {
		if id == "M3" {
			return &fakeHandle{id: id, res: jobs.Result{Success: false, Error: "404 not found"}}, nil
		}
		return ok(id)
	}))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, []string{"M3"}, res.Failed)
	assert.Len(t, rec.dispatched, 5)
}

func TestTimeoutsAndDispatchErrorsCountAsFailures(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(t, Config{BatchSize: 2, Window: time.Second, AwaitTimeout: time.Second}, rec)

	res, err := s.Run(context.Background(), ids(4), rec.dispatch(func(id string) (jobs.Handle, error) {
		switch id {
		case "M2":
			return &fakeHandle{id: id, delay: time.Minute}, nil
		case "M4":
			return nil, errors.New("queue unavailable")
		}
		return ok(id)
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, []string{"M2", "M4"}, res.Failed)
	assert.Equal(t, 2, res.Batches)
}

func TestAwaitsRunConcurrentlyWithinBatch(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(t, Config{BatchSize: 4, Window: time.Second}, rec)

	var inflight, peak atomic.Int32
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	dispatch := rec.dispatch(func(id string) (jobs.Handle, error) {
		return &blockingHandle{id: id, inflight: &inflight, peak: &peak, started: started, release: release}, nil
	})

	done := make(chan Result, 1)
	go func() {
		res, _ := s.Run(context.Background(), ids(4), dispatch)
		done <- res
	}()
	for i := 0; i < 4; i++ {
		<-started
	}
	close(release)
	res := <-done

	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, int32(4), peak.Load())
}

type blockingHandle struct {
	id       string
	inflight *atomic.Int32
	peak     *atomic.Int32
	started  chan struct{}
	release  chan struct{}
}

func (h *blockingHandle) ID() string { return h.id }

func (h *blockingHandle) Await(context.Context, time.Duration) (jobs.Result, error) {
	n := h.inflight.Add(1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	h.started <- struct{}{}
	<-h.release
	h.inflight.Add(-1)
	return jobs.Result{Success: true}, nil
}

func TestCancellationReportsUndispatchedAsFailed(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(t, Config{BatchSize: 2, Window: time.Second}, rec)
	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res, err := s.Run(ctx, ids(5), rec.dispatch(ok))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, []string{"M3", "M4", "M5"}, res.Failed)
	assert.Equal(t, 1, res.Batches)
}

func TestNewRejectsZeroBatch(t *testing.T) {
	_, err := New(zaptest.NewLogger(t), Config{})
	require.Error(t, err)
}
