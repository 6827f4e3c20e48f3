package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/riftrewind/rewindx/pkg/retry"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

const (
	// RunJobWorkflowName is the workflow every job runs under.
	RunJobWorkflowName = "RunJobWorkflow"
	// RunJobActivityName is the single activity the workflow executes.
	RunJobActivityName = "RunJob"
)

// Input is the workflow and activity argument.
type Input struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TemporalSubmitter starts one workflow per job on the job type's task queue. The job id is
// the workflow id, so a keyed job already running is joined rather than duplicated.
type TemporalSubmitter struct {
	Client   client.Client
	Registry *Registry
}

var _ Submitter = (*TemporalSubmitter)(nil)

// NewTemporalSubmitter returns a submitter using c.
func NewTemporalSubmitter(c client.Client, registry *Registry) *TemporalSubmitter {
	return &TemporalSubmitter{Client: c, Registry: registry}
}

func (s *TemporalSubmitter) Submit(ctx context.Context, t Type, payload any) (Handle, error) {
	def, err := s.Registry.Definition(t)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}

	id := NewJobID(t, payload)
	options := client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: def.Queue,
	}
	run, err := s.Client.ExecuteWorkflow(ctx, options, RunJobWorkflowName, Input{Type: t, Payload: raw})
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if !errors.As(err, &alreadyStarted) {
			return nil, fmt.Errorf("start %s workflow: %w", t, err)
		}
		run = s.Client.GetWorkflow(ctx, id, "")
	}
	return &temporalHandle{id: id, run: run}, nil
}

type temporalHandle struct {
	id  string
	run client.WorkflowRun
}

func (h *temporalHandle) ID() string { return h.id }

func (h *temporalHandle) Await(ctx context.Context, timeout time.Duration) (Result, error) {
	awaitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var data json.RawMessage
	err := h.run.Get(awaitCtx, &data)
	switch {
	case err == nil:
		return Result{Success: true, Data: data}, nil
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	case awaitCtx.Err() != nil:
		return Result{}, fmt.Errorf("job %s: %w", h.id, ErrAwaitTimeout)
	default:
		return Result{Success: false, Error: err.Error()}, nil
	}
}

// Workflows hosts RunJobWorkflow.
type Workflows struct {
	Registry *Registry
}

// RunJobWorkflow executes the job's activity with the retry policy of its definition.
func (w *Workflows) RunJobWorkflow(ctx workflow.Context, in Input) (json.RawMessage, error) {
	def, err := w.Registry.Definition(in.Type)
	if err != nil {
		return nil, err
	}
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         retry.TemporalPolicy(def.Policy),
		TaskQueue:           def.Queue,
	})

	var out json.RawMessage
	if err := workflow.ExecuteActivity(ctx, RunJobActivityName, in).Get(ctx, &out); err != nil {
		workflow.GetLogger(ctx).Warn("job failed", "type", in.Type, "error", err)
		return nil, err
	}
	return out, nil
}

// Activities hosts the RunJob activity.
type Activities struct {
	Registry *Registry
}

// RunJob runs one attempt. Permanent failures are marked non-retryable for Temporal.
func (a *Activities) RunJob(ctx context.Context, in Input) (json.RawMessage, error) {
	info := activity.GetInfo(ctx)
	ctx = WithJobID(ctx, info.WorkflowExecution.ID)
	out, err := a.Registry.Run(ctx, in.Type, in.Payload)
	if err != nil {
		activity.GetLogger(ctx).Warn("job attempt failed",
			"type", in.Type, "attempt", info.Attempt, "error", err)
		return nil, retry.ToTemporal(err, fmt.Sprintf("%s failed", in.Type))
	}
	return out, nil
}

// RegisterWorker registers the job workflow and activity on w under their fixed names.
func RegisterWorker(w worker.Registry, registry *Registry) {
	wf := &Workflows{Registry: registry}
	acts := &Activities{Registry: registry}
	w.RegisterWorkflowWithOptions(wf.RunJobWorkflow, workflow.RegisterOptions{Name: RunJobWorkflowName})
	w.RegisterActivityWithOptions(acts.RunJob, activity.RegisterOptions{Name: RunJobActivityName})
}

// WorkerOptions returns the options for a worker polling queue. The queue is throttled to the
// tightest rate among its job types, unless one of them is unlimited.
func WorkerOptions(registry *Registry, queue string) worker.Options {
	limit := 0.0
	for _, t := range registry.Types() {
		def, _ := registry.Definition(t)
		if def.Queue != queue {
			continue
		}
		ps := def.RateLimit.PerSecond()
		if ps == 0 {
			return worker.Options{}
		}
		if limit == 0 || ps < limit {
			limit = ps
		}
	}
	return worker.Options{TaskQueueActivitiesPerSecond: limit}
}
