package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAwaitTimeout is returned by Handle.Await when the job did not finish in time.
	// The job itself keeps running.
	ErrAwaitTimeout = errors.New("timed out waiting for job result")
	// ErrUnknownType is returned for job types missing from the registry.
	ErrUnknownType = errors.New("unknown job type")
)

// Result is the outcome of one job as observed by whoever awaits it.
type Result struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals Data into v.
func (r Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Handle refers to a submitted job.
type Handle interface {
	ID() string
	// Await blocks until the job finishes, timeout elapses (ErrAwaitTimeout) or ctx is done.
	// A failed job is reported through Result, not through the error.
	Await(ctx context.Context, timeout time.Duration) (Result, error)
}

// Submitter enqueues jobs. Submitting a keyed job while an identical one is running
// returns a handle to the running job.
type Submitter interface {
	Submit(ctx context.Context, t Type, payload any) (Handle, error)
}

// Keyed payloads are deduplicated by key.
type Keyed interface {
	JobKey() string
}

// NewJobID returns the id a job is submitted under: a stable id for keyed payloads, a random one otherwise.
func NewJobID(t Type, payload any) string {
	if k, ok := payload.(Keyed); ok && k.JobKey() != "" {
		return fmt.Sprintf("%s-%s", t, k.JobKey())
	}
	return fmt.Sprintf("%s-%s", t, uuid.NewString())
}

type jobIDKey struct{}

// WithJobID stores the id of the job being executed in ctx.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobIDFromContext returns the id stored by WithJobID.
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
