package jobs

import (
	"context"
	"time"
)

// Progress states.
const (
	ProgressRunning   = "running"
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// Progress is the observable state of a long running job.
type Progress struct {
	State     string         `json:"state"`
	Step      string         `json:"step"`
	Percent   int            `json:"progress"`
	Meta      map[string]any `json:"meta,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ProgressReporter publishes progress for a job id.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, jobID string, p Progress) error
}

// NopProgress drops every update.
type NopProgress struct{}

func (NopProgress) ReportProgress(context.Context, string, Progress) error { return nil }

// Terminal reports whether no further updates will follow.
func (p Progress) Terminal() bool {
	return p.State == ProgressCompleted || p.State == ProgressFailed
}
