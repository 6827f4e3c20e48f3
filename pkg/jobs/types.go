// Package jobs is the static job registry and the narrow submit/await contract the
// orchestrator depends on, with an in-process backend and a Temporal backend.
package jobs

import (
	"time"

	"github.com/riftrewind/rewindx/pkg/retry"
	"golang.org/x/time/rate"
)

// Type enumerates every job the system runs.
type Type string

const (
	TypeProcessMatch    Type = "process_match"
	TypeProcessTimeline Type = "process_timeline"
	TypePlayerSync      Type = "player_sync"
	TypeRecovery        Type = "recovery"
	TypeCleanup         Type = "cleanup"
	TypeHealthCheck     Type = "health_check"
	TypeRecomputeStats  Type = "recompute_stats"
)

// Task queues, one per job class.
const (
	QueueMatchProcessing    = "match_processing"
	QueueTimelineProcessing = "timeline_processing"
	QueuePlayerSync         = "player_sync"
	QueueRecovery           = "recovery"
	QueueMaintenance        = "maintenance"
)

// Rate is a budget of Events per Per window.
type Rate struct {
	Events int
	Per    time.Duration
}

// Limit converts r to a token bucket refill rate. A zero Rate means unlimited.
func (r Rate) Limit() rate.Limit {
	if r.Events <= 0 || r.Per <= 0 {
		return rate.Inf
	}
	return rate.Every(r.Per / time.Duration(r.Events))
}

// PerSecond is the same budget expressed for Temporal's task queue limits. Zero means unlimited.
func (r Rate) PerSecond() float64 {
	if r.Events <= 0 || r.Per <= 0 {
		return 0
	}
	return float64(r.Events) / r.Per.Seconds()
}

// Definition is the static configuration of one job type.
type Definition struct {
	Type      Type
	Queue     string
	Policy    retry.Config
	RateLimit Rate
	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// DefaultDefinitions returns the production job table.
func DefaultDefinitions() map[Type]Definition {
	return map[Type]Definition{
		TypeProcessMatch: {
			Type:      TypeProcessMatch,
			Queue:     QueueMatchProcessing,
			Policy:    retry.MatchProcessing,
			RateLimit: Rate{Events: 30, Per: time.Minute},
			Timeout:   2 * time.Minute,
		},
		TypeProcessTimeline: {
			Type:      TypeProcessTimeline,
			Queue:     QueueTimelineProcessing,
			Policy:    retry.TimelineProcessing,
			RateLimit: Rate{Events: 20, Per: time.Minute},
			Timeout:   2 * time.Minute,
		},
		TypePlayerSync: {
			Type:      TypePlayerSync,
			Queue:     QueuePlayerSync,
			Policy:    retry.PlayerSync,
			RateLimit: Rate{Events: 10, Per: time.Minute},
			Timeout:   6 * time.Hour,
		},
		TypeRecovery: {
			Type:      TypeRecovery,
			Queue:     QueueRecovery,
			Policy:    retry.Recovery,
			RateLimit: Rate{Events: 5, Per: time.Minute},
			Timeout:   6 * time.Hour,
		},
		TypeCleanup: {
			Type:      TypeCleanup,
			Queue:     QueueMaintenance,
			Policy:    retry.Maintenance,
			RateLimit: Rate{Events: 1, Per: time.Hour},
			Timeout:   30 * time.Minute,
		},
		TypeHealthCheck: {
			Type:    TypeHealthCheck,
			Queue:   QueueMaintenance,
			Policy:  retry.Maintenance,
			Timeout: time.Minute,
		},
		TypeRecomputeStats: {
			Type:    TypeRecomputeStats,
			Queue:   QueueMaintenance,
			Policy:  retry.Maintenance,
			Timeout: time.Hour,
		},
	}
}
