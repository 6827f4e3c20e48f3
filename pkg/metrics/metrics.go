// Package metrics holds the Prometheus collectors exported by the worker and admin processes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by type and outcome (success, failure, permanent).
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewind_jobs_total",
			Help: "Total number of finished jobs",
		},
		[]string{"type", "outcome"},
	)

	// JobDuration tracks wall time of a job including retries.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewind_job_duration_seconds",
			Help:    "Duration of jobs in seconds, retries included",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
		},
		[]string{"type"},
	)

	// JobRetriesTotal counts retry attempts per job type.
	JobRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewind_job_retries_total",
			Help: "Total number of job retry attempts",
		},
		[]string{"type"},
	)

	// SyncRunsTotal counts orchestrator runs by mode and terminal state.
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewind_sync_runs_total",
			Help: "Total number of sync runs by mode and final state",
		},
		[]string{"mode", "state"},
	)

	// SchedulerBatchesTotal counts dispatched batches.
	SchedulerBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewind_scheduler_batches_total",
			Help: "Total number of batches dispatched by the rate limited scheduler",
		},
	)

	// SchedulerJobsTotal counts scheduled jobs by outcome (succeeded, failed).
	SchedulerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewind_scheduler_jobs_total",
			Help: "Total number of jobs awaited by the scheduler",
		},
		[]string{"outcome"},
	)

	// AggregateUpdatesTotal counts aggregate writes by kind (increment, recompute).
	AggregateUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewind_aggregate_updates_total",
			Help: "Total number of yearly aggregate updates",
		},
		[]string{"kind"},
	)

	// RiotRequestsTotal counts external API calls by endpoint and status class.
	RiotRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewind_riot_requests_total",
			Help: "Total number of requests sent to the Riot API",
		},
		[]string{"endpoint", "status"},
	)

	// RiotRequestDuration tracks external API latency.
	RiotRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewind_riot_request_duration_seconds",
			Help:    "Latency of Riot API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// RiotBreakerState reports the circuit breaker state per host (0 closed, 1 half-open, 2 open).
	RiotBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rewind_riot_breaker_state",
			Help: "Circuit breaker state per Riot API host",
		},
		[]string{"host"},
	)
)

// RecordJob records the outcome of one job.
func RecordJob(jobType, outcome string, d time.Duration) {
	JobsTotal.WithLabelValues(jobType, outcome).Inc()
	JobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

// RecordRiotRequest records one external call.
func RecordRiotRequest(endpoint, status string, d time.Duration) {
	RiotRequestsTotal.WithLabelValues(endpoint, status).Inc()
	RiotRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}
