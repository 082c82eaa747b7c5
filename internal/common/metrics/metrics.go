// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusCached  = "cached"
)

var (
	AgentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textagents_runs_total",
			Help: "Total number of agent runs by outcome",
		},
		[]string{"agent", "status"},
	)

	AgentRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textagents_run_duration_seconds",
			Help:    "Duration of agent runs in seconds, model calls included",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)

	ModelAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textagents_model_attempts_total",
			Help: "Model calls by outcome (ok, retry, transport_error)",
		},
		[]string{"agent", "outcome"},
	)

	OutputViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textagents_output_violations_total",
			Help: "Runs that failed after exhausting output validation retries",
		},
		[]string{"agent"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textagents_cache_lookups_total",
			Help: "Result cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)
