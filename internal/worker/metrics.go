package worker

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeCompleted = "completed"
	outcomeCacheHit  = "cache_hit"
	outcomeFailed    = "failed"
	outcomeDropped   = "dropped"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"
)

var (
	// jobsProcessed counts dequeued jobs by how their pipeline ended.
	// "error" means the worker's own bookkeeping failed and the message is retried.
	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarizer_jobs_processed_total",
			Help: "Jobs handled by the worker, by outcome.",
		},
		[]string{"outcome"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarizer_cache_lookups_total",
			Help: "Result cache lookups, by result (hit/miss).",
		},
		[]string{"result"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "summarizer_job_duration_seconds",
			Help:    "Wall time of one pipeline run.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	jobsRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "summarizer_jobs_requeued_total",
			Help: "Stale pending jobs re-enqueued by the sweeper.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsProcessed, cacheLookups, jobDuration, jobsRequeued)
}
