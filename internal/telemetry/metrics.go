package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	RunsStarted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "fetch_runs_started_total", Help: "Scheduled runs started"})
	RunsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "fetch_runs_completed_total", Help: "Scheduled runs that reached aggregation"})
	RunsAborted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "fetch_runs_aborted_total", Help: "Runs aborted in a setup phase"})
	JobSuccesses    = prometheus.NewCounter(prometheus.CounterOpts{Name: "fetch_jobs_succeeded_total", Help: "Job outcomes recorded as success"})
	JobFailures     = prometheus.NewCounter(prometheus.CounterOpts{Name: "fetch_jobs_failed_total", Help: "Job outcomes recorded as failure"})
	JobSkips        = prometheus.NewCounter(prometheus.CounterOpts{Name: "fetch_jobs_skipped_total", Help: "Jobs skipped for a missing credential"})
	RateLimitWaits  = prometheus.NewCounter(prometheus.CounterOpts{Name: "fetch_rate_limit_waits_total", Help: "Adapter calls delayed by the per-user API budget"})
	RunsInFlight    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fetch_runs_inflight", Help: "Orchestrator runs currently executing"})
	BatchDuration   = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "fetch_batch_duration_seconds", Help: "Wall time per batch", Buckets: prometheus.ExponentialBuckets(0.5, 2, 12)}, []string{"batch"})
	TokenRefreshes  = prometheus.NewCounter(prometheus.CounterOpts{Name: "fetch_token_refreshes_total", Help: "Mid-poll Ads token refreshes"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			RunsStarted,
			RunsCompleted,
			RunsAborted,
			JobSuccesses,
			JobFailures,
			JobSkips,
			RateLimitWaits,
			RunsInFlight,
			BatchDuration,
			TokenRefreshes,
		)
	})
	return promhttp.Handler()
}
