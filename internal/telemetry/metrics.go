package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsSubmitted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "loganalyzer_jobs_submitted_total", Help: "Jobs accepted via upload"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "loganalyzer_jobs_completed_total", Help: "Jobs that produced an analysis result"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "loganalyzer_jobs_failed_total", Help: "Jobs that ended in the failed state"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "loganalyzer_rate_limit_rejects_total", Help: "Uploads rejected by the rate limiter"})
	StageCompleted   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "loganalyzer_stage_completed_total", Help: "Pipeline stages completed"}, []string{"stage"})
	StageFailures    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "loganalyzer_stage_failures_total", Help: "Pipeline stages that exhausted retries"}, []string{"stage"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "loganalyzer_queue_depth", Help: "Jobs waiting in the ready queue"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "loganalyzer_inflight", Help: "Jobs currently leased by workers"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			JobsCompleted,
			JobsFailed,
			RateLimitRejects,
			StageCompleted,
			StageFailures,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
