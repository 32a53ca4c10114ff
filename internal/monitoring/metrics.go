// Package monitoring exposes the Prometheus metrics the sync pipeline
// emits: HTTP surface traffic plus the queue/orchestrator counters an
// operator needs to see a stuck account or a failing provider (§4.6,
// §4.7, §4.8).
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter, gauge, and histogram the core exports.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	JobsEnqueuedTotal  *prometheus.CounterVec
	JobsCompletedTotal *prometheus.CounterVec
	JobsRetriedTotal   *prometheus.CounterVec
	JobsDeadTotal      *prometheus.CounterVec

	SyncDuration       *prometheus.HistogramVec
	MessagesMirrored   *prometheus.CounterVec
	SyncErrorsTotal    *prometheus.CounterVec
	AccountsDueForSync prometheus.Gauge

	PanicsTotal prometheus.Counter
}

// NewMetrics registers and returns the full metric set against the
// default Prometheus registry, the way promauto does it throughout
// the corpus.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmirror_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailmirror_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		JobsEnqueuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmirror_jobs_enqueued_total",
				Help: "Total number of jobs enqueued, by queue",
			},
			[]string{"queue"},
		),
		JobsCompletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmirror_jobs_completed_total",
				Help: "Total number of jobs acked as completed, by queue",
			},
			[]string{"queue"},
		),
		JobsRetriedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmirror_jobs_retried_total",
				Help: "Total number of job retries, by queue",
			},
			[]string{"queue"},
		),
		JobsDeadTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmirror_jobs_dead_total",
				Help: "Total number of jobs moved to dead after exhausting retries, by queue",
			},
			[]string{"queue"},
		),
		SyncDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailmirror_sync_duration_seconds",
				Help:    "Duration of one account sync run (initial or incremental)",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "kind"},
		),
		MessagesMirrored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmirror_messages_mirrored_total",
				Help: "Total number of messages mirrored into the store",
			},
			[]string{"provider"},
		),
		SyncErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmirror_sync_errors_total",
				Help: "Total number of sync failures, by provider and error kind",
			},
			[]string{"provider", "kind"},
		),
		AccountsDueForSync: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailmirror_accounts_due_for_sync",
				Help: "Number of accounts the scheduler found due for sync on its last tick",
			},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailmirror_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *Metrics) RecordJobEnqueued(queue string) { m.JobsEnqueuedTotal.WithLabelValues(queue).Inc() }
func (m *Metrics) RecordJobCompleted(queue string) {
	m.JobsCompletedTotal.WithLabelValues(queue).Inc()
}
func (m *Metrics) RecordJobRetried(queue string) { m.JobsRetriedTotal.WithLabelValues(queue).Inc() }
func (m *Metrics) RecordJobDead(queue string)    { m.JobsDeadTotal.WithLabelValues(queue).Inc() }

func (m *Metrics) RecordSyncDuration(provider, kind string, d time.Duration) {
	m.SyncDuration.WithLabelValues(provider, kind).Observe(d.Seconds())
}
func (m *Metrics) RecordMessagesMirrored(provider string, n int) {
	m.MessagesMirrored.WithLabelValues(provider).Add(float64(n))
}
func (m *Metrics) RecordSyncError(provider, kind string) {
	m.SyncErrorsTotal.WithLabelValues(provider, kind).Inc()
}
func (m *Metrics) SetAccountsDueForSync(n int) { m.AccountsDueForSync.Set(float64(n)) }

func (m *Metrics) RecordPanic() { m.PanicsTotal.Inc() }

// HTTPHandler returns the Prometheus scrape handler for /metrics.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
