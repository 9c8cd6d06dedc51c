// Package metrics exports pipeline counters to Prometheus. Every method is
// safe on a nil *Metrics so collaborators can run without instrumentation.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "asset_pipeline"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetry   = "retry"
	OutcomeSkipped = "skipped"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	wakeAttempts  *prometheus.CounterVec
	jobTransition *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	uploadBytes   prometheus.Counter
	downloads     *prometheus.CounterVec
	bookkeeping   *prometheus.CounterVec
	sweepJobs     *prometheus.CounterVec
}

// New registers all collectors on reg. A nil reg uses a private registry.
func New(namespace string, reg *prometheus.Registry) (*Metrics, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		wakeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_wake_attempts_total",
			Help:      "Worker wake attempts by outcome.",
		}, []string{"outcome"}),
		jobTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Processing job status transitions.",
		}, []string{"from", "to"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Object uploads by slot and outcome.",
		}, []string{"slot", "outcome"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes successfully written to object storage.",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download requests by outcome.",
		}, []string{"outcome"}),
		bookkeeping: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bookkeeping_total",
			Help:      "Deferred download bookkeeping by outcome.",
		}, []string{"outcome"}),
		sweepJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_sweep_jobs_total",
			Help:      "Jobs touched by the lease sweep.",
		}, []string{"action"}),
	}

	collectors := []prometheus.Collector{
		m.httpRequests, m.httpDuration, m.wakeAttempts, m.jobTransition,
		m.uploads, m.uploadBytes, m.downloads, m.bookkeeping, m.sweepJobs,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) WakeAttempt(outcome string) {
	if m == nil {
		return
	}
	m.wakeAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobTransition(from, to string) {
	if m == nil {
		return
	}
	m.jobTransition.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Upload(slot string, size int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.uploads.WithLabelValues(slot, OutcomeFailure).Inc()
		return
	}
	m.uploads.WithLabelValues(slot, OutcomeSuccess).Inc()
	m.uploadBytes.Add(float64(size))
}

func (m *Metrics) Download(outcome string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Bookkeeping(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.bookkeeping.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Sweep(requeued, failed int64) {
	if m == nil {
		return
	}
	m.sweepJobs.WithLabelValues("requeued").Add(float64(requeued))
	m.sweepJobs.WithLabelValues("failed").Add(float64(failed))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count and latency keyed by the matched route
// rather than the raw path, so ids do not explode label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}

			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
