// Package metrics exposes Prometheus instrumentation for the deal pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flightdeals"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Detection
	FlightsEvaluated *prometheus.CounterVec
	DealsUpserted    *prometheus.CounterVec
	EvalDuration     prometheus.Histogram

	// Fan-out
	NotificationsQueued prometheus.Counter
	FanoutErrors        prometheus.Counter

	// Dispatch
	NotificationsDispatched *prometheus.CounterVec
	TrackingEvents          *prometheus.CounterVec

	// Ingestion
	ObservationsIngested *prometheus.CounterVec

	// Jobs
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New builds a Metrics instance on its own registry, including Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FlightsEvaluated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "flights_evaluated_total",
			Help:      "Flights evaluated by outcome (deal, no_deal, not_found, error)",
		}, []string{"outcome"}),
		DealsUpserted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "deals_upserted_total",
			Help:      "Deals written by action (created, updated) and quality",
		}, []string{"action", "quality"}),
		EvalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "evaluation_duration_seconds",
			Help:      "Latency of a single flight evaluation",
			Buckets:   prometheus.DefBuckets,
		}),

		NotificationsQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "notifications_queued_total",
			Help:      "Pending notifications created by fan-out",
		}),
		FanoutErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "fanout_errors_total",
			Help:      "Per-user failures during fan-out",
		}),

		NotificationsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "notifications_total",
			Help:      "Notifications handed to the mail transport by status",
		}, []string{"status"}),
		TrackingEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "tracking_events_total",
			Help:      "Email open and click events by kind and whether the id was known",
		}, []string{"kind", "known"}),

		ObservationsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "observations_total",
			Help:      "Scraped observations by result",
		}, []string{"result"}),

		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled job runs by job and status (ok, error, skipped)",
		}, []string{"job", "status"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Scheduled job latency",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by method, route template and status code",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route template",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveEvaluation(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FlightsEvaluated.WithLabelValues(outcome).Inc()
	m.EvalDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) DealWritten(created bool, quality string) {
	if m == nil {
		return
	}
	action := "updated"
	if created {
		action = "created"
	}
	m.DealsUpserted.WithLabelValues(action, quality).Inc()
}

func (m *Metrics) NotificationQueued() {
	if m == nil {
		return
	}
	m.NotificationsQueued.Inc()
}

func (m *Metrics) FanoutFailed() {
	if m == nil {
		return
	}
	m.FanoutErrors.Inc()
}

func (m *Metrics) Dispatched(status string) {
	if m == nil {
		return
	}
	m.NotificationsDispatched.WithLabelValues(status).Inc()
}

func (m *Metrics) Tracked(kind string, known bool) {
	if m == nil {
		return
	}
	k := "false"
	if known {
		k = "true"
	}
	m.TrackingEvents.WithLabelValues(kind, k).Inc()
}

func (m *Metrics) Ingested(result string) {
	if m == nil {
		return
	}
	m.ObservationsIngested.WithLabelValues(result).Inc()
}

// JobFinished records one run of a scheduled job.
func (m *Metrics) JobFinished(job, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	if status != "skipped" {
		m.JobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
	}
}

// ObserveHTTP records one API request. route is the matched template, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
