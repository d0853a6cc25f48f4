// Package metrics exposes auditai's Prometheus collectors on a private
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/jobs"
)

// Compile-time interface check.
var _ eventbus.Observer = (*Metrics)(nil)

type Metrics struct {
	registry *prometheus.Registry

	jobsCreated  *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec

	eventsAppended      *prometheus.CounterVec
	subscribersActive   prometheus.Gauge
	subscriberOverflows prometheus.Counter

	providerChunks *prometheus.CounterVec
	providerErrors *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.jobsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditai_jobs_created_total",
			Help: "Jobs accepted, by kind",
		},
		[]string{"kind"},
	)
	m.jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditai_jobs_finished_total",
			Help: "Jobs that reached a terminal state, by kind, status and error kind",
		},
		[]string{"kind", "status", "error_kind"},
	)
	m.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditai_job_duration_seconds",
			Help:    "Wall time from job start to terminal state",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind", "status"},
	)
	m.eventsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditai_events_appended_total",
			Help: "Events appended to job logs, by type",
		},
		[]string{"type"},
	)
	m.subscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auditai_event_subscribers",
		Help: "Live event subscriptions",
	})
	m.subscriberOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditai_event_subscriber_overflows_total",
		Help: "Subscribers disconnected for falling behind",
	})
	m.providerChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditai_provider_chunks_total",
			Help: "Streamed text chunks received, by provider",
		},
		[]string{"provider"},
	)
	m.providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditai_provider_errors_total",
			Help: "Provider call failures, by provider and reason",
		},
		[]string{"provider", "reason"},
	)
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditai_http_requests_total",
			Help: "HTTP requests served, by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	m.registry.MustRegister(
		m.jobsCreated, m.jobsFinished, m.jobDuration,
		m.eventsAppended, m.subscribersActive, m.subscriberOverflows,
		m.providerChunks, m.providerErrors, m.httpRequests,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobCreated(kind jobs.Kind) {
	if m == nil {
		return
	}
	m.jobsCreated.WithLabelValues(string(kind)).Inc()
}

// JobFinished is registered as a jobs.Registry terminal hook.
func (m *Metrics) JobFinished(info jobs.Info) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(string(info.Kind), string(info.Status), string(info.ErrorKind)).Inc()
	if info.StartedAt != nil && info.EndedAt != nil {
		m.jobDuration.WithLabelValues(string(info.Kind), string(info.Status)).
			Observe(info.EndedAt.Sub(*info.StartedAt).Seconds())
	}
}

func (m *Metrics) EventAppended(t eventbus.Type) {
	if m == nil {
		return
	}
	m.eventsAppended.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) SubscriberAttached() {
	if m == nil {
		return
	}
	m.subscribersActive.Inc()
}

func (m *Metrics) SubscriberDetached() {
	if m == nil {
		return
	}
	m.subscribersActive.Dec()
}

func (m *Metrics) SubscriberOverflowed() {
	if m == nil {
		return
	}
	m.subscriberOverflows.Inc()
}

func (m *Metrics) ProviderChunk(provider string) {
	if m == nil {
		return
	}
	m.providerChunks.WithLabelValues(provider).Inc()
}

func (m *Metrics) ProviderError(provider, reason string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, code int, _ time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
