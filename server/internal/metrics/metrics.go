package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/surgecast/surgecast/server/internal/fault"
)

const namespace = "surgecast"

// Metrics holds all server metrics.
type Metrics struct {
	registry *prometheus.Registry

	briefings        *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
	pipelineErrors   *prometheus.CounterVec
	coalesced        prometheus.Counter
	modelRetries     prometheus.Counter
	ledgerFailures   prometheus.Counter
	cacheEntries     prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	alertsFired      *prometheus.CounterVec
	webhooks         *prometheus.CounterVec
	eventsPublished  prometheus.Counter
	eventsDropped    prometheus.Counter
}

// New creates the metrics and registers them, plus the Go runtime and process
// collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		briefings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "briefings_served_total",
			Help:      "Briefings returned by the forecast cache, by source (cache, computed, stale).",
		}, []string{"source"}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of full briefing computations, model call included.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		pipelineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Failed briefing computations by error kind.",
		}, []string{"kind"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_coalesced_total",
			Help:      "Requests that waited on an in-flight computation instead of starting one.",
		}),
		modelRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_retries_total",
			Help:      "Retried calls to the forecast model.",
		}),
		ledgerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_append_failures_total",
			Help:      "Briefings published to the cache whose history append failed.",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Hospitals with a cached briefing.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Alerts fired by rule.",
		}, []string{"rule"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_webhooks_total",
			Help:      "Alert webhook deliveries by target type and result (ok, failed).",
		}, []string{"type", "result"}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Briefing events written to the event stream.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Briefing events evicted from a full publish buffer.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.briefings,
		m.pipelineDuration,
		m.pipelineErrors,
		m.coalesced,
		m.modelRetries,
		m.ledgerFailures,
		m.cacheEntries,
		m.httpRequests,
		m.httpDuration,
		m.alertsFired,
		m.webhooks,
		m.eventsPublished,
		m.eventsDropped,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// BriefingServed counts one briefing returned from source.
func (m *Metrics) BriefingServed(source string) {
	if m == nil {
		return
	}
	m.briefings.WithLabelValues(source).Inc()
}

// PipelineRun records one computation. A nil err only observes the duration.
func (m *Metrics) PipelineRun(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(d.Seconds())
	if err != nil {
		kind := string(fault.KindOf(err))
		if errors.Is(err, context.Canceled) {
			kind = "CANCELED"
		}
		m.pipelineErrors.WithLabelValues(kind).Inc()
	}
}

// Coalesced counts one request served by another caller's computation.
func (m *Metrics) Coalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

// ModelRetry counts one retried model call.
func (m *Metrics) ModelRetry() {
	if m == nil {
		return
	}
	m.modelRetries.Inc()
}

// LedgerFailure counts one failed history append.
func (m *Metrics) LedgerFailure() {
	if m == nil {
		return
	}
	m.ledgerFailures.Inc()
}

// SetCacheEntries sets the cached hospital count.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// AlertFired counts one fired alert.
func (m *Metrics) AlertFired(rule string) {
	if m == nil {
		return
	}
	m.alertsFired.WithLabelValues(rule).Inc()
}

// WebhookDelivered counts one webhook delivery, after retries.
func (m *Metrics) WebhookDelivered(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.webhooks.WithLabelValues(kind, result).Inc()
}

// EventPublished counts one delivered event.
func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	m.eventsPublished.Inc()
}

// EventDropped counts one evicted event.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
