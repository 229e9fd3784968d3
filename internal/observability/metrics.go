package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's Prometheus collectors. Each instance owns
// its own registry so tests can construct isolated copies.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	cacheEvictions      *prometheus.CounterVec
	revocationsTotal    *prometheus.CounterVec
	presenceSendsTotal  *prometheus.CounterVec
	presenceConnections prometheus.Gauge
	assignmentsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of requests resolved as domain errors.",
		}, []string{"code"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cache lookups that returned a live entry.",
		}, []string{"namespace"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Cache lookups that found no live entry.",
		}, []string{"namespace"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Entries removed by expiry or invalidation.",
		}, []string{"namespace"}),
		revocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credential_revocations_total",
			Help: "Credential and principal revocations by reason.",
		}, []string{"reason"}),
		presenceSendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_sends_total",
			Help: "Real-time send attempts by outcome.",
		}, []string{"outcome"}),
		presenceConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_connections",
			Help: "Currently registered live connections.",
		}),
		assignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_assignments_total",
			Help: "Ticket assignments by mode.",
		}, []string{"mode"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.requestsTotal,
		m.errorsTotal,
		m.cacheHits,
		m.cacheMisses,
		m.cacheEvictions,
		m.revocationsTotal,
		m.presenceSendsTotal,
		m.presenceConnections,
		m.assignmentsTotal,
	)
	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts a completed HTTP request.
func (m *Metrics) RecordRequest(method, path string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// RecordError counts a request resolved as a domain error.
func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(code).Inc()
}

// RecordCacheHit counts a lookup served from cache.
func (m *Metrics) RecordCacheHit(namespace string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(namespace).Inc()
}

// RecordCacheMiss counts a lookup that missed.
func (m *Metrics) RecordCacheMiss(namespace string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(namespace).Inc()
}

// RecordCacheEviction counts removed entries.
func (m *Metrics) RecordCacheEviction(namespace string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.WithLabelValues(namespace).Add(float64(n))
}

// RecordRevocation counts a revocation by reason.
func (m *Metrics) RecordRevocation(reason string) {
	if m == nil {
		return
	}
	m.revocationsTotal.WithLabelValues(reason).Inc()
}

// RecordPresenceSend counts a real-time send attempt.
func (m *Metrics) RecordPresenceSend(delivered bool) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "dropped"
	}
	m.presenceSendsTotal.WithLabelValues(outcome).Inc()
}

// SetPresenceConnections records the live connection count.
func (m *Metrics) SetPresenceConnections(n int) {
	if m == nil {
		return
	}
	m.presenceConnections.Set(float64(n))
}

// RecordAssignment counts a ticket assignment.
func (m *Metrics) RecordAssignment(mode string) {
	if m == nil {
		return
	}
	m.assignmentsTotal.WithLabelValues(mode).Inc()
}
