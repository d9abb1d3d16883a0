package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "functions_gateway"

// Metrics collects gateway metrics on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	invocations   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	authFailures  *prometheus.CounterVec
	jwksRefreshes *prometheus.CounterVec
	routes        prometheus.Gauge
}

// NewMetrics creates and registers the gateway collectors along with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Function invocations by route and outcome.",
		}, []string{"route", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Function invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected requests by failure kind.",
		}, []string{"reason"}),
		jwksRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_refreshes_total",
			Help:      "JWKS refreshes by result.",
		}, []string{"result"}),
		routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mounted_routes",
			Help:      "Number of mounted function routes.",
		}),
	}

	m.registry.MustRegister(
		m.invocations,
		m.duration,
		m.authFailures,
		m.jwksRefreshes,
		m.routes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordInvocation counts a finished invocation
func (m *Metrics) RecordInvocation(route, outcome string, duration time.Duration) {
	m.invocations.WithLabelValues(route, outcome).Inc()
	m.duration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordAuthFailure counts a rejected request
func (m *Metrics) RecordAuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

// RecordJWKSRefresh counts a JWKS refresh outcome
func (m *Metrics) RecordJWKSRefresh(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jwksRefreshes.WithLabelValues(result).Inc()
}

// SetRoutes records the number of mounted routes
func (m *Metrics) SetRoutes(n int) {
	m.routes.Set(float64(n))
}

// Gatherer exposes the registry, e.g. for tests
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
