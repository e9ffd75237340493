package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// Metrics owns the gateway's Prometheus registry and the per-service
// request, breaker, and probe series.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	probesTotal     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled by the gateway, by resolved service and status code.",
		}, []string{"service", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency as observed by the gateway.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"service"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per service (0 closed, 1 open, 2 half-open).",
		}, []string{"service"}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Completed health probes per service and result.",
		}, []string{"service", "result"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.breakerState,
		m.probesTotal,
	)

	return m
}

// ObserveRequest records one completed inbound request. Requests that never
// resolved to a service are recorded under an empty service label.
func (m *Metrics) ObserveRequest(service string, statusCode int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// SetBreakerState publishes the breaker state for a service. The value is
// the numeric State of the circuitbreaker package.
func (m *Metrics) SetBreakerState(service string, state int) {
	m.breakerState.WithLabelValues(service).Set(float64(state))
}

// ObserveProbe records one completed health probe.
func (m *Metrics) ObserveProbe(service string, healthy bool) {
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	m.probesTotal.WithLabelValues(service, result).Inc()
}

// Handler serves the gateway registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
