package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks provider health and performance.
//
// Metrics:
//   - llmrouter_provider_health: Provider health status (1=healthy, 0=unhealthy)
//   - llmrouter_provider_latency_seconds: Provider call latency
//   - llmrouter_provider_requests_total: Requests per provider and outcome
//   - llmrouter_provider_active_connections: In-flight requests per provider
type ProviderMetrics struct {
	health      *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	connections *prometheus.GaugeVec
}

// NewProviderMetrics creates and registers provider metrics.
func NewProviderMetrics(namespace string, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_health",
				Help:      "Provider health status (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_latency_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "model"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total requests per provider by outcome",
			},
			[]string{"provider", "outcome"},
		),
		connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_active_connections",
				Help:      "In-flight requests per provider",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(pm.health, pm.latency, pm.requests, pm.connections)
	return pm
}

// UpdateHealth records the current health status of a provider.
func (pm *ProviderMetrics) UpdateHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	pm.health.WithLabelValues(provider).Set(v)
}

// ObserveRequest records one completed provider call.
func (pm *ProviderMetrics) ObserveRequest(provider, model string, d time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	pm.requests.WithLabelValues(provider, outcome).Inc()
	pm.latency.WithLabelValues(provider, model).Observe(d.Seconds())
}

// ConnectionOpened increments the in-flight gauge for a provider.
func (pm *ProviderMetrics) ConnectionOpened(provider string) {
	pm.connections.WithLabelValues(provider).Inc()
}

// ConnectionClosed decrements the in-flight gauge for a provider.
func (pm *ProviderMetrics) ConnectionClosed(provider string) {
	pm.connections.WithLabelValues(provider).Dec()
}
