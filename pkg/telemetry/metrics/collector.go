// Package metrics exposes the router's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
)

// Collector owns the Prometheus registry and the router's metric groups.
type Collector struct {
	registry *prometheus.Registry

	Provider   *ProviderMetrics
	Routing    *RoutingMetrics
	Resilience *ResilienceMetrics
}

// NewCollector creates a registry, registers the Go runtime and process
// collectors, and builds every metric group under the configured namespace.
func NewCollector(cfg config.MetricsConfig) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry:   registry,
		Provider:   NewProviderMetrics(cfg.Namespace, registry),
		Routing:    NewRoutingMetrics(cfg.Namespace, registry),
		Resilience: NewResilienceMetrics(cfg.Namespace, registry),
	}
}

// Handler returns the scrape handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
