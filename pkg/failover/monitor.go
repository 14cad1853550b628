package failover

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/balancer"
	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
	"github.com/zhuzhichaoTM/llm-router/pkg/telemetry/metrics"
)

// HealthMonitor probes every registered provider on a fixed interval and
// records the results in the metrics collector. Probe errors and timeouts are
// recorded as unhealthy, never propagated.
type HealthMonitor struct {
	registry  *providers.Registry
	collector *balancer.MetricsCollector
	logger    *slog.Logger
	metrics   *metrics.ProviderMetrics
	cfg       config.HealthConfig
}

// NewHealthMonitor builds a monitor. pm may be nil.
func NewHealthMonitor(registry *providers.Registry, collector *balancer.MetricsCollector, cfg config.HealthConfig, logger *slog.Logger, pm *metrics.ProviderMetrics) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{
		registry:  registry,
		collector: collector,
		logger:    logger,
		metrics:   pm,
		cfg:       cfg,
	}
}

// Run blocks, probing all providers every CheckInterval until the context is
// cancelled. The first sweep runs immediately.
func (hm *HealthMonitor) Run(ctx context.Context) {
	hm.logger.Info("health monitor started",
		"interval", hm.cfg.CheckInterval,
		"probe_timeout", hm.cfg.ProbeTimeout,
	)

	ticker := time.NewTicker(hm.cfg.CheckInterval)
	defer ticker.Stop()

	hm.CheckAll(ctx)
	for {
		select {
		case <-ctx.Done():
			hm.logger.Info("health monitor stopped")
			return
		case <-ticker.C:
			hm.CheckAll(ctx)
		}
	}
}

// CheckAll probes every registered provider once.
func (hm *HealthMonitor) CheckAll(ctx context.Context) {
	for _, name := range hm.registry.Names() {
		p, err := hm.registry.Get(name)
		if err != nil {
			continue
		}
		hm.probe(ctx, name, p)
	}
}

// probe runs a single health check and records the outcome. A panic inside a
// provider adapter is treated as a failed probe.
func (hm *HealthMonitor) probe(ctx context.Context, name string, p providers.Provider) {
	defer func() {
		if r := recover(); r != nil {
			hm.logger.Error("health probe panicked", "provider", name, "panic", r)
			hm.record(ctx, name, false, 0, fmt.Sprintf("health check panic: %v", r))
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, hm.cfg.ProbeTimeout)
	defer cancel()

	status, err := p.HealthCheck(probeCtx)
	switch {
	case probeCtx.Err() != nil:
		hm.record(ctx, name, false, 0, providers.ErrHealthCheckTimeout.Error())
	case err != nil:
		hm.record(ctx, name, false, status.LatencyMs, err.Error())
	default:
		hm.record(ctx, name, status.Healthy, status.LatencyMs, status.ErrorMessage)
	}
}

func (hm *HealthMonitor) record(ctx context.Context, name string, healthy bool, latencyMs int64, errMsg string) {
	if err := hm.collector.SetHealth(ctx, name, healthy, errMsg); err != nil {
		hm.logger.Error("failed to record health probe", "provider", name, "error", err)
	}
	if hm.metrics != nil {
		hm.metrics.UpdateHealth(name, healthy)
	}
	if !healthy {
		hm.logger.Warn("provider unhealthy", "provider", name, "error", errMsg)
	} else {
		hm.logger.Debug("provider healthy", "provider", name, "latency_ms", latencyMs)
	}
}
