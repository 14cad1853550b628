// Package agent exposes the administrative provider surface: sweeping
// health checks across every registered provider and ranking providers by
// observed performance.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/balancer"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
)

// ErrNoProviders is returned by GetBestProvider when no candidate exists.
var ErrNoProviders = errors.New("no providers available")

// defaultScore is assigned to providers that have never been checked.
const defaultScore = 0.5

// ProviderReport is the outcome of one health sweep entry for a provider,
// combining the live probe with accumulated traffic metrics.
type ProviderReport struct {
	ProviderID     string    `json:"provider_id"`
	Healthy        bool      `json:"healthy"`
	LatencyMs      int64     `json:"latency_ms"`
	SuccessRate    float64   `json:"success_rate"`
	TotalRequests  int64     `json:"total_requests"`
	FailedRequests int64     `json:"failed_requests"`
	LastError      string    `json:"last_error,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// ProviderAgent probes providers on demand and keeps the latest report per
// provider for ranking. Safe for concurrent use.
type ProviderAgent struct {
	registry   *providers.Registry
	collector  *balancer.MetricsCollector
	priorities map[string]int
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	reports map[string]ProviderReport
}

// NewProviderAgent builds an agent over the registry. priorities maps
// provider IDs to their configured priority; missing entries count as zero.
func NewProviderAgent(registry *providers.Registry, collector *balancer.MetricsCollector, priorities map[string]int, logger *slog.Logger) *ProviderAgent {
	if logger == nil {
		logger = slog.Default()
	}
	if priorities == nil {
		priorities = map[string]int{}
	}
	return &ProviderAgent{
		registry:   registry,
		collector:  collector,
		priorities: priorities,
		logger:     logger.With("component", "agent"),
		now:        time.Now,
		reports:    make(map[string]ProviderReport),
	}
}

// SetClock replaces the time source. Tests only.
func (a *ProviderAgent) SetClock(now func() time.Time) {
	a.now = now
}

// HealthCheckAll probes every registered provider and returns a report per
// provider. A probe failure yields an unhealthy report rather than an
// error; the sweep always covers the full registry.
func (a *ProviderAgent) HealthCheckAll(ctx context.Context) map[string]ProviderReport {
	results := make(map[string]ProviderReport)

	for id, p := range a.registry.All() {
		report := ProviderReport{
			ProviderID: id,
			CheckedAt:  a.now(),
		}

		status, err := p.HealthCheck(ctx)
		if err != nil {
			report.Healthy = false
			report.LastError = err.Error()
		} else {
			report.Healthy = status.Healthy
			report.LatencyMs = status.LatencyMs
			report.LastError = status.ErrorMessage
		}

		if m, merr := a.collector.Get(ctx, id); merr == nil {
			report.SuccessRate = m.SuccessRate
			report.TotalRequests = m.TotalRequests
			report.FailedRequests = m.FailedRequests
		} else {
			a.logger.Warn("reading provider metrics failed", "provider", id, "error", merr)
			report.SuccessRate = 1.0
		}

		a.logger.Info("health check",
			"provider", id,
			"healthy", report.Healthy,
			"latency_ms", report.LatencyMs,
		)
		results[id] = report
	}

	a.mu.Lock()
	for id, r := range results {
		a.reports[id] = r
	}
	a.mu.Unlock()

	return results
}

// Report returns the cached report for one provider, if any sweep has
// covered it yet.
func (a *ProviderAgent) Report(providerID string) (ProviderReport, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.reports[providerID]
	return r, ok
}

// GetBestProvider ranks the candidates by the latest reports and returns
// the highest scoring one. A nil or empty candidate list considers every
// registered provider. Providers without a report score 0.5; otherwise the
// score blends health (0.4), success rate (0.4), and a latency band (0.2).
// Configured priority adds priority/1000 so equal performers are split by
// configuration.
func (a *ProviderAgent) GetBestProvider(ctx context.Context, candidateIDs []string) (string, error) {
	if len(candidateIDs) == 0 {
		candidateIDs = a.registry.Names()
	}
	if len(candidateIDs) == 0 {
		return "", ErrNoProviders
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	best := ""
	bestScore := -1.0
	for _, id := range candidateIDs {
		score := defaultScore
		if r, ok := a.reports[id]; ok {
			score = scoreReport(r)
		}
		score += float64(a.priorities[id]) / 1000

		if score > bestScore {
			bestScore = score
			best = id
		}
	}
	return best, nil
}

func scoreReport(r ProviderReport) float64 {
	healthScore := 0.0
	if r.Healthy {
		healthScore = 1.0
	}

	latencyScore := 1.0
	switch {
	case r.LatencyMs <= 0 || r.LatencyMs < 500:
	case r.LatencyMs < 1000:
		latencyScore = 0.8
	case r.LatencyMs < 2000:
		latencyScore = 0.5
	default:
		latencyScore = 0.2
	}

	return healthScore*0.4 + r.SuccessRate*0.4 + latencyScore*0.2
}
