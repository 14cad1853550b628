package balancer

import (
	"context"
	"log/slog"
)

// Weight adjustment bounds and step.
const (
	minWeight        = 10
	maxWeight        = 1000
	adjustmentFactor = 0.1
)

// AutoWeightAdjuster nudges provider weights toward better performing
// backends. Providers with fewer than 10 recorded requests are skipped.
type AutoWeightAdjuster struct {
	collector *MetricsCollector
	logger    *slog.Logger
}

// NewAutoWeightAdjuster builds an adjuster over the given collector.
func NewAutoWeightAdjuster(collector *MetricsCollector, logger *slog.Logger) *AutoWeightAdjuster {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoWeightAdjuster{collector: collector, logger: logger}
}

// AdjustWeights recomputes weights for the given providers and persists any
// changes. The performance score averages the success rate with a latency
// factor normalized to one second; scores above 0.8 earn a 10% weight
// increase, scores below 0.5 a 10% decrease, clamped to [10, 1000]. Returns
// the providers whose weight changed with their new weight.
func (a *AutoWeightAdjuster) AdjustWeights(ctx context.Context, providerIDs []string) (map[string]int, error) {
	adjustments := make(map[string]int)

	for _, id := range providerIDs {
		m, err := a.collector.Get(ctx, id)
		if err != nil {
			a.logger.Warn("skipping weight adjustment", "provider", id, "error", err)
			continue
		}
		if m.TotalRequests < 10 {
			continue
		}

		latencyFactor := 1 - m.AvgLatencyMs/1000
		if latencyFactor < 0 {
			latencyFactor = 0
		}
		performanceScore := (m.SuccessRate + latencyFactor) / 2

		newWeight := m.Weight
		switch {
		case performanceScore > 0.8:
			newWeight = int(float64(m.Weight) * (1 + adjustmentFactor))
		case performanceScore < 0.5:
			newWeight = int(float64(m.Weight) * (1 - adjustmentFactor))
		}
		newWeight = min(max(newWeight, minWeight), maxWeight)

		if newWeight == m.Weight {
			continue
		}
		if err := a.collector.SetWeight(ctx, id, newWeight); err != nil {
			a.logger.Error("failed to persist adjusted weight", "provider", id, "error", err)
			continue
		}
		adjustments[id] = newWeight
		a.logger.Info("provider weight adjusted",
			"provider", id,
			"old_weight", m.Weight,
			"new_weight", newWeight,
			"score", performanceScore,
		)
	}

	return adjustments, nil
}
