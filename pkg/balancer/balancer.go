package balancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
)

// Strategy selects how the load balancer picks among candidates.
type Strategy string

const (
	StrategyRoundRobin         Strategy = "round_robin"
	StrategyWeightedRoundRobin Strategy = "weighted_round_robin"
	StrategyLeastConnections   Strategy = "least_connections"
	StrategyLeastLatency       Strategy = "least_latency"
	StrategyRegionAware        Strategy = "region_aware"
	StrategyAdaptive           Strategy = "adaptive"
)

// ErrNoProviders is returned when selection is attempted over an empty
// candidate set.
var ErrNoProviders = errors.New("no providers available")

// Decision is the outcome of one selection pass.
type Decision struct {
	ProviderID         string   `json:"provider_id"`
	Strategy           Strategy `json:"strategy"`
	Reason             string   `json:"reason"`
	EstimatedLatencyMs float64  `json:"estimated_latency_ms"`
	Confidence         float64  `json:"confidence"`
}

// SelectOptions tunes one selection call.
type SelectOptions struct {
	// UserRegion enables region proximity for the region_aware strategy.
	UserRegion string

	// IncludeUnhealthy disables the unhealthy-candidate filter.
	IncludeUnhealthy bool
}

// LoadBalancer selects providers from candidate sets using live metrics.
// Safe for concurrent use; the round-robin cursor is a single atomic counter
// shared by the cyclic strategies.
type LoadBalancer struct {
	collector *MetricsCollector
	logger    *slog.Logger

	// minLatencySamples is how many recorded requests a provider needs
	// before least-latency selection will trust its average.
	minLatencySamples int64

	rrIndex atomic.Uint64
}

// NewLoadBalancer builds a balancer over the given metrics collector.
func NewLoadBalancer(collector *MetricsCollector, cfg config.BalancerConfig, logger *slog.Logger) *LoadBalancer {
	if logger == nil {
		logger = slog.Default()
	}
	minSamples := int64(cfg.MinLatencySamples)
	if minSamples <= 0 {
		minSamples = 5
	}
	return &LoadBalancer{
		collector:         collector,
		logger:            logger,
		minLatencySamples: minSamples,
	}
}

// Select picks one provider from providerIDs using the given strategy.
//
// Unhealthy candidates are excluded unless that would leave nothing to pick
// from, in which case the filter is relaxed so a degraded provider beats a
// failed request.
func (lb *LoadBalancer) Select(ctx context.Context, providerIDs []string, strategy Strategy, opts SelectOptions) (*Decision, error) {
	if len(providerIDs) == 0 {
		return nil, ErrNoProviders
	}

	all := make([]ProviderMetrics, 0, len(providerIDs))
	for _, id := range providerIDs {
		m, err := lb.collector.Get(ctx, id)
		if err != nil {
			lb.logger.Warn("skipping provider with unreadable metrics", "provider", id, "error", err)
			continue
		}
		all = append(all, m)
	}
	if len(all) == 0 {
		return nil, ErrNoProviders
	}

	candidates := all
	if !opts.IncludeUnhealthy {
		healthy := make([]ProviderMetrics, 0, len(all))
		for _, m := range all {
			if m.IsHealthy {
				healthy = append(healthy, m)
			}
		}
		if len(healthy) > 0 {
			candidates = healthy
		} else {
			lb.logger.Warn("all candidates unhealthy, relaxing health filter",
				"strategy", strategy,
				"candidates", len(all),
			)
		}
	}

	var d *Decision
	var err error
	switch strategy {
	case StrategyRoundRobin:
		d = lb.roundRobin(candidates)
	case StrategyWeightedRoundRobin:
		d = lb.weightedRoundRobin(candidates)
	case StrategyLeastConnections:
		d, err = lb.leastConnections(ctx, candidates)
	case StrategyLeastLatency:
		d = lb.leastLatency(candidates)
	case StrategyRegionAware:
		d = lb.regionAware(candidates, opts.UserRegion)
	case StrategyAdaptive:
		d = lb.adaptive(candidates)
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
	if err != nil {
		return nil, err
	}

	lb.logger.Debug("provider selected",
		"provider", d.ProviderID,
		"strategy", d.Strategy,
		"confidence", d.Confidence,
		"reason", d.Reason,
	)
	return d, nil
}

// ReleaseConnection releases a connection acquired by a least-connections
// selection. Call when the request completes.
func (lb *LoadBalancer) ReleaseConnection(ctx context.Context, providerID string) {
	if err := lb.collector.AddConnection(ctx, providerID, -1); err != nil {
		lb.logger.Warn("failed to release connection", "provider", providerID, "error", err)
	}
}

func (lb *LoadBalancer) roundRobin(candidates []ProviderMetrics) *Decision {
	idx := lb.rrIndex.Add(1) - 1
	selected := candidates[idx%uint64(len(candidates))]

	return &Decision{
		ProviderID:         selected.ProviderID,
		Strategy:           StrategyRoundRobin,
		Reason:             "round-robin selection",
		EstimatedLatencyMs: selected.AvgLatencyMs,
		Confidence:         0.5,
	}
}

func (lb *LoadBalancer) weightedRoundRobin(candidates []ProviderMetrics) *Decision {
	totalWeight := 0
	for _, m := range candidates {
		totalWeight += m.Weight
	}
	if totalWeight == 0 {
		return lb.roundRobin(candidates)
	}

	// Cumulative-weight bucketing over a monotonic cursor: the winner is the
	// first candidate whose running weight sum exceeds the cursor position.
	idx := lb.rrIndex.Add(1) - 1
	weightedIndex := int(idx % uint64(totalWeight))

	selected := candidates[0]
	running := 0
	for _, m := range candidates {
		running += m.Weight
		if weightedIndex < running {
			selected = m
			break
		}
	}

	return &Decision{
		ProviderID:         selected.ProviderID,
		Strategy:           StrategyWeightedRoundRobin,
		Reason:             fmt.Sprintf("weighted round-robin (weight=%d)", selected.Weight),
		EstimatedLatencyMs: selected.AvgLatencyMs,
		Confidence:         0.7,
	}
}

func (lb *LoadBalancer) leastConnections(ctx context.Context, candidates []ProviderMetrics) (*Decision, error) {
	selected := candidates[0]
	for _, m := range candidates[1:] {
		if m.CurrentConnections < selected.CurrentConnections {
			selected = m
		}
	}

	// Reserve the slot so concurrent selections spread out.
	if err := lb.collector.AddConnection(ctx, selected.ProviderID, 1); err != nil {
		return nil, err
	}

	return &Decision{
		ProviderID:         selected.ProviderID,
		Strategy:           StrategyLeastConnections,
		Reason:             fmt.Sprintf("least connections (%d active)", selected.CurrentConnections+1),
		EstimatedLatencyMs: selected.AvgLatencyMs,
		Confidence:         0.8,
	}, nil
}

func (lb *LoadBalancer) leastLatency(candidates []ProviderMetrics) *Decision {
	valid := make([]ProviderMetrics, 0, len(candidates))
	for _, m := range candidates {
		if m.TotalRequests >= lb.minLatencySamples {
			valid = append(valid, m)
		}
	}
	if len(valid) == 0 {
		// Not enough history anywhere yet.
		return lb.weightedRoundRobin(candidates)
	}

	selected := valid[0]
	for _, m := range valid[1:] {
		if m.AvgLatencyMs < selected.AvgLatencyMs {
			selected = m
		}
	}

	return &Decision{
		ProviderID:         selected.ProviderID,
		Strategy:           StrategyLeastLatency,
		Reason:             fmt.Sprintf("lowest latency (%.1fms)", selected.AvgLatencyMs),
		EstimatedLatencyMs: selected.AvgLatencyMs,
		Confidence:         0.9,
	}
}

func (lb *LoadBalancer) regionAware(candidates []ProviderMetrics, userRegion string) *Decision {
	if userRegion == "" {
		return lb.weightedRoundRobin(candidates)
	}

	sameRegion := make([]ProviderMetrics, 0, len(candidates))
	for _, m := range candidates {
		if m.Region == userRegion {
			sameRegion = append(sameRegion, m)
		}
	}
	if len(sameRegion) == 0 {
		return lb.weightedRoundRobin(candidates)
	}

	selected := sameRegion[0]
	for _, m := range sameRegion[1:] {
		if m.AvgLatencyMs < selected.AvgLatencyMs {
			selected = m
		}
	}

	return &Decision{
		ProviderID:         selected.ProviderID,
		Strategy:           StrategyRegionAware,
		Reason:             fmt.Sprintf("same region (%s)", userRegion),
		EstimatedLatencyMs: selected.AvgLatencyMs,
		Confidence:         0.95,
	}
}

// adaptive scores every candidate on success rate (40%), latency (30%),
// in-flight connections (20%), and configured weight (10%), each normalized
// against the candidate set, and picks the highest score.
func (lb *LoadBalancer) adaptive(candidates []ProviderMetrics) *Decision {
	var maxLatency float64
	maxConnections := 0
	maxWeight := 0
	for _, m := range candidates {
		maxLatency = max(maxLatency, m.AvgLatencyMs)
		maxConnections = max(maxConnections, m.CurrentConnections)
		maxWeight = max(maxWeight, m.Weight)
	}

	score := func(m ProviderMetrics) float64 {
		successScore := m.SuccessRate

		latencyScore := 1.0
		if maxLatency > 0 {
			latencyScore = 1 - m.AvgLatencyMs/maxLatency
		}

		connectionsScore := 1.0
		if maxConnections > 0 {
			connectionsScore = 1 - float64(m.CurrentConnections)/float64(maxConnections)
		}

		weightScore := 0.0
		if maxWeight > 0 {
			weightScore = float64(m.Weight) / float64(maxWeight)
		}

		return successScore*0.40 + latencyScore*0.30 + connectionsScore*0.20 + weightScore*0.10
	}

	type scored struct {
		m ProviderMetrics
		s float64
	}
	all := make([]scored, len(candidates))
	for i, m := range candidates {
		all[i] = scored{m: m, s: score(m)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].s > all[j].s })
	best := all[0]

	return &Decision{
		ProviderID:         best.m.ProviderID,
		Strategy:           StrategyAdaptive,
		Reason:             fmt.Sprintf("adaptive (score=%.2f, success=%.2f, latency=%.1fms)", best.s, best.m.SuccessRate, best.m.AvgLatencyMs),
		EstimatedLatencyMs: best.m.AvgLatencyMs,
		Confidence:         best.s,
	}
}
