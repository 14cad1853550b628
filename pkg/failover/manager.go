package failover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/balancer"
	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/telemetry/metrics"
)

// recentFailureWindow is how far back alternate selection looks when ranking
// candidates by failure count.
const recentFailureWindow = 60 * time.Second

// Decision is the outcome of a failover check.
type Decision struct {
	ShouldFailover bool    `json:"should_failover"`
	Reason         string  `json:"reason"`
	Confidence     float64 `json:"confidence"`
}

// Manager coordinates failover decisions. It watches the circuit breakers,
// the latest health probes, and a short sliding window of failures that
// reacts to bursts faster than the breaker's consecutive-failure threshold.
type Manager struct {
	breaker   *CircuitBreaker
	collector *balancer.MetricsCollector
	logger    *slog.Logger
	metrics   *metrics.ResilienceMetrics
	cfg       config.FailoverConfig
	now       func() time.Time

	mu       sync.Mutex
	failures map[string][]time.Time
}

// NewManager builds a failover coordinator. rm may be nil.
func NewManager(breaker *CircuitBreaker, collector *balancer.MetricsCollector, cfg config.FailoverConfig, logger *slog.Logger, rm *metrics.ResilienceMetrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		breaker:   breaker,
		collector: collector,
		logger:    logger,
		metrics:   rm,
		cfg:       cfg,
		now:       time.Now,
		failures:  make(map[string][]time.Time),
	}
}

// SetClock replaces the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// RecordFailure feeds a failed call into both failure signals: the sliding
// burst window and the circuit breaker.
func (m *Manager) RecordFailure(ctx context.Context, providerID string) {
	m.mu.Lock()
	m.failures[providerID] = append(m.failures[providerID], m.now())
	m.mu.Unlock()

	m.breaker.RecordFailure(ctx, providerID)
}

// RecordSuccess feeds a successful call into the circuit breaker and clears
// the provider's burst window.
func (m *Manager) RecordSuccess(ctx context.Context, providerID string) {
	m.mu.Lock()
	delete(m.failures, providerID)
	m.mu.Unlock()

	m.breaker.RecordSuccess(ctx, providerID)
}

// ShouldFailover decides whether requests should abandon the provider.
// Signals in decreasing confidence: an open circuit, an unhealthy latest
// health probe, and a burst of failures inside the detection window. The
// burst signal deliberately fires before the breaker threshold is reached.
func (m *Manager) ShouldFailover(ctx context.Context, providerID string) Decision {
	if m.breaker.State(providerID) == StateOpen {
		return m.failoverDecision(providerID, "circuit_open", Decision{
			ShouldFailover: true,
			Reason:         "circuit breaker open",
			Confidence:     1.0,
		})
	}

	pm, err := m.collector.Get(ctx, providerID)
	if err != nil {
		m.logger.Warn("health lookup failed during failover check", "provider", providerID, "error", err)
	} else if !pm.IsHealthy {
		reason := pm.LastError
		if reason == "" {
			reason = "unknown error"
		}
		return m.failoverDecision(providerID, "unhealthy", Decision{
			ShouldFailover: true,
			Reason:         fmt.Sprintf("provider unhealthy: %s", reason),
			Confidence:     0.9,
		})
	}

	if n := m.recentFailures(providerID, m.cfg.DetectionWindow); n >= m.cfg.DetectionFailures {
		return m.failoverDecision(providerID, "burst", Decision{
			ShouldFailover: true,
			Reason:         fmt.Sprintf("rapid failures detected: %d failures in %s", n, m.cfg.DetectionWindow),
			Confidence:     0.85,
		})
	}

	return Decision{ShouldFailover: false, Reason: "provider healthy", Confidence: 1.0}
}

// SelectAlternative picks a replacement for a failed provider. Healthy,
// circuit-permitted candidates win, ranked by fewest failures in the last
// minute; with no healthy candidate the first alternate is returned rather
// than failing the whole request.
func (m *Manager) SelectAlternative(ctx context.Context, failedID string, available []string) (string, error) {
	alternatives := make([]string, 0, len(available))
	for _, id := range available {
		if id != failedID {
			alternatives = append(alternatives, id)
		}
	}
	if len(alternatives) == 0 {
		return "", ErrNoAlternatives
	}

	healthy := make([]string, 0, len(alternatives))
	for _, id := range alternatives {
		if m.breaker.State(id) == StateOpen {
			continue
		}
		pm, err := m.collector.Get(ctx, id)
		if err != nil {
			continue
		}
		if pm.IsHealthy {
			healthy = append(healthy, id)
		}
	}
	if len(healthy) == 0 {
		// Last resort: a degraded alternate beats no answer at all.
		m.logger.Warn("no healthy alternates, degrading",
			"failed", failedID,
			"selected", alternatives[0],
		)
		return alternatives[0], nil
	}

	selected := healthy[0]
	best := m.recentFailures(selected, recentFailureWindow)
	for _, id := range healthy[1:] {
		if n := m.recentFailures(id, recentFailureWindow); n < best {
			selected, best = id, n
		}
	}

	m.logger.Info("failover alternate selected",
		"failed", failedID,
		"selected", selected,
		"recent_failures", best,
	)
	return selected, nil
}

// recentFailures counts failures for a provider within the window. Entries
// older than the longest window anyone asks about are pruned as a side
// effect, so the shorter burst window never discards data the 60s alternate
// ranking still needs.
func (m *Manager) recentFailures(providerID string, window time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	pruneCutoff := now.Add(-recentFailureWindow)
	kept := m.failures[providerID][:0]
	for _, ts := range m.failures[providerID] {
		if ts.After(pruneCutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(m.failures, providerID)
		return 0
	}
	m.failures[providerID] = kept

	cutoff := now.Add(-window)
	n := 0
	for _, ts := range kept {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

func (m *Manager) failoverDecision(providerID, trigger string, d Decision) Decision {
	if m.metrics != nil {
		m.metrics.ObserveFailover(providerID, trigger)
	}
	m.logger.Warn("failover triggered",
		"provider", providerID,
		"trigger", trigger,
		"reason", d.Reason,
		"confidence", d.Confidence,
	)
	return d
}
