package balancer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/store"
)

// latencyAlpha is the smoothing factor for the latency moving average.
const latencyAlpha = 0.2

// ProviderMetrics is the per-provider performance record kept in the shared
// store and consumed by the load balancer and failover coordinator.
type ProviderMetrics struct {
	ProviderID         string    `json:"provider_id"`
	Region             string    `json:"region,omitempty"`
	Weight             int       `json:"weight"`
	CurrentConnections int       `json:"current_connections"`
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	AvgLatencyMs       float64   `json:"avg_latency_ms"`
	SuccessRate        float64   `json:"success_rate"`
	IsHealthy          bool      `json:"is_healthy"`
	LastError          string    `json:"last_error,omitempty"`
	LastUpdated        time.Time `json:"last_updated"`
}

// ProviderInfo supplies the static defaults (weight, region) used when a
// provider has no metrics in the store yet.
type ProviderInfo struct {
	Weight int
	Region string
}

// InfoSource resolves provider defaults by ID. The second return value is
// false for unknown providers.
type InfoSource func(providerID string) (ProviderInfo, bool)

// InfoFromConfig builds an InfoSource over the static provider configuration.
func InfoFromConfig(providers map[string]config.ProviderConfig) InfoSource {
	return func(id string) (ProviderInfo, bool) {
		p, ok := providers[id]
		if !ok {
			return ProviderInfo{}, false
		}
		return ProviderInfo{Weight: p.Weight, Region: p.Region}, true
	}
}

type cachedMetrics struct {
	metrics   ProviderMetrics
	fetchedAt time.Time
}

// MetricsCollector maintains ProviderMetrics with a cache-aside pattern: a
// mutex-guarded in-process cache in front of the shared store. Entries expire
// from the store after a TTL and are recomputed from defaults on next read.
type MetricsCollector struct {
	store  store.Store
	info   InfoSource
	logger *slog.Logger

	localTTL time.Duration
	storeTTL time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedMetrics
	locks map[string]*sync.Mutex
}

// NewMetricsCollector builds a collector over the given store.
func NewMetricsCollector(st store.Store, info InfoSource, cfg config.BalancerConfig, logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsCollector{
		store:    st,
		info:     info,
		logger:   logger,
		localTTL: cfg.LocalCacheTTL,
		storeTTL: cfg.StoreTTL,
		now:      time.Now,
		cache:    make(map[string]cachedMetrics),
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetClock replaces the time source. Test hook.
func (c *MetricsCollector) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func metricsKey(providerID string) string {
	return "metrics:provider:" + providerID
}

// Get returns the metrics for a provider, serving from the local cache when
// fresh, falling through to the shared store, and finally falling back to
// defaults for providers with no recorded traffic.
func (c *MetricsCollector) Get(ctx context.Context, providerID string) (ProviderMetrics, error) {
	c.mu.Lock()
	if entry, ok := c.cache[providerID]; ok && c.now().Sub(entry.fetchedAt) < c.localTTL {
		m := entry.metrics
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	return c.load(ctx, providerID)
}

// load fetches metrics from the shared store, bypassing the local cache, and
// repopulates the cache with the result.
func (c *MetricsCollector) load(ctx context.Context, providerID string) (ProviderMetrics, error) {
	raw, err := c.store.Get(ctx, metricsKey(providerID))
	switch {
	case err == nil:
		var m ProviderMetrics
		if jsonErr := json.Unmarshal([]byte(raw), &m); jsonErr != nil {
			return ProviderMetrics{}, fmt.Errorf("unreadable metrics for provider %s: %w", providerID, jsonErr)
		}
		m.ProviderID = providerID
		c.fillDefaults(&m)
		c.put(providerID, m)
		return m, nil

	case errors.Is(err, store.ErrNotFound):
		m := c.defaultMetrics(providerID)
		c.put(providerID, m)
		return m, nil

	default:
		return ProviderMetrics{}, fmt.Errorf("failed to load metrics for provider %s: %w", providerID, err)
	}
}

func (c *MetricsCollector) defaultMetrics(providerID string) ProviderMetrics {
	m := ProviderMetrics{
		ProviderID:  providerID,
		Weight:      100,
		SuccessRate: 1.0,
		IsHealthy:   true,
	}
	if info, ok := c.info(providerID); ok {
		if info.Weight > 0 {
			m.Weight = info.Weight
		}
		m.Region = info.Region
	}
	return m
}

// fillDefaults restores the static fields that are not kept in the store.
func (c *MetricsCollector) fillDefaults(m *ProviderMetrics) {
	if info, ok := c.info(m.ProviderID); ok {
		if m.Weight == 0 && info.Weight > 0 {
			m.Weight = info.Weight
		}
		if m.Region == "" {
			m.Region = info.Region
		}
	}
	if m.Weight == 0 {
		m.Weight = 100
	}
}

func (c *MetricsCollector) put(providerID string, m ProviderMetrics) {
	c.mu.Lock()
	c.cache[providerID] = cachedMetrics{metrics: m, fetchedAt: c.now()}
	c.mu.Unlock()
}

// persist writes metrics to the shared store with the configured TTL.
func (c *MetricsCollector) persist(ctx context.Context, m ProviderMetrics) {
	data, err := json.Marshal(m)
	if err != nil {
		c.logger.Error("failed to encode provider metrics", "provider", m.ProviderID, "error", err)
		return
	}
	if err := c.store.Set(ctx, metricsKey(m.ProviderID), string(data), c.storeTTL); err != nil {
		c.logger.Error("failed to persist provider metrics", "provider", m.ProviderID, "error", err)
	}
}

// RecordOutcome updates a provider's metrics after a definitively completed
// call. Latency feeds an exponential moving average, the success rate is
// recomputed, and the health flag flips to unhealthy after sustained failures
// and back to healthy once the success rate recovers above 0.9.
func (c *MetricsCollector) RecordOutcome(ctx context.Context, providerID string, success bool, latency time.Duration, errMsg string) error {
	return c.update(ctx, providerID, func(m *ProviderMetrics) {
		m.TotalRequests++
		if success {
			m.SuccessfulRequests++
		} else {
			m.FailedRequests++
			m.LastError = errMsg
		}

		latencyMs := float64(latency.Milliseconds())
		if m.TotalRequests == 1 {
			m.AvgLatencyMs = latencyMs
		} else {
			m.AvgLatencyMs = latencyAlpha*latencyMs + (1-latencyAlpha)*m.AvgLatencyMs
		}
		m.SuccessRate = float64(m.SuccessfulRequests) / float64(m.TotalRequests)

		if !success && m.FailedRequests > 5 {
			m.IsHealthy = false
		} else if success && m.SuccessRate > 0.9 {
			m.IsHealthy = true
		}
		m.LastUpdated = c.nowSafe()
	})
}

// SetHealth records a health probe result for a provider.
func (c *MetricsCollector) SetHealth(ctx context.Context, providerID string, healthy bool, lastError string) error {
	return c.update(ctx, providerID, func(m *ProviderMetrics) {
		m.IsHealthy = healthy
		if lastError != "" {
			m.LastError = lastError
		}
		m.LastUpdated = c.nowSafe()
	})
}

// SetWeight updates a provider's load-balancing weight.
func (c *MetricsCollector) SetWeight(ctx context.Context, providerID string, weight int) error {
	return c.update(ctx, providerID, func(m *ProviderMetrics) {
		m.Weight = weight
		m.LastUpdated = c.nowSafe()
	})
}

// AddConnection adjusts the in-flight connection count by delta, never going
// below zero.
func (c *MetricsCollector) AddConnection(ctx context.Context, providerID string, delta int) error {
	return c.update(ctx, providerID, func(m *ProviderMetrics) {
		m.CurrentConnections += delta
		if m.CurrentConnections < 0 {
			m.CurrentConnections = 0
		}
	})
}

// providerLock returns the mutex serializing updates to one provider's record.
func (c *MetricsCollector) providerLock(providerID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[providerID] = l
	}
	return l
}

// current returns the record a mutation starts from. The in-process cache is
// authoritative once populated; the store is consulted only for providers this
// instance has not touched yet.
func (c *MetricsCollector) current(ctx context.Context, providerID string) (ProviderMetrics, error) {
	c.mu.Lock()
	if entry, ok := c.cache[providerID]; ok {
		m := entry.metrics
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()
	return c.load(ctx, providerID)
}

// update applies fn to the provider's record under its per-provider lock, so
// concurrent read-modify-write sequences on the same provider cannot lose
// counter updates. The persist also runs under the lock to keep store
// snapshots in update order; only the cache lock stays free of store I/O.
func (c *MetricsCollector) update(ctx context.Context, providerID string, fn func(*ProviderMetrics)) error {
	l := c.providerLock(providerID)
	l.Lock()
	defer l.Unlock()

	m, err := c.current(ctx, providerID)
	if err != nil {
		return err
	}
	fn(&m)
	c.put(providerID, m)
	c.persist(ctx, m)
	return nil
}

func (c *MetricsCollector) nowSafe() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}
