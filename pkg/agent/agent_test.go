package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhuzhichaoTM/llm-router/internal/providertest"
	"github.com/zhuzhichaoTM/llm-router/pkg/balancer"
	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
	"github.com/zhuzhichaoTM/llm-router/pkg/store"
)

func newTestAgent(t *testing.T, priorities map[string]int) (*ProviderAgent, *providers.Registry, *balancer.MetricsCollector) {
	t.Helper()
	st := store.NewMemoryStore()
	collector := balancer.NewMetricsCollector(st, func(string) (balancer.ProviderInfo, bool) {
		return balancer.ProviderInfo{Weight: 100}, true
	}, config.BalancerConfig{
		LocalCacheTTL: 30 * time.Second,
		StoreTTL:      5 * time.Minute,
	}, nil)
	registry := providers.NewRegistry()
	return NewProviderAgent(registry, collector, priorities, nil), registry, collector
}

func TestHealthCheckAllReportsEveryProvider(t *testing.T) {
	a, registry, _ := newTestAgent(t, nil)
	registry.Register(&providertest.MockProvider{Name: "openai"})
	registry.Register(&providertest.MockProvider{
		Name: "anthropic",
		HealthFunc: func(ctx context.Context) (providers.HealthStatus, error) {
			return providers.HealthStatus{}, errors.New("connection refused")
		},
	})

	reports := a.HealthCheckAll(context.Background())
	if len(reports) != 2 {
		t.Fatalf("HealthCheckAll() returned %d reports, want 2", len(reports))
	}
	if !reports["openai"].Healthy {
		t.Error("openai report unhealthy, want healthy")
	}
	bad := reports["anthropic"]
	if bad.Healthy || bad.LastError != "connection refused" {
		t.Errorf("anthropic report = %+v, want unhealthy with probe error", bad)
	}
}

func TestHealthCheckAllCachesReports(t *testing.T) {
	a, registry, _ := newTestAgent(t, nil)
	registry.Register(&providertest.MockProvider{Name: "openai"})

	a.HealthCheckAll(context.Background())
	r, ok := a.Report("openai")
	if !ok || !r.Healthy {
		t.Errorf("Report(openai) = %+v, %v; want cached healthy report", r, ok)
	}
	if _, ok := a.Report("missing"); ok {
		t.Error("Report(missing) = true, want false")
	}
}

func TestGetBestProviderUncheckedDefaultsToHalf(t *testing.T) {
	a, registry, _ := newTestAgent(t, nil)
	registry.Register(&providertest.MockProvider{Name: "openai"})
	registry.Register(&providertest.MockProvider{Name: "anthropic"})

	// No sweep has run; both score 0.5 and the first candidate wins.
	best, err := a.GetBestProvider(context.Background(), []string{"anthropic", "openai"})
	if err != nil {
		t.Fatalf("GetBestProvider() error = %v", err)
	}
	if best != "anthropic" {
		t.Errorf("GetBestProvider() = %s, want anthropic", best)
	}
}

func TestGetBestProviderPrefersHealthy(t *testing.T) {
	a, registry, collector := newTestAgent(t, nil)
	registry.Register(&providertest.MockProvider{Name: "openai"})
	registry.Register(&providertest.MockProvider{
		Name: "anthropic",
		HealthFunc: func(ctx context.Context) (providers.HealthStatus, error) {
			return providers.HealthStatus{Healthy: false, ErrorMessage: "degraded"}, nil
		},
	})

	ctx := context.Background()
	if err := collector.RecordOutcome(ctx, "openai", true, 100*time.Millisecond, ""); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	a.HealthCheckAll(ctx)

	best, err := a.GetBestProvider(ctx, nil)
	if err != nil {
		t.Fatalf("GetBestProvider() error = %v", err)
	}
	if best != "openai" {
		t.Errorf("GetBestProvider() = %s, want openai over unhealthy anthropic", best)
	}
}

func TestGetBestProviderPriorityBreaksTies(t *testing.T) {
	a, registry, _ := newTestAgent(t, map[string]int{"anthropic": 100})
	registry.Register(&providertest.MockProvider{Name: "openai"})
	registry.Register(&providertest.MockProvider{Name: "anthropic"})

	a.HealthCheckAll(context.Background())

	best, err := a.GetBestProvider(context.Background(), []string{"openai", "anthropic"})
	if err != nil {
		t.Fatalf("GetBestProvider() error = %v", err)
	}
	if best != "anthropic" {
		t.Errorf("GetBestProvider() = %s, want anthropic via priority bonus", best)
	}
}

func TestGetBestProviderEmptyRegistry(t *testing.T) {
	a, _, _ := newTestAgent(t, nil)
	if _, err := a.GetBestProvider(context.Background(), nil); !errors.Is(err, ErrNoProviders) {
		t.Errorf("GetBestProvider() error = %v, want ErrNoProviders", err)
	}
}

func TestScoreReportLatencyBands(t *testing.T) {
	tests := []struct {
		name      string
		latencyMs int64
		want      float64
	}{
		{"fast", 100, 1.0},
		{"moderate", 700, 0.96},
		{"slow", 1500, 0.9},
		{"very slow", 3000, 0.84},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ProviderReport{Healthy: true, SuccessRate: 1.0, LatencyMs: tt.latencyMs}
			got := scoreReport(r)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("scoreReport(latency=%d) = %v, want %v", tt.latencyMs, got, tt.want)
			}
		})
	}
}
