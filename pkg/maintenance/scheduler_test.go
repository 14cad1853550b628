package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhuzhichaoTM/llm-router/internal/providertest"
	"github.com/zhuzhichaoTM/llm-router/pkg/agent"
	"github.com/zhuzhichaoTM/llm-router/pkg/balancer"
	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
	"github.com/zhuzhichaoTM/llm-router/pkg/store"
)

const schedulerRules = `
rules: []
models:
  - model_id: gpt-4
    provider_id: openai
    priority: 1
    weight: 100
    active: true
`

func newTestScheduler(t *testing.T, cfg config.MaintenanceConfig) (*Scheduler, *balancer.MetricsCollector, *config.RuleStore) {
	t.Helper()

	st := store.NewMemoryStore()
	collector := balancer.NewMetricsCollector(st, func(string) (balancer.ProviderInfo, bool) {
		return balancer.ProviderInfo{Weight: 100}, true
	}, config.BalancerConfig{
		LocalCacheTTL: 30 * time.Second,
		StoreTTL:      5 * time.Minute,
	}, nil)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(schedulerRules), 0o644); err != nil {
		t.Fatalf("writing rules file: %v", err)
	}
	rules, err := config.NewRuleStore(path, nil)
	if err != nil {
		t.Fatalf("NewRuleStore() error = %v", err)
	}

	registry := providers.NewRegistry()
	registry.Register(&providertest.MockProvider{Name: "openai"})
	a := agent.NewProviderAgent(registry, collector, nil, nil)

	adjuster := balancer.NewAutoWeightAdjuster(collector, nil)
	return NewScheduler(adjuster, a, rules, cfg, nil), collector, rules
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s, _, _ := newTestScheduler(t, config.MaintenanceConfig{WeightAdjustSchedule: "not a cron"})
	if err := s.Start(context.Background(), []string{"openai"}); err == nil {
		t.Error("Start() error = nil for invalid schedule, want error")
	}
}

func TestStartAndStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, config.MaintenanceConfig{
		WeightAdjustSchedule: "*/5 * * * *",
		HealthSweepSchedule:  "*/5 * * * *",
	})
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx, []string{"openai"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for s.IsRunning() {
		select {
		case <-deadline:
			t.Fatal("scheduler still running after context cancel")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartNoSchedulesIsNoop(t *testing.T) {
	s, _, _ := newTestScheduler(t, config.MaintenanceConfig{})
	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
}

func TestWeightAdjustmentUpdatesModels(t *testing.T) {
	s, collector, rules := newTestScheduler(t, config.MaintenanceConfig{})

	// Feed enough fast successful traffic to earn a weight increase.
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		if err := collector.RecordOutcome(ctx, "openai", true, 50*time.Millisecond, ""); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
	}

	s.runWeightAdjustment(ctx, []string{"openai"})

	m, err := collector.Get(ctx, "openai")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Weight != 110 {
		t.Errorf("provider weight = %d, want 110", m.Weight)
	}

	models := rules.AllModels()
	if len(models) != 1 || models[0].Weight != 110 {
		t.Errorf("candidate model weight = %+v, want mirrored 110", models)
	}
}

func TestHealthSweepRefreshesAgentReports(t *testing.T) {
	s, _, _ := newTestScheduler(t, config.MaintenanceConfig{})

	s.runHealthSweep(context.Background())

	if _, ok := s.agent.Report("openai"); !ok {
		t.Error("agent has no report for openai after sweep")
	}
}
