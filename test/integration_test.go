//go:build integration

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhuzhichaoTM/llm-router/internal/providertest"
	"github.com/zhuzhichaoTM/llm-router/pkg/agent"
	"github.com/zhuzhichaoTM/llm-router/pkg/audit"
	"github.com/zhuzhichaoTM/llm-router/pkg/balancer"
	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/failover"
	"github.com/zhuzhichaoTM/llm-router/pkg/gateway"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
	"github.com/zhuzhichaoTM/llm-router/pkg/routing"
	"github.com/zhuzhichaoTM/llm-router/pkg/server"
	"github.com/zhuzhichaoTM/llm-router/pkg/store"
)

const integrationRules = `
rules:
  - id: rule-code
    name: code to gpt-4
    priority: 100
    condition_type: pattern
    pattern: code
    action_type: use_model
    action_value: gpt-4
    active: true
models:
  - model_id: gpt-4
    provider_id: openai
    priority: 1
    weight: 100
    active: true
  - model_id: claude-3-opus
    provider_id: anthropic
    priority: 1
    weight: 100
    active: true
`

// stack is the full wiring the run command builds, backed by mocks.
type stack struct {
	rules    *config.RuleStore
	registry *providers.Registry
	gate     *gateway.Switch
	engine   *routing.Engine
	recorder audit.Recorder
	server   *server.Server
}

func buildStack(t *testing.T) *stack {
	t.Helper()

	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(rulesPath, []byte(integrationRules), 0o644); err != nil {
		t.Fatalf("writing rules file: %v", err)
	}
	rules, err := config.NewRuleStore(rulesPath, nil)
	if err != nil {
		t.Fatalf("NewRuleStore() error = %v", err)
	}

	st := store.NewMemoryStore()
	collector := balancer.NewMetricsCollector(st, func(string) (balancer.ProviderInfo, bool) {
		return balancer.ProviderInfo{Weight: 100}, true
	}, config.BalancerConfig{LocalCacheTTL: time.Minute, StoreTTL: 5 * time.Minute}, nil)

	breaker := failover.NewCircuitBreaker(config.BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 3,
	}, st, nil, nil)
	manager := failover.NewManager(breaker, collector, config.FailoverConfig{
		DetectionWindow:   3 * time.Second,
		DetectionFailures: 1,
	}, nil, nil)

	gate, err := gateway.NewSwitch(context.Background(), st, config.SwitchConfig{
		Delay:        10 * time.Second,
		Cooldown:     5 * time.Minute,
		HistoryLimit: 100,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewSwitch() error = %v", err)
	}

	registry := providers.NewRegistry()
	recorder, err := audit.NewSQLiteRecorder(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() error = %v", err)
	}
	t.Cleanup(func() { recorder.Close() })

	eng := routing.NewEngine(routing.EngineOptions{
		Config:    config.RoutingConfig{MaxRetries: 3, DefaultModel: "gpt-4"},
		Rules:     rules,
		Registry:  registry,
		Switch:    gate,
		Failover:  manager,
		Breaker:   breaker,
		Collector: collector,
		Audit:     recorder,
	})

	a := agent.NewProviderAgent(registry, collector, nil, nil)
	srv := server.NewServer(":0", nil, gate, registry, a, eng, recorder, nil)

	return &stack{
		rules:    rules,
		registry: registry,
		gate:     gate,
		engine:   eng,
		recorder: recorder,
		server:   srv,
	}
}

func TestEndToEndRouteExecuteAudit(t *testing.T) {
	s := buildStack(t)
	s.registry.Register(&providertest.MockProvider{Name: "openai"})
	s.registry.Register(&providertest.MockProvider{Name: "anthropic"})

	ctx := context.Background()
	req := &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "review this code"}},
	}

	d, err := s.engine.Route(ctx, req, "", "")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if d.RuleID != "rule-code" || d.ProviderID != "openai" {
		t.Fatalf("Route() = %+v, want rule-code -> openai", d)
	}

	result, err := s.engine.Execute(ctx, req, d)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Execute() result = %+v, want success", result)
	}

	records, err := s.recorder.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 1 || !records[0].Success || records[0].RuleID != "rule-code" {
		t.Errorf("audit records = %+v, want one successful rule-code record", records)
	}
}

func TestEndToEndFailoverThenRecovery(t *testing.T) {
	s := buildStack(t)

	failing := &providertest.MockProvider{
		Name: "openai",
		ChatFunc: func(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
			return nil, errors.New("upstream down")
		},
	}
	s.registry.Register(failing)
	s.registry.Register(&providertest.MockProvider{Name: "anthropic"})

	ctx := context.Background()
	req := &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hello"}},
	}

	d, err := s.engine.Route(ctx, req, "openai", "gpt-4")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	result, err := s.engine.Execute(ctx, req, d)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.ProviderID != "anthropic" {
		t.Errorf("Execute() served by %s, want anthropic after failover", result.ProviderID)
	}
}

func TestEndToEndSwitchDisableViaAdminAPI(t *testing.T) {
	s := buildStack(t)
	s.registry.Register(&providertest.MockProvider{Name: "openai"})
	s.registry.Register(&providertest.MockProvider{Name: "anthropic"})
	h := s.server.Handler()

	body, _ := json.Marshal(map[string]any{
		"enabled":  false,
		"operator": "ops",
		"reason":   "incident drill",
		"force":    true,
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/switch", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /switch status = %d, body %s", rr.Code, rr.Body.String())
	}

	// With the switch off, matching rules are ignored.
	req := &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "review this code"}},
	}
	d, err := s.engine.Route(context.Background(), req, "", "")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if d.Method != "weighted_round_robin" {
		t.Errorf("Route() method = %s with switch disabled, want weighted_round_robin", d.Method)
	}
}
