// Package providertest provides mock implementations of the provider
// contract for package tests.
package providertest

import (
	"context"
	"sync"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
)

// MockProvider is a configurable in-memory provider. The zero value answers
// every chat call successfully and reports healthy.
type MockProvider struct {
	Name   string
	Region string

	// ChatFunc overrides ChatCompletion when set.
	ChatFunc func(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error)

	// HealthFunc overrides HealthCheck when set.
	HealthFunc func(ctx context.Context) (providers.HealthStatus, error)

	// ChatLatency delays each chat call, observing context cancellation.
	ChatLatency time.Duration

	// InputCostPer1K and OutputCostPer1K drive CalculateCost.
	InputCostPer1K  float64
	OutputCostPer1K float64

	mu        sync.Mutex
	chatCalls int
	probes    int
}

var _ providers.Provider = (*MockProvider)(nil)

// ChatCompletion answers with a canned response, or delegates to ChatFunc.
func (m *MockProvider) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	m.mu.Lock()
	m.chatCalls++
	m.mu.Unlock()

	if m.ChatLatency > 0 {
		select {
		case <-time.After(m.ChatLatency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return &providers.ChatResponse{
		ID:      "mock-response",
		Model:   req.Model,
		Content: "ok",
		Usage: providers.Usage{
			InputTokens:  10,
			OutputTokens: 20,
			TotalTokens:  30,
		},
	}, nil
}

// HealthCheck reports healthy, or delegates to HealthFunc.
func (m *MockProvider) HealthCheck(ctx context.Context) (providers.HealthStatus, error) {
	m.mu.Lock()
	m.probes++
	m.mu.Unlock()

	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return providers.HealthStatus{
		Healthy:   true,
		LatencyMs: 5,
		CheckedAt: time.Now(),
	}, nil
}

// CalculateCost multiplies token counts by the configured per-1K prices.
func (m *MockProvider) CalculateCost(inputTokens, outputTokens int, modelID string) (float64, float64) {
	return float64(inputTokens) / 1000 * m.InputCostPer1K,
		float64(outputTokens) / 1000 * m.OutputCostPer1K
}

// GetName returns the mock's name.
func (m *MockProvider) GetName() string { return m.Name }

// GetRegion returns the mock's region.
func (m *MockProvider) GetRegion() string { return m.Region }

// ChatCalls reports how many chat completions were attempted.
func (m *MockProvider) ChatCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatCalls
}

// Probes reports how many health checks ran.
func (m *MockProvider) Probes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probes
}
