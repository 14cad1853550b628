// Package routing implements the routing decision engine: rule evaluation,
// weighted model selection, and request execution with retry and failover.
package routing

import "github.com/zhuzhichaoTM/llm-router/pkg/providers"

// Decision methods.
const (
	MethodFixed              = "fixed"
	MethodRuleBased          = "rule_based"
	MethodWeightedRoundRobin = "weighted_round_robin"
)

// Decision is the immutable output of one routing pass.
type Decision struct {
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id"`
	RuleID     string `json:"rule_id,omitempty"`
	Method     string `json:"method"`
	Reason     string `json:"reason,omitempty"`
}

// Result is the outcome of executing a decision.
type Result struct {
	Success      bool                    `json:"success"`
	ProviderID   string                  `json:"provider_id"`
	ModelID      string                  `json:"model_id"`
	LatencyMs    int64                   `json:"latency_ms"`
	InputTokens  int                     `json:"input_tokens"`
	OutputTokens int                     `json:"output_tokens"`
	Cost         float64                 `json:"cost"`
	Attempts     int                     `json:"attempts"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	Response     *providers.ChatResponse `json:"response,omitempty"`
}
