package metrics

import "github.com/prometheus/client_golang/prometheus"

// RoutingMetrics tracks routing decisions and retries.
//
// Metrics:
//   - llmrouter_routing_decisions_total: Decisions by type and provider
//   - llmrouter_routing_rule_matches_total: Rule matches by rule ID
//   - llmrouter_routing_retries_total: Retry attempts during execution
//   - llmrouter_routing_blocked_total: Requests refused by a blocking rule
type RoutingMetrics struct {
	decisions   *prometheus.CounterVec
	ruleMatches *prometheus.CounterVec
	retries     prometheus.Counter
	blocked     prometheus.Counter
}

// NewRoutingMetrics creates and registers routing metrics.
func NewRoutingMetrics(namespace string, registry *prometheus.Registry) *RoutingMetrics {
	rm := &RoutingMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_decisions_total",
				Help:      "Routing decisions by decision type and selected provider",
			},
			[]string{"decision_type", "provider"},
		),
		ruleMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_rule_matches_total",
				Help:      "Routing rule matches by rule ID",
			},
			[]string{"rule_id"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_retries_total",
				Help:      "Retry attempts during request execution",
			},
		),
		blocked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_blocked_total",
				Help:      "Requests refused by a blocking rule",
			},
		),
	}

	registry.MustRegister(rm.decisions, rm.ruleMatches, rm.retries, rm.blocked)
	return rm
}

// ObserveDecision records one routing decision.
func (rm *RoutingMetrics) ObserveDecision(decisionType, provider string) {
	rm.decisions.WithLabelValues(decisionType, provider).Inc()
}

// ObserveRuleMatch records a rule match.
func (rm *RoutingMetrics) ObserveRuleMatch(ruleID string) {
	rm.ruleMatches.WithLabelValues(ruleID).Inc()
}

// ObserveRetry records one retry attempt.
func (rm *RoutingMetrics) ObserveRetry() {
	rm.retries.Inc()
}

// ObserveBlocked records a request refused by a blocking rule.
func (rm *RoutingMetrics) ObserveBlocked() {
	rm.blocked.Inc()
}
