package config

import (
	"fmt"
	"slices"
)

var validStrategies = []string{
	"round_robin",
	"weighted_round_robin",
	"least_connections",
	"least_latency",
	"region_aware",
	"adaptive",
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for values that would misbehave at
// runtime. Call after ApplyDefaults.
func (c *Config) Validate() error {
	if c.Routing.MaxRetries < 0 {
		return fmt.Errorf("routing.max_retries must not be negative, got %d", c.Routing.MaxRetries)
	}
	if c.Switch.Delay < 0 {
		return fmt.Errorf("switch.delay must not be negative, got %s", c.Switch.Delay)
	}
	if c.Switch.Cooldown < 0 {
		return fmt.Errorf("switch.cooldown must not be negative, got %s", c.Switch.Cooldown)
	}
	if c.Switch.HistoryLimit < 1 {
		return fmt.Errorf("switch.history_limit must be at least 1, got %d", c.Switch.HistoryLimit)
	}
	if !slices.Contains(validStrategies, c.Balancer.Strategy) {
		return fmt.Errorf("balancer.strategy %q is not one of %v", c.Balancer.Strategy, validStrategies)
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.SuccessThreshold < 1 {
		return fmt.Errorf("breaker.success_threshold must be at least 1, got %d", c.Breaker.SuccessThreshold)
	}
	if c.Breaker.HalfOpenMaxCalls < 1 {
		return fmt.Errorf("breaker.half_open_max_calls must be at least 1, got %d", c.Breaker.HalfOpenMaxCalls)
	}
	if c.Failover.DetectionFailures < 1 {
		return fmt.Errorf("failover.detection_failures must be at least 1, got %d", c.Failover.DetectionFailures)
	}
	if c.Health.CheckInterval <= 0 {
		return fmt.Errorf("health.check_interval must be positive, got %s", c.Health.CheckInterval)
	}
	if c.Health.ProbeTimeout <= 0 {
		return fmt.Errorf("health.probe_timeout must be positive, got %s", c.Health.ProbeTimeout)
	}
	if !slices.Contains(validLogLevels, c.Telemetry.Logging.Level) {
		return fmt.Errorf("telemetry.logging.level %q is not one of %v", c.Telemetry.Logging.Level, validLogLevels)
	}
	if f := c.Telemetry.Logging.Format; f != "json" && f != "text" {
		return fmt.Errorf("telemetry.logging.format must be json or text, got %q", f)
	}
	for id, p := range c.Providers {
		if p.Weight < 0 {
			return fmt.Errorf("provider %s: weight must not be negative, got %d", id, p.Weight)
		}
		if p.BaseURL == "" && p.Type != "mock" {
			return fmt.Errorf("provider %s: base_url is required", id)
		}
	}
	return nil
}

// ValidateRule checks a single routing rule.
func ValidateRule(r RoutingRule) error {
	if r.ID == "" {
		return fmt.Errorf("rule %q: id is required", r.Name)
	}
	switch r.ConditionType {
	case ConditionPattern:
		if r.Pattern == "" {
			return fmt.Errorf("rule %s: pattern condition requires a pattern", r.ID)
		}
	case ConditionComplexity:
		if r.MaxComplexity != 0 && r.MaxComplexity < r.MinComplexity {
			return fmt.Errorf("rule %s: max_complexity %d below min_complexity %d", r.ID, r.MaxComplexity, r.MinComplexity)
		}
	case ConditionDSL:
		if r.Expression == "" {
			return fmt.Errorf("rule %s: dsl condition requires an expression", r.ID)
		}
	default:
		return fmt.Errorf("rule %s: unknown condition_type %q", r.ID, r.ConditionType)
	}
	switch r.ActionType {
	case ActionUseProvider, ActionUseModel, ActionSetPriority, ActionBlockRequest:
	default:
		return fmt.Errorf("rule %s: unknown action_type %q", r.ID, r.ActionType)
	}
	if r.ActionType != ActionBlockRequest && r.ActionValue == "" {
		return fmt.Errorf("rule %s: action %s requires an action_value", r.ID, r.ActionType)
	}
	return nil
}
