package config

import "time"

// ApplyDefaults fills zero-valued fields with operational defaults so a
// minimal configuration file still yields a runnable router.
func (c *Config) ApplyDefaults() {
	if c.Routing.MaxRetries == 0 {
		c.Routing.MaxRetries = 3
	}
	if c.Routing.RulesFile == "" {
		c.Routing.RulesFile = "rules.yaml"
	}

	if c.Switch.Delay == 0 {
		c.Switch.Delay = 10 * time.Second
	}
	if c.Switch.Cooldown == 0 {
		c.Switch.Cooldown = 5 * time.Minute
	}
	if c.Switch.HistoryLimit == 0 {
		c.Switch.HistoryLimit = 100
	}

	if c.Balancer.Strategy == "" {
		c.Balancer.Strategy = "adaptive"
	}
	if c.Balancer.LocalCacheTTL == 0 {
		c.Balancer.LocalCacheTTL = 30 * time.Second
	}
	if c.Balancer.StoreTTL == 0 {
		c.Balancer.StoreTTL = 5 * time.Minute
	}
	if c.Balancer.MinLatencySamples == 0 {
		c.Balancer.MinLatencySamples = 5
	}

	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 2
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = 60 * time.Second
	}
	if c.Breaker.HalfOpenMaxCalls == 0 {
		c.Breaker.HalfOpenMaxCalls = 3
	}

	if c.Failover.DetectionWindow == 0 {
		c.Failover.DetectionWindow = 3 * time.Second
	}
	if c.Failover.DetectionFailures == 0 {
		c.Failover.DetectionFailures = 3
	}

	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = 30 * time.Second
	}
	if c.Health.ProbeTimeout == 0 {
		c.Health.ProbeTimeout = 10 * time.Second
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "llmrouter:"
	}

	if c.Audit.SQLitePath == "" {
		c.Audit.SQLitePath = "audit.db"
	}

	if c.Telemetry.Logging.Level == "" {
		c.Telemetry.Logging.Level = "info"
	}
	if c.Telemetry.Logging.Format == "" {
		c.Telemetry.Logging.Format = "json"
	}
	if c.Telemetry.Metrics.Namespace == "" {
		c.Telemetry.Metrics.Namespace = "llmrouter"
	}
	if c.Telemetry.Metrics.ListenAddress == "" {
		c.Telemetry.Metrics.ListenAddress = ":9090"
	}

	for id, p := range c.Providers {
		if p.Weight == 0 {
			p.Weight = 100
		}
		if p.Timeout == 0 {
			p.Timeout = 30 * time.Second
		}
		c.Providers[id] = p
	}
}
