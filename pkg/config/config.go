// Package config owns the router's configuration surface: the main YAML
// configuration file, environment overrides, validation, and the routing
// rule / candidate model tables with hot reload.
package config

import "time"

// Config is the root configuration for the router.
type Config struct {
	// Routing configures the routing decision engine.
	Routing RoutingConfig `yaml:"routing"`

	// Switch configures the gateway switch orchestrator.
	Switch SwitchConfig `yaml:"switch"`

	// Balancer configures the load balancer and metrics collector.
	Balancer BalancerConfig `yaml:"balancer"`

	// Breaker configures per-provider circuit breaking.
	Breaker BreakerConfig `yaml:"breaker"`

	// Failover configures the failover coordinator.
	Failover FailoverConfig `yaml:"failover"`

	// Health configures the background health monitor.
	Health HealthConfig `yaml:"health"`

	// Redis configures the shared key-value store. When disabled, an
	// in-process store is used and state does not survive restarts.
	Redis RedisConfig `yaml:"redis"`

	// Audit configures the routing decision audit sink.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Maintenance configures cron-driven background jobs.
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Providers maps provider identifiers to their adapter configuration.
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// RoutingConfig configures the routing decision engine.
type RoutingConfig struct {
	// RulesFile is the path to the YAML file holding routing rules and
	// candidate models. Watched for changes when WatchRules is true.
	RulesFile string `yaml:"rules_file"`

	// WatchRules enables fsnotify hot reload of the rules file.
	WatchRules bool `yaml:"watch_rules"`

	// MaxRetries is the per-request retry budget during execution.
	MaxRetries int `yaml:"max_retries"`

	// DefaultModel is used when a matched rule pins a provider but not a model.
	DefaultModel string `yaml:"default_model"`
}

// SwitchConfig configures the gateway switch.
type SwitchConfig struct {
	// Delay is how far in the future a non-forced toggle takes effect.
	Delay time.Duration `yaml:"delay"`

	// Cooldown is the period after an executed switch during which further
	// toggles are rejected unless forced.
	Cooldown time.Duration `yaml:"cooldown"`

	// HistoryLimit caps the bounded switch history list.
	HistoryLimit int `yaml:"history_limit"`
}

// BalancerConfig configures provider selection and metrics collection.
type BalancerConfig struct {
	// Strategy is the default selection strategy
	// (round_robin, weighted_round_robin, least_connections, least_latency,
	// region_aware, adaptive).
	Strategy string `yaml:"strategy"`

	// LocalCacheTTL bounds how long provider metrics are served from the
	// in-process cache before falling through to the shared store.
	LocalCacheTTL time.Duration `yaml:"local_cache_ttl"`

	// StoreTTL is the TTL of provider metrics in the shared store.
	StoreTTL time.Duration `yaml:"store_ttl"`

	// MinLatencySamples is the number of recorded requests a provider needs
	// before least-latency selection will consider it.
	MinLatencySamples int `yaml:"min_latency_samples"`
}

// BreakerConfig configures per-provider circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a circuit.
	FailureThreshold int `yaml:"failure_threshold"`

	// SuccessThreshold is the consecutive-success count that closes a
	// half-open circuit.
	SuccessThreshold int `yaml:"success_threshold"`

	// Timeout is how long an open circuit blocks requests before probing.
	Timeout time.Duration `yaml:"timeout"`

	// HalfOpenMaxCalls caps probe requests while half-open.
	HalfOpenMaxCalls int `yaml:"half_open_max_calls"`
}

// FailoverConfig configures the failover coordinator's burst detection.
type FailoverConfig struct {
	// DetectionWindow is the sliding window for burst failure detection.
	DetectionWindow time.Duration `yaml:"detection_window"`

	// DetectionFailures is the failure count within DetectionWindow that
	// triggers failover before the circuit breaker threshold is reached.
	DetectionFailures int `yaml:"detection_failures"`
}

// HealthConfig configures the background health monitor.
type HealthConfig struct {
	// CheckInterval is how often every provider is probed.
	CheckInterval time.Duration `yaml:"check_interval"`

	// ProbeTimeout bounds a single health probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// RedisConfig configures the shared store connection.
type RedisConfig struct {
	// Enabled selects the Redis-backed store; false selects in-memory.
	Enabled bool `yaml:"enabled"`

	// Addr is the Redis host:port.
	Addr string `yaml:"addr"`

	// Password is the Redis AUTH password (empty for none).
	Password string `yaml:"password"`

	// DB is the Redis logical database index.
	DB int `yaml:"db"`

	// KeyPrefix namespaces all keys written by this router.
	KeyPrefix string `yaml:"key_prefix"`
}

// AuditConfig configures the audit sink.
type AuditConfig struct {
	// Enabled toggles audit recording. When false a no-op recorder is used.
	Enabled bool `yaml:"enabled"`

	// SQLitePath is the path of the audit database file.
	SQLitePath string `yaml:"sqlite_path"`
}

// TelemetryConfig groups logging and metrics configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the output format ("json" or "text").
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus registry.
type MetricsConfig struct {
	// Enabled toggles metric collection and the scrape endpoint.
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix (default "llmrouter").
	Namespace string `yaml:"namespace"`

	// ListenAddress is where /metrics and /healthz are served.
	ListenAddress string `yaml:"listen_address"`
}

// MaintenanceConfig configures cron-driven background jobs.
type MaintenanceConfig struct {
	// WeightAdjustSchedule is a cron expression for automatic weight
	// adjustment. Empty disables the job.
	WeightAdjustSchedule string `yaml:"weight_adjust_schedule"`

	// HealthSweepSchedule is a cron expression for refreshing the provider
	// agent's cached reports. Empty disables the job.
	HealthSweepSchedule string `yaml:"health_sweep_schedule"`
}

// ProviderConfig describes one backend adapter.
type ProviderConfig struct {
	// Type is the adapter kind ("openai", "anthropic", "generic", ...).
	Type string `yaml:"type"`

	// BaseURL is the backend endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the backend.
	APIKey string `yaml:"api_key"`

	// Region is the backend's deployment region (for region-aware routing).
	Region string `yaml:"region"`

	// Weight is the provider's initial load-balancing weight.
	Weight int `yaml:"weight"`

	// Priority breaks ties in best-provider scoring.
	Priority int `yaml:"priority"`

	// Timeout bounds a single backend call.
	Timeout time.Duration `yaml:"timeout"`
}
