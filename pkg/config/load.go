package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that behavior.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention LLMROUTER_SECTION_FIELD (e.g., LLMROUTER_REDIS_ADDR) and always
// take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides using the format
// LLMROUTER_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Routing overrides
	if val := os.Getenv("LLMROUTER_ROUTING_RULES_FILE"); val != "" {
		cfg.Routing.RulesFile = val
	}
	if val := os.Getenv("LLMROUTER_ROUTING_MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Routing.MaxRetries = n
		}
	}
	if val := os.Getenv("LLMROUTER_ROUTING_DEFAULT_MODEL"); val != "" {
		cfg.Routing.DefaultModel = val
	}

	// Switch overrides
	if val := os.Getenv("LLMROUTER_SWITCH_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Switch.Delay = d
		}
	}
	if val := os.Getenv("LLMROUTER_SWITCH_COOLDOWN"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Switch.Cooldown = d
		}
	}

	// Balancer overrides
	if val := os.Getenv("LLMROUTER_BALANCER_STRATEGY"); val != "" {
		cfg.Balancer.Strategy = val
	}

	// Redis overrides
	if val := os.Getenv("LLMROUTER_REDIS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if val := os.Getenv("LLMROUTER_REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
	}
	if val := os.Getenv("LLMROUTER_REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("LLMROUTER_REDIS_DB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = n
		}
	}

	// Audit overrides
	if val := os.Getenv("LLMROUTER_AUDIT_SQLITE_PATH"); val != "" {
		cfg.Audit.SQLitePath = val
	}

	// Telemetry overrides
	if val := os.Getenv("LLMROUTER_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("LLMROUTER_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("LLMROUTER_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}
}
