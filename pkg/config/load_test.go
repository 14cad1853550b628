package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
routing:
  rules_file: rules.yaml
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Switch.Delay != 10*time.Second {
		t.Errorf("Switch.Delay = %s, want 10s", cfg.Switch.Delay)
	}
	if cfg.Switch.Cooldown != 5*time.Minute {
		t.Errorf("Switch.Cooldown = %s, want 5m", cfg.Switch.Cooldown)
	}
	if cfg.Switch.HistoryLimit != 100 {
		t.Errorf("Switch.HistoryLimit = %d, want 100", cfg.Switch.HistoryLimit)
	}
	if cfg.Balancer.Strategy != "adaptive" {
		t.Errorf("Balancer.Strategy = %q, want adaptive", cfg.Balancer.Strategy)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("Breaker.FailureThreshold = %d, want 5", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.Timeout != 60*time.Second {
		t.Errorf("Breaker.Timeout = %s, want 60s", cfg.Breaker.Timeout)
	}
	if cfg.Health.CheckInterval != 30*time.Second {
		t.Errorf("Health.CheckInterval = %s, want 30s", cfg.Health.CheckInterval)
	}
	if cfg.Failover.DetectionWindow != 3*time.Second {
		t.Errorf("Failover.DetectionWindow = %s, want 3s", cfg.Failover.DetectionWindow)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
switch:
  delay: 2s
  cooldown: 1m
balancer:
  strategy: round_robin
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Switch.Delay != 2*time.Second {
		t.Errorf("Switch.Delay = %s, want 2s", cfg.Switch.Delay)
	}
	if cfg.Switch.Cooldown != time.Minute {
		t.Errorf("Switch.Cooldown = %s, want 1m", cfg.Switch.Cooldown)
	}
	if cfg.Balancer.Strategy != "round_robin" {
		t.Errorf("Balancer.Strategy = %q, want round_robin", cfg.Balancer.Strategy)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown strategy",
			content: `
balancer:
  strategy: fastest
`,
		},
		{
			name: "bad log level",
			content: `
telemetry:
  logging:
    level: verbose
`,
		},
		{
			name: "negative retries",
			content: `
routing:
  max_retries: -1
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("LoadConfig() error = nil, want validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfig() error = nil, want read error")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
redis:
  addr: file-host:6379
`)

	t.Setenv("LLMROUTER_REDIS_ADDR", "env-host:6380")
	t.Setenv("LLMROUTER_SWITCH_DELAY", "3s")
	t.Setenv("LLMROUTER_ROUTING_MAX_RETRIES", "7")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}
	if cfg.Redis.Addr != "env-host:6380" {
		t.Errorf("Redis.Addr = %q, want env-host:6380", cfg.Redis.Addr)
	}
	if cfg.Switch.Delay != 3*time.Second {
		t.Errorf("Switch.Delay = %s, want 3s", cfg.Switch.Delay)
	}
	if cfg.Routing.MaxRetries != 7 {
		t.Errorf("Routing.MaxRetries = %d, want 7", cfg.Routing.MaxRetries)
	}
}
