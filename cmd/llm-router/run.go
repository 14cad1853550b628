package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/zhuzhichaoTM/llm-router/pkg/agent"
	"github.com/zhuzhichaoTM/llm-router/pkg/audit"
	"github.com/zhuzhichaoTM/llm-router/pkg/balancer"
	"github.com/zhuzhichaoTM/llm-router/pkg/cli"
	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/failover"
	"github.com/zhuzhichaoTM/llm-router/pkg/gateway"
	"github.com/zhuzhichaoTM/llm-router/pkg/maintenance"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
	"github.com/zhuzhichaoTM/llm-router/pkg/routing"
	"github.com/zhuzhichaoTM/llm-router/pkg/server"
	"github.com/zhuzhichaoTM/llm-router/pkg/store"
	"github.com/zhuzhichaoTM/llm-router/pkg/telemetry/logging"
	"github.com/zhuzhichaoTM/llm-router/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the router",
	Long: `Start the router with the specified configuration.

The process loads the routing rules, connects the shared store, starts the
health monitor and maintenance jobs, and serves the diagnostic endpoints
(/metrics, /healthz, /switch, /routing/preview, /decisions) on the
configured listen address.

Examples:
  # Start with default config
  llm-router run

  # Start with custom config
  llm-router run --config /etc/llm-router/config.yaml

  # Validate config without starting
  llm-router run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override diagnostic listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	if runFlags.listenAddress != "" {
		cfg.Telemetry.Metrics.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx := cli.SignalContext()

	// Shared store: Redis when configured, in-process otherwise.
	var st store.Store
	if cfg.Redis.Enabled {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		st = store.NewRedisStore(client, store.WithKeyPrefix(cfg.Redis.KeyPrefix))
		logger.Info("using redis store", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	} else {
		st = store.NewMemoryStore()
		logger.Info("using in-memory store")
	}

	var (
		metricsHandler http.Handler
		providerM      *metrics.ProviderMetrics
		routingM       *metrics.RoutingMetrics
		resilienceM    *metrics.ResilienceMetrics
	)
	if cfg.Telemetry.Metrics.Enabled {
		mc := metrics.NewCollector(cfg.Telemetry.Metrics)
		metricsHandler = mc.Handler()
		providerM = mc.Provider
		routingM = mc.Routing
		resilienceM = mc.Resilience
	}

	ruleStore, err := config.NewRuleStore(cfg.Routing.RulesFile, logger)
	if err != nil {
		return fmt.Errorf("loading rules from %s: %w", cfg.Routing.RulesFile, err)
	}
	logger.Info("routing rules loaded",
		"file", cfg.Routing.RulesFile,
		"rules", len(ruleStore.ActiveRules()),
		"models", len(ruleStore.ActiveModels()),
	)

	if cfg.Routing.WatchRules {
		watcher, err := config.NewRulesWatcher(cfg.Routing.RulesFile, logger)
		if err != nil {
			return fmt.Errorf("watching rules file: %w", err)
		}
		go func() {
			if err := watcher.Watch(ctx, ruleStore.Reload); err != nil {
				logger.Error("rules watcher stopped", "error", err)
			}
		}()
	}

	// Providers are registered by the embedding gateway; the run command
	// starts with whatever the registry holds at boot.
	registry := providers.NewRegistry()
	if len(cfg.Providers) > 0 {
		logger.Info("provider backends configured", "count", len(cfg.Providers))
	} else {
		logger.Warn("no providers configured")
	}

	collector := balancer.NewMetricsCollector(st, balancer.InfoFromConfig(cfg.Providers), cfg.Balancer, logger)
	breaker := failover.NewCircuitBreaker(cfg.Breaker, st, logger, resilienceM)
	manager := failover.NewManager(breaker, collector, cfg.Failover, logger, resilienceM)

	monitor := failover.NewHealthMonitor(registry, collector, cfg.Health, logger, providerM)
	go monitor.Run(ctx)

	gate, err := gateway.NewSwitch(ctx, st, cfg.Switch, logger, resilienceM)
	if err != nil {
		return fmt.Errorf("restoring gateway switch state: %w", err)
	}

	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		rec, err := audit.NewSQLiteRecorder(cfg.Audit.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening audit database %s: %w", cfg.Audit.SQLitePath, err)
		}
		recorder = rec
		logger.Info("audit recording enabled", "path", cfg.Audit.SQLitePath)
	}
	defer recorder.Close()

	priorities := make(map[string]int, len(cfg.Providers))
	providerIDs := make([]string, 0, len(cfg.Providers))
	for id, p := range cfg.Providers {
		priorities[id] = p.Priority
		providerIDs = append(providerIDs, id)
	}
	providerAgent := agent.NewProviderAgent(registry, collector, priorities, logger)

	engine := routing.NewEngine(routing.EngineOptions{
		Config:    cfg.Routing,
		Rules:     ruleStore,
		Registry:  registry,
		Switch:    gate,
		Failover:  manager,
		Breaker:   breaker,
		Collector: collector,
		Audit:     recorder,
		Routing:   routingM,
		Provider:  providerM,
		Logger:    logger,
	})

	adjuster := balancer.NewAutoWeightAdjuster(collector, logger)
	scheduler := maintenance.NewScheduler(adjuster, providerAgent, ruleStore, cfg.Maintenance, logger)
	if err := scheduler.Start(ctx, providerIDs); err != nil {
		return fmt.Errorf("starting maintenance scheduler: %w", err)
	}
	defer scheduler.Stop()

	srv := server.NewServer(cfg.Telemetry.Metrics.ListenAddress, metricsHandler, gate, registry, providerAgent, engine, recorder, logger)

	fmt.Printf("llm-router listening on %s\n", cfg.Telemetry.Metrics.ListenAddress)
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}
