// Package maintenance runs the background upkeep jobs: periodic automatic
// weight adjustment driven by observed provider performance, and periodic
// health sweeps feeding the provider agent's ranking cache.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/zhuzhichaoTM/llm-router/pkg/agent"
	"github.com/zhuzhichaoTM/llm-router/pkg/balancer"
	"github.com/zhuzhichaoTM/llm-router/pkg/config"
)

// Scheduler owns the cron runner for maintenance jobs. Jobs run on their
// configured cron schedules until the context given to Start is cancelled.
type Scheduler struct {
	adjuster *balancer.AutoWeightAdjuster
	agent    *agent.ProviderAgent
	rules    *config.RuleStore
	cfg      config.MaintenanceConfig
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler builds a scheduler. The agent may be nil, in which case no
// health sweep job is registered.
func NewScheduler(adjuster *balancer.AutoWeightAdjuster, a *agent.ProviderAgent, rules *config.RuleStore, cfg config.MaintenanceConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		adjuster: adjuster,
		agent:    a,
		rules:    rules,
		cfg:      cfg,
		cron:     cron.New(),
		logger:   logger.With("component", "maintenance"),
	}
}

// Start registers the configured jobs and starts the cron runner. An empty
// schedule disables its job. The runner stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, providerIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.WeightAdjustSchedule != "" {
		if _, err := cron.ParseStandard(s.cfg.WeightAdjustSchedule); err != nil {
			return fmt.Errorf("invalid weight adjust schedule %q: %w", s.cfg.WeightAdjustSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.cfg.WeightAdjustSchedule, func() {
			s.runWeightAdjustment(ctx, providerIDs)
		}); err != nil {
			return fmt.Errorf("scheduling weight adjustment: %w", err)
		}
		s.logger.Info("weight adjustment scheduled", "schedule", s.cfg.WeightAdjustSchedule)
	}

	if s.agent != nil && s.cfg.HealthSweepSchedule != "" {
		if _, err := cron.ParseStandard(s.cfg.HealthSweepSchedule); err != nil {
			return fmt.Errorf("invalid health sweep schedule %q: %w", s.cfg.HealthSweepSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.cfg.HealthSweepSchedule, func() {
			s.runHealthSweep(ctx)
		}); err != nil {
			return fmt.Errorf("scheduling health sweep: %w", err)
		}
		s.logger.Info("health sweep scheduled", "schedule", s.cfg.HealthSweepSchedule)
	}

	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runWeightAdjustment performs one adjustment cycle and mirrors the new
// weights into the candidate model set so weighted selection follows.
func (s *Scheduler) runWeightAdjustment(ctx context.Context, providerIDs []string) {
	changed, err := s.adjuster.AdjustWeights(ctx, providerIDs)
	if err != nil {
		s.logger.Error("weight adjustment failed", "error", err)
		return
	}
	if len(changed) == 0 {
		s.logger.Debug("weight adjustment completed, no changes")
		return
	}

	if s.rules != nil {
		for _, c := range s.rules.AllModels() {
			if w, ok := changed[c.ProviderID]; ok {
				s.rules.SetModelWeight(c.ModelID, w)
			}
		}
	}
	s.logger.Info("weight adjustment completed", "changed", len(changed))
}

// runHealthSweep refreshes the agent's cached provider reports.
func (s *Scheduler) runHealthSweep(ctx context.Context) {
	reports := s.agent.HealthCheckAll(ctx)
	unhealthy := 0
	for _, r := range reports {
		if !r.Healthy {
			unhealthy++
		}
	}
	s.logger.Info("health sweep completed", "providers", len(reports), "unhealthy", unhealthy)
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("maintenance scheduler stopped")
	}
}

// IsRunning reports whether the cron runner is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
