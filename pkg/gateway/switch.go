// Package gateway implements the gateway switch, the operator-facing control
// that enables or disables routing through the subsystem. Toggles take effect
// after a short delay unless forced, and executed switches start a cooldown
// during which further non-forced toggles are rejected.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/store"
	"github.com/zhuzhichaoTM/llm-router/pkg/telemetry/metrics"
)

const (
	stateKey   = "switch:state"
	historyKey = "switch:history"
)

// ToggleRequest describes one requested switch change.
type ToggleRequest struct {
	// Enabled is the requested target state.
	Enabled bool

	// Operator identifies who requested the change.
	Operator string

	// Reason is free text recorded in the switch history.
	Reason string

	// Force executes the change immediately and bypasses the cooldown.
	Force bool

	// Delay overrides the configured execution delay. Nil uses the
	// configured default; a zero value executes immediately (still subject
	// to the cooldown).
	Delay *time.Duration
}

// PendingToggle is a scheduled, not yet executed, switch change.
type PendingToggle struct {
	Target    bool      `json:"target"`
	Operator  string    `json:"operator"`
	Reason    string    `json:"reason"`
	ExecuteAt time.Time `json:"execute_at"`
}

// HistoryEntry records one executed switch change.
type HistoryEntry struct {
	Enabled    bool      `json:"enabled"`
	Operator   string    `json:"operator"`
	Reason     string    `json:"reason"`
	Forced     bool      `json:"forced"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Status is a point-in-time snapshot of the switch.
type Status struct {
	Enabled           bool           `json:"enabled"`
	Pending           *PendingToggle `json:"pending,omitempty"`
	LastChangedAt     time.Time      `json:"last_changed_at,omitzero"`
	CooldownRemaining time.Duration  `json:"cooldown_remaining"`
}

// Metrics summarizes switch activity since startup.
type Metrics struct {
	TogglesExecuted int64 `json:"toggles_executed"`
	TogglesRejected int64 `json:"toggles_rejected"`
	TogglesForced   int64 `json:"toggles_forced"`
	EnabledCount    int64 `json:"enabled_count"`
	DisabledCount   int64 `json:"disabled_count"`
}

// persistedState is the shape stored under stateKey so the switch position
// survives restarts.
type persistedState struct {
	Enabled       bool      `json:"enabled"`
	LastChangedAt time.Time `json:"last_changed_at"`
}

// Switch is the gateway switch. Safe for concurrent use.
type Switch struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.ResilienceMetrics
	cfg     config.SwitchConfig
	now     func() time.Time

	mu            sync.Mutex
	enabled       bool
	pending       *PendingToggle
	lastChangedAt time.Time
	stats         Metrics
}

// NewSwitch builds a switch over the given store. The persisted state, if
// any, is restored; otherwise the switch starts enabled. rm may be nil.
func NewSwitch(ctx context.Context, st store.Store, cfg config.SwitchConfig, logger *slog.Logger, rm *metrics.ResilienceMetrics) (*Switch, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Switch{
		store:   st,
		logger:  logger,
		metrics: rm,
		cfg:     cfg,
		now:     time.Now,
		enabled: true,
	}

	raw, err := st.Get(ctx, stateKey)
	switch {
	case err == nil:
		var ps persistedState
		if jsonErr := json.Unmarshal([]byte(raw), &ps); jsonErr == nil {
			s.enabled = ps.Enabled
			s.lastChangedAt = ps.LastChangedAt
		} else {
			logger.Warn("discarding unreadable switch state", "error", jsonErr)
		}
	case errors.Is(err, store.ErrNotFound):
		// First boot, start enabled.
	default:
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SetSwitchEnabled(s.enabled)
	}
	return s, nil
}

// SetClock replaces the time source. Test hook.
func (s *Switch) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// IsEnabled reports whether routing is currently enabled, executing any due
// pending toggle first.
func (s *Switch) IsEnabled(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvePendingLocked(ctx)
	return s.enabled
}

// GetStatus returns a snapshot of the switch, executing any due pending
// toggle first.
func (s *Switch) GetStatus(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvePendingLocked(ctx)

	st := Status{
		Enabled:       s.enabled,
		LastChangedAt: s.lastChangedAt,
	}
	if s.pending != nil {
		p := *s.pending
		st.Pending = &p
	}
	if remaining := s.cooldownRemainingLocked(); remaining > 0 {
		st.CooldownRemaining = remaining
	}
	return st
}

// GetMetrics returns toggle counters accumulated since startup.
func (s *Switch) GetMetrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Toggle requests a switch change.
//
// A request that matches the current state with nothing pending is a no-op.
// During the cooldown a non-forced request fails with a CooldownActiveError.
// A forced request executes immediately; otherwise the change is scheduled
// to execute after the configured delay, replacing any previously pending
// toggle.
func (s *Switch) Toggle(ctx context.Context, req ToggleRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvePendingLocked(ctx)

	if s.enabled == req.Enabled && s.pending == nil {
		s.logger.Debug("switch toggle is a no-op", "enabled", req.Enabled, "operator", req.Operator)
		return nil
	}

	if !req.Force {
		if remaining := s.cooldownRemainingLocked(); remaining > 0 {
			s.stats.TogglesRejected++
			s.logger.Warn("switch toggle rejected during cooldown",
				"operator", req.Operator,
				"remaining", remaining,
			)
			return &CooldownActiveError{Remaining: remaining}
		}
	}

	delay := s.cfg.Delay
	if req.Delay != nil {
		delay = *req.Delay
	}

	if req.Force || delay <= 0 {
		s.pending = nil
		if req.Force {
			s.stats.TogglesForced++
		}
		s.executeLocked(ctx, req.Enabled, req.Operator, req.Reason, req.Force)
		return nil
	}

	s.pending = &PendingToggle{
		Target:    req.Enabled,
		Operator:  req.Operator,
		Reason:    req.Reason,
		ExecuteAt: s.now().Add(delay),
	}
	s.logger.Info("switch toggle scheduled",
		"target", req.Enabled,
		"operator", req.Operator,
		"execute_at", s.pending.ExecuteAt,
	)
	return nil
}

// CancelPending drops a scheduled toggle that has not yet executed. Returns
// false when nothing was pending.
func (s *Switch) CancelPending(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvePendingLocked(ctx)
	if s.pending == nil {
		return false
	}
	s.logger.Info("pending switch toggle cancelled", "target", s.pending.Target)
	s.pending = nil
	return true
}

// GetHistory returns up to limit executed switch changes, most recent first.
func (s *Switch) GetHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	raw, err := s.store.History(ctx, historyKey, int64(limit))
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.logger.Warn("skipping unreadable history entry", "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// resolvePendingLocked executes a pending toggle whose time has come.
func (s *Switch) resolvePendingLocked(ctx context.Context) {
	if s.pending == nil || s.now().Before(s.pending.ExecuteAt) {
		return
	}
	p := s.pending
	s.pending = nil
	s.executeLocked(ctx, p.Target, p.Operator, p.Reason, false)
}

// executeLocked flips the switch, persists the new state, and appends to the
// bounded history.
func (s *Switch) executeLocked(ctx context.Context, enabled bool, operator, reason string, forced bool) {
	now := s.now()
	s.enabled = enabled
	s.lastChangedAt = now
	s.stats.TogglesExecuted++
	if enabled {
		s.stats.EnabledCount++
	} else {
		s.stats.DisabledCount++
	}

	ps, _ := json.Marshal(persistedState{Enabled: enabled, LastChangedAt: now})
	if err := s.store.Set(ctx, stateKey, string(ps), 0); err != nil {
		s.logger.Error("failed to persist switch state", "error", err)
	}

	entry, _ := json.Marshal(HistoryEntry{
		Enabled:    enabled,
		Operator:   operator,
		Reason:     reason,
		Forced:     forced,
		ExecutedAt: now,
	})
	if err := s.store.PushHistory(ctx, historyKey, string(entry), int64(s.cfg.HistoryLimit)); err != nil {
		s.logger.Error("failed to append switch history", "error", err)
	}

	if s.metrics != nil {
		s.metrics.SetSwitchEnabled(enabled)
		s.metrics.ObserveSwitchToggle(enabled)
	}

	s.logger.Info("switch toggled",
		"enabled", enabled,
		"operator", operator,
		"reason", reason,
		"forced", forced,
	)
}

// cooldownRemainingLocked reports how long until the cooldown expires.
func (s *Switch) cooldownRemainingLocked() time.Duration {
	if s.lastChangedAt.IsZero() {
		return 0
	}
	elapsed := s.now().Sub(s.lastChangedAt)
	if elapsed >= s.cfg.Cooldown {
		return 0
	}
	return s.cfg.Cooldown - elapsed
}
