package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/store"
)

func testSwitchConfig() config.SwitchConfig {
	return config.SwitchConfig{
		Delay:        10 * time.Second,
		Cooldown:     5 * time.Minute,
		HistoryLimit: 100,
	}
}

// fakeClock is a movable time source shared by the switch and its store.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSwitch(t *testing.T) (*Switch, *store.MemoryStore, *fakeClock) {
	t.Helper()
	st := store.NewMemoryStore()
	sw, err := NewSwitch(context.Background(), st, testSwitchConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewSwitch() error = %v", err)
	}
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sw.SetClock(clk.now)
	st.SetClock(clk.now)
	return sw, st, clk
}

func TestSwitchStartsEnabled(t *testing.T) {
	sw, _, _ := newTestSwitch(t)
	if !sw.IsEnabled(context.Background()) {
		t.Error("IsEnabled() = false on first boot, want true")
	}
}

func TestToggleTakesEffectAfterDelay(t *testing.T) {
	sw, _, clk := newTestSwitch(t)
	ctx := context.Background()

	if err := sw.Toggle(ctx, ToggleRequest{Enabled: false, Operator: "ops"}); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	// Still enabled before the delay elapses.
	if !sw.IsEnabled(ctx) {
		t.Error("IsEnabled() = false before delay elapsed, want true")
	}
	status := sw.GetStatus(ctx)
	if status.Pending == nil || status.Pending.Target != false {
		t.Fatalf("GetStatus().Pending = %+v, want pending disable", status.Pending)
	}

	clk.advance(11 * time.Second)
	if sw.IsEnabled(ctx) {
		t.Error("IsEnabled() = true after delay elapsed, want false")
	}
	if sw.GetStatus(ctx).Pending != nil {
		t.Error("GetStatus().Pending != nil after execution")
	}
}

func TestForcedToggleExecutesImmediately(t *testing.T) {
	sw, _, _ := newTestSwitch(t)
	ctx := context.Background()

	if err := sw.Toggle(ctx, ToggleRequest{Enabled: false, Operator: "ops", Force: true}); err != nil {
		t.Fatalf("Toggle(force) error = %v", err)
	}
	if sw.IsEnabled(ctx) {
		t.Error("IsEnabled() = true after forced disable, want false")
	}
	if got := sw.GetMetrics().TogglesForced; got != 1 {
		t.Errorf("TogglesForced = %d, want 1", got)
	}
}

func TestCooldownRejectsToggle(t *testing.T) {
	sw, _, clk := newTestSwitch(t)
	ctx := context.Background()

	if err := sw.Toggle(ctx, ToggleRequest{Enabled: false, Operator: "ops", Force: true}); err != nil {
		t.Fatalf("Toggle(force) error = %v", err)
	}

	err := sw.Toggle(ctx, ToggleRequest{Enabled: true, Operator: "ops"})
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("Toggle() during cooldown error = %v, want ErrCooldownActive", err)
	}
	var cdErr *CooldownActiveError
	if !errors.As(err, &cdErr) || cdErr.Remaining <= 0 {
		t.Errorf("error = %v, want CooldownActiveError with positive remaining", err)
	}
	if got := sw.GetMetrics().TogglesRejected; got != 1 {
		t.Errorf("TogglesRejected = %d, want 1", got)
	}

	// Force bypasses the cooldown.
	if err := sw.Toggle(ctx, ToggleRequest{Enabled: true, Operator: "ops", Force: true}); err != nil {
		t.Errorf("Toggle(force) during cooldown error = %v, want nil", err)
	}

	// After the cooldown expires, normal toggles work again.
	clk.advance(6 * time.Minute)
	if err := sw.Toggle(ctx, ToggleRequest{Enabled: false, Operator: "ops"}); err != nil {
		t.Errorf("Toggle() after cooldown error = %v, want nil", err)
	}
}

func TestToggleIdempotent(t *testing.T) {
	sw, _, _ := newTestSwitch(t)
	ctx := context.Background()

	// Switch is already enabled; requesting enabled is a no-op and must not
	// consume the cooldown or record history.
	if err := sw.Toggle(ctx, ToggleRequest{Enabled: true, Operator: "ops"}); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if got := sw.GetMetrics().TogglesExecuted; got != 0 {
		t.Errorf("TogglesExecuted = %d, want 0", got)
	}
	history, err := sw.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("GetHistory() returned %d entries, want 0", len(history))
	}
}

func TestCancelPending(t *testing.T) {
	sw, _, clk := newTestSwitch(t)
	ctx := context.Background()

	if sw.CancelPending(ctx) {
		t.Error("CancelPending() = true with nothing pending")
	}
	if err := sw.Toggle(ctx, ToggleRequest{Enabled: false, Operator: "ops"}); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !sw.CancelPending(ctx) {
		t.Error("CancelPending() = false with a pending toggle")
	}

	clk.advance(time.Minute)
	if !sw.IsEnabled(ctx) {
		t.Error("IsEnabled() = false after cancelled toggle, want true")
	}
}

func TestZeroDelayExecutesImmediately(t *testing.T) {
	sw, _, _ := newTestSwitch(t)
	ctx := context.Background()

	zero := time.Duration(0)
	if err := sw.Toggle(ctx, ToggleRequest{Enabled: false, Operator: "ops", Delay: &zero}); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if sw.IsEnabled(ctx) {
		t.Error("IsEnabled() = true after zero-delay disable, want false")
	}
	m := sw.GetMetrics()
	if m.TogglesForced != 0 {
		t.Errorf("TogglesForced = %d, want 0 for non-forced zero delay", m.TogglesForced)
	}
	if m.DisabledCount != 1 {
		t.Errorf("DisabledCount = %d, want 1", m.DisabledCount)
	}
}

func TestSwitchHistoryRecorded(t *testing.T) {
	sw, _, clk := newTestSwitch(t)
	ctx := context.Background()

	if err := sw.Toggle(ctx, ToggleRequest{Enabled: false, Operator: "alice", Reason: "maintenance", Force: true}); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	clk.advance(10 * time.Minute)
	if err := sw.Toggle(ctx, ToggleRequest{Enabled: true, Operator: "bob", Force: true}); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	history, err := sw.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("GetHistory() returned %d entries, want 2", len(history))
	}
	// Most recent first.
	if history[0].Operator != "bob" || !history[0].Enabled {
		t.Errorf("history[0] = %+v, want bob enabling", history[0])
	}
	if history[1].Operator != "alice" || history[1].Reason != "maintenance" {
		t.Errorf("history[1] = %+v, want alice with maintenance reason", history[1])
	}
}

func TestSwitchHistoryBoundedByConfig(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testSwitchConfig()
	cfg.HistoryLimit = 3
	cfg.Cooldown = 0
	sw, err := NewSwitch(context.Background(), st, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewSwitch() error = %v", err)
	}
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sw.SetClock(clk.now)
	st.SetClock(clk.now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		enabled := i%2 == 0
		if err := sw.Toggle(ctx, ToggleRequest{Enabled: !enabled, Operator: "ops", Force: true}); err != nil {
			t.Fatalf("Toggle() #%d error = %v", i, err)
		}
		clk.advance(time.Minute)
	}

	history, err := sw.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("GetHistory() returned %d entries, want history capped at 3", len(history))
	}

	// A zero limit also clamps to the configured cap.
	history, err = sw.GetHistory(ctx, 0)
	if err != nil {
		t.Fatalf("GetHistory(0) error = %v", err)
	}
	if len(history) != 3 {
		t.Errorf("GetHistory(0) returned %d entries, want 3", len(history))
	}
}

func TestSwitchStateSurvivesRestart(t *testing.T) {
	sw, st, _ := newTestSwitch(t)
	ctx := context.Background()

	if err := sw.Toggle(ctx, ToggleRequest{Enabled: false, Operator: "ops", Force: true}); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	// A new switch over the same store picks up the persisted state.
	sw2, err := NewSwitch(ctx, st, testSwitchConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewSwitch() error = %v", err)
	}
	if sw2.IsEnabled(ctx) {
		t.Error("IsEnabled() = true after restart, want persisted false")
	}
}
