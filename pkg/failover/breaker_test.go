package failover

import (
	"context"
	"testing"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/store"
)

func testBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

type breakerClock struct {
	t time.Time
}

func (c *breakerClock) now() time.Time          { return c.t }
func (c *breakerClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(t *testing.T) (*CircuitBreaker, *breakerClock) {
	t.Helper()
	cb := NewCircuitBreaker(testBreakerConfig(), store.NewMemoryStore(), nil, nil)
	clk := &breakerClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cb.SetClock(clk.now)
	return cb, clk
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	// Two failures keep the circuit closed.
	cb.RecordFailure(ctx, "openai")
	cb.RecordFailure(ctx, "openai")
	if got := cb.State("openai"); got != StateClosed {
		t.Fatalf("State() = %s after 2 failures, want closed", got)
	}
	if ok, _ := cb.ShouldAllowRequest(ctx, "openai"); !ok {
		t.Error("ShouldAllowRequest() = false while closed, want true")
	}

	// The third consecutive failure opens it.
	cb.RecordFailure(ctx, "openai")
	if got := cb.State("openai"); got != StateOpen {
		t.Fatalf("State() = %s after 3 failures, want open", got)
	}
	ok, reason := cb.ShouldAllowRequest(ctx, "openai")
	if ok {
		t.Error("ShouldAllowRequest() = true while open, want false")
	}
	if reason == "" {
		t.Error("ShouldAllowRequest() returned empty reason for rejection")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	cb.RecordFailure(ctx, "openai")
	cb.RecordFailure(ctx, "openai")
	cb.RecordSuccess(ctx, "openai")
	cb.RecordFailure(ctx, "openai")
	cb.RecordFailure(ctx, "openai")

	// Non-consecutive failures never reach the threshold.
	if got := cb.State("openai"); got != StateClosed {
		t.Errorf("State() = %s, want closed", got)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cb.RecordFailure(ctx, "openai")
	}
	if got := cb.State("openai"); got != StateOpen {
		t.Fatalf("State() = %s, want open", got)
	}

	// Before the timeout the circuit stays shut.
	clk.advance(30 * time.Second)
	if ok, _ := cb.ShouldAllowRequest(ctx, "openai"); ok {
		t.Fatal("ShouldAllowRequest() = true before timeout, want false")
	}

	// After the timeout one probe is admitted and the state is half-open.
	clk.advance(31 * time.Second)
	ok, _ := cb.ShouldAllowRequest(ctx, "openai")
	if !ok {
		t.Fatal("ShouldAllowRequest() = false after timeout, want probe admitted")
	}
	if got := cb.State("openai"); got != StateHalfOpen {
		t.Fatalf("State() = %s, want half_open", got)
	}

	// Two consecutive successes close the circuit.
	cb.RecordSuccess(ctx, "openai")
	if got := cb.State("openai"); got != StateHalfOpen {
		t.Fatalf("State() = %s after 1 success, want half_open", got)
	}
	cb.RecordSuccess(ctx, "openai")
	if got := cb.State("openai"); got != StateClosed {
		t.Errorf("State() = %s after 2 successes, want closed", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cb.RecordFailure(ctx, "openai")
	}
	clk.advance(61 * time.Second)
	if ok, _ := cb.ShouldAllowRequest(ctx, "openai"); !ok {
		t.Fatal("probe not admitted after timeout")
	}

	// A single failure during probation reopens immediately.
	cb.RecordFailure(ctx, "openai")
	if got := cb.State("openai"); got != StateOpen {
		t.Errorf("State() = %s after half-open failure, want open", got)
	}
	if ok, _ := cb.ShouldAllowRequest(ctx, "openai"); ok {
		t.Error("ShouldAllowRequest() = true after reopen, want false")
	}
}

func TestBreakerHalfOpenProbeBudget(t *testing.T) {
	cb, clk := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cb.RecordFailure(ctx, "openai")
	}
	clk.advance(61 * time.Second)

	// HalfOpenMaxCalls probes pass, the next is rejected.
	for i := 0; i < 3; i++ {
		if ok, _ := cb.ShouldAllowRequest(ctx, "openai"); !ok {
			t.Fatalf("probe %d rejected, want admitted", i+1)
		}
	}
	ok, reason := cb.ShouldAllowRequest(ctx, "openai")
	if ok {
		t.Error("ShouldAllowRequest() = true past probe budget, want false")
	}
	if reason == "" {
		t.Error("expected a rejection reason past the probe budget")
	}
}

func TestBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cb.RecordFailure(ctx, "openai")
	}
	cb.Reset(ctx, "openai")
	if got := cb.State("openai"); got != StateClosed {
		t.Errorf("State() = %s after reset, want closed", got)
	}
	if ok, _ := cb.ShouldAllowRequest(ctx, "openai"); !ok {
		t.Error("ShouldAllowRequest() = false after reset, want true")
	}
}

func TestBreakerIsolatesProviders(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cb.RecordFailure(ctx, "openai")
	}
	if got := cb.State("anthropic"); got != StateClosed {
		t.Errorf("State(anthropic) = %s, want closed, one provider's failures must not leak", got)
	}
}
