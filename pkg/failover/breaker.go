// Package failover isolates failing backends. It holds the per-provider
// circuit breakers, the failover coordinator that decides when to abandon a
// backend mid-request, and the background health monitor.
package failover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/store"
	"github.com/zhuzhichaoTM/llm-router/pkg/telemetry/metrics"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed   State = iota // normal operation, requests pass through
	StateHalfOpen              // probing, limited requests allowed
	StateOpen                  // failing, requests rejected immediately
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// circuit is the per-provider breaker record.
type circuit struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenCalls        int
	stateChangedAt       time.Time
}

// CircuitBreaker tracks a breaker per provider. Safe for concurrent use.
//
// Transitions: closed opens after FailureThreshold consecutive failures;
// open turns half-open once Timeout has elapsed; half-open closes after
// SuccessThreshold consecutive successes and reopens on any failure.
type CircuitBreaker struct {
	cfg     config.BreakerConfig
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.ResilienceMetrics
	now     func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
}

// NewCircuitBreaker builds a breaker set. st and rm may be nil.
func NewCircuitBreaker(cfg config.BreakerConfig, st store.Store, logger *slog.Logger, rm *metrics.ResilienceMetrics) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		cfg:      cfg,
		store:    st,
		logger:   logger,
		metrics:  rm,
		now:      time.Now,
		circuits: make(map[string]*circuit),
	}
}

// SetClock replaces the time source. Test hook.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}

func (cb *CircuitBreaker) circuitLocked(providerID string) *circuit {
	c, ok := cb.circuits[providerID]
	if !ok {
		c = &circuit{state: StateClosed}
		cb.circuits[providerID] = c
	}
	return c
}

// ShouldAllowRequest reports whether a request to the provider may proceed,
// with a reason when it may not. An open circuit whose timeout has elapsed
// transitions to half-open and admits the caller as a probe; half-open
// circuits admit callers until the probe budget is spent.
func (cb *CircuitBreaker) ShouldAllowRequest(ctx context.Context, providerID string) (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuitLocked(providerID)
	switch c.state {
	case StateOpen:
		elapsed := cb.now().Sub(c.stateChangedAt)
		if elapsed < cb.cfg.Timeout {
			remaining := (cb.cfg.Timeout - elapsed).Round(time.Second)
			return false, fmt.Sprintf("circuit open (%s remaining)", remaining)
		}
		cb.transitionLocked(ctx, providerID, c, StateHalfOpen)
		c.halfOpenCalls = 1
		return true, "circuit half-open, probing recovery"

	case StateHalfOpen:
		if c.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			return false, "circuit half-open, probe budget exhausted"
		}
		c.halfOpenCalls++
		return true, ""

	default:
		return true, ""
	}
}

// RecordSuccess records a successful call against the provider's circuit.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, providerID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuitLocked(providerID)
	c.consecutiveSuccesses++
	c.consecutiveFailures = 0

	if c.state == StateHalfOpen && c.consecutiveSuccesses >= cb.cfg.SuccessThreshold {
		cb.transitionLocked(ctx, providerID, c, StateClosed)
	}
}

// RecordFailure records a failed call against the provider's circuit. A
// failure during half-open reopens immediately; in closed state the circuit
// opens once the consecutive-failure threshold is reached.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, providerID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuitLocked(providerID)
	c.consecutiveFailures++
	c.consecutiveSuccesses = 0

	switch {
	case c.state == StateHalfOpen:
		cb.transitionLocked(ctx, providerID, c, StateOpen)
	case c.state == StateClosed && c.consecutiveFailures >= cb.cfg.FailureThreshold:
		cb.transitionLocked(ctx, providerID, c, StateOpen)
	}
}

// State returns the provider's current circuit state.
func (cb *CircuitBreaker) State(providerID string) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.circuits[providerID]; ok {
		return c.state
	}
	return StateClosed
}

// Reset forces a provider's circuit back to closed with cleared counters.
func (cb *CircuitBreaker) Reset(ctx context.Context, providerID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuitLocked(providerID)
	c.consecutiveFailures = 0
	c.consecutiveSuccesses = 0
	c.halfOpenCalls = 0
	if c.state != StateClosed {
		cb.transitionLocked(ctx, providerID, c, StateClosed)
	}
}

// transitionLocked applies a state change, stamps it, persists it, and
// updates metrics. Counters relevant to the new state are reset.
func (cb *CircuitBreaker) transitionLocked(ctx context.Context, providerID string, c *circuit, to State) {
	from := c.state
	c.state = to
	c.stateChangedAt = cb.now()
	switch to {
	case StateHalfOpen:
		c.halfOpenCalls = 0
		c.consecutiveSuccesses = 0
	case StateClosed:
		c.consecutiveFailures = 0
		c.halfOpenCalls = 0
	}

	if cb.store != nil {
		if err := cb.store.Set(ctx, "breaker:state:"+providerID, to.String(), time.Hour); err != nil {
			cb.logger.Warn("failed to persist breaker state", "provider", providerID, "error", err)
		}
	}
	if cb.metrics != nil {
		cb.metrics.SetBreakerState(providerID, float64(to))
	}

	cb.logger.Info("circuit breaker state changed",
		"provider", providerID,
		"from", from.String(),
		"to", to.String(),
	)
}
