package metrics

import "github.com/prometheus/client_golang/prometheus"

// ResilienceMetrics tracks circuit breaker, failover, and switch activity.
//
// Metrics:
//   - llmrouter_breaker_state: Circuit breaker state per provider
//     (0=closed, 1=half-open, 2=open)
//   - llmrouter_failovers_total: Failover events by source provider
//   - llmrouter_switch_enabled: Gateway switch state (1=enabled)
//   - llmrouter_switch_toggles_total: Executed switch toggles by new state
type ResilienceMetrics struct {
	breakerState  *prometheus.GaugeVec
	failovers     *prometheus.CounterVec
	switchEnabled prometheus.Gauge
	switchToggles *prometheus.CounterVec
}

// NewResilienceMetrics creates and registers resilience metrics.
func NewResilienceMetrics(namespace string, registry *prometheus.Registry) *ResilienceMetrics {
	rm := &ResilienceMetrics{
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),
		failovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failovers_total",
				Help:      "Failover events by source provider and trigger",
			},
			[]string{"provider", "trigger"},
		),
		switchEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "switch_enabled",
				Help:      "Gateway switch state (1=enabled, 0=disabled)",
			},
		),
		switchToggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "switch_toggles_total",
				Help:      "Executed gateway switch toggles by resulting state",
			},
			[]string{"state"},
		),
	}

	registry.MustRegister(rm.breakerState, rm.failovers, rm.switchEnabled, rm.switchToggles)
	return rm
}

// SetBreakerState records a breaker state transition.
func (rm *ResilienceMetrics) SetBreakerState(provider string, state float64) {
	rm.breakerState.WithLabelValues(provider).Set(state)
}

// ObserveFailover records one failover event.
func (rm *ResilienceMetrics) ObserveFailover(provider, trigger string) {
	rm.failovers.WithLabelValues(provider, trigger).Inc()
}

// SetSwitchEnabled records the current gateway switch state.
func (rm *ResilienceMetrics) SetSwitchEnabled(enabled bool) {
	v := 0.0
	if enabled {
		v = 1.0
	}
	rm.switchEnabled.Set(v)
}

// ObserveSwitchToggle records one executed toggle.
func (rm *ResilienceMetrics) ObserveSwitchToggle(enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	rm.switchToggles.WithLabelValues(state).Inc()
}
