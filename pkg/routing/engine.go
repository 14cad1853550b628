package routing

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zhuzhichaoTM/llm-router/pkg/audit"
	"github.com/zhuzhichaoTM/llm-router/pkg/balancer"
	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/failover"
	"github.com/zhuzhichaoTM/llm-router/pkg/gateway"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
	"github.com/zhuzhichaoTM/llm-router/pkg/telemetry/metrics"
)

// EngineOptions collects the engine's collaborators. Audit and Logger may
// be nil; the metrics groups may be nil when telemetry is disabled.
type EngineOptions struct {
	Config    config.RoutingConfig
	Rules     *config.RuleStore
	Registry  *providers.Registry
	Switch    *gateway.Switch
	Failover  *failover.Manager
	Breaker   *failover.CircuitBreaker
	Collector *balancer.MetricsCollector
	Audit     audit.Recorder
	Routing   *metrics.RoutingMetrics
	Provider  *metrics.ProviderMetrics
	Logger    *slog.Logger
}

// Engine is the routing decision engine. Route produces a Decision for a
// request; Execute carries the decision out against the providers with
// retry, circuit breaking, and failover.
type Engine struct {
	cfg        config.RoutingConfig
	rules      *config.RuleStore
	registry   *providers.Registry
	gate       *gateway.Switch
	failover   *failover.Manager
	breaker    *failover.CircuitBreaker
	collector  *balancer.MetricsCollector
	selector   *ModelSelector
	audit      audit.Recorder
	routingM   *metrics.RoutingMetrics
	providerM  *metrics.ProviderMetrics
	logger     *slog.Logger
	evaluators map[string]RuleEvaluator

	// backoff is replaced in tests to avoid real sleeps.
	backoff func(ctx context.Context, attempt int) error
}

// NewEngine wires a routing engine from its collaborators.
func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := opts.Audit
	if rec == nil {
		rec = audit.NopRecorder{}
	}
	structured := NewStructuredEvaluator()
	return &Engine{
		cfg:       opts.Config,
		rules:     opts.Rules,
		registry:  opts.Registry,
		gate:      opts.Switch,
		failover:  opts.Failover,
		breaker:   opts.Breaker,
		collector: opts.Collector,
		selector:  NewModelSelector(),
		audit:     rec,
		routingM:  opts.Routing,
		providerM: opts.Provider,
		logger:    logger.With("component", "routing"),
		evaluators: map[string]RuleEvaluator{
			config.ConditionPattern:    structured,
			config.ConditionComplexity: structured,
			config.ConditionDSL:        NewDSLEvaluator(),
		},
		backoff: waitBackoff,
	}
}

// Route decides which provider and model should serve the request.
//
// A fully pinned request (both provider and model given) bypasses rules
// and the gateway switch. When the switch is disabled, rule evaluation is
// skipped and requests fall back to weighted selection over the candidate
// models. Otherwise rules are evaluated in priority order and the first
// match wins; no match also falls back to weighted selection.
func (e *Engine) Route(ctx context.Context, req *providers.ChatRequest, preferredProvider, preferredModel string) (Decision, error) {
	if preferredProvider != "" && preferredModel != "" {
		d := Decision{
			ProviderID: preferredProvider,
			ModelID:    preferredModel,
			Method:     MethodFixed,
			Reason:     "caller pinned provider and model",
		}
		e.observeDecision(d)
		return d, nil
	}

	if !e.gate.IsEnabled(ctx) {
		d, err := e.weightedDecision("gateway switch disabled")
		if err != nil {
			return Decision{}, err
		}
		e.observeDecision(d)
		return d, nil
	}

	for _, rule := range e.rules.ActiveRules() {
		ev, ok := e.evaluators[rule.ConditionType]
		if !ok {
			continue
		}
		matched, err := ev.Matches(rule, req)
		if err != nil {
			e.logger.Warn("rule evaluation failed", "rule_id", rule.ID, "error", err)
			continue
		}
		if !matched {
			continue
		}

		e.rules.IncrementHitCount(rule.ID)
		if e.routingM != nil {
			e.routingM.ObserveRuleMatch(rule.ID)
		}

		d, err := e.applyRule(rule)
		if err != nil {
			if errors.Is(err, ErrRequestBlocked) {
				if e.routingM != nil {
					e.routingM.ObserveBlocked()
				}
				return Decision{}, err
			}
			// The rule's action could not produce a decision. Keep
			// evaluating lower-priority rules.
			e.logger.Warn("rule action not applicable", "rule_id", rule.ID, "error", err)
			continue
		}
		e.observeDecision(d)
		return d, nil
	}

	d, err := e.weightedDecision("no rule matched")
	if err != nil {
		return Decision{}, err
	}
	e.observeDecision(d)
	return d, nil
}

// applyRule turns a matched rule's action into a decision.
func (e *Engine) applyRule(rule config.RoutingRule) (Decision, error) {
	switch rule.ActionType {
	case config.ActionBlockRequest:
		return Decision{}, &BlockedError{RuleID: rule.ID, RuleName: rule.Name}

	case config.ActionUseModel:
		for _, c := range e.rules.ActiveModels() {
			if c.ModelID == rule.ActionValue {
				return Decision{
					ProviderID: c.ProviderID,
					ModelID:    c.ModelID,
					RuleID:     rule.ID,
					Method:     MethodRuleBased,
					Reason:     "rule " + rule.ID + " pinned model",
				}, nil
			}
		}
		return Decision{}, errors.New("model " + rule.ActionValue + " not among active candidates")

	case config.ActionUseProvider:
		c, err := e.selector.SelectForProvider(e.rules.ActiveModels(), rule.ActionValue)
		if err != nil {
			if errors.Is(err, ErrNoActiveCandidates) && e.cfg.DefaultModel != "" {
				return Decision{
					ProviderID: rule.ActionValue,
					ModelID:    e.cfg.DefaultModel,
					RuleID:     rule.ID,
					Method:     MethodRuleBased,
					Reason:     "rule " + rule.ID + " pinned provider, default model",
				}, nil
			}
			return Decision{}, err
		}
		return Decision{
			ProviderID: c.ProviderID,
			ModelID:    c.ModelID,
			RuleID:     rule.ID,
			Method:     MethodRuleBased,
			Reason:     "rule " + rule.ID + " pinned provider",
		}, nil

	case config.ActionSetPriority:
		priority, err := strconv.Atoi(rule.ActionValue)
		if err != nil {
			return Decision{}, errors.New("invalid priority value " + rule.ActionValue)
		}
		c, err := e.selector.SelectByPriority(e.rules.ActiveModels(), priority)
		if err != nil {
			return Decision{}, err
		}
		return Decision{
			ProviderID: c.ProviderID,
			ModelID:    c.ModelID,
			RuleID:     rule.ID,
			Method:     MethodRuleBased,
			Reason:     "rule " + rule.ID + " set priority tier " + rule.ActionValue,
		}, nil

	default:
		return Decision{}, errors.New("unknown action type " + rule.ActionType)
	}
}

// weightedDecision picks a candidate via weighted round-robin.
func (e *Engine) weightedDecision(reason string) (Decision, error) {
	c, err := e.selector.Select(e.rules.ActiveModels())
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		ProviderID: c.ProviderID,
		ModelID:    c.ModelID,
		Method:     MethodWeightedRoundRobin,
		Reason:     reason,
	}, nil
}

func (e *Engine) observeDecision(d Decision) {
	if e.routingM != nil {
		e.routingM.ObserveDecision(d.Method, d.ProviderID)
	}
	e.logger.Debug("routing decision",
		"provider", d.ProviderID,
		"model", d.ModelID,
		"method", d.Method,
		"rule_id", d.RuleID,
	)
}

// Execute runs the request against the decided provider, retrying with
// exponential backoff and failing over to alternates when the circuit
// breaker or failure detector says to. One audit record is written per
// request, covering the final outcome.
func (e *Engine) Execute(ctx context.Context, req *providers.ChatRequest, decision Decision) (Result, error) {
	requestID := uuid.NewString()
	providerID := decision.ProviderID
	modelID := decision.ModelID
	tried := map[string]bool{}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt < e.maxRetries(); attempt++ {
		if err := ctx.Err(); err != nil {
			e.auditFailure(ctx, requestID, decision, providerID, modelID, err)
			return Result{Attempts: attempts, ErrorMessage: err.Error()}, err
		}

		allowed, reason := e.breaker.ShouldAllowRequest(ctx, providerID)
		if !allowed {
			lastErr = &failover.CircuitOpenError{Provider: providerID, Reason: reason}
			next, ok := e.nextProvider(ctx, providerID, tried)
			if !ok {
				break
			}
			providerID, modelID = next.provider, next.model
			continue
		}

		p, err := e.registry.Get(providerID)
		if err != nil {
			lastErr = err
			next, ok := e.nextProvider(ctx, providerID, tried)
			if !ok {
				break
			}
			providerID, modelID = next.provider, next.model
			continue
		}

		tried[providerID] = true
		attempts++
		req.Model = modelID

		start := time.Now()
		resp, err := p.ChatCompletion(ctx, req)
		latency := time.Since(start)

		if err == nil {
			return e.finishSuccess(ctx, requestID, decision, p, providerID, modelID, resp, latency, attempts)
		}

		lastErr = &BackendError{Provider: providerID, Retriable: true, Err: err}
		e.failover.RecordFailure(ctx, providerID)
		if cerr := e.collector.RecordOutcome(ctx, providerID, false, latency, err.Error()); cerr != nil {
			e.logger.Warn("metrics update failed", "provider", providerID, "error", cerr)
		}
		if e.providerM != nil {
			e.providerM.ObserveRequest(providerID, modelID, latency, false)
		}
		if e.routingM != nil {
			e.routingM.ObserveRetry()
		}
		e.logger.Warn("provider call failed",
			"request_id", requestID,
			"provider", providerID,
			"attempt", attempts,
			"error", err,
		)

		if fd := e.failover.ShouldFailover(ctx, providerID); fd.ShouldFailover {
			if next, ok := e.nextProvider(ctx, providerID, tried); ok {
				providerID, modelID = next.provider, next.model
				continue
			}
		}
		if err := e.backoff(ctx, attempt+1); err != nil {
			e.auditFailure(ctx, requestID, decision, providerID, modelID, err)
			return Result{Attempts: attempts, ErrorMessage: err.Error()}, err
		}
	}

	if lastErr == nil {
		lastErr = ErrNoActiveCandidates
	}
	finalErr := &ExhaustedError{Attempts: attempts, LastErr: lastErr}
	e.auditFailure(ctx, requestID, decision, providerID, modelID, finalErr)
	return Result{
		ProviderID:   providerID,
		ModelID:      modelID,
		Attempts:     attempts,
		ErrorMessage: finalErr.Error(),
	}, finalErr
}

func (e *Engine) finishSuccess(ctx context.Context, requestID string, decision Decision, p providers.Provider, providerID, modelID string, resp *providers.ChatResponse, latency time.Duration, attempts int) (Result, error) {
	e.failover.RecordSuccess(ctx, providerID)
	if err := e.collector.RecordOutcome(ctx, providerID, true, latency, ""); err != nil {
		e.logger.Warn("metrics update failed", "provider", providerID, "error", err)
	}
	if e.providerM != nil {
		e.providerM.ObserveRequest(providerID, modelID, latency, true)
	}

	inputCost, outputCost := p.CalculateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens, modelID)
	result := Result{
		Success:      true,
		ProviderID:   providerID,
		ModelID:      modelID,
		LatencyMs:    latency.Milliseconds(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Cost:         inputCost + outputCost,
		Attempts:     attempts,
		Response:     resp,
	}

	if err := e.audit.Record(ctx, audit.Record{
		RequestID:    requestID,
		ProviderID:   providerID,
		ModelID:      modelID,
		RuleID:       decision.RuleID,
		Method:       decision.Method,
		Reason:       decision.Reason,
		Success:      true,
		LatencyMs:    result.LatencyMs,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Cost:         result.Cost,
	}); err != nil {
		e.logger.Warn("audit write failed", "request_id", requestID, "error", err)
	}
	return result, nil
}

func (e *Engine) auditFailure(ctx context.Context, requestID string, decision Decision, providerID, modelID string, cause error) {
	if err := e.audit.Record(ctx, audit.Record{
		RequestID:    requestID,
		ProviderID:   providerID,
		ModelID:      modelID,
		RuleID:       decision.RuleID,
		Method:       decision.Method,
		Reason:       decision.Reason,
		Success:      false,
		ErrorMessage: cause.Error(),
	}); err != nil {
		e.logger.Warn("audit write failed", "request_id", requestID, "error", err)
	}
}

type alternate struct {
	provider string
	model    string
}

// nextProvider asks the failover manager for an alternate to the failed
// provider, excluding ones already tried, and picks that provider's best
// candidate model.
func (e *Engine) nextProvider(ctx context.Context, failedID string, tried map[string]bool) (alternate, bool) {
	available := make([]string, 0, 4)
	seen := map[string]bool{}
	for _, c := range e.rules.ActiveModels() {
		if seen[c.ProviderID] || tried[c.ProviderID] {
			continue
		}
		seen[c.ProviderID] = true
		available = append(available, c.ProviderID)
	}
	if len(available) == 0 {
		for _, name := range e.registry.Names() {
			if !tried[name] {
				available = append(available, name)
			}
		}
	}

	next, err := e.failover.SelectAlternative(ctx, failedID, available)
	if err != nil {
		return alternate{}, false
	}

	model := e.cfg.DefaultModel
	if c, err := e.selector.SelectForProvider(e.rules.ActiveModels(), next); err == nil {
		model = c.ModelID
	}
	if model == "" {
		return alternate{}, false
	}
	return alternate{provider: next, model: model}, true
}

func (e *Engine) maxRetries() int {
	if e.cfg.MaxRetries > 0 {
		return e.cfg.MaxRetries
	}
	return 3
}
