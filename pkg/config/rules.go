package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// RuleStore holds the routing rules and candidate models loaded from the
// rules file, along with per-rule hit counters. It is safe for concurrent
// use and supports atomic reload.
type RuleStore struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	rules     []RoutingRule
	models    []CandidateModel
	hitCounts map[string]int64
}

// NewRuleStore loads the rules file at path and returns a store over it.
func NewRuleStore(path string, logger *slog.Logger) (*RuleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rs := &RuleStore{
		path:      path,
		logger:    logger,
		hitCounts: make(map[string]int64),
	}
	if err := rs.Reload(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Reload re-reads the rules file and swaps in the new rule and model sets.
// Hit counts for rules that survive the reload are preserved. On any error
// the previously loaded sets remain in effect.
func (rs *RuleStore) Reload() error {
	data, err := os.ReadFile(rs.path)
	if err != nil {
		return fmt.Errorf("failed to read rules file %q: %w", rs.path, err)
	}

	var doc RulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse rules file %q: %w", rs.path, err)
	}

	seen := make(map[string]bool, len(doc.Rules))
	for _, r := range doc.Rules {
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("rules file %q: %w", rs.path, err)
		}
		if seen[r.ID] {
			return fmt.Errorf("rules file %q: duplicate rule id %s", rs.path, r.ID)
		}
		seen[r.ID] = true
	}
	for _, m := range doc.Models {
		if m.ModelID == "" || m.ProviderID == "" {
			return fmt.Errorf("rules file %q: model entries require model_id and provider_id", rs.path)
		}
		if m.Weight < 0 {
			return fmt.Errorf("rules file %q: model %s has negative weight", rs.path, m.ModelID)
		}
	}

	// Highest priority first; equal priorities keep file order.
	sort.SliceStable(doc.Rules, func(i, j int) bool {
		return doc.Rules[i].Priority > doc.Rules[j].Priority
	})

	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules = doc.Rules
	rs.models = doc.Models
	for id := range rs.hitCounts {
		if !seen[id] {
			delete(rs.hitCounts, id)
		}
	}

	rs.logger.Info("routing rules loaded",
		"path", rs.path,
		"rules", len(doc.Rules),
		"models", len(doc.Models),
	)
	return nil
}

// ActiveRules returns the active rules in descending priority order.
func (rs *RuleStore) ActiveRules() []RoutingRule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]RoutingRule, 0, len(rs.rules))
	for _, r := range rs.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// ActiveModels returns the active candidate models.
func (rs *RuleStore) ActiveModels() []CandidateModel {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]CandidateModel, 0, len(rs.models))
	for _, m := range rs.models {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// AllModels returns every candidate model regardless of active status.
func (rs *RuleStore) AllModels() []CandidateModel {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]CandidateModel, len(rs.models))
	copy(out, rs.models)
	return out
}

// IncrementHitCount records a match for the given rule ID. Unknown IDs are
// counted too so a reload race cannot drop a hit.
func (rs *RuleStore) IncrementHitCount(ruleID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.hitCounts[ruleID]++
}

// HitCount reports how many times the given rule has matched since it was
// loaded.
func (rs *RuleStore) HitCount(ruleID string) int64 {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.hitCounts[ruleID]
}

// SetModelWeight updates the weight of a candidate model in place. Used by
// the automatic weight adjuster. Returns false when the model is unknown.
func (rs *RuleStore) SetModelWeight(modelID string, weight int) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := range rs.models {
		if rs.models[i].ModelID == modelID {
			rs.models[i].Weight = weight
			return true
		}
	}
	return false
}
