package routing

import (
	"sync/atomic"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
)

// ModelSelector performs weighted round-robin selection over candidate
// models. Only active candidates in the highest priority tier participate.
// A shared monotonic counter keeps the rotation deterministic and fair
// across concurrent callers.
type ModelSelector struct {
	counter atomic.Uint64
}

// NewModelSelector returns a selector with a fresh rotation counter.
func NewModelSelector() *ModelSelector {
	return &ModelSelector{}
}

// Select picks one candidate from the highest-priority group of active
// models, weighted by each candidate's weight. Candidates with weight
// zero or less never win unless every candidate in the tier has no
// weight, in which case selection degrades to plain round-robin.
func (s *ModelSelector) Select(candidates []config.CandidateModel) (config.CandidateModel, error) {
	tier := highestPriorityTier(candidates)
	if len(tier) == 0 {
		return config.CandidateModel{}, ErrNoActiveCandidates
	}
	if len(tier) == 1 {
		return tier[0], nil
	}

	totalWeight := 0
	for _, c := range tier {
		if c.Weight > 0 {
			totalWeight += c.Weight
		}
	}

	idx := s.counter.Add(1) - 1
	if totalWeight <= 0 {
		return tier[idx%uint64(len(tier))], nil
	}

	point := int(idx % uint64(totalWeight))
	cumulative := 0
	for _, c := range tier {
		if c.Weight <= 0 {
			continue
		}
		cumulative += c.Weight
		if point < cumulative {
			return c, nil
		}
	}
	return tier[len(tier)-1], nil
}

// SelectForProvider narrows candidates to one provider before selection.
func (s *ModelSelector) SelectForProvider(candidates []config.CandidateModel, providerID string) (config.CandidateModel, error) {
	filtered := make([]config.CandidateModel, 0, len(candidates))
	for _, c := range candidates {
		if c.ProviderID == providerID {
			filtered = append(filtered, c)
		}
	}
	return s.Select(filtered)
}

// SelectByPriority narrows candidates to an exact priority before selection.
func (s *ModelSelector) SelectByPriority(candidates []config.CandidateModel, priority int) (config.CandidateModel, error) {
	filtered := make([]config.CandidateModel, 0, len(candidates))
	for _, c := range candidates {
		if c.Priority == priority {
			filtered = append(filtered, c)
		}
	}
	return s.Select(filtered)
}

// highestPriorityTier filters to active candidates and keeps only those
// sharing the maximum priority, preserving encounter order.
func highestPriorityTier(candidates []config.CandidateModel) []config.CandidateModel {
	maxPriority := 0
	found := false
	for _, c := range candidates {
		if !c.Active {
			continue
		}
		if !found || c.Priority > maxPriority {
			maxPriority = c.Priority
			found = true
		}
	}
	if !found {
		return nil
	}
	tier := make([]config.CandidateModel, 0, len(candidates))
	for _, c := range candidates {
		if c.Active && c.Priority == maxPriority {
			tier = append(tier, c)
		}
	}
	return tier
}
