package routing

import (
	"errors"
	"testing"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
)

func TestSelectEmptyCandidates(t *testing.T) {
	s := NewModelSelector()
	if _, err := s.Select(nil); !errors.Is(err, ErrNoActiveCandidates) {
		t.Errorf("Select(nil) error = %v, want ErrNoActiveCandidates", err)
	}
}

func TestSelectIgnoresInactive(t *testing.T) {
	s := NewModelSelector()
	candidates := []config.CandidateModel{
		{ModelID: "retired", ProviderID: "openai", Weight: 100, Active: false},
		{ModelID: "gpt-4", ProviderID: "openai", Weight: 100, Active: true},
	}
	for i := 0; i < 5; i++ {
		c, err := s.Select(candidates)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if c.ModelID != "gpt-4" {
			t.Fatalf("Select() = %s, want gpt-4", c.ModelID)
		}
	}
}

func TestSelectHighestPriorityTierOnly(t *testing.T) {
	s := NewModelSelector()
	candidates := []config.CandidateModel{
		{ModelID: "cheap", ProviderID: "azure", Priority: 1, Weight: 500, Active: true},
		{ModelID: "best", ProviderID: "openai", Priority: 2, Weight: 10, Active: true},
	}
	for i := 0; i < 5; i++ {
		c, err := s.Select(candidates)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if c.ModelID != "best" {
			t.Fatalf("Select() = %s, want best (higher priority tier)", c.ModelID)
		}
	}
}

func TestSelectWeightedProportions(t *testing.T) {
	s := NewModelSelector()
	candidates := []config.CandidateModel{
		{ModelID: "a", ProviderID: "openai", Priority: 1, Weight: 300, Active: true},
		{ModelID: "b", ProviderID: "anthropic", Priority: 1, Weight: 100, Active: true},
	}
	counts := map[string]int{}
	for i := 0; i < 400; i++ {
		c, err := s.Select(candidates)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		counts[c.ModelID]++
	}
	if counts["a"] != 300 || counts["b"] != 100 {
		t.Errorf("weighted selection = %v, want a:300 b:100", counts)
	}
}

func TestSelectZeroWeightsDegradeToRoundRobin(t *testing.T) {
	s := NewModelSelector()
	candidates := []config.CandidateModel{
		{ModelID: "a", ProviderID: "openai", Priority: 1, Active: true},
		{ModelID: "b", ProviderID: "anthropic", Priority: 1, Active: true},
	}
	counts := map[string]int{}
	for i := 0; i < 10; i++ {
		c, err := s.Select(candidates)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		counts[c.ModelID]++
	}
	if counts["a"] != 5 || counts["b"] != 5 {
		t.Errorf("round-robin fallback = %v, want a:5 b:5", counts)
	}
}

func TestSelectForProvider(t *testing.T) {
	s := NewModelSelector()
	candidates := []config.CandidateModel{
		{ModelID: "gpt-4", ProviderID: "openai", Priority: 1, Weight: 100, Active: true},
		{ModelID: "claude-3-opus", ProviderID: "anthropic", Priority: 1, Weight: 100, Active: true},
	}
	c, err := s.SelectForProvider(candidates, "anthropic")
	if err != nil {
		t.Fatalf("SelectForProvider() error = %v", err)
	}
	if c.ModelID != "claude-3-opus" {
		t.Errorf("SelectForProvider() = %s, want claude-3-opus", c.ModelID)
	}

	if _, err := s.SelectForProvider(candidates, "missing"); !errors.Is(err, ErrNoActiveCandidates) {
		t.Errorf("SelectForProvider(missing) error = %v, want ErrNoActiveCandidates", err)
	}
}

func TestSelectByPriority(t *testing.T) {
	s := NewModelSelector()
	candidates := []config.CandidateModel{
		{ModelID: "fast", ProviderID: "azure", Priority: 1, Weight: 100, Active: true},
		{ModelID: "smart", ProviderID: "openai", Priority: 3, Weight: 100, Active: true},
	}
	c, err := s.SelectByPriority(candidates, 1)
	if err != nil {
		t.Fatalf("SelectByPriority() error = %v", err)
	}
	if c.ModelID != "fast" {
		t.Errorf("SelectByPriority(1) = %s, want fast", c.ModelID)
	}

	if _, err := s.SelectByPriority(candidates, 7); !errors.Is(err, ErrNoActiveCandidates) {
		t.Errorf("SelectByPriority(7) error = %v, want ErrNoActiveCandidates", err)
	}
}
