package balancer

import (
	"context"
	"testing"
	"time"
)

func TestAdjustWeightsSkipsThinData(t *testing.T) {
	c, _ := newTestCollector(t)
	a := NewAutoWeightAdjuster(c, nil)
	ctx := context.Background()

	// 9 requests is below the data threshold.
	for i := 0; i < 9; i++ {
		if err := c.RecordOutcome(ctx, "openai", true, 50*time.Millisecond, ""); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
	}

	adjustments, err := a.AdjustWeights(ctx, []string{"openai"})
	if err != nil {
		t.Fatalf("AdjustWeights() error = %v", err)
	}
	if len(adjustments) != 0 {
		t.Errorf("adjustments = %v, want none below 10 requests", adjustments)
	}
}

func TestAdjustWeightsIncreasesForGoodPerformance(t *testing.T) {
	c, _ := newTestCollector(t)
	a := NewAutoWeightAdjuster(c, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := c.RecordOutcome(ctx, "openai", true, 50*time.Millisecond, ""); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
	}

	adjustments, err := a.AdjustWeights(ctx, []string{"openai"})
	if err != nil {
		t.Fatalf("AdjustWeights() error = %v", err)
	}
	// score = (1.0 + 0.95)/2 > 0.8, so weight goes 100 -> 110.
	if got := adjustments["openai"]; got != 110 {
		t.Errorf("new weight = %d, want 110", got)
	}
	m, _ := c.Get(ctx, "openai")
	if m.Weight != 110 {
		t.Errorf("persisted weight = %d, want 110", m.Weight)
	}
}

func TestAdjustWeightsDecreasesAndClamps(t *testing.T) {
	c, _ := newTestCollector(t)
	a := NewAutoWeightAdjuster(c, nil)
	ctx := context.Background()

	// All failing and slow: score = (0 + 0)/2 < 0.5.
	for i := 0; i < 15; i++ {
		if err := c.RecordOutcome(ctx, "anthropic", false, 2*time.Second, "boom"); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
	}
	if err := c.SetWeight(ctx, "anthropic", 11); err != nil {
		t.Fatalf("SetWeight() error = %v", err)
	}

	adjustments, err := a.AdjustWeights(ctx, []string{"anthropic"})
	if err != nil {
		t.Fatalf("AdjustWeights() error = %v", err)
	}
	// 11 * 0.9 = 9, clamped to the floor of 10.
	if got := adjustments["anthropic"]; got != 10 {
		t.Errorf("new weight = %d, want clamped 10", got)
	}
}

func TestAdjustWeightsKeepsAveragePerformance(t *testing.T) {
	c, _ := newTestCollector(t)
	a := NewAutoWeightAdjuster(c, nil)
	ctx := context.Background()

	// Success rate 0.5 and ~500ms latency lands between the thresholds.
	for i := 0; i < 20; i++ {
		if err := c.RecordOutcome(ctx, "azure", i%2 == 0, 500*time.Millisecond, "err"); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
	}

	adjustments, err := a.AdjustWeights(ctx, []string{"azure"})
	if err != nil {
		t.Fatalf("AdjustWeights() error = %v", err)
	}
	if len(adjustments) != 0 {
		t.Errorf("adjustments = %v, want none for average performance", adjustments)
	}
}
