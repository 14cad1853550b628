// Package audit records every routing decision and its outcome. The records
// feed cost tracking and analytics downstream; recording never blocks or
// fails a request.
package audit

import (
	"context"
	"time"
)

// Record is one immutable decision+outcome entry.
type Record struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id,omitempty"`
	ProviderID   string    `json:"provider_id"`
	ModelID      string    `json:"model_id"`
	RuleID       string    `json:"rule_id,omitempty"`
	Method       string    `json:"method"`
	Reason       string    `json:"reason,omitempty"`
	Success      bool      `json:"success"`
	LatencyMs    int64     `json:"latency_ms"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Recorder is the audit sink consumed by the routing engine.
type Recorder interface {
	// Record appends one entry. Implementations must not mutate r.
	Record(ctx context.Context, r Record) error

	// Recent returns up to limit entries, most recent first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Close releases the sink's resources.
	Close() error
}

// NopRecorder discards everything. Used when auditing is disabled.
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

func (NopRecorder) Record(ctx context.Context, r Record) error { return nil }

func (NopRecorder) Recent(ctx context.Context, limit int) ([]Record, error) { return nil, nil }

func (NopRecorder) Close() error { return nil }
