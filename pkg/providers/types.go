package providers

import (
	"errors"
	"strings"
	"time"
)

// Message is a single conversation turn in a chat request.
type Message struct {
	// Role is the author of the message ("system", "user", "assistant").
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// ChatRequest is the provider-agnostic chat completion request shape.
// The caller (HTTP layer, out of scope here) has already deserialized the
// inbound request into this form before routing begins.
type ChatRequest struct {
	// Messages is the conversation history, oldest first.
	Messages []Message `json:"messages"`

	// Model is the requested model identifier. May be empty, in which case
	// the routing engine selects one.
	Model string `json:"model,omitempty"`

	// Temperature controls sampling randomness (provider-interpreted).
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Stop contains optional stop sequences.
	Stop []string `json:"stop,omitempty"`
}

// ContentText returns the concatenated text of all messages, separated by
// single spaces. Rule evaluation matches against this string.
func (r *ChatRequest) ContentText() string {
	parts := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

// Usage reports token consumption for a completed call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ChatResponse is the provider-agnostic chat completion response.
type ChatResponse struct {
	// ID is the provider-assigned response identifier.
	ID string `json:"id"`

	// Model is the model that actually served the request.
	Model string `json:"model"`

	// Content is the completion text.
	Content string `json:"content"`

	// Usage reports token counts for cost accounting.
	Usage Usage `json:"usage"`

	// FinishReason indicates why generation stopped ("stop", "length", ...).
	FinishReason string `json:"finish_reason,omitempty"`
}

// ErrHealthCheckTimeout classifies a health probe that ran past its deadline.
var ErrHealthCheckTimeout = errors.New("health check timeout")

// HealthStatus is the result of a single health probe against a provider.
type HealthStatus struct {
	// Healthy reports whether the probe succeeded.
	Healthy bool `json:"healthy"`

	// LatencyMs is the probe round-trip time in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// ErrorMessage carries the probe error, if any, for diagnostics.
	ErrorMessage string `json:"error_message,omitempty"`

	// CheckedAt is when the probe completed.
	CheckedAt time.Time `json:"checked_at"`
}
