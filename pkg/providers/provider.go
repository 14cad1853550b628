package providers

import "context"

// Provider is the narrow contract every backend adapter must satisfy. Any
// service exposing this contract can be routed to; the core never assumes a
// particular vendor protocol behind it.
//
// All methods accept a context.Context and must return promptly when it is
// cancelled. ChatCompletion and HealthCheck are the only suspension points
// the routing core crosses.
type Provider interface {
	// ChatCompletion executes one chat completion call against the backend.
	// Implementations are expected to be safe for concurrent use.
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck performs a lightweight probe against the backend. The
	// returned status always describes the probe outcome; the error mirrors
	// the probe failure so callers can classify it (timeouts in particular).
	HealthCheck(ctx context.Context) (HealthStatus, error)

	// CalculateCost converts token counts for a model into input and output
	// cost, in the provider's billing currency.
	CalculateCost(inputTokens, outputTokens int, modelID string) (inputCost, outputCost float64)

	// GetName returns the provider's registered identifier.
	GetName() string

	// GetRegion returns the deployment region of the backend ("" if unknown).
	// Used by region-aware load balancing.
	GetRegion() string
}
