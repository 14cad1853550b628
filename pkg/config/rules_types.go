package config

// Condition types for routing rules.
const (
	ConditionPattern    = "pattern"
	ConditionComplexity = "complexity"
	ConditionDSL        = "dsl"
)

// Action types for routing rules.
const (
	ActionUseProvider  = "use_provider"
	ActionUseModel     = "use_model"
	ActionSetPriority  = "set_priority"
	ActionBlockRequest = "block_request"
)

// RoutingRule describes one routing rule. Rules are evaluated in descending
// priority order; the first matching active rule wins.
type RoutingRule struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`

	// ConditionType is one of the Condition* constants.
	ConditionType string `yaml:"condition_type"`

	// Pattern is a substring matched case-insensitively against the request
	// content when ConditionType is "pattern".
	Pattern string `yaml:"pattern"`

	// MinComplexity and MaxComplexity bound the request's content length when
	// ConditionType is "complexity". Zero MaxComplexity means unbounded.
	MinComplexity int `yaml:"min_complexity"`
	MaxComplexity int `yaml:"max_complexity"`

	// Expression is evaluated when ConditionType is "dsl".
	Expression string `yaml:"expression"`

	// ActionType is one of the Action* constants; ActionValue is its argument
	// (a provider ID, model ID, or priority tier).
	ActionType  string `yaml:"action_type"`
	ActionValue string `yaml:"action_value"`

	Active bool `yaml:"active"`
}

// CandidateModel describes one routable model deployment.
type CandidateModel struct {
	ModelID    string `yaml:"model_id"`
	ProviderID string `yaml:"provider_id"`
	Priority   int    `yaml:"priority"`
	Weight     int    `yaml:"weight"`

	ContextWindow    int     `yaml:"context_window"`
	InputPricePer1K  float64 `yaml:"input_price_per_1k"`
	OutputPricePer1K float64 `yaml:"output_price_per_1k"`

	Active bool `yaml:"active"`
}

// RulesFile is the on-disk shape of the routing rules document.
type RulesFile struct {
	Rules  []RoutingRule    `yaml:"rules"`
	Models []CandidateModel `yaml:"models"`
}
