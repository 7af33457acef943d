package recipe

import "time"

// CapabilityConfig is a node's hint for how its capability should be called.
// The resolved provider always wins; Model only applies when the hint names
// the same provider the resolver picked.
type CapabilityConfig struct {
	Provider    string   `json:"provider,omitempty" yaml:"provider,omitempty" validate:"omitempty,identifier"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty" validate:"gte=0"`
	Size        string   `json:"size,omitempty" yaml:"size,omitempty"`
	// Duration is the requested clip length in seconds for video generation.
	Duration int `json:"duration,omitempty" yaml:"duration,omitempty" validate:"gte=0"`
	// Stream asks for incremental delivery when the provider supports it.
	Stream bool `json:"stream,omitempty" yaml:"stream,omitempty"`
}

// OutputSpec describes the structured output a text node must produce.
type OutputSpec struct {
	Format OutputFormat `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=text json json_array"`
	// RequiredFields every decoded record must carry.
	RequiredFields []string `json:"requiredFields,omitempty" yaml:"requiredFields,omitempty"`
	// ExpectedCount drives the streaming progress estimate.
	ExpectedCount int `json:"expectedCount,omitempty" yaml:"expectedCount,omitempty" validate:"gte=0"`
}

// Node is one step of a recipe.
type Node struct {
	ID        string   `json:"id" yaml:"id" validate:"required,identifier"`
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	Type      NodeType `json:"type" yaml:"type" validate:"required,oneof=text_generation image_generation video_generation data_processing"`
	OutputKey string   `json:"outputKey,omitempty" yaml:"outputKey,omitempty" validate:"omitempty,identifier"`
	// InputMapping maps parameter names to source expressions or literals.
	InputMapping map[string]any    `json:"inputMapping,omitempty" yaml:"inputMapping,omitempty"`
	Prompt       string            `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	SystemPrompt string            `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	Capability   *CapabilityConfig `json:"capabilityConfig,omitempty" yaml:"capabilityConfig,omitempty"`
	ErrorPolicy  ErrorPolicy       `json:"errorPolicy,omitempty" yaml:"errorPolicy,omitempty" validate:"omitempty,oneof=fail skip retry"`
	// DefaultOutput substitutes the output of a skipped node.
	DefaultOutput any `json:"defaultOutput,omitempty" yaml:"defaultOutput,omitempty"`
	// Dependencies are declared upstream node ids; each must be backed by an edge.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// MaxRetries bounds attempts for the retry policy; 0 uses the engine default.
	MaxRetries int `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty" validate:"gte=0,lte=10"`
	// TimeoutMs bounds one provider call; 0 uses the engine default.
	TimeoutMs int            `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty" validate:"gte=0"`
	Output    *OutputSpec    `json:"output,omitempty" yaml:"output,omitempty"`
	Config    map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Key returns the key the node's output is stored under.
func (n *Node) Key() string {
	if n.OutputKey != "" {
		return n.OutputKey
	}
	return n.ID
}

// Timeout returns the per-call timeout, or fallback when unset.
func (n *Node) Timeout(fallback time.Duration) time.Duration {
	if n.TimeoutMs > 0 {
		return time.Duration(n.TimeoutMs) * time.Millisecond
	}
	return fallback
}

// Policy returns the effective error policy.
func (n *Node) Policy() ErrorPolicy {
	return n.ErrorPolicy.OrDefault()
}

// Edge is a dependency: To runs after From.
type Edge struct {
	From string `json:"from" yaml:"from" validate:"required"`
	To   string `json:"to" yaml:"to" validate:"required"`
}
