package action

import (
	"context"

	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/stream"
)

// Action executes one node type.
type Action interface {
	Type() recipe.NodeType
	Execute(ctx context.Context, req Request) (Output, error)
}

// Request is the input of a single Action execution.
type Request struct {
	Node  *recipe.Node
	Input map[string]any
	// Prompt is the node prompt rendered against Input.
	Prompt string
	// Provider is nil for data_processing nodes.
	Provider provider.Capability
	Model    string
	// Scope groups side artifacts of one run, usually the execution id.
	Scope string
	// OnRecord observes records decoded from structured text output.
	OnRecord func(stream.Record)
}

// Output is what an Action produced.
type Output struct {
	Value any
	// Model is the model the provider reports, when it differs from the
	// requested one.
	Model string
}

// Call is one dispatch of a node.
type Call struct {
	Node     *recipe.Node
	Input    map[string]any
	Provider provider.Capability
	Model    string
	Scope    string
	OnRecord func(stream.Record)
}
