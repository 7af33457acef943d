// Package store defines the document store the engine consumes and an
// in-memory implementation.
package store

import (
	"context"
	"time"

	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/recipe"
)

// Store persists recipes, executions and capability configuration.
// Updates are last-write-wins. Missing documents are NOT_FOUND errors;
// missing capability settings are (nil, nil).
type Store interface {
	GetRecipe(ctx context.Context, id string) (*recipe.Recipe, error)
	SaveRecipe(ctx context.Context, r *recipe.Recipe) error

	SaveExecution(ctx context.Context, e *recipe.Execution) error
	GetExecution(ctx context.Context, id string) (*recipe.Execution, error)
	// UpdateExecution applies patch atomically and returns the result.
	UpdateExecution(ctx context.Context, id string, patch ExecutionPatch) (*recipe.Execution, error)

	capability.ConfigSource
	capability.OverrideWriter
	SetStageDefault(ctx context.Context, stage string, c recipe.Capability, s capability.Setting) error
}

// ExecutionPatch is a partial update of an Execution. Nil fields are left
// unchanged.
type ExecutionPatch struct {
	Status        *recipe.ExecutionStatus  `json:"status,omitempty"`
	AppendResults []recipe.ActionResult    `json:"appendResults,omitempty"`
	FinalOutput   any                      `json:"finalOutput,omitempty"`
	Context       *recipe.ExecutionContext `json:"executionContext,omitempty"`
	CompletedAt   *time.Time               `json:"completedAt,omitempty"`
	CancelledAt   *time.Time               `json:"cancelledAt,omitempty"`
}

// Finish builds the patch that moves an execution to a terminal status.
func Finish(status recipe.ExecutionStatus, at time.Time) ExecutionPatch {
	p := ExecutionPatch{Status: &status, CompletedAt: &at}
	if status == recipe.ExecutionCancelled {
		p.CancelledAt = &at
	}
	return p
}

// Append builds the patch that records one node result.
func Append(r recipe.ActionResult) ExecutionPatch {
	return ExecutionPatch{AppendResults: []recipe.ActionResult{r}}
}

// Apply mutates e. A terminal status is set exactly once; any later status
// patch, even one repeating the same status, fails with CONFLICT and leaves
// e untouched.
func (p ExecutionPatch) Apply(e *recipe.Execution) error {
	if p.Status != nil {
		if e.Status.Terminal() {
			return errors.Conflict("execution " + e.ID + " is already " + string(e.Status)).
				WithDetail("execution_id", e.ID).
				WithDetail("status", string(e.Status))
		}
		e.Status = *p.Status
	}
	e.Results = append(e.Results, p.AppendResults...)
	if p.FinalOutput != nil {
		e.FinalOutput = p.FinalOutput
	}
	if p.Context != nil {
		e.Context = *p.Context
	}
	if p.CompletedAt != nil {
		e.CompletedAt = p.CompletedAt
	}
	if p.CancelledAt != nil {
		e.CancelledAt = p.CancelledAt
	}
	return nil
}
