// Package storetest holds behavior tests every store.Store implementation
// must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/store"
)

// Run exercises s against the Store contract. newStore must return an
// empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	t.Run("recipes", func(t *testing.T) { testRecipes(t, newStore(t)) })
	t.Run("executions", func(t *testing.T) { testExecutions(t, newStore(t)) })
	t.Run("terminal status is set once", func(t *testing.T) { testTerminalOnce(t, newStore(t)) })
	t.Run("capability settings", func(t *testing.T) { testCapabilitySettings(t, newStore(t)) })
}

func testRecipes(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.GetRecipe(ctx, "missing"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	r := &recipe.Recipe{
		ID:    "blog",
		Stage: "draft",
		Nodes: []recipe.Node{{ID: "a", Type: recipe.NodeDataProcessing, OutputKey: "a"}},
	}
	if err := s.SaveRecipe(ctx, r); err != nil {
		t.Fatalf("SaveRecipe failed: %v", err)
	}
	got, err := s.GetRecipe(ctx, "blog")
	if err != nil {
		t.Fatalf("GetRecipe failed: %v", err)
	}
	if got.ID != "blog" || got.Stage != "draft" || len(got.Nodes) != 1 || got.Nodes[0].ID != "a" {
		t.Errorf("unexpected recipe %+v", got)
	}
}

func testExecutions(t *testing.T, s store.Store) {
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Millisecond)
	e := &recipe.Execution{
		ID:            "exec-1",
		RecipeID:      "blog",
		Status:        recipe.ExecutionRunning,
		ExternalInput: map[string]any{"topic": "go"},
		StartedAt:     started,
	}
	if err := s.SaveExecution(ctx, e); err != nil {
		t.Fatalf("SaveExecution failed: %v", err)
	}

	for _, id := range []string{"a", "b"} {
		if _, err := s.UpdateExecution(ctx, e.ID, store.Append(recipe.ActionResult{NodeID: id, Status: recipe.ResultCompleted})); err != nil {
			t.Fatalf("append %s failed: %v", id, err)
		}
	}

	done, err := s.UpdateExecution(ctx, e.ID, store.ExecutionPatch{FinalOutput: "final"})
	if err != nil {
		t.Fatalf("UpdateExecution failed: %v", err)
	}
	if done.FinalOutput != "final" {
		t.Errorf("expected final output, got %v", done.FinalOutput)
	}

	got, err := s.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if len(got.Results) != 2 || got.Results[0].NodeID != "a" || got.Results[1].NodeID != "b" {
		t.Errorf("expected ordered results a,b, got %+v", got.Results)
	}
	if got.ExternalInput["topic"] != "go" || !got.StartedAt.Equal(started) {
		t.Errorf("unexpected execution %+v", got)
	}

	if _, err := s.UpdateExecution(ctx, "missing", store.ExecutionPatch{}); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND for missing execution, got %v", err)
	}
}

func testTerminalOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.SaveExecution(ctx, &recipe.Execution{ID: "exec-2", Status: recipe.ExecutionRunning}); err != nil {
		t.Fatalf("SaveExecution failed: %v", err)
	}
	at := time.Now().UTC()
	got, err := s.UpdateExecution(ctx, "exec-2", store.Finish(recipe.ExecutionCancelled, at))
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if got.Status != recipe.ExecutionCancelled || got.CancelledAt == nil {
		t.Errorf("expected cancelled with timestamp, got %+v", got)
	}

	_, err = s.UpdateExecution(ctx, "exec-2", store.Finish(recipe.ExecutionCompleted, at))
	if !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	got, _ = s.GetExecution(ctx, "exec-2")
	if got.Status != recipe.ExecutionCancelled {
		t.Errorf("terminal status changed to %s", got.Status)
	}
}

func testCapabilitySettings(t *testing.T, s store.Store) {
	ctx := context.Background()
	if got, err := s.GetCapabilityOverride(ctx, "p", "draft", recipe.CapabilityText); err != nil || got != nil {
		t.Fatalf("expected no override, got %v, %v", got, err)
	}
	if got, err := s.GetStageDefault(ctx, "draft", recipe.CapabilityText); err != nil || got != nil {
		t.Fatalf("expected no stage default, got %v, %v", got, err)
	}

	if err := s.SetCapabilityOverride(ctx, "p", "draft", recipe.CapabilityText, capability.Setting{Provider: "x", Model: "m"}); err != nil {
		t.Fatalf("SetCapabilityOverride failed: %v", err)
	}
	if err := s.SetStageDefault(ctx, "draft", recipe.CapabilityText, capability.Setting{Provider: "y"}); err != nil {
		t.Fatalf("SetStageDefault failed: %v", err)
	}

	o, err := s.GetCapabilityOverride(ctx, "p", "draft", recipe.CapabilityText)
	if err != nil || o == nil || o.Provider != "x" || o.Model != "m" {
		t.Errorf("unexpected override %+v, %v", o, err)
	}
	if o, _ := s.GetCapabilityOverride(ctx, "p", "final", recipe.CapabilityText); o != nil {
		t.Errorf("override leaked across stages: %+v", o)
	}
	d, err := s.GetStageDefault(ctx, "draft", recipe.CapabilityText)
	if err != nil || d == nil || d.Provider != "y" {
		t.Errorf("unexpected stage default %+v, %v", d, err)
	}

	if err := s.DeleteCapabilityOverride(ctx, "p", "draft", recipe.CapabilityText); err != nil {
		t.Fatalf("DeleteCapabilityOverride failed: %v", err)
	}
	if o, _ := s.GetCapabilityOverride(ctx, "p", "draft", recipe.CapabilityText); o != nil {
		t.Errorf("expected override removed, got %+v", o)
	}
}
