package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/store"
	"github.com/kbukum/recipeflow/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return store.NewMemoryStore() })
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := &recipe.Execution{ID: "e", Status: recipe.ExecutionRunning}
	_ = s.SaveExecution(ctx, e)
	e.Results = append(e.Results, recipe.ActionResult{NodeID: "leak"})

	got, _ := s.GetExecution(ctx, "e")
	if len(got.Results) != 0 {
		t.Fatal("caller mutation leaked into store")
	}
	got.Results = append(got.Results, recipe.ActionResult{NodeID: "leak"})
	again, _ := s.GetExecution(ctx, "e")
	if len(again.Results) != 0 {
		t.Fatal("returned value shares state with store")
	}
}

func TestPatchApply(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		start   recipe.ExecutionStatus
		patch   store.ExecutionPatch
		want    recipe.ExecutionStatus
		wantErr bool
	}{
		{"running to completed", recipe.ExecutionRunning, store.Finish(recipe.ExecutionCompleted, at), recipe.ExecutionCompleted, false},
		{"running to cancelled", recipe.ExecutionRunning, store.Finish(recipe.ExecutionCancelled, at), recipe.ExecutionCancelled, false},
		{"failed to completed", recipe.ExecutionFailed, store.Finish(recipe.ExecutionCompleted, at), recipe.ExecutionFailed, true},
		{"same terminal status", recipe.ExecutionFailed, store.Finish(recipe.ExecutionFailed, at), recipe.ExecutionFailed, true},
		{"cancelled twice", recipe.ExecutionCancelled, store.Finish(recipe.ExecutionCancelled, at), recipe.ExecutionCancelled, true},
		{"append after cancel", recipe.ExecutionCancelled, store.Append(recipe.ActionResult{NodeID: "n"}), recipe.ExecutionCancelled, false},
	}
	earlier := at.Add(-time.Hour)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &recipe.Execution{ID: "e", Status: tt.start}
			if tt.start.Terminal() {
				e.CompletedAt, e.CancelledAt = &earlier, &earlier
			}
			err := tt.patch.Apply(e)
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
			if e.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, e.Status)
			}
			if tt.wantErr && (!e.CompletedAt.Equal(earlier) || !e.CancelledAt.Equal(earlier)) {
				t.Errorf("rejected patch changed timestamps: completed=%v cancelled=%v", e.CompletedAt, e.CancelledAt)
			}
		})
	}
}

func TestMemoryStoreAsResolverSource(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_ = s.SetStageDefault(ctx, "draft", recipe.CapabilityImage, capability.Setting{Provider: "img", Model: "v2"})

	r := capability.NewResolver(s)
	if err := r.WriteOverride(ctx, "proj", "draft", recipe.CapabilityImage, capability.Setting{Provider: "proj-img"}); err != nil {
		t.Fatalf("WriteOverride failed: %v", err)
	}
	got, err := r.Resolve(ctx, "proj", "draft", recipe.CapabilityImage)
	if err != nil || got.Source != capability.SourceProjectOverride {
		t.Fatalf("expected project override, got %+v, %v", got, err)
	}
	if err := r.DeleteOverride(ctx, "proj", "draft", recipe.CapabilityImage); err != nil {
		t.Fatalf("DeleteOverride failed: %v", err)
	}
	got, _ = r.Resolve(ctx, "proj", "draft", recipe.CapabilityImage)
	if got.Source != capability.SourceStageDefault || got.Model != "v2" {
		t.Errorf("expected stage default, got %+v", got)
	}
}
