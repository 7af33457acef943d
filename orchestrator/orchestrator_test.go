package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/dag"
	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/provider/providertest"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/resilience"
	"github.com/kbukum/recipeflow/store"
	"github.com/kbukum/recipeflow/stream"
)

// countingStore counts saved executions.
type countingStore struct {
	store.Store
	saves atomic.Int32
}

func (c *countingStore) SaveExecution(ctx context.Context, e *recipe.Execution) error {
	c.saves.Add(1)
	return c.Store.SaveExecution(ctx, e)
}

type harness struct {
	orch  *Orchestrator
	store *countingStore
	fake  *providertest.Fake
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	st := &countingStore{Store: store.NewMemoryStore()}
	fake := providertest.New("fake")
	reg := provider.NewRegistry()
	reg.Set("fake", fake)
	resolver := capability.NewResolver(st, capability.WithGlobalDefaults(map[recipe.Capability]capability.Setting{
		recipe.CapabilityText:  {Provider: "fake", Model: "text-m"},
		recipe.CapabilityImage: {Provider: "fake", Model: "image-m"},
	}))

	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2}
	}
	var seq atomic.Int32
	orch := New(st, resolver, reg, append([]Option{
		WithConfig(cfg),
		WithIDGenerator(func() string { return fmt.Sprintf("exec-%d", seq.Add(1)) }),
	}, opts...)...)
	return &harness{orch: orch, store: st, fake: fake}
}

func linearRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		ID:    "article",
		Stage: "draft",
		Nodes: []recipe.Node{
			{
				ID: "outline", Type: recipe.NodeTextGeneration, OutputKey: "outline",
				Prompt:       "Outline {{topic}}",
				InputMapping: map[string]any{"topic": "external_input.topic"},
				Capability:   &recipe.CapabilityConfig{},
			},
			{
				ID: "cover", Type: recipe.NodeImageGeneration, OutputKey: "cover",
				Prompt:       "Cover for {{outline}}",
				InputMapping: map[string]any{"outline": "outline.output"},
				Capability:   &recipe.CapabilityConfig{Size: "1024x1024"},
				Dependencies: []string{"outline"},
			},
			{
				ID: "bundle", Type: recipe.NodeDataProcessing, OutputKey: "bundle",
				InputMapping: map[string]any{"text": "outline", "image": "cover.imageUrl"},
				Dependencies: []string{"cover"},
			},
		},
		Edges: []recipe.Edge{{From: "outline", To: "cover"}, {From: "cover", To: "bundle"}},
	}
}

func resultIDs(e *recipe.Execution) []string {
	ids := make([]string, len(e.Results))
	for i, r := range e.Results {
		ids[i] = r.NodeID
	}
	return ids
}

func TestRunLinearRecipe(t *testing.T) {
	h := newHarness(t, Config{})
	exec, err := h.orch.Run(context.Background(), RunRequest{
		Recipe:        linearRecipe(),
		ExternalInput: map[string]any{"topic": "gophers"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != recipe.ExecutionCompleted {
		t.Fatalf("expected completed, got %s (%+v)", exec.Status, exec.Context)
	}
	if got := resultIDs(exec); !reflect.DeepEqual(got, []string{"outline", "cover", "bundle"}) {
		t.Fatalf("unexpected result order %v", got)
	}
	last := exec.Results[2]
	if !reflect.DeepEqual(exec.FinalOutput, last.Output) {
		t.Errorf("final output %v differs from last node output %v", exec.FinalOutput, last.Output)
	}
	want := map[string]any{"text": "echo: Outline gophers", "image": "https://fake.test/image/2.png"}
	if !reflect.DeepEqual(exec.FinalOutput, want) {
		t.Errorf("expected final output %v, got %v", want, exec.FinalOutput)
	}
	if exec.Results[0].Model != "text-m" || exec.Results[1].Model != "image-m" {
		t.Errorf("resolved models not recorded: %+v", exec.Results)
	}
	if exec.CompletedAt == nil {
		t.Error("completedAt not set")
	}

	stored, err := h.store.GetExecution(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if stored.Status != recipe.ExecutionCompleted || len(stored.Results) != 3 {
		t.Errorf("stored execution out of date: %+v", stored)
	}
}

func TestRunRejectsCycleBeforeSideEffects(t *testing.T) {
	h := newHarness(t, Config{})
	r := linearRecipe()
	r.Edges = append(r.Edges, recipe.Edge{From: "bundle", To: "outline"})

	exec, err := h.orch.Run(context.Background(), RunRequest{Recipe: r})
	if exec != nil {
		t.Errorf("expected no execution, got %+v", exec)
	}
	if !errors.HasCode(err, errors.ErrCodeStructural) || !stderrors.Is(err, dag.ErrCycleDetected) {
		t.Fatalf("expected cycle structural error, got %v", err)
	}
	if h.store.saves.Load() != 0 || h.fake.CallCount() != 0 {
		t.Error("nothing may run or be stored for an invalid recipe")
	}
}

func TestRunSkipPolicy(t *testing.T) {
	h := newHarness(t, Config{})
	h.fake.FailTimes(1, stderrors.New("provider down"))
	r := linearRecipe()
	r.Nodes[0].ErrorPolicy = recipe.PolicySkip
	r.Nodes[0].DefaultOutput = "default outline"

	exec, err := h.orch.Run(context.Background(), RunRequest{Recipe: r})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != recipe.ExecutionCompleted {
		t.Fatalf("expected completed, got %s", exec.Status)
	}
	first := exec.Results[0]
	if first.Status != recipe.ResultSkipped || first.Output != "default outline" {
		t.Errorf("unexpected skipped result %+v", first)
	}
	if first.ErrorCode != string(errors.ErrCodeProvider) {
		t.Errorf("expected error code on skipped result, got %q", first.ErrorCode)
	}
	calls := h.fake.Calls()
	if calls[len(calls)-1].Prompt != "Cover for default outline" {
		t.Errorf("downstream did not receive default output: %q", calls[len(calls)-1].Prompt)
	}
}

func TestRunFailPolicy(t *testing.T) {
	h := newHarness(t, Config{})
	r := linearRecipe()
	r.Nodes[1].ErrorPolicy = recipe.PolicyFail
	h.fake.Without(recipe.CapabilityImage)

	exec, err := h.orch.Run(context.Background(), RunRequest{Recipe: r})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != recipe.ExecutionFailed {
		t.Fatalf("expected failed, got %s", exec.Status)
	}
	if exec.Context.FailedNodeID != "cover" || exec.Context.ErrorCode != string(errors.ErrCodeUnsupported) {
		t.Errorf("unexpected context %+v", exec.Context)
	}
	if exec.Context.Error == "" {
		t.Error("expected error message on execution")
	}
	if got := resultIDs(exec); !reflect.DeepEqual(got, []string{"outline", "cover"}) {
		t.Errorf("nodes after the failure must not run, got %v", got)
	}
	if exec.FinalOutput != nil {
		t.Errorf("failed run has final output %v", exec.FinalOutput)
	}
}

func TestRunRetryPolicy(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		wantStatus recipe.ExecutionStatus
		wantTries  int
	}{
		{"recovers", 2, 2, recipe.ExecutionCompleted, 3},
		{"exhausted", 3, 1, recipe.ExecutionFailed, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.fake.FailTimes(tt.failures, stderrors.New("flaky"))
			r := linearRecipe()
			r.Nodes[0].ErrorPolicy = recipe.PolicyRetry
			r.Nodes[0].MaxRetries = tt.maxRetries

			exec, err := h.orch.Run(context.Background(), RunRequest{Recipe: r})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if exec.Status != tt.wantStatus {
				t.Fatalf("expected %s, got %s (%+v)", tt.wantStatus, exec.Status, exec.Context)
			}
			if got := exec.Results[0].Attempts; got != tt.wantTries {
				t.Errorf("expected %d attempts, got %d", tt.wantTries, got)
			}
			if len(exec.Results) == 0 || exec.Results[0].NodeID != "outline" {
				t.Fatalf("unexpected results %v", resultIDs(exec))
			}
			if tt.wantStatus == recipe.ExecutionFailed {
				if exec.Context.FailedNodeID != "outline" || !strings.Contains(exec.Context.Error, "after 2 attempts") {
					t.Errorf("unexpected context %+v", exec.Context)
				}
			}
		})
	}
}

func TestRunRetryDoesNotRepeatUnsupported(t *testing.T) {
	h := newHarness(t, Config{})
	h.fake.Without(recipe.CapabilityText)
	r := linearRecipe()
	r.Nodes[0].ErrorPolicy = recipe.PolicyRetry
	r.Nodes[0].MaxRetries = 5

	exec, err := h.orch.Run(context.Background(), RunRequest{Recipe: r})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != recipe.ExecutionFailed || h.fake.CallCount() != 1 {
		t.Errorf("expected a single failed attempt, got %s after %d calls", exec.Status, h.fake.CallCount())
	}
}

func TestRunNoCapabilityConfigured(t *testing.T) {
	h := newHarness(t, Config{})
	r := &recipe.Recipe{ID: "clip", Nodes: []recipe.Node{{
		ID: "clip", Type: recipe.NodeVideoGeneration, OutputKey: "clip", Prompt: "waves",
		Capability: &recipe.CapabilityConfig{},
	}}}

	exec, err := h.orch.Run(context.Background(), RunRequest{Recipe: r})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != recipe.ExecutionFailed || exec.Context.ErrorCode != string(errors.ErrCodeNoCapability) {
		t.Errorf("expected NO_CAPABILITY_CONFIGURED failure, got %s %+v", exec.Status, exec.Context)
	}
}

func TestRunStrictInputs(t *testing.T) {
	r := linearRecipe()
	r.Nodes[1].InputMapping = map[string]any{"outline": "bundle.output"}

	t.Run("lenient", func(t *testing.T) {
		exec, err := newHarness(t, Config{}).orch.Run(context.Background(), RunRequest{Recipe: r})
		if err != nil || exec.Status != recipe.ExecutionCompleted {
			t.Fatalf("expected completed, got %v, %v", exec, err)
		}
		if exec.Results[1].Input.(map[string]any)["outline"] != nil {
			t.Errorf("expected nil for unresolved input")
		}
	})
	t.Run("strict", func(t *testing.T) {
		exec, err := newHarness(t, Config{StrictInputs: true}).orch.Run(context.Background(), RunRequest{Recipe: r})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if exec.Status != recipe.ExecutionFailed || exec.Context.ErrorCode != string(errors.ErrCodeResolution) {
			t.Errorf("expected RESOLUTION_ERROR, got %s %+v", exec.Status, exec.Context)
		}
	})
}

func TestRunByRecipeID(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	if err := h.store.SaveRecipe(ctx, linearRecipe()); err != nil {
		t.Fatalf("SaveRecipe failed: %v", err)
	}
	exec, err := h.orch.Run(ctx, RunRequest{RecipeID: "article", ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.RecipeID != "article" || exec.ProjectID != "p1" || exec.Stage != "draft" {
		t.Errorf("unexpected execution %+v", exec)
	}

	if _, err := h.orch.Run(ctx, RunRequest{RecipeID: "missing"}); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
	if _, err := h.orch.Run(ctx, RunRequest{}); !errors.HasCode(err, errors.ErrCodeMissingField) {
		t.Errorf("expected MISSING_FIELD, got %v", err)
	}
}

func TestRunUsesProjectOverride(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	special := providertest.New("special").WithText("from override")
	h.orch.registry.Set("special", special)
	if err := h.orch.resolver.WriteOverride(ctx, "p1", "draft", recipe.CapabilityText, capability.Setting{Provider: "special", Model: "big"}); err != nil {
		t.Fatalf("WriteOverride failed: %v", err)
	}

	exec, err := h.orch.Run(ctx, RunRequest{Recipe: linearRecipe(), ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if r := exec.Results[0]; r.Provider != "special" || r.Model != "big" || r.Output != "from override" {
		t.Errorf("override not applied: %+v", r)
	}
}

func TestCancelStopsBeforeNextNode(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	h := newHarness(t, Config{}, WithClock(func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Minute)
	}))
	var cancelled *recipe.Execution
	h.fake.WithTextFunc(func(prompt string) (string, error) {
		var err error
		if cancelled, err = h.orch.Cancel(context.Background(), "exec-1"); err != nil {
			t.Errorf("Cancel failed: %v", err)
		}
		return "outline", nil
	})

	exec, err := h.orch.Run(context.Background(), RunRequest{Recipe: linearRecipe()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != recipe.ExecutionCancelled || exec.CancelledAt == nil {
		t.Fatalf("expected cancelled with timestamp, got %s", exec.Status)
	}
	if cancelled == nil || !exec.CancelledAt.Equal(*cancelled.CancelledAt) || !exec.CompletedAt.Equal(*cancelled.CompletedAt) {
		t.Errorf("cancellation timestamps changed after Cancel: got cancelled=%v completed=%v", exec.CancelledAt, exec.CompletedAt)
	}
	if got := resultIDs(exec); !reflect.DeepEqual(got, []string{"outline"}) {
		t.Errorf("in-flight node should finish and nothing else run, got %v", got)
	}
	if h.fake.CallCount() != 1 {
		t.Errorf("expected one provider call, got %d", h.fake.CallCount())
	}

	if _, err := h.orch.Cancel(context.Background(), exec.ID); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("expected CONFLICT cancelling a terminal execution, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	h.fake.WithTextFunc(func(string) (string, error) {
		cancel()
		return "outline", nil
	})

	exec, err := h.orch.Run(ctx, RunRequest{Recipe: linearRecipe()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != recipe.ExecutionCancelled {
		t.Errorf("expected cancelled, got %s", exec.Status)
	}
}

func TestRetryExecution(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.fake.FailTimes(1, stderrors.New("boom"))

	first, err := h.orch.Run(ctx, RunRequest{Recipe: linearRecipe(), ExternalInput: map[string]any{"topic": "retry"}})
	if err != nil || first.Status != recipe.ExecutionFailed {
		t.Fatalf("expected failed first run, got %v, %v", first, err)
	}

	second, err := h.orch.Retry(ctx, first.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if second.ID == first.ID || second.RetryOf != first.ID {
		t.Errorf("expected a new execution retrying %s, got %+v", first.ID, second)
	}
	if second.Status != recipe.ExecutionCompleted {
		t.Errorf("expected completed retry, got %s", second.Status)
	}
	if !reflect.DeepEqual(second.ExternalInput, first.ExternalInput) {
		t.Errorf("external input not carried over")
	}

	old, _ := h.store.GetExecution(ctx, first.ID)
	if old.Status != recipe.ExecutionFailed {
		t.Errorf("original execution was modified: %s", old.Status)
	}

	if _, err := h.orch.Retry(ctx, second.ID); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("expected CONFLICT retrying a completed execution, got %v", err)
	}
}

func diamondRecipe() *recipe.Recipe {
	text := func(id string, mapping map[string]any) recipe.Node {
		return recipe.Node{ID: id, Type: recipe.NodeTextGeneration, OutputKey: id, Prompt: id, InputMapping: mapping, Capability: &recipe.CapabilityConfig{}}
	}
	return &recipe.Recipe{
		ID: "diamond",
		Nodes: []recipe.Node{
			text("a", nil),
			text("b", map[string]any{"from": "a"}),
			text("c", map[string]any{"from": "a"}),
			{ID: "d", Type: recipe.NodeDataProcessing, OutputKey: "d",
				InputMapping: map[string]any{"b": "b", "c": "c"}},
		},
		Edges: []recipe.Edge{{From: "a", To: "b"}, {From: "a", To: "c"}, {From: "b", To: "d"}, {From: "c", To: "d"}},
	}
}

func TestRunParallelLevels(t *testing.T) {
	h := newHarness(t, Config{Parallel: true, MaxParallel: 2})

	var mu sync.Mutex
	active, peak := 0, 0
	h.fake.WithTextFunc(func(prompt string) (string, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return "out-" + prompt, nil
	})

	exec, err := h.orch.Run(context.Background(), RunRequest{Recipe: diamondRecipe()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != recipe.ExecutionCompleted {
		t.Fatalf("expected completed, got %s %+v", exec.Status, exec.Context)
	}
	if got := resultIDs(exec); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("results must follow level order, got %v", got)
	}
	if peak != 2 {
		t.Errorf("expected b and c to overlap, peak concurrency %d", peak)
	}
	want := map[string]any{"b": "out-b", "c": "out-c"}
	if !reflect.DeepEqual(exec.FinalOutput, want) {
		t.Errorf("unexpected final output %v", exec.FinalOutput)
	}
}

func TestRunParallelFailureKeepsLevelResults(t *testing.T) {
	h := newHarness(t, Config{Parallel: true})
	h.fake.WithTextFunc(func(prompt string) (string, error) {
		if prompt == "b" {
			return "", stderrors.New("b broke")
		}
		return prompt, nil
	})

	exec, err := h.orch.Run(context.Background(), RunRequest{Recipe: diamondRecipe()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != recipe.ExecutionFailed || exec.Context.FailedNodeID != "b" {
		t.Fatalf("expected b to fail the run, got %s %+v", exec.Status, exec.Context)
	}
	if got := resultIDs(exec); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected results %v", got)
	}
}

func TestRunStreamsRecords(t *testing.T) {
	h := newHarness(t, Config{})
	h.fake.WithChunks(`[{"title":"one"},`, `{"title":"two"}]`)
	r := &recipe.Recipe{ID: "ideas", Nodes: []recipe.Node{{
		ID: "ideas", Type: recipe.NodeTextGeneration, OutputKey: "ideas", Prompt: "ideas",
		Capability: &recipe.CapabilityConfig{Stream: true},
		Output:     &recipe.OutputSpec{Format: recipe.FormatJSONArray, RequiredFields: []string{"title"}},
	}}}

	var seen []string
	exec, err := h.orch.Run(context.Background(), RunRequest{
		Recipe: r,
		OnRecord: func(nodeID string, attempt int, rec stream.Record) {
			seen = append(seen, fmt.Sprintf("%s:%d", nodeID, rec.Index))
		},
	})
	if err != nil || exec.Status != recipe.ExecutionCompleted {
		t.Fatalf("expected completed, got %v, %v", exec, err)
	}
	if !slices.Equal(seen, []string{"ideas:0", "ideas:1"}) {
		t.Errorf("unexpected records %v", seen)
	}
}

func TestRunStreamsRecordsPerAttempt(t *testing.T) {
	h := newHarness(t, Config{})
	h.fake.WithChunks(`[{"title":"one"},`, `{"title":"two"}`, `]`).
		CutStreamTimes(1, errors.Provider("fake", fmt.Errorf("connection reset")))
	r := &recipe.Recipe{ID: "ideas", Nodes: []recipe.Node{{
		ID: "ideas", Type: recipe.NodeTextGeneration, OutputKey: "ideas", Prompt: "ideas",
		ErrorPolicy: recipe.PolicyRetry, MaxRetries: 1,
		Capability:  &recipe.CapabilityConfig{Stream: true},
		Output:      &recipe.OutputSpec{Format: recipe.FormatJSONArray, RequiredFields: []string{"title"}},
	}}}

	var seen []string
	exec, err := h.orch.Run(context.Background(), RunRequest{
		Recipe: r,
		OnRecord: func(nodeID string, attempt int, rec stream.Record) {
			seen = append(seen, fmt.Sprintf("%d:%d", attempt, rec.Index))
		},
	})
	if err != nil || exec.Status != recipe.ExecutionCompleted {
		t.Fatalf("expected completed, got %v, %v", exec, err)
	}
	want := []string{"1:0", "1:1", "2:0", "2:1"}
	if !slices.Equal(seen, want) {
		t.Errorf("expected %v, got %v", want, seen)
	}
	if got := exec.Results[0].Output.([]any); len(got) != 2 {
		t.Errorf("expected output from the successful attempt only, got %v", got)
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.MaxParallel != DefaultMaxParallel || cfg.Retry.MaxAttempts != 3 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	cfg.Retry.Jitter = 2
	if err := cfg.Validate(); err == nil {
		t.Error("expected jitter to be rejected")
	}
}
