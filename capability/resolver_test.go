package capability

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/provider/providertest"
	"github.com/kbukum/recipeflow/recipe"
)

type overrideKey struct {
	project, stage string
	c              recipe.Capability
}

type stageKey struct {
	stage string
	c     recipe.Capability
}

// mapSource is an in-memory ConfigSource and OverrideWriter that counts lookups.
type mapSource struct {
	mu        sync.Mutex
	overrides map[overrideKey]Setting
	stages    map[stageKey]Setting
	lookups   int
	err       error
}

func newMapSource() *mapSource {
	return &mapSource{overrides: map[overrideKey]Setting{}, stages: map[stageKey]Setting{}}
}

func (m *mapSource) GetCapabilityOverride(_ context.Context, project, stage string, c recipe.Capability) (*Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.overrides[overrideKey{project, stage, c}]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *mapSource) GetStageDefault(_ context.Context, stage string, c recipe.Capability) (*Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if s, ok := m.stages[stageKey{stage, c}]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *mapSource) SetCapabilityOverride(_ context.Context, project, stage string, c recipe.Capability, s Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[overrideKey{project, stage, c}] = s
	return nil
}

func (m *mapSource) DeleteCapabilityOverride(_ context.Context, project, stage string, c recipe.Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, overrideKey{project, stage, c})
	return nil
}

func (m *mapSource) lookupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

func TestResolvePrecedence(t *testing.T) {
	ctx := context.Background()
	src := newMapSource()
	src.stages[stageKey{"draft", recipe.CapabilityText}] = Setting{Provider: "stage-p", Model: "stage-m"}
	r := NewResolver(src, WithGlobalDefaults(map[recipe.Capability]Setting{
		recipe.CapabilityText: {Provider: "global-p", Model: "global-m"},
	}))

	if err := r.WriteOverride(ctx, "proj", "draft", recipe.CapabilityText, Setting{Provider: "proj-p", Model: "proj-m"}); err != nil {
		t.Fatalf("WriteOverride failed: %v", err)
	}

	steps := []struct {
		name   string
		mutate func()
		want   Resolution
	}{
		{"override wins", func() {}, Resolution{"proj-p", "proj-m", SourceProjectOverride}},
		{"stage default after override removed", func() {
			if err := r.DeleteOverride(ctx, "proj", "draft", recipe.CapabilityText); err != nil {
				t.Fatalf("DeleteOverride failed: %v", err)
			}
		}, Resolution{"stage-p", "stage-m", SourceStageDefault}},
		{"global default after stage removed", func() {
			delete(src.stages, stageKey{"draft", recipe.CapabilityText})
			r.InvalidateStage("draft")
		}, Resolution{"global-p", "global-m", SourceGlobalDefault}},
	}
	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			step.mutate()
			got, err := r.Resolve(ctx, "proj", "draft", recipe.CapabilityText)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if got != step.want {
				t.Errorf("expected %+v, got %+v", step.want, got)
			}
		})
	}
}

func TestResolveNoCapabilityConfigured(t *testing.T) {
	r := NewResolver(newMapSource())
	_, err := r.Resolve(context.Background(), "proj", "draft", recipe.CapabilityVideo)
	if !errors.HasCode(err, errors.ErrCodeNoCapability) {
		t.Fatalf("expected NO_CAPABILITY_CONFIGURED, got %v", err)
	}
}

func TestResolveBuiltinDefaults(t *testing.T) {
	r := NewResolver(nil)
	got, err := r.Resolve(context.Background(), "", "", recipe.CapabilityText)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Source != SourceGlobalDefault || got.Provider != "ollama" {
		t.Errorf("unexpected resolution %+v", got)
	}
}

func TestResolveCaches(t *testing.T) {
	ctx := context.Background()
	src := newMapSource()
	r := NewResolver(src)

	for range 5 {
		if _, err := r.Resolve(ctx, "proj", "draft", recipe.CapabilityText); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	}
	if n := src.lookupCount(); n != 2 {
		t.Errorf("expected one override and one stage lookup, got %d", n)
	}

	r.Invalidate("proj", "draft", recipe.CapabilityText)
	_, _ = r.Resolve(ctx, "proj", "draft", recipe.CapabilityText)
	if n := src.lookupCount(); n != 4 {
		t.Errorf("expected lookups after invalidation, got %d", n)
	}

	r.InvalidateAll()
	if r.Cached() != 0 {
		t.Errorf("expected empty cache, got %d", r.Cached())
	}
}

func TestResolveSourceErrorNotCached(t *testing.T) {
	src := newMapSource()
	src.err = stderrors.New("store down")
	r := NewResolver(src)

	if _, err := r.Resolve(context.Background(), "proj", "draft", recipe.CapabilityText); err == nil {
		t.Fatal("expected error")
	}
	if r.Cached() != 0 {
		t.Error("failed lookups must not be cached")
	}
}

func TestResolveConcurrent(t *testing.T) {
	src := newMapSource()
	src.stages[stageKey{"s", recipe.CapabilityImage}] = Setting{Provider: "img"}
	r := NewResolver(src)

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Resolve(context.Background(), "p", "s", recipe.CapabilityImage)
			if err != nil || got.Provider != "img" {
				t.Errorf("unexpected resolve result %+v, %v", got, err)
			}
		}()
	}
	wg.Wait()
	if r.Cached() != 1 {
		t.Errorf("expected one cache entry, got %d", r.Cached())
	}
}

// gatedSource holds the first override lookup open until released, after
// the stored value has been read.
type gatedSource struct {
	*mapSource
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) GetCapabilityOverride(ctx context.Context, project, stage string, c recipe.Capability) (*Setting, error) {
	s, err := g.mapSource.GetCapabilityOverride(ctx, project, stage, c)
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return s, err
}

func TestWriteOverrideDuringLoadIsNotLost(t *testing.T) {
	ctx := context.Background()
	src := &gatedSource{mapSource: newMapSource(), entered: make(chan struct{}), release: make(chan struct{})}
	src.overrides[overrideKey{"proj", "draft", recipe.CapabilityText}] = Setting{Provider: "old"}
	r := NewResolver(src)

	done := make(chan Resolution)
	go func() {
		got, err := r.Resolve(ctx, "proj", "draft", recipe.CapabilityText)
		if err != nil {
			t.Errorf("Resolve failed: %v", err)
		}
		done <- got
	}()

	<-src.entered
	if err := r.WriteOverride(ctx, "proj", "draft", recipe.CapabilityText, Setting{Provider: "new"}); err != nil {
		t.Fatalf("WriteOverride failed: %v", err)
	}
	close(src.release)
	if got := <-done; got.Provider != "old" {
		t.Errorf("in-flight resolve should return what it read, got %+v", got)
	}

	got, err := r.Resolve(ctx, "proj", "draft", recipe.CapabilityText)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Provider != "new" {
		t.Errorf("expected the written override, got %+v", got)
	}
}

func TestWriteOverrideValidates(t *testing.T) {
	r := NewResolver(newMapSource())
	err := r.WriteOverride(context.Background(), "p", "s", recipe.CapabilityText, Setting{})
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWriteOverrideWithoutWriter(t *testing.T) {
	r := NewResolver(nil)
	if err := r.WriteOverride(context.Background(), "p", "s", recipe.CapabilityText, Setting{Provider: "x"}); err == nil {
		t.Fatal("expected error without writer")
	}
}

func TestSetGlobalDefault(t *testing.T) {
	r := NewResolver(nil)
	ctx := context.Background()
	_, _ = r.Resolve(ctx, "", "", recipe.CapabilityText)
	r.SetGlobalDefault(recipe.CapabilityText, Setting{Provider: "other", Model: "m"})
	got, _ := r.Resolve(ctx, "", "", recipe.CapabilityText)
	if got.Provider != "other" {
		t.Errorf("expected new global default, got %+v", got)
	}
}

func TestSelectFallsBackToAvailableTier(t *testing.T) {
	ctx := context.Background()
	src := newMapSource()
	src.overrides[overrideKey{"p", "s", recipe.CapabilityText}] = Setting{Provider: "primary", Model: "big"}
	src.stages[stageKey{"s", recipe.CapabilityText}] = Setting{Provider: "backup", Model: "small"}
	r := NewResolver(src)

	reg := provider.NewRegistry()
	primary := providertest.New("primary")
	primary.SetAvailable(false)
	reg.Set("primary", primary)
	reg.Set("backup", providertest.New("backup"))

	sel, err := r.Select(ctx, reg, nil, "p", "s", recipe.CapabilityText, nil)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Provider.Name() != "backup" || sel.Resolution.Source != SourceStageDefault || sel.Model != "small" {
		t.Errorf("unexpected selection %+v", sel)
	}

	primary.SetAvailable(true)
	sel, err = r.Select(ctx, reg, nil, "p", "s", recipe.CapabilityText, nil)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Provider.Name() != "primary" || sel.Model != "big" {
		t.Errorf("expected primary once available, got %+v", sel)
	}
}

func TestSelectHintModel(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(nil, WithGlobalDefaults(map[recipe.Capability]Setting{
		recipe.CapabilityText: {Provider: "fake", Model: "default"},
	}))
	reg := provider.NewRegistry()
	reg.Set("fake", providertest.New("fake"))

	tests := []struct {
		name string
		hint *recipe.CapabilityConfig
		want string
	}{
		{"no hint", nil, "default"},
		{"model only", &recipe.CapabilityConfig{Model: "hinted"}, "hinted"},
		{"same provider", &recipe.CapabilityConfig{Provider: "fake", Model: "hinted"}, "hinted"},
		{"other provider", &recipe.CapabilityConfig{Provider: "else", Model: "hinted"}, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := r.Select(ctx, reg, nil, "", "", recipe.CapabilityText, tt.hint)
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if sel.Model != tt.want {
				t.Errorf("expected model %q, got %q", tt.want, sel.Model)
			}
		})
	}
}

func TestSelectNothingRegistered(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Select(context.Background(), provider.NewRegistry(), nil, "", "", recipe.CapabilityText, nil)
	if !errors.HasCode(err, errors.ErrCodeServiceUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
}
