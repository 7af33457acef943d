package capability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/logger"
	"github.com/kbukum/recipeflow/observability"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/validation"
)

// Source names the configuration tier a resolution came from.
type Source string

const (
	SourceProjectOverride Source = "project_override"
	SourceStageDefault    Source = "stage_default"
	SourceGlobalDefault   Source = "global_default"
)

// Setting is a configured provider/model pair.
type Setting struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider" validate:"required,identifier"`
	Model    string `json:"model,omitempty" yaml:"model" mapstructure:"model"`
}

// Resolution is the provider chosen for a (project, stage, capability).
type Resolution struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Source   Source `json:"source"`
}

// ConfigSource supplies the stored tiers. A missing entry is (nil, nil).
type ConfigSource interface {
	GetCapabilityOverride(ctx context.Context, projectID, stage string, c recipe.Capability) (*Setting, error)
	GetStageDefault(ctx context.Context, stage string, c recipe.Capability) (*Setting, error)
}

// OverrideWriter persists project overrides.
type OverrideWriter interface {
	SetCapabilityOverride(ctx context.Context, projectID, stage string, c recipe.Capability, s Setting) error
	DeleteCapabilityOverride(ctx context.Context, projectID, stage string, c recipe.Capability) error
}

// BuiltinDefaults is the minimal global tier used when none is configured.
func BuiltinDefaults() map[recipe.Capability]Setting {
	return map[recipe.Capability]Setting{
		recipe.CapabilityText: {Provider: "ollama", Model: "llama3"},
	}
}

type cacheKey struct {
	projectID  string
	stage      string
	capability recipe.Capability
}

// Resolver picks a provider for a capability using, in order, the project
// override, the stage default and the global default. Lookups are cached
// per resolver until invalidated.
type Resolver struct {
	source ConfigSource
	writer OverrideWriter
	log    *logger.Logger

	mu      sync.RWMutex
	globals map[recipe.Capability]Setting
	cache   map[cacheKey][]Resolution
	// gen is bumped by every invalidation. A load that started under an
	// older generation is returned but not cached.
	gen uint64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGlobalDefaults replaces the built-in global tier.
func WithGlobalDefaults(defaults map[recipe.Capability]Setting) Option {
	return func(r *Resolver) {
		r.globals = make(map[recipe.Capability]Setting, len(defaults))
		for c, s := range defaults {
			r.globals[c] = s
		}
	}
}

// WithOverrideWriter enables WriteOverride and DeleteOverride.
func WithOverrideWriter(w OverrideWriter) Option {
	return func(r *Resolver) { r.writer = w }
}

// WithLogger sets the resolver logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver creates a Resolver reading stored tiers from source. source
// may be nil, in which case only global defaults apply.
func NewResolver(source ConfigSource, opts ...Option) *Resolver {
	r := &Resolver{
		source:  source,
		log:     logger.NewNop(),
		globals: BuiltinDefaults(),
		cache:   make(map[cacheKey][]Resolution),
	}
	if w, ok := source.(OverrideWriter); ok {
		r.writer = w
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("capability")
	return r
}

// Resolve returns the highest-precedence resolution for the triple.
func (r *Resolver) Resolve(ctx context.Context, projectID, stage string, c recipe.Capability) (Resolution, error) {
	candidates, err := r.Candidates(ctx, projectID, stage, c)
	if err != nil {
		return Resolution{}, err
	}
	return candidates[0], nil
}

// Candidates returns every tier that yields a setting, highest precedence
// first. It fails with NO_CAPABILITY_CONFIGURED when none does.
func (r *Resolver) Candidates(ctx context.Context, projectID, stage string, c recipe.Capability) ([]Resolution, error) {
	key := cacheKey{projectID: projectID, stage: stage, capability: c}

	r.mu.RLock()
	cached, ok := r.cache[key]
	gen := r.gen
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	candidates, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.NoCapabilityConfigured(string(c), projectID, stage)
	}

	r.mu.Lock()
	if r.gen == gen {
		r.cache[key] = candidates
	}
	r.mu.Unlock()
	return candidates, nil
}

func (r *Resolver) load(ctx context.Context, key cacheKey) ([]Resolution, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanCapabilityLoad,
		attribute.String(observability.AttrProjectID, key.projectID),
		attribute.String(observability.AttrStage, key.stage),
		attribute.String(observability.AttrCapability, string(key.capability)),
	)
	defer span.End()

	var out []Resolution
	if r.source != nil {
		if key.projectID != "" {
			s, err := r.source.GetCapabilityOverride(ctx, key.projectID, key.stage, key.capability)
			if err != nil {
				observability.SetSpanError(ctx, err)
				return nil, fmt.Errorf("load capability override: %w", err)
			}
			if s != nil && s.Provider != "" {
				out = append(out, Resolution{Provider: s.Provider, Model: s.Model, Source: SourceProjectOverride})
			}
		}
		s, err := r.source.GetStageDefault(ctx, key.stage, key.capability)
		if err != nil {
			observability.SetSpanError(ctx, err)
			return nil, fmt.Errorf("load stage default: %w", err)
		}
		if s != nil && s.Provider != "" {
			out = append(out, Resolution{Provider: s.Provider, Model: s.Model, Source: SourceStageDefault})
		}
	}

	r.mu.RLock()
	g, ok := r.globals[key.capability]
	r.mu.RUnlock()
	if ok && g.Provider != "" {
		out = append(out, Resolution{Provider: g.Provider, Model: g.Model, Source: SourceGlobalDefault})
	}

	if len(out) > 0 {
		observability.SetSpanAttributes(ctx, attribute.String(observability.AttrSource, string(out[0].Source)))
		r.log.Debug("capability resolved", map[string]interface{}{
			logger.FieldProjectID:  key.projectID,
			logger.FieldStage:      key.stage,
			logger.FieldCapability: string(key.capability),
			logger.FieldProvider:   out[0].Provider,
			"source":               string(out[0].Source),
		})
	}
	return out, nil
}

// SetGlobalDefault replaces the global tier entry for c.
func (r *Resolver) SetGlobalDefault(c recipe.Capability, s Setting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globals[c] = s
	r.gen++
	for k := range r.cache {
		if k.capability == c {
			delete(r.cache, k)
		}
	}
}

// WriteOverride stores a project override and invalidates its cache entry.
func (r *Resolver) WriteOverride(ctx context.Context, projectID, stage string, c recipe.Capability, s Setting) error {
	if r.writer == nil {
		return errors.New(errors.ErrCodeInternal, "capability override writer not configured")
	}
	if err := validation.Validate(s); err != nil {
		return err
	}
	if err := r.writer.SetCapabilityOverride(ctx, projectID, stage, c, s); err != nil {
		return err
	}
	r.Invalidate(projectID, stage, c)
	return nil
}

// DeleteOverride removes a project override and invalidates its cache entry.
func (r *Resolver) DeleteOverride(ctx context.Context, projectID, stage string, c recipe.Capability) error {
	if r.writer == nil {
		return errors.New(errors.ErrCodeInternal, "capability override writer not configured")
	}
	if err := r.writer.DeleteCapabilityOverride(ctx, projectID, stage, c); err != nil {
		return err
	}
	r.Invalidate(projectID, stage, c)
	return nil
}

// Invalidate drops the cached resolution for one triple.
func (r *Resolver) Invalidate(projectID, stage string, c recipe.Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	delete(r.cache, cacheKey{projectID: projectID, stage: stage, capability: c})
}

// InvalidateStage drops every cached resolution for stage. Use it after a
// stage default changes.
func (r *Resolver) InvalidateStage(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	for k := range r.cache {
		if k.stage == stage {
			delete(r.cache, k)
		}
	}
}

// InvalidateAll empties the cache.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	clear(r.cache)
}

// Cached returns the number of cached triples.
func (r *Resolver) Cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
