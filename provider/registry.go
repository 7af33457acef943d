package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kbukum/recipeflow/errors"
)

// Registry manages named provider factories and cached instances. Every
// instance it hands out is wrapped with the registry's middleware.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	configs    map[string]map[string]any
	instances  map[string]Capability
	middleware Middleware
}

// NewRegistry creates a new empty Registry. The given middlewares are
// chained and applied to every instance.
func NewRegistry(middlewares ...Middleware) *Registry {
	return &Registry{
		factories:  make(map[string]Factory),
		configs:    make(map[string]map[string]any),
		instances:  make(map[string]Capability),
		middleware: Chain(middlewares...),
	}
}

// RegisterFactory registers a named factory for creating providers.
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Configure stores the config used when name is first instantiated.
// A cached instance is dropped so the next Get picks the new config up.
func (r *Registry) Configure(name string, cfg map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
	delete(r.instances, name)
}

// Create instantiates a provider using the named factory and config.
// The result is not cached.
func (r *Registry) Create(name string, cfg map[string]any) (Capability, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("provider", name).WithCause(fmt.Errorf("provider factory %q not registered", name))
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create provider %q: %w", name, err)
	}
	return r.middleware(p), nil
}

// Set caches a provider instance by name, wrapping it with middleware.
func (r *Registry) Set(name string, instance Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[name] = r.middleware(instance)
}

// Get returns the cached instance for name, creating it from its factory
// and stored config on first use.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	inst, ok := r.instances[name]
	r.mu.RUnlock()
	if ok {
		return inst, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[name]; ok {
		return inst, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, errors.NotFound("provider", name)
	}
	p, err := factory(r.configs[name])
	if err != nil {
		return nil, fmt.Errorf("create provider %q: %w", name, err)
	}
	inst = r.middleware(p)
	r.instances[name] = inst
	return inst, nil
}

// Has reports whether name has a factory or a cached instance.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, f := r.factories[name]
	_, i := r.instances[name]
	return f || i
}

// List returns sorted names of every known provider.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.factories)+len(r.instances))
	for name := range r.factories {
		seen[name] = struct{}{}
	}
	for name := range r.instances {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
