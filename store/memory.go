package store

import (
	"context"
	"sync"

	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/recipe"
)

type overrideKey struct {
	projectID  string
	stage      string
	capability recipe.Capability
}

type stageKey struct {
	stage      string
	capability recipe.Capability
}

// MemoryStore is an in-process Store. Values are copied on the way in and
// out so callers cannot mutate stored state.
type MemoryStore struct {
	mu         sync.RWMutex
	recipes    map[string]recipe.Recipe
	executions map[string]*recipe.Execution
	overrides  map[overrideKey]capability.Setting
	stages     map[stageKey]capability.Setting
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recipes:    make(map[string]recipe.Recipe),
		executions: make(map[string]*recipe.Execution),
		overrides:  make(map[overrideKey]capability.Setting),
		stages:     make(map[stageKey]capability.Setting),
	}
}

func (m *MemoryStore) GetRecipe(_ context.Context, id string) (*recipe.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recipes[id]
	if !ok {
		return nil, errors.NotFound("recipe", id)
	}
	return &r, nil
}

func (m *MemoryStore) SaveRecipe(_ context.Context, r *recipe.Recipe) error {
	if r == nil || r.ID == "" {
		return errors.MissingField("id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipes[r.ID] = *r
	return nil
}

func (m *MemoryStore) SaveExecution(_ context.Context, e *recipe.Execution) error {
	if e == nil || e.ID == "" {
		return errors.MissingField("id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[e.ID] = e.Clone()
	return nil
}

func (m *MemoryStore) GetExecution(_ context.Context, id string) (*recipe.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, errors.NotFound("execution", id)
	}
	return e.Clone(), nil
}

func (m *MemoryStore) UpdateExecution(_ context.Context, id string, patch ExecutionPatch) (*recipe.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, errors.NotFound("execution", id)
	}
	next := e.Clone()
	if err := patch.Apply(next); err != nil {
		return nil, err
	}
	m.executions[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) GetCapabilityOverride(_ context.Context, projectID, stage string, c recipe.Capability) (*capability.Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.overrides[overrideKey{projectID, stage, c}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) SetCapabilityOverride(_ context.Context, projectID, stage string, c recipe.Capability, s capability.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[overrideKey{projectID, stage, c}] = s
	return nil
}

func (m *MemoryStore) DeleteCapabilityOverride(_ context.Context, projectID, stage string, c recipe.Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, overrideKey{projectID, stage, c})
	return nil
}

func (m *MemoryStore) GetStageDefault(_ context.Context, stage string, c recipe.Capability) (*capability.Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stages[stageKey{stage, c}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) SetStageDefault(_ context.Context, stage string, c recipe.Capability, s capability.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stageKey{stage, c}] = s
	return nil
}
