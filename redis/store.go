package redis

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/store"
)

// StoreConfig tunes the Redis-backed store.
type StoreConfig struct {
	// ExecutionTTL expires execution documents. Zero keeps them forever.
	ExecutionTTL time.Duration `yaml:"execution_ttl" mapstructure:"execution_ttl"`
}

// Store is a store.Store keeping every document as a JSON string.
type Store struct {
	cfg        StoreConfig
	recipes    *TypedStore[recipe.Recipe]
	executions *TypedStore[recipe.Execution]
	overrides  *TypedStore[capability.Setting]
	stages     *TypedStore[capability.Setting]
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store using the client's key prefix.
func NewStore(client *Client, cfg StoreConfig) *Store {
	prefix := func(kind string) string {
		if client.cfg.KeyPrefix == "" {
			return kind
		}
		return client.cfg.KeyPrefix + ":" + kind
	}
	return &Store{
		cfg:        cfg,
		recipes:    NewTypedStore[recipe.Recipe](client, prefix("recipe")),
		executions: NewTypedStore[recipe.Execution](client, prefix("execution")),
		overrides:  NewTypedStore[capability.Setting](client, prefix("override")),
		stages:     NewTypedStore[capability.Setting](client, prefix("stage")),
	}
}

func overrideKey(projectID, stage string, c recipe.Capability) string {
	return projectID + ":" + stage + ":" + string(c)
}

func stageKey(stage string, c recipe.Capability) string {
	return stage + ":" + string(c)
}

func (s *Store) GetRecipe(ctx context.Context, id string) (*recipe.Recipe, error) {
	r, err := s.recipes.Load(ctx, id)
	if err != nil {
		return nil, errors.StoreError("get recipe", err)
	}
	if r == nil {
		return nil, errors.NotFound("recipe", id)
	}
	return r, nil
}

func (s *Store) SaveRecipe(ctx context.Context, r *recipe.Recipe) error {
	if r == nil || r.ID == "" {
		return errors.MissingField("id")
	}
	if err := s.recipes.Save(ctx, r.ID, r, 0); err != nil {
		return errors.StoreError("save recipe", err)
	}
	return nil
}

func (s *Store) SaveExecution(ctx context.Context, e *recipe.Execution) error {
	if e == nil || e.ID == "" {
		return errors.MissingField("id")
	}
	if err := s.executions.Save(ctx, e.ID, e, s.cfg.ExecutionTTL); err != nil {
		return errors.StoreError("save execution", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*recipe.Execution, error) {
	e, err := s.executions.Load(ctx, id)
	if err != nil {
		return nil, errors.StoreError("get execution", err)
	}
	if e == nil {
		return nil, errors.NotFound("execution", id)
	}
	return e, nil
}

func (s *Store) UpdateExecution(ctx context.Context, id string, patch store.ExecutionPatch) (*recipe.Execution, error) {
	e, err := s.executions.Update(ctx, id, s.cfg.ExecutionTTL, patch.Apply)
	switch {
	case err == nil:
		return e, nil
	case stderrors.Is(err, ErrNotFound):
		return nil, errors.NotFound("execution", id)
	case errors.IsAppError(err):
		return nil, err
	default:
		return nil, errors.StoreError("update execution", err)
	}
}

func (s *Store) GetCapabilityOverride(ctx context.Context, projectID, stage string, c recipe.Capability) (*capability.Setting, error) {
	v, err := s.overrides.Load(ctx, overrideKey(projectID, stage, c))
	if err != nil {
		return nil, errors.StoreError("get capability override", err)
	}
	return v, nil
}

func (s *Store) SetCapabilityOverride(ctx context.Context, projectID, stage string, c recipe.Capability, setting capability.Setting) error {
	if err := s.overrides.Save(ctx, overrideKey(projectID, stage, c), &setting, 0); err != nil {
		return errors.StoreError("set capability override", err)
	}
	return nil
}

func (s *Store) DeleteCapabilityOverride(ctx context.Context, projectID, stage string, c recipe.Capability) error {
	if err := s.overrides.Delete(ctx, overrideKey(projectID, stage, c)); err != nil {
		return errors.StoreError("delete capability override", err)
	}
	return nil
}

func (s *Store) GetStageDefault(ctx context.Context, stage string, c recipe.Capability) (*capability.Setting, error) {
	v, err := s.stages.Load(ctx, stageKey(stage, c))
	if err != nil {
		return nil, errors.StoreError("get stage default", err)
	}
	return v, nil
}

func (s *Store) SetStageDefault(ctx context.Context, stage string, c recipe.Capability, setting capability.Setting) error {
	if err := s.stages.Save(ctx, stageKey(stage, c), &setting, 0); err != nil {
		return errors.StoreError("set stage default", err)
	}
	return nil
}
