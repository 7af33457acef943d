package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/recipeflow/action"
	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/logger"
	"github.com/kbukum/recipeflow/observability"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/store"
	"github.com/kbukum/recipeflow/stream"
)

// Orchestrator drives recipe executions.
type Orchestrator struct {
	store      store.Store
	resolver   *capability.Resolver
	registry   *provider.Registry
	selector   provider.Selector
	dispatcher *action.Dispatcher
	cfg        Config
	log        *logger.Logger
	metrics    *observability.Metrics
	newID      func() string
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig sets scheduling options.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithDispatcher replaces the default dispatcher.
func WithDispatcher(d *action.Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithSelector replaces the default PrioritySelector.
func WithSelector(s provider.Selector) Option {
	return func(o *Orchestrator) { o.selector = s }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithMetrics records run, node and retry metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithIDGenerator replaces uuid execution ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithClock replaces time.Now for execution timestamps.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// New creates an Orchestrator. st supplies recipes and records executions;
// resolver and reg pick the provider for each generation node.
func New(st store.Store, resolver *capability.Resolver, reg *provider.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		resolver: resolver,
		registry: reg,
		selector: provider.PrioritySelector{},
		log:      logger.NewNop(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cfg.ApplyDefaults()
	if o.dispatcher == nil {
		o.dispatcher = action.NewDispatcher(action.WithLogger(o.log), action.WithMetrics(o.metrics))
	}
	o.log = o.log.WithComponent("orchestrator")
	return o
}

// RunRequest starts an execution. Recipe takes precedence over RecipeID.
type RunRequest struct {
	Recipe   *recipe.Recipe
	RecipeID string
	// ProjectID selects project overrides; defaults to the recipe's project.
	ProjectID     string
	ExternalInput map[string]any
	// OnRecord observes records decoded from streamed text nodes. A retried
	// node decodes again from index 0 with the next attempt number;
	// records seen under an earlier attempt should be discarded.
	OnRecord func(nodeID string, attempt int, r stream.Record)
}

// Run executes a recipe and returns the terminal execution. A structural
// error aborts before anything is stored. Node failures end the run as
// failed and are reported on the execution, not as an error; the error is
// reserved for store failures and invalid requests.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*recipe.Execution, error) {
	return o.run(ctx, req, "")
}

// Cancel marks a running execution cancelled. The run stops before its next
// node.
func (o *Orchestrator) Cancel(ctx context.Context, executionID string) (*recipe.Execution, error) {
	exec, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		return nil, errors.Conflict("execution " + executionID + " is already " + string(exec.Status)).
			WithDetail("execution_id", executionID)
	}
	exec, err = o.store.UpdateExecution(ctx, executionID, store.Finish(recipe.ExecutionCancelled, o.now().UTC()))
	if err != nil {
		return nil, err
	}
	o.log.WithContext(ctx).Info("execution cancelled", map[string]interface{}{
		logger.FieldExecutionID: executionID,
		logger.FieldRecipeID:    exec.RecipeID,
	})
	return exec, nil
}

// Retry runs the recipe of a failed or cancelled execution again with the
// same project and external input. The result is a new execution whose
// RetryOf names the original.
func (o *Orchestrator) Retry(ctx context.Context, executionID string) (*recipe.Execution, error) {
	prev, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if prev.Status != recipe.ExecutionFailed && prev.Status != recipe.ExecutionCancelled {
		return nil, errors.Conflict("only failed or cancelled executions can be retried").
			WithDetail("execution_id", executionID).
			WithDetail("status", string(prev.Status))
	}
	return o.run(ctx, RunRequest{
		RecipeID:      prev.RecipeID,
		ProjectID:     prev.ProjectID,
		ExternalInput: prev.ExternalInput,
	}, prev.ID)
}
