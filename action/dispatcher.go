package action

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/logger"
	"github.com/kbukum/recipeflow/observability"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/storage"
)

// DefaultTimeout bounds one node call when neither the node nor the
// dispatcher sets a timeout.
const DefaultTimeout = 2 * time.Minute

// Dispatcher executes nodes through the Action registered for their type.
type Dispatcher struct {
	actions  map[recipe.NodeType]Action
	extra    []Action
	renderer PromptRenderer
	timeout  time.Duration
	storage  storage.Storage
	log      *logger.Logger
	metrics  *observability.Metrics
	data     *DataProcessing
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAction registers a, replacing the built-in action for its type.
func WithAction(a Action) Option {
	return func(d *Dispatcher) { d.extra = append(d.extra, a) }
}

// WithRenderer replaces the default TemplateRenderer.
func WithRenderer(r PromptRenderer) Option {
	return func(d *Dispatcher) { d.renderer = r }
}

// WithTimeout sets the per-call timeout for nodes without their own.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithStorage sets the blob storage used by the persist operation.
func WithStorage(s storage.Storage) Option {
	return func(d *Dispatcher) { d.storage = s }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics records decoder metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher with an Action for every node type.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		actions:  make(map[recipe.NodeType]Action),
		renderer: TemplateRenderer{},
		timeout:  DefaultTimeout,
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.WithComponent("dispatcher")
	d.data = NewDataProcessing(d.storage)

	for _, a := range []Action{
		TextGeneration{Metrics: d.metrics},
		ImageGeneration{},
		VideoGeneration{},
		d.data,
	} {
		d.actions[a.Type()] = a
	}
	for _, a := range d.extra {
		d.actions[a.Type()] = a
	}
	return d
}

// RegisterOperation adds a data processing operation.
func (d *Dispatcher) RegisterOperation(name string, op Operation) {
	d.data.Register(name, op)
}

// Dispatch executes one node and returns its result. For fail and retry
// policies a failure is returned as both a failed result and an error; for
// skip the result is skipped and the error is nil.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (recipe.ActionResult, error) {
	node := call.Node
	res := recipe.ActionResult{
		NodeID:    node.ID,
		NodeType:  node.Type,
		Status:    recipe.ResultProcessing,
		Input:     call.Input,
		Model:     call.Model,
		Attempts:  1,
		StartedAt: time.Now().UTC(),
	}
	if call.Provider != nil {
		res.Provider = call.Provider.Name()
	}

	out, err := d.execute(ctx, call)
	res.CompletedAt = time.Now().UTC()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	if err != nil {
		return d.settle(ctx, node, res, err)
	}

	res.Status = recipe.ResultCompleted
	res.Output = out.Value
	if out.Model != "" {
		res.Model = out.Model
	}
	d.log.WithContext(ctx).Debug("node completed", map[string]interface{}{
		logger.FieldNodeID:   node.ID,
		logger.FieldNodeType: string(node.Type),
		logger.FieldProvider: res.Provider,
		logger.FieldModel:    res.Model,
		logger.FieldDuration: res.Duration.Milliseconds(),
	})
	return res, nil
}

func (d *Dispatcher) execute(ctx context.Context, call Call) (Output, error) {
	node := call.Node
	a, ok := d.actions[node.Type]
	if !ok {
		return Output{}, errors.InvalidInput("type", fmt.Sprintf("no action for node type %q", node.Type))
	}
	if node.Type.Capability() != "" && call.Provider == nil {
		return Output{}, errors.New(errors.ErrCodeNoCapability,
			fmt.Sprintf("no provider selected for node %s", node.ID))
	}

	prompt, err := promptFor(d.renderer, node, call.Input)
	if err != nil {
		return Output{}, err
	}

	timeout := node.Timeout(d.timeout)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := a.Execute(cctx, Request{
		Node:     node,
		Input:    call.Input,
		Prompt:   prompt,
		Provider: call.Provider,
		Model:    call.Model,
		Scope:    call.Scope,
		OnRecord: call.OnRecord,
	})
	if err == nil {
		return out, nil
	}

	if stderrors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return Output{}, errors.Timeout("node "+node.ID).
			WithCause(err).
			WithDetail("timeout_ms", timeout.Milliseconds())
	}
	if errors.IsAppError(err) || stderrors.Is(err, context.Canceled) {
		return Output{}, err
	}
	if call.Provider != nil {
		return Output{}, errors.Provider(call.Provider.Name(), err)
	}
	return Output{}, errors.Internal(err)
}

func (d *Dispatcher) settle(ctx context.Context, node *recipe.Node, res recipe.ActionResult, err error) (recipe.ActionResult, error) {
	res, err = ApplyPolicy(node, res, err)

	fields := map[string]interface{}{
		logger.FieldNodeID:    node.ID,
		logger.FieldNodeType:  string(node.Type),
		logger.FieldProvider:  res.Provider,
		logger.FieldErrorCode: res.ErrorCode,
		logger.FieldError:     res.Error,
		"policy":              string(node.Policy()),
	}
	log := d.log.WithContext(ctx)
	switch {
	case res.ErrorCode == string(errors.ErrCodeParse):
		log.Warn("node output could not be parsed", fields)
	case res.Status == recipe.ResultSkipped:
		log.Warn("node skipped after failure", fields)
	default:
		log.Warn("node failed", fields)
	}
	observability.AddSpanEvent(ctx, "node.failure",
		attribute.String(observability.AttrNodeID, node.ID),
		attribute.String("error.code", res.ErrorCode),
	)
	return res, err
}

// ApplyPolicy turns a node failure into its result according to the node's
// error policy. Timing fields are filled in when unset.
func ApplyPolicy(node *recipe.Node, res recipe.ActionResult, err error) (recipe.ActionResult, error) {
	now := time.Now().UTC()
	if res.StartedAt.IsZero() {
		res.StartedAt = now
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = now
		res.Duration = now.Sub(res.StartedAt)
	}
	if res.NodeID == "" {
		res.NodeID = node.ID
		res.NodeType = node.Type
	}
	res.Error = err.Error()
	res.ErrorCode = string(errors.CodeOf(err))

	if node.Policy() == recipe.PolicySkip {
		res.Status = recipe.ResultSkipped
		res.Output = node.DefaultOutput
		return res, nil
	}
	res.Status = recipe.ResultFailed
	res.Output = nil
	return res, err
}
