package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/recipeflow/action"
	"github.com/kbukum/recipeflow/dag"
	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/logger"
	"github.com/kbukum/recipeflow/observability"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/resilience"
	"github.com/kbukum/recipeflow/store"
	"github.com/kbukum/recipeflow/stream"
)

// runState is owned by the goroutine driving one execution. Node goroutines
// in parallel mode only read outputs through a snapshot.
type runState struct {
	graph    *dag.Graph
	exec     *recipe.Execution
	req      RunRequest
	outputs  map[string]any
	declared map[string]bool
	log      *logger.Logger
}

// halt describes why a run stopped early.
type halt struct {
	status recipe.ExecutionStatus
	nodeID string
	err    error
}

func (o *Orchestrator) run(ctx context.Context, req RunRequest, retryOf string) (*recipe.Execution, error) {
	rec := req.Recipe
	if rec == nil {
		if req.RecipeID == "" {
			return nil, errors.MissingField("recipe_id")
		}
		var err error
		if rec, err = o.store.GetRecipe(ctx, req.RecipeID); err != nil {
			return nil, err
		}
	}

	g, err := dag.Compile(rec)
	if err != nil {
		o.log.WithContext(ctx).Warn("recipe rejected", map[string]interface{}{
			logger.FieldRecipeID: rec.ID,
			logger.FieldError:    err.Error(),
		})
		return nil, err
	}
	if req.Recipe != nil {
		// Store inline recipes so the execution can be retried later.
		if err := o.store.SaveRecipe(ctx, rec); err != nil {
			return nil, err
		}
	}

	projectID := req.ProjectID
	if projectID == "" {
		projectID = rec.ProjectID
	}
	exec := &recipe.Execution{
		ID:            o.newID(),
		RecipeID:      rec.ID,
		ProjectID:     projectID,
		Stage:         rec.Stage,
		Status:        recipe.ExecutionRunning,
		Results:       []recipe.ActionResult{},
		ExternalInput: req.ExternalInput,
		RetryOf:       retryOf,
		StartedAt:     o.now().UTC(),
	}
	if err := o.store.SaveExecution(ctx, exec); err != nil {
		return nil, err
	}

	ctx = logger.ContextWithExecution(ctx, rec.ID, exec.ID)
	ctx, span := observability.StartSpan(ctx, observability.SpanRecipeRun,
		attribute.String(observability.AttrRecipeID, rec.ID),
		attribute.String(observability.AttrExecutionID, exec.ID),
		attribute.String(observability.AttrProjectID, projectID),
		attribute.String(observability.AttrStage, rec.Stage),
	)
	defer span.End()
	o.metrics.ExecutionStarted(ctx)

	st := &runState{
		graph:    g,
		exec:     exec,
		req:      req,
		outputs:  make(map[string]any, len(rec.Nodes)),
		declared: make(map[string]bool, len(rec.Nodes)),
		log:      o.log.WithContext(ctx),
	}
	for i := range rec.Nodes {
		st.declared[rec.Nodes[i].Key()] = true
	}
	st.log.Info("execution started", map[string]interface{}{
		logger.FieldProjectID: projectID,
		logger.FieldStage:     rec.Stage,
		"nodes":               len(rec.Nodes),
		"parallel":            o.cfg.Parallel,
		"retry_of":            retryOf,
	})

	var h *halt
	if o.cfg.Parallel {
		h, err = o.runLevels(ctx, st)
	} else {
		h, err = o.runSequential(ctx, st)
	}
	if err != nil {
		observability.SetSpanError(ctx, err)
		o.metrics.ExecutionFinished(ctx, "error", time.Since(exec.StartedAt))
		return st.exec, err
	}
	return o.finish(ctx, st, h)
}

func (o *Orchestrator) runSequential(ctx context.Context, st *runState) (*halt, error) {
	for _, id := range st.graph.Order {
		if h, err := o.checkCancelled(ctx, st); h != nil || err != nil {
			return h, err
		}
		node := st.graph.Node(id)
		res, nodeErr := o.runNode(ctx, st, node, st.outputs)
		if h, err := o.record(ctx, st, node, res, nodeErr); h != nil || err != nil {
			return h, err
		}
	}
	return nil, nil
}

// runLevels fans out each level behind a bulkhead and joins before the
// next one. Results are appended in level order.
func (o *Orchestrator) runLevels(ctx context.Context, st *runState) (*halt, error) {
	bulkhead := resilience.NewBulkhead(resilience.BulkheadConfig{
		Name:          "recipe-level",
		MaxConcurrent: o.cfg.MaxParallel,
		Block:         true,
	})

	for _, level := range st.graph.Levels {
		if h, err := o.checkCancelled(ctx, st); h != nil || err != nil {
			return h, err
		}

		snapshot := maps.Clone(st.outputs)
		results := make([]recipe.ActionResult, len(level))
		errs := make([]error, len(level))
		var wg sync.WaitGroup
		for i, id := range level {
			node := st.graph.Node(id)
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := bulkhead.Execute(ctx, func() error {
					results[i], errs[i] = o.runNode(ctx, st, node, snapshot)
					return nil
				})
				if err != nil {
					results[i], errs[i] = action.ApplyPolicy(node, recipe.ActionResult{}, err)
				}
			}()
		}
		wg.Wait()

		var first *halt
		for i, id := range level {
			node := st.graph.Node(id)
			h, err := o.record(ctx, st, node, results[i], errs[i])
			if err != nil {
				return nil, err
			}
			if first == nil {
				first = h
			}
		}
		if first != nil {
			return first, nil
		}
	}
	return nil, nil
}

// record persists a node result and stores its output. It reports a halt
// when the node failed fatally or the execution was cancelled meanwhile.
func (o *Orchestrator) record(ctx context.Context, st *runState, node *recipe.Node, res recipe.ActionResult, nodeErr error) (*halt, error) {
	updated, err := o.store.UpdateExecution(context.WithoutCancel(ctx), st.exec.ID, store.Append(res))
	if err != nil {
		return nil, err
	}
	st.exec = updated
	o.metrics.RecordNode(ctx, string(node.Type), string(res.Status), res.CompletedAt.Sub(res.StartedAt))

	if nodeErr != nil {
		if ctx.Err() != nil {
			return &halt{status: recipe.ExecutionCancelled}, nil
		}
		return &halt{status: recipe.ExecutionFailed, nodeID: node.ID, err: nodeErr}, nil
	}
	st.outputs[node.Key()] = res.Output
	if updated.Status == recipe.ExecutionCancelled {
		return &halt{status: recipe.ExecutionCancelled}, nil
	}
	return nil, nil
}

// checkCancelled reports a halt when the caller's context is done or the
// stored execution was cancelled by someone else.
func (o *Orchestrator) checkCancelled(ctx context.Context, st *runState) (*halt, error) {
	if ctx.Err() != nil {
		return &halt{status: recipe.ExecutionCancelled}, nil
	}
	current, err := o.store.GetExecution(ctx, st.exec.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == recipe.ExecutionCancelled {
		st.exec = current
		return &halt{status: recipe.ExecutionCancelled}, nil
	}
	return nil, nil
}

// runNode resolves inputs, selects a provider and dispatches one node,
// retrying under the retry policy. The returned error is non-nil only for
// a fatal failure.
func (o *Orchestrator) runNode(ctx context.Context, st *runState, node *recipe.Node, outputs map[string]any) (recipe.ActionResult, error) {
	ctx = logger.ContextWithNode(ctx, node.ID)
	ctx, span := observability.StartSpan(ctx, observability.SpanNodeExecute,
		attribute.String(observability.AttrNodeID, node.ID),
		attribute.String(observability.AttrNodeType, string(node.Type)),
	)
	defer span.End()
	log := st.log.WithFields(map[string]interface{}{logger.FieldNodeID: node.ID})

	input, missing := resolveInputs(node.InputMapping, outputs, st.exec.ExternalInput, st.declared)
	for _, m := range missing {
		if o.cfg.StrictInputs {
			return action.ApplyPolicy(node, recipe.ActionResult{Input: input}, errors.Resolution(node.ID, m.param, m.expr))
		}
		log.Warn("input reference unresolved", map[string]interface{}{
			"param":      m.param,
			"expression": m.expr,
		})
	}

	call := action.Call{Node: node, Input: input, Scope: st.exec.ID}

	attempt := func(ctx context.Context, n int) (recipe.ActionResult, error) {
		span.SetAttributes(attribute.Int(observability.AttrAttempt, n))
		c := call
		if fn := st.req.OnRecord; fn != nil {
			c.OnRecord = func(r stream.Record) { fn(node.ID, n, r) }
		}
		if capName := node.Type.Capability(); capName != "" {
			sel, err := o.resolver.Select(ctx, o.registry, o.selector, st.exec.ProjectID, st.exec.Stage, capName, node.Capability)
			if err != nil {
				res, err := action.ApplyPolicy(node, recipe.ActionResult{Input: input}, err)
				res.Attempts = n
				return res, err
			}
			c.Provider, c.Model = sel.Provider, sel.Model
			span.SetAttributes(
				attribute.String(observability.AttrProvider, sel.Provider.Name()),
				attribute.String(observability.AttrSource, string(sel.Resolution.Source)),
			)
		}
		res, err := o.dispatcher.Dispatch(ctx, c)
		res.Attempts = n
		return res, err
	}

	var (
		res recipe.ActionResult
		err error
	)
	if node.Policy() == recipe.PolicyRetry {
		res, err = o.retry(ctx, node, log, attempt)
	} else {
		res, err = attempt(ctx, 1)
	}
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	observability.SetSpanAttributes(ctx, attribute.String(observability.AttrStatus, string(res.Status)))
	return res, err
}

func (o *Orchestrator) retry(ctx context.Context, node *recipe.Node, log *logger.Logger, attempt func(context.Context, int) (recipe.ActionResult, error)) (recipe.ActionResult, error) {
	cfg := o.cfg.Retry
	if node.MaxRetries > 0 {
		cfg.MaxAttempts = node.MaxRetries + 1
	}
	cfg.RetryIf = retryable
	cfg.OnRetry = func(n int, err error, backoff time.Duration) {
		o.metrics.RecordRetry(ctx, string(node.Type))
		log.Warn("retrying node", map[string]interface{}{
			logger.FieldAttempt:   n,
			logger.FieldErrorCode: string(errors.CodeOf(err)),
			logger.FieldError:     err.Error(),
			"backoff_ms":          backoff.Milliseconds(),
		})
	}

	var last recipe.ActionResult
	res, err := resilience.Retry(ctx, cfg, func(n int) (recipe.ActionResult, error) {
		r, err := attempt(ctx, n)
		last = r
		return r, err
	})
	if err == nil {
		return res, nil
	}
	if last.NodeID == "" {
		// Cancelled before the first attempt ran.
		return action.ApplyPolicy(node, recipe.ActionResult{}, err)
	}
	return last, fmt.Errorf("node %s failed after %d attempts: %w", node.ID, last.Attempts, err)
}

// retryable rejects failures another attempt cannot fix.
func retryable(err error) bool {
	if !resilience.DefaultRetryIf(err) || provider.IsUnsupported(err) {
		return false
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeMissingField, errors.ErrCodeResolution,
		errors.ErrCodeNoCapability, errors.ErrCodeUnsupported:
		return false
	}
	return true
}

// finish moves the execution to its terminal status. A run cancelled by
// someone else keeps the stored cancellation.
func (o *Orchestrator) finish(ctx context.Context, st *runState, h *halt) (*recipe.Execution, error) {
	wctx := context.WithoutCancel(ctx)
	now := o.now().UTC()

	var patch store.ExecutionPatch
	switch {
	case st.exec.Status.Terminal():
		// Cancelled through Cancel: the stored record is final.
		return o.finished(ctx, st, h, st.exec, now), nil
	case h == nil:
		patch = store.Finish(recipe.ExecutionCompleted, now)
		patch.FinalOutput = st.outputs[st.graph.Last().Key()]
	case h.status == recipe.ExecutionFailed:
		patch = store.Finish(recipe.ExecutionFailed, now)
		patch.Context = &recipe.ExecutionContext{
			FailedNodeID: h.nodeID,
			Error:        h.err.Error(),
			ErrorCode:    string(errors.CodeOf(h.err)),
		}
	default:
		patch = store.Finish(recipe.ExecutionCancelled, now)
	}

	exec, err := o.store.UpdateExecution(wctx, st.exec.ID, patch)
	if errors.HasCode(err, errors.ErrCodeConflict) {
		exec, err = o.store.GetExecution(wctx, st.exec.ID)
	}
	if err != nil {
		o.metrics.ExecutionFinished(ctx, "error", now.Sub(st.exec.StartedAt))
		return st.exec, err
	}
	return o.finished(ctx, st, h, exec, now), nil
}

// finished logs and records metrics for a terminal execution.
func (o *Orchestrator) finished(ctx context.Context, st *runState, h *halt, exec *recipe.Execution, now time.Time) *recipe.Execution {
	fields := map[string]interface{}{
		logger.FieldStatus:   string(exec.Status),
		logger.FieldDuration: now.Sub(exec.StartedAt).Milliseconds(),
		"results":            len(exec.Results),
	}
	if exec.Status == recipe.ExecutionFailed {
		fields[logger.FieldNodeID] = exec.Context.FailedNodeID
		fields[logger.FieldErrorCode] = exec.Context.ErrorCode
		fields[logger.FieldError] = exec.Context.Error
		if h != nil && h.err != nil {
			observability.SetSpanError(ctx, h.err)
		}
		st.log.Error("execution failed", fields)
	} else {
		st.log.Info("execution finished", fields)
	}
	observability.SetSpanAttributes(ctx, attribute.String(observability.AttrStatus, string(exec.Status)))
	o.metrics.ExecutionFinished(ctx, string(exec.Status), now.Sub(exec.StartedAt))
	return exec
}
