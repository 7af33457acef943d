package logger

import "context"

type contextKey string

const (
	ctxRecipeID    contextKey = FieldRecipeID
	ctxExecutionID contextKey = FieldExecutionID
	ctxNodeID      contextKey = FieldNodeID
	ctxTraceID     contextKey = FieldTraceID
	ctxSpanID      contextKey = FieldSpanID
)

// ContextWithExecution stores recipe and execution ids for WithContext.
func ContextWithExecution(ctx context.Context, recipeID, executionID string) context.Context {
	ctx = context.WithValue(ctx, ctxRecipeID, recipeID)
	return context.WithValue(ctx, ctxExecutionID, executionID)
}

// ContextWithNode stores the node currently being executed.
func ContextWithNode(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, ctxNodeID, nodeID)
}

// ContextWithTrace stores trace and span ids for WithContext.
func ContextWithTrace(ctx context.Context, traceID, spanID string) context.Context {
	ctx = context.WithValue(ctx, ctxTraceID, traceID)
	return context.WithValue(ctx, ctxSpanID, spanID)
}

// ExecutionIDFrom returns the execution id stored in ctx, if any.
func ExecutionIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxExecutionID).(string)
	return v
}
