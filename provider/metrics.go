package provider

import (
	"context"

	"github.com/kbukum/recipeflow/observability"
)

// WithMetrics returns a Middleware that counts provider calls by outcome.
func WithMetrics(metrics *observability.Metrics) Middleware {
	return func(inner Capability) Capability {
		return Intercept(inner, func(ctx context.Context, call Call, next func(context.Context) error) error {
			err := next(ctx)
			status := "ok"
			switch {
			case IsUnsupported(err):
				status = "unsupported"
			case err != nil:
				status = "error"
			}
			metrics.RecordProviderCall(ctx, call.Provider, string(call.Capability), status)
			return err
		})
	}
}
