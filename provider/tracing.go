package provider

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/recipeflow/observability"
)

// WithTracing returns a Middleware that creates an OpenTelemetry span
// around each provider call.
func WithTracing() Middleware {
	return func(inner Capability) Capability {
		return Intercept(inner, func(ctx context.Context, call Call, next func(context.Context) error) error {
			ctx, span := observability.StartSpan(ctx, observability.SpanProviderCall,
				attribute.String(observability.AttrProvider, call.Provider),
				attribute.String(observability.AttrCapability, string(call.Capability)),
				attribute.Bool("stream", call.Stream),
			)
			defer span.End()
			if call.Model != "" {
				observability.SetSpanAttributes(ctx, attribute.String(observability.AttrModel, call.Model))
			}

			err := next(ctx)
			if err != nil {
				observability.SetSpanError(ctx, err)
			}
			return err
		})
	}
}
