package provider

import (
	"context"
	"time"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/logger"
)

// WithLogging returns a Middleware that logs each provider call.
// Logs: provider name, capability, model, duration, and success/error status.
func WithLogging(log *logger.Logger) Middleware {
	return func(inner Capability) Capability {
		return Intercept(inner, func(ctx context.Context, call Call, next func(context.Context) error) error {
			start := time.Now()
			err := next(ctx)

			fields := map[string]interface{}{
				logger.FieldProvider:   call.Provider,
				logger.FieldCapability: string(call.Capability),
				logger.FieldDuration:   time.Since(start).Milliseconds(),
			}
			if call.Model != "" {
				fields[logger.FieldModel] = call.Model
			}
			if call.Stream {
				fields["stream"] = true
			}

			if err != nil {
				fields[logger.FieldError] = err.Error()
				fields[logger.FieldErrorCode] = string(errors.CodeOf(err))
				log.WithContext(ctx).Warn("provider call failed", fields)
			} else {
				log.WithContext(ctx).Debug("provider call ok", fields)
			}
			return err
		})
	}
}
