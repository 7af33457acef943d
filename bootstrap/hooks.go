package bootstrap

import (
	"context"
	"errors"
	"fmt"
)

// Hook is a lifecycle callback run during shutdown.
type Hook func(ctx context.Context) error

// OnStop registers hooks that run during Shutdown. Hooks run in reverse
// registration order, after the ones bootstrap registered itself.
func (e *Engine) OnStop(hooks ...Hook) {
	e.onStop = append(e.onStop, hooks...)
}

// runHooks executes hooks last to first and joins their errors.
func runHooks(ctx context.Context, hooks []Hook) error {
	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, fmt.Errorf("hook %d failed: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
