package provider

import (
	"context"
	stderrors "errors"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/resilience"
)

// ResilienceConfig bundles optional resilience policies for a provider.
// Nil fields are skipped.
type ResilienceConfig struct {
	// CircuitBreaker stops calling a provider after repeated failures and
	// reports it unavailable so selection falls back to the next candidate.
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	// RateLimiter limits the rate of calls using a token bucket.
	RateLimiter *resilience.RateLimiterConfig `yaml:"rate_limiter" mapstructure:"rate_limiter"`
}

// IsEmpty returns true if no resilience policies are configured.
func (c ResilienceConfig) IsEmpty() bool {
	return c.CircuitBreaker == nil && c.RateLimiter == nil
}

// WithResilience returns a Middleware that guards each provider with its
// own circuit breaker and rate limiter. Node-level retries are handled by
// the orchestrator, not here.
func WithResilience(cfg ResilienceConfig) Middleware {
	if cfg.IsEmpty() {
		return nil
	}
	return func(inner Capability) Capability {
		r := &resilient{}
		if cfg.CircuitBreaker != nil {
			cbCfg := *cfg.CircuitBreaker
			cbCfg.Name = inner.Name()
			if cbCfg.IsFailure == nil {
				cbCfg.IsFailure = countsAsFailure
			}
			r.cb = resilience.NewCircuitBreaker(cbCfg)
		}
		if cfg.RateLimiter != nil {
			rlCfg := *cfg.RateLimiter
			rlCfg.Name = inner.Name()
			r.rl = resilience.NewRateLimiter(rlCfg)
		}
		r.Capability = Intercept(inner, r.intercept)
		return r
	}
}

type resilient struct {
	Capability
	cb *resilience.CircuitBreaker
	rl *resilience.RateLimiter
}

// IsAvailable is false while the circuit is open.
func (r *resilient) IsAvailable(ctx context.Context) bool {
	if r.cb != nil && r.cb.State() == resilience.StateOpen {
		return false
	}
	return r.Capability.IsAvailable(ctx)
}

func (r *resilient) intercept(ctx context.Context, call Call, next func(context.Context) error) error {
	if r.rl != nil {
		if err := r.rl.Wait(ctx); err != nil {
			return err
		}
	}
	if r.cb == nil {
		return next(ctx)
	}
	err := r.cb.Execute(func() error { return next(ctx) })
	if stderrors.Is(err, resilience.ErrCircuitOpen) {
		return errors.ServiceUnavailable(call.Provider).WithCause(err)
	}
	return err
}

// countsAsFailure ignores caller-side errors so they do not trip the breaker.
func countsAsFailure(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeUnsupported, errors.ErrCodeInvalidInput, errors.ErrCodeParse:
		return false
	}
	return true
}
