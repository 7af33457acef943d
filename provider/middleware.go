package provider

import (
	"context"

	"github.com/kbukum/recipeflow/recipe"
)

// Middleware transforms a Capability by wrapping it.
type Middleware func(Capability) Capability

// Chain composes multiple middlewares into one. Middlewares are applied
// in order: the first middleware is outermost.
//
// Chain(a, b, c)(provider) is equivalent to a(b(c(provider))).
func Chain(middlewares ...Middleware) Middleware {
	return func(inner Capability) Capability {
		for i := len(middlewares) - 1; i >= 0; i-- {
			if middlewares[i] != nil {
				inner = middlewares[i](inner)
			}
		}
		return inner
	}
}

// Call describes the provider call an Interceptor wraps.
type Call struct {
	Provider   string
	Capability recipe.Capability
	Model      string
	Stream     bool
}

// Interceptor runs around a single provider call. It must invoke next to
// let the call through and return its error, or return its own error to
// short-circuit.
type Interceptor func(ctx context.Context, call Call, next func(context.Context) error) error

// Intercept wraps every generation method of inner with fn.
func Intercept(inner Capability, fn Interceptor) Capability {
	return &intercepted{inner: inner, fn: fn}
}

type intercepted struct {
	inner Capability
	fn    Interceptor
}

func (i *intercepted) Name() string                         { return i.inner.Name() }
func (i *intercepted) IsAvailable(ctx context.Context) bool { return i.inner.IsAvailable(ctx) }
func (i *intercepted) SupportsStreaming() bool              { return i.inner.SupportsStreaming() }

// Unwrap returns the wrapped provider.
func (i *intercepted) Unwrap() Capability { return i.inner }

func (i *intercepted) call(c recipe.Capability, opts Options, stream bool) Call {
	return Call{Provider: i.inner.Name(), Capability: c, Model: opts.Model, Stream: stream}
}

func (i *intercepted) GenerateText(ctx context.Context, prompt string, opts Options) (*TextResult, error) {
	var res *TextResult
	err := i.fn(ctx, i.call(recipe.CapabilityText, opts, false), func(ctx context.Context) error {
		var err error
		res, err = i.inner.GenerateText(ctx, prompt, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (i *intercepted) GenerateImage(ctx context.Context, prompt string, opts Options) (*ImageResult, error) {
	var res *ImageResult
	err := i.fn(ctx, i.call(recipe.CapabilityImage, opts, false), func(ctx context.Context) error {
		var err error
		res, err = i.inner.GenerateImage(ctx, prompt, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (i *intercepted) GenerateVideo(ctx context.Context, prompt string, opts Options) (*VideoResult, error) {
	var res *VideoResult
	err := i.fn(ctx, i.call(recipe.CapabilityVideo, opts, false), func(ctx context.Context) error {
		var err error
		res, err = i.inner.GenerateVideo(ctx, prompt, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (i *intercepted) StreamText(ctx context.Context, prompt string, opts Options, onChunk func(string) error) (*TextResult, error) {
	var res *TextResult
	err := i.fn(ctx, i.call(recipe.CapabilityText, opts, true), func(ctx context.Context) error {
		var err error
		res, err = i.inner.StreamText(ctx, prompt, opts, onChunk)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
