package provider

import (
	"context"
	stderrors "errors"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/recipe"
)

// Provider is the base interface every backend implements.
type Provider interface {
	// Name returns the unique name of this provider instance.
	Name() string
	// IsAvailable checks if the provider is ready to accept calls.
	IsAvailable(ctx context.Context) bool
}

// Capability is a generation backend. A single value may serve several
// capabilities or only one.
type Capability interface {
	Provider

	GenerateText(ctx context.Context, prompt string, opts Options) (*TextResult, error)
	GenerateImage(ctx context.Context, prompt string, opts Options) (*ImageResult, error)
	GenerateVideo(ctx context.Context, prompt string, opts Options) (*VideoResult, error)

	// SupportsStreaming reports whether StreamText delivers output incrementally.
	SupportsStreaming() bool
	// StreamText generates text and hands each chunk to onChunk as it
	// arrives. The returned result carries the full text. An error from
	// onChunk aborts the stream and is returned unchanged.
	StreamText(ctx context.Context, prompt string, opts Options, onChunk func(chunk string) error) (*TextResult, error)
}

// Factory creates a Capability from a generic config map.
type Factory func(cfg map[string]any) (Capability, error)

// Options are the per-call generation parameters.
type Options struct {
	Model        string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
	// Size is the image size hint, e.g. "1024x1024".
	Size string
	// Duration is the video length in seconds.
	Duration int
	Extra    map[string]any
}

// OptionsFrom builds call options from a node's capability hint.
func OptionsFrom(hint *recipe.CapabilityConfig, systemPrompt string) Options {
	opts := Options{SystemPrompt: systemPrompt}
	if hint == nil {
		return opts
	}
	opts.Model = hint.Model
	opts.Temperature = hint.Temperature
	opts.MaxTokens = hint.MaxTokens
	opts.Size = hint.Size
	opts.Duration = hint.Duration
	return opts
}

// Usage reports token consumption when the backend exposes it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// TextResult is the output of a text generation call.
type TextResult struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Usage Usage  `json:"usage"`
}

// ImageResult is the output of an image generation call.
type ImageResult struct {
	ImageURL      string `json:"imageUrl"`
	Model         string `json:"model,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// VideoResult is the output of a video generation call.
type VideoResult struct {
	VideoURL string `json:"videoUrl"`
	Model    string `json:"model,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// ErrUnsupported is wrapped by every UNSUPPORTED_CAPABILITY error.
var ErrUnsupported = stderrors.New("capability not supported")

// Unsupported returns the error a provider reports for a capability it lacks.
func Unsupported(providerName string, c recipe.Capability) error {
	return errors.Unsupported(providerName, string(c)).WithCause(ErrUnsupported)
}

// IsUnsupported reports whether err marks a missing capability.
func IsUnsupported(err error) bool {
	return stderrors.Is(err, ErrUnsupported)
}

// Unimplemented can be embedded by providers that serve only some
// capabilities. Every method reports the capability as unsupported.
type Unimplemented struct {
	// Provider is the name used in the returned errors.
	Provider string
}

func (u Unimplemented) GenerateText(context.Context, string, Options) (*TextResult, error) {
	return nil, Unsupported(u.Provider, recipe.CapabilityText)
}

func (u Unimplemented) GenerateImage(context.Context, string, Options) (*ImageResult, error) {
	return nil, Unsupported(u.Provider, recipe.CapabilityImage)
}

func (u Unimplemented) GenerateVideo(context.Context, string, Options) (*VideoResult, error) {
	return nil, Unsupported(u.Provider, recipe.CapabilityVideo)
}

func (u Unimplemented) SupportsStreaming() bool { return false }

func (u Unimplemented) StreamText(context.Context, string, Options, func(string) error) (*TextResult, error) {
	return nil, Unsupported(u.Provider, recipe.CapabilityText)
}

// Stream calls StreamText when p streams, otherwise it generates the whole
// text and delivers it as a single chunk.
func Stream(ctx context.Context, p Capability, prompt string, opts Options, onChunk func(string) error) (*TextResult, error) {
	if p.SupportsStreaming() {
		return p.StreamText(ctx, prompt, opts, onChunk)
	}
	res, err := p.GenerateText(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	if err := onChunk(res.Text); err != nil {
		return nil, err
	}
	return res, nil
}
