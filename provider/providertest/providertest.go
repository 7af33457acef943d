// Package providertest provides a scriptable in-memory capability provider
// for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/recipe"
)

// Request records one call made to a Fake.
type Request struct {
	Capability recipe.Capability
	Prompt     string
	Options    provider.Options
	Stream     bool
}

// Fake is a provider whose behavior is set up by the test. By default it
// echoes the prompt for text and returns fixed URLs for image and video.
type Fake struct {
	name string

	mu          sync.Mutex
	available   bool
	streaming   bool
	chunks      []string
	text        func(prompt string) (string, error)
	unsupported map[recipe.Capability]bool
	failures    []error
	cutoffs     []error
	calls       []Request
}

// New returns an available, non-streaming Fake named name.
func New(name string) *Fake {
	return &Fake{
		name:        name,
		available:   true,
		unsupported: make(map[recipe.Capability]bool),
	}
}

// WithText makes text calls return text.
func (f *Fake) WithText(text string) *Fake {
	return f.WithTextFunc(func(string) (string, error) { return text, nil })
}

// WithTextFunc computes the text output from the prompt.
func (f *Fake) WithTextFunc(fn func(prompt string) (string, error)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = fn
	return f
}

// WithChunks turns streaming on and delivers chunks one by one.
func (f *Fake) WithChunks(chunks ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = true
	f.chunks = chunks
	return f
}

// FailTimes makes the next n calls fail with err.
func (f *Fake) FailTimes(n int, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for range n {
		f.failures = append(f.failures, err)
	}
	return f
}

// CutStreamTimes makes the next n streams fail with err after delivering
// all but the last chunk.
func (f *Fake) CutStreamTimes(n int, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for range n {
		f.cutoffs = append(f.cutoffs, err)
	}
	return f
}

// Without marks capabilities as unsupported.
func (f *Fake) Without(caps ...recipe.Capability) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range caps {
		f.unsupported[c] = true
	}
	return f
}

// SetAvailable flips the availability reported to selectors.
func (f *Fake) SetAvailable(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = ok
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Factory returns a provider.Factory that always hands out f.
func (f *Fake) Factory() provider.Factory {
	return func(map[string]any) (provider.Capability, error) { return f, nil }
}

func (f *Fake) Name() string { return f.name }

func (f *Fake) IsAvailable(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *Fake) SupportsStreaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming
}

// begin records the call and returns the scripted error, if any.
func (f *Fake) begin(ctx context.Context, req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.unsupported[req.Capability] {
		return provider.Unsupported(f.name, req.Capability)
	}
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	return nil
}

func (f *Fake) GenerateText(ctx context.Context, prompt string, opts provider.Options) (*provider.TextResult, error) {
	if err := f.begin(ctx, Request{Capability: recipe.CapabilityText, Prompt: prompt, Options: opts}); err != nil {
		return nil, err
	}
	text, err := f.render(prompt)
	if err != nil {
		return nil, err
	}
	return &provider.TextResult{Text: text, Model: opts.Model}, nil
}

func (f *Fake) GenerateImage(ctx context.Context, prompt string, opts provider.Options) (*provider.ImageResult, error) {
	if err := f.begin(ctx, Request{Capability: recipe.CapabilityImage, Prompt: prompt, Options: opts}); err != nil {
		return nil, err
	}
	return &provider.ImageResult{ImageURL: fmt.Sprintf("https://%s.test/image/%d.png", f.name, f.CallCount()), Model: opts.Model}, nil
}

func (f *Fake) GenerateVideo(ctx context.Context, prompt string, opts provider.Options) (*provider.VideoResult, error) {
	if err := f.begin(ctx, Request{Capability: recipe.CapabilityVideo, Prompt: prompt, Options: opts}); err != nil {
		return nil, err
	}
	return &provider.VideoResult{
		VideoURL: fmt.Sprintf("https://%s.test/video/%d.mp4", f.name, f.CallCount()),
		Model:    opts.Model,
		Duration: opts.Duration,
	}, nil
}

func (f *Fake) StreamText(ctx context.Context, prompt string, opts provider.Options, onChunk func(string) error) (*provider.TextResult, error) {
	if err := f.begin(ctx, Request{Capability: recipe.CapabilityText, Prompt: prompt, Options: opts, Stream: true}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	chunks := f.chunks
	var cut error
	if len(f.cutoffs) > 0 {
		cut, f.cutoffs = f.cutoffs[0], f.cutoffs[1:]
	}
	f.mu.Unlock()
	if len(chunks) == 0 {
		text, err := f.render(prompt)
		if err != nil {
			return nil, err
		}
		chunks = []string{text}
	}

	var full string
	for i, c := range chunks {
		if cut != nil && i == len(chunks)-1 {
			return nil, cut
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := onChunk(c); err != nil {
			return nil, err
		}
		full += c
	}
	return &provider.TextResult{Text: full, Model: opts.Model}, nil
}

func (f *Fake) render(prompt string) (string, error) {
	f.mu.Lock()
	fn := f.text
	f.mu.Unlock()
	if fn == nil {
		return "echo: " + prompt, nil
	}
	return fn(prompt)
}
