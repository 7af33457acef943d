// Package openai implements text and image generation against an
// OpenAI-compatible HTTP API. Text streams over server-sent events.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/provider"
)

const (
	// ProviderName is the registered name for the OpenAI provider.
	ProviderName = "openai"

	defaultBaseURL    = "https://api.openai.com/v1"
	defaultModel      = "gpt-4o-mini"
	defaultImageModel = "dall-e-3"
	defaultTimeout    = 120 * time.Second

	streamDone = "[DONE]"
)

// Config holds configuration for the OpenAI provider.
type Config struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	Model      string        `yaml:"model" mapstructure:"model"`
	ImageModel string        `yaml:"image_model" mapstructure:"image_model"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.ImageModel == "" {
		c.ImageModel = defaultImageModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// ToMap converts the config to the generic map a provider.Factory takes.
func (c Config) ToMap() map[string]any {
	return map[string]any{
		"base_url":    c.BaseURL,
		"api_key":     c.APIKey,
		"model":       c.Model,
		"image_model": c.ImageModel,
		"timeout":     c.Timeout,
	}
}

// Provider implements provider.Capability for text and image generation.
type Provider struct {
	provider.Unimplemented
	cfg    Config
	client *http.Client
}

// NewProvider creates a new OpenAI provider.
func NewProvider(cfg Config) *Provider {
	cfg.ApplyDefaults()
	return &Provider{
		Unimplemented: provider.Unimplemented{Provider: ProviderName},
		cfg:           cfg,
		client:        &http.Client{Timeout: cfg.Timeout},
	}
}

// Factory returns a provider.Factory building a Provider from a config map.
func Factory() provider.Factory {
	return func(cfg map[string]any) (provider.Capability, error) {
		var c Config
		c.BaseURL, _ = cfg["base_url"].(string)
		c.APIKey, _ = cfg["api_key"].(string)
		c.Model, _ = cfg["model"].(string)
		c.ImageModel, _ = cfg["image_model"].(string)
		switch v := cfg["timeout"].(type) {
		case time.Duration:
			c.Timeout = v
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, errors.InvalidInput("timeout", err.Error())
			}
			c.Timeout = d
		}
		return NewProvider(c), nil
	}
}

func (p *Provider) Name() string { return ProviderName }

// IsAvailable lists models to check the endpoint and credentials.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", http.NoBody)
	if err != nil {
		return false
	}
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *Provider) SupportsStreaming() bool { return true }

// GenerateText calls /chat/completions and returns the first choice.
func (p *Provider) GenerateText(ctx context.Context, prompt string, opts provider.Options) (*provider.TextResult, error) {
	var resp chatResponse
	if err := p.postJSON(ctx, "/chat/completions", p.buildChatRequest(prompt, opts, false), &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Provider(ProviderName, stderrors.New("response has no choices"))
	}
	return &provider.TextResult{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: resp.Usage.toUsage(),
	}, nil
}

// StreamText calls /chat/completions with stream set and passes every
// content delta to onChunk.
func (p *Provider) StreamText(ctx context.Context, prompt string, opts provider.Options, onChunk func(string) error) (*provider.TextResult, error) {
	httpResp, err := p.post(ctx, "/chat/completions", p.buildChatRequest(prompt, opts, true))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close() //nolint:errcheck // Error on close is safe to ignore for read operations

	var (
		full  strings.Builder
		model string
		usage chatUsage
	)
	events := newSSEReader(httpResp.Body)
	for {
		ev, err := events.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Provider(ProviderName, fmt.Errorf("read stream: %w", err))
		}
		if ev.Data == streamDone {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			return nil, errors.Provider(ProviderName, fmt.Errorf("unmarshal chunk: %w", err))
		}
		if chunk.Error != nil {
			return nil, errors.Provider(ProviderName, fmt.Errorf("stream: %s", chunk.Error.Message))
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage.TotalTokens > 0 {
			usage = chunk.Usage
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			full.WriteString(c.Delta.Content)
			if err := onChunk(c.Delta.Content); err != nil {
				return nil, err
			}
		}
	}
	return &provider.TextResult{Text: full.String(), Model: model, Usage: usage.toUsage()}, nil
}

// GenerateImage calls /images/generations and returns the first image URL.
func (p *Provider) GenerateImage(ctx context.Context, prompt string, opts provider.Options) (*provider.ImageResult, error) {
	model := p.cfg.ImageModel
	if opts.Model != "" {
		model = opts.Model
	}
	req := imageRequest{Model: model, Prompt: prompt, N: 1, Size: opts.Size, ResponseFormat: "url"}

	var resp imageResponse
	if err := p.postJSON(ctx, "/images/generations", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, errors.Provider(ProviderName, stderrors.New("response has no image url"))
	}
	return &provider.ImageResult{
		ImageURL:      resp.Data[0].URL,
		Model:         model,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}, nil
}

// --- internal API types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u chatUsage) toUsage() provider.Usage {
	return provider.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
		Delta   chatMessage `json:"delta"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func (p *Provider) buildChatRequest(prompt string, opts provider.Options, stream bool) chatRequest {
	model := p.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	msgs := make([]chatMessage, 0, 2)
	if opts.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       model,
		Messages:    msgs,
		Stream:      stream,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if f, _ := opts.Extra["format"].(string); f == "json" {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req
}

func (p *Provider) authorize(req *http.Request) {
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}

// postJSON sends body and decodes the response into out.
func (p *Provider) postJSON(ctx context.Context, path string, body, out any) error {
	httpResp, err := p.post(ctx, path, body)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close() //nolint:errcheck // Error on close is safe to ignore for read operations
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return errors.Provider(ProviderName, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// post sends body to path. The caller closes the body of a successful
// response.
func (p *Provider) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("openai: marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("openai: create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.authorize(httpReq)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Provider(ProviderName, fmt.Errorf("send request: %w", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError(httpResp)
	}
	return httpResp, nil
}

// statusError converts a non-200 response, preferring the API's error
// message over the raw body.
func statusError(resp *http.Response) error {
	defer resp.Body.Close() //nolint:errcheck // Error on close is safe to ignore for read operations
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var body struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	appErr := errors.Provider(ProviderName, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)).
		WithDetail("status", resp.StatusCode)
	appErr.Retryable = resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return appErr
}
