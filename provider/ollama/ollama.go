// Package ollama implements a text generation provider backed by Ollama's
// HTTP chat API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/provider"
)

const (
	// ProviderName is the registered name for the Ollama provider.
	ProviderName = "ollama"

	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3"
	defaultTimeout     = 120 * time.Second
)

// Config holds configuration for the Ollama provider.
type Config struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultOllamaURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = defaultOllamaModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// ToMap converts the config to the generic map a provider.Factory takes.
func (c Config) ToMap() map[string]any {
	return map[string]any{
		"base_url":    c.BaseURL,
		"model":       c.Model,
		"temperature": c.Temperature,
		"timeout":     c.Timeout,
	}
}

// Provider implements provider.Capability for text generation. Image and
// video generation are reported as unsupported.
type Provider struct {
	provider.Unimplemented
	cfg    Config
	client *http.Client
}

// NewProvider creates a new Ollama provider.
func NewProvider(cfg Config) *Provider {
	cfg.ApplyDefaults()
	return &Provider{
		Unimplemented: provider.Unimplemented{Provider: ProviderName},
		cfg:           cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Factory returns a provider.Factory that creates Ollama Provider instances
// from a generic config map.
func Factory() provider.Factory {
	return func(cfg map[string]any) (provider.Capability, error) {
		oc := Config{}
		if v, ok := cfg["base_url"].(string); ok {
			oc.BaseURL = v
		}
		if v, ok := cfg["model"].(string); ok {
			oc.Model = v
		}
		if v, ok := cfg["temperature"].(float64); ok {
			oc.Temperature = v
		}
		switch v := cfg["timeout"].(type) {
		case time.Duration:
			oc.Timeout = v
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, errors.InvalidInput("timeout", err.Error())
			}
			oc.Timeout = d
		}
		return NewProvider(oc), nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the Ollama server is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/tags", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SupportsStreaming reports true: /api/chat streams NDJSON.
func (p *Provider) SupportsStreaming() bool { return true }

// GenerateText sends a chat request and returns the full response.
func (p *Provider) GenerateText(ctx context.Context, prompt string, opts provider.Options) (*provider.TextResult, error) {
	httpResp, err := p.post(ctx, p.buildChatRequest(prompt, opts, false))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close() //nolint:errcheck // Error on close is safe to ignore for read operations

	var resp ollamaChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, errors.Provider(ProviderName, fmt.Errorf("decode response: %w", err))
	}
	return toResult(resp, resp.Message.Content), nil
}

// StreamText sends a streaming chat request and passes every content
// delta to onChunk.
func (p *Provider) StreamText(ctx context.Context, prompt string, opts provider.Options, onChunk func(string) error) (*provider.TextResult, error) {
	httpResp, err := p.post(ctx, p.buildChatRequest(prompt, opts, true))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close() //nolint:errcheck // Error on close is safe to ignore for read operations

	var full strings.Builder
	var last ollamaChatResponse
	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp ollamaChatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, errors.Provider(ProviderName, fmt.Errorf("unmarshal chunk: %w", err))
		}
		if resp.Error != "" {
			return nil, errors.Provider(ProviderName, fmt.Errorf("stream: %s", resp.Error))
		}
		if resp.Message.Content != "" {
			full.WriteString(resp.Message.Content)
			if err := onChunk(resp.Message.Content); err != nil {
				return nil, err
			}
		}
		last = resp
		if resp.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Provider(ProviderName, fmt.Errorf("read stream: %w", err))
	}
	return toResult(last, full.String()), nil
}

// --- internal Ollama API types ---

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   any                 `json:"format,omitempty"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	Error           string            `json:"error,omitempty"`
	PromptEvalCount int               `json:"prompt_eval_count,omitempty"`
	EvalCount       int               `json:"eval_count,omitempty"`
}

// buildChatRequest creates an Ollama API request from a prompt and options.
func (p *Provider) buildChatRequest(prompt string, opts provider.Options, stream bool) ollamaChatRequest {
	model := p.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}

	// An explicit zero from the node is sent; a zero config means the
	// server default.
	o := &ollamaOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens}
	if o.Temperature == nil && p.cfg.Temperature != 0 {
		t := p.cfg.Temperature
		o.Temperature = &t
	}
	if o.Temperature == nil && o.NumPredict == 0 {
		o = nil
	}

	msgs := make([]ollamaChatMessage, 0, 2)
	if opts.SystemPrompt != "" {
		msgs = append(msgs, ollamaChatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	msgs = append(msgs, ollamaChatMessage{Role: "user", Content: prompt})

	req := ollamaChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
		Options:  o,
	}
	if f, ok := opts.Extra["format"]; ok {
		req.Format = f
	}
	return req
}

// post marshals the request and sends it to /api/chat. The caller closes
// the body of a successful response.
func (p *Provider) post(ctx context.Context, req ollamaChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("ollama: marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("ollama: create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Provider(ProviderName, fmt.Errorf("send request: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		_ = httpResp.Body.Close()
		appErr := errors.Provider(ProviderName, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))).
			WithDetail("status", httpResp.StatusCode)
		appErr.Retryable = httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests
		return nil, appErr
	}
	return httpResp, nil
}

func toResult(resp ollamaChatResponse, text string) *provider.TextResult {
	return &provider.TextResult{
		Text:  text,
		Model: resp.Model,
		Usage: provider.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}
}
