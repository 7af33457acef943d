package action

import (
	"context"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/provider/providertest"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/stream"
)

func textNode(policy recipe.ErrorPolicy) *recipe.Node {
	return &recipe.Node{
		ID:            "write",
		Type:          recipe.NodeTextGeneration,
		OutputKey:     "draft",
		Prompt:        "Write about {{topic}} for {{audience.name}}",
		Capability:    &recipe.CapabilityConfig{Model: "m1"},
		ErrorPolicy:   policy,
		DefaultOutput: "fallback text",
	}
}

func TestDispatchText(t *testing.T) {
	fake := providertest.New("fake")
	d := NewDispatcher()

	res, err := d.Dispatch(context.Background(), Call{
		Node:     textNode(""),
		Input:    map[string]any{"topic": "go", "audience": map[string]any{"name": "devs"}},
		Provider: fake,
		Model:    "m1",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != recipe.ResultCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	if res.Output != "echo: Write about go for devs" {
		t.Errorf("unexpected output %v", res.Output)
	}
	if res.Provider != "fake" || res.Model != "m1" || res.NodeID != "write" {
		t.Errorf("unexpected result metadata %+v", res)
	}
	if res.StartedAt.IsZero() || res.CompletedAt.Before(res.StartedAt) {
		t.Errorf("timing not recorded: %+v", res)
	}
	if calls := fake.Calls(); len(calls) != 1 || calls[0].Options.Model != "m1" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestDispatchPolicies(t *testing.T) {
	boom := stderrors.New("upstream 500")
	tests := []struct {
		policy     recipe.ErrorPolicy
		wantStatus recipe.ResultStatus
		wantErr    bool
		wantOutput any
	}{
		{"", recipe.ResultFailed, true, nil},
		{recipe.PolicyFail, recipe.ResultFailed, true, nil},
		{recipe.PolicyRetry, recipe.ResultFailed, true, nil},
		{recipe.PolicySkip, recipe.ResultSkipped, false, "fallback text"},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy.OrDefault()), func(t *testing.T) {
			fake := providertest.New("fake").FailTimes(1, boom)
			res, err := NewDispatcher().Dispatch(context.Background(), Call{
				Node: textNode(tt.policy), Input: map[string]any{}, Provider: fake,
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, res.Status)
			}
			if res.Output != tt.wantOutput {
				t.Errorf("expected output %v, got %v", tt.wantOutput, res.Output)
			}
			if res.ErrorCode != string(errors.ErrCodeProvider) {
				t.Errorf("expected PROVIDER_ERROR, got %q", res.ErrorCode)
			}
			if !strings.Contains(res.Error, "upstream 500") {
				t.Errorf("expected cause in error, got %q", res.Error)
			}
			if err != nil && !stderrors.Is(err, boom) {
				t.Errorf("expected wrapped cause, got %v", err)
			}
		})
	}
}

type blockingProvider struct {
	provider.Unimplemented
}

func (blockingProvider) Name() string                     { return "slow" }
func (blockingProvider) IsAvailable(context.Context) bool { return true }

func (blockingProvider) GenerateText(ctx context.Context, _ string, _ provider.Options) (*provider.TextResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDispatchTimeout(t *testing.T) {
	node := textNode(recipe.PolicyFail)
	node.TimeoutMs = 20

	start := time.Now()
	res, err := NewDispatcher().Dispatch(context.Background(), Call{
		Node: node, Input: map[string]any{}, Provider: blockingProvider{Unimplemented: provider.Unimplemented{Provider: "slow"}},
	})
	if !errors.HasCode(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if res.ErrorCode != string(errors.ErrCodeTimeout) {
		t.Errorf("unexpected error code %q", res.ErrorCode)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not applied")
	}
}

func TestDispatchUnsupported(t *testing.T) {
	fake := providertest.New("fake").Without(recipe.CapabilityImage)
	node := &recipe.Node{ID: "img", Type: recipe.NodeImageGeneration, Capability: &recipe.CapabilityConfig{}}
	_, err := NewDispatcher().Dispatch(context.Background(), Call{Node: node, Provider: fake})
	if !errors.HasCode(err, errors.ErrCodeUnsupported) || !provider.IsUnsupported(err) {
		t.Fatalf("expected UNSUPPORTED_CAPABILITY, got %v", err)
	}
}

func TestDispatchMissingProvider(t *testing.T) {
	_, err := NewDispatcher().Dispatch(context.Background(), Call{Node: textNode("")})
	if !errors.HasCode(err, errors.ErrCodeNoCapability) {
		t.Fatalf("expected NO_CAPABILITY_CONFIGURED, got %v", err)
	}
}

func TestDispatchImageAndVideo(t *testing.T) {
	fake := providertest.New("fake")
	d := NewDispatcher()

	img, err := d.Dispatch(context.Background(), Call{
		Node:     &recipe.Node{ID: "img", Type: recipe.NodeImageGeneration, Prompt: "a cat", Capability: &recipe.CapabilityConfig{Size: "512x512"}},
		Provider: fake,
	})
	if err != nil {
		t.Fatalf("image dispatch failed: %v", err)
	}
	out, ok := img.Output.(map[string]any)
	if !ok || !strings.HasPrefix(out["imageUrl"].(string), "https://fake.test/image/") {
		t.Errorf("unexpected image output %#v", img.Output)
	}
	if fake.Calls()[0].Options.Size != "512x512" {
		t.Errorf("size hint not forwarded")
	}

	vid, err := d.Dispatch(context.Background(), Call{
		Node:     &recipe.Node{ID: "vid", Type: recipe.NodeVideoGeneration, Prompt: "waves", Capability: &recipe.CapabilityConfig{Duration: 5}},
		Provider: fake,
	})
	if err != nil {
		t.Fatalf("video dispatch failed: %v", err)
	}
	if v := vid.Output.(map[string]any); v["duration"] != 5 {
		t.Errorf("unexpected video output %#v", v)
	}
}

func TestDispatchRecords(t *testing.T) {
	body := "```json\n[{\"title\":\"a\"},{\"title\":\"\"},{\"title\":\"b\"}]\n```"
	node := &recipe.Node{
		ID: "ideas", Type: recipe.NodeTextGeneration, Prompt: "ideas",
		Capability: &recipe.CapabilityConfig{},
		Output:     &recipe.OutputSpec{Format: recipe.FormatJSONArray, RequiredFields: []string{"title"}, ExpectedCount: 2},
	}

	t.Run("single shot", func(t *testing.T) {
		res, err := NewDispatcher().Dispatch(context.Background(), Call{
			Node: node, Provider: providertest.New("fake").WithText(body),
		})
		if err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
		want := []any{map[string]any{"title": "a"}, map[string]any{"title": "b"}}
		if !reflect.DeepEqual(res.Output, want) {
			t.Errorf("expected %v, got %v", want, res.Output)
		}
	})

	t.Run("streamed", func(t *testing.T) {
		streamed := *node
		streamed.Capability = &recipe.CapabilityConfig{Stream: true}
		fake := providertest.New("fake").WithChunks(`[{"tit`, `le":"a"},`, `{"title":"b"}]`)

		var progress []float64
		res, err := NewDispatcher().Dispatch(context.Background(), Call{
			Node: &streamed, Provider: fake,
			OnRecord: func(r stream.Record) { progress = append(progress, r.Progress) },
		})
		if err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
		if n := len(res.Output.([]any)); n != 2 {
			t.Errorf("expected 2 records, got %d", n)
		}
		if !reflect.DeepEqual(progress, []float64{0.5, 1}) {
			t.Errorf("unexpected progress %v", progress)
		}
		if !fake.Calls()[0].Stream {
			t.Error("expected streaming call")
		}
	})

	t.Run("no valid records", func(t *testing.T) {
		_, err := NewDispatcher().Dispatch(context.Background(), Call{
			Node: node, Provider: providertest.New("fake").WithText(`[{"other":1}]`),
		})
		if !errors.HasCode(err, errors.ErrCodeParse) {
			t.Fatalf("expected PARSE_ERROR, got %v", err)
		}
	})
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		spec    *recipe.OutputSpec
		want    any
		wantErr bool
	}{
		{"no spec", "hello", nil, "hello", false},
		{"json fenced", "```json\n{\"a\":1}\n```", &recipe.OutputSpec{Format: recipe.FormatJSON}, map[string]any{"a": float64(1)}, false},
		{"json fallback", "not json", &recipe.OutputSpec{Format: recipe.FormatJSON}, "not json", false},
		{"json required missing", `{"a":1}`, &recipe.OutputSpec{Format: recipe.FormatJSON, RequiredFields: []string{"b"}}, nil, true},
		{"json required bad", "nope", &recipe.OutputSpec{Format: recipe.FormatJSON, RequiredFields: []string{"b"}}, nil, true},
		{"array", `Sure: [1,2]`, &recipe.OutputSpec{Format: recipe.FormatJSONArray}, []any{float64(1), float64(2)}, false},
		{"truncated array", `[{"a":1},{"a":`, &recipe.OutputSpec{Format: recipe.FormatJSONArray}, []any{map[string]any{"a": float64(1)}}, false},
		{"array fallback", "no array here", &recipe.OutputSpec{Format: recipe.FormatJSONArray}, "no array here", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeText(tt.text, tt.spec)
			if tt.wantErr {
				if !errors.HasCode(err, errors.ErrCodeParse) {
					t.Fatalf("expected PARSE_ERROR, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestTemplateRenderer(t *testing.T) {
	input := map[string]any{"name": "Ada", "tags": []any{"x", "y"}, "n": 3}

	got, err := TemplateRenderer{}.Render("Hi {{ name }}, {{tags}} #{{n}} {{missing}}!", input)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != `Hi Ada, ["x","y"] #3 !` {
		t.Errorf("unexpected render %q", got)
	}

	_, err = TemplateRenderer{Strict: true}.Render("{{missing}}", input)
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT in strict mode, got %v", err)
	}
}

func TestPromptFallsBackToInput(t *testing.T) {
	fake := providertest.New("fake")
	node := &recipe.Node{ID: "t", Type: recipe.NodeTextGeneration, Capability: &recipe.CapabilityConfig{}}
	res, err := NewDispatcher().Dispatch(context.Background(), Call{
		Node: node, Input: map[string]any{"prompt": "from input"}, Provider: fake,
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Output != "echo: from input" {
		t.Errorf("unexpected output %v", res.Output)
	}
}

type upperAction struct{}

func (upperAction) Type() recipe.NodeType { return recipe.NodeTextGeneration }

func (upperAction) Execute(_ context.Context, req Request) (Output, error) {
	return Output{Value: strings.ToUpper(req.Prompt)}, nil
}

func TestWithActionReplacesBuiltin(t *testing.T) {
	d := NewDispatcher(WithAction(upperAction{}))
	res, err := d.Dispatch(context.Background(), Call{
		Node: &recipe.Node{ID: "t", Type: recipe.NodeTextGeneration, Prompt: "shout"}, Provider: providertest.New("fake"),
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Output != "SHOUT" {
		t.Errorf("unexpected output %v", res.Output)
	}
}
