package action

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/observability"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/stream"
)

func callOptions(req Request) provider.Options {
	opts := provider.OptionsFrom(req.Node.Capability, req.Node.SystemPrompt)
	opts.Model = req.Model
	if out := req.Node.Output; out != nil && (out.Format == recipe.FormatJSON || out.Format == recipe.FormatJSONArray) {
		opts.Extra = map[string]any{"format": "json"}
	}
	return opts
}

// TextGeneration calls GenerateText and normalizes the output according to
// the node's OutputSpec.
type TextGeneration struct {
	Metrics *observability.Metrics
}

func (TextGeneration) Type() recipe.NodeType { return recipe.NodeTextGeneration }

func (a TextGeneration) Execute(ctx context.Context, req Request) (Output, error) {
	spec := req.Node.Output
	if spec != nil && len(spec.RequiredFields) > 0 && spec.Format != recipe.FormatJSON {
		return a.records(ctx, req)
	}

	res, err := req.Provider.GenerateText(ctx, req.Prompt, callOptions(req))
	if err != nil {
		return Output{}, err
	}
	v, err := normalizeText(res.Text, spec)
	if err != nil {
		return Output{}, err
	}
	return Output{Value: v, Model: res.Model}, nil
}

// records decodes an array of records through the brace decoder. Output is
// fed as it streams when the node asks for it and the provider can.
func (a TextGeneration) records(ctx context.Context, req Request) (Output, error) {
	spec := req.Node.Output
	var out []any
	dec := stream.NewBraceDecoder(stream.Options{
		Validate: stream.RequireFields(spec.RequiredFields...),
		Expected: spec.ExpectedCount,
		OnRecord: func(r stream.Record) error {
			out = append(out, r.Data)
			if req.OnRecord != nil {
				req.OnRecord(r)
			}
			return nil
		},
	})

	opts := callOptions(req)
	var (
		res *provider.TextResult
		err error
	)
	if hint := req.Node.Capability; hint != nil && hint.Stream {
		res, err = provider.Stream(ctx, req.Provider, req.Prompt, opts, dec.Feed)
	} else {
		res, err = req.Provider.GenerateText(ctx, req.Prompt, opts)
		if err == nil {
			err = dec.Feed(res.Text)
		}
	}
	if err != nil {
		return Output{}, err
	}

	n, err := dec.Close()
	a.Metrics.RecordStreamRecords(ctx, "emitted", n)
	a.Metrics.RecordStreamRecords(ctx, "rejected", dec.Rejected())
	if stderrors.Is(err, stream.ErrNoRecords) {
		return Output{}, errors.Parse(fmt.Sprintf("no valid records in output (%d rejected)", dec.Rejected())).
			WithCause(err).
			WithDetail("required_fields", spec.RequiredFields)
	}
	if err != nil {
		return Output{}, err
	}
	return Output{Value: out, Model: res.Model}, nil
}

// normalizeText shapes raw model text. Without required fields, output that
// does not parse falls back to the raw text.
func normalizeText(text string, spec *recipe.OutputSpec) (any, error) {
	if spec == nil || spec.Format == "" || spec.Format == recipe.FormatText {
		return text, nil
	}

	v, err := stream.ParseJSON(text)
	if spec.Format == recipe.FormatJSONArray {
		if arr, ok := v.([]any); ok && err == nil {
			return arr, nil
		}
		// Arrays wrapped in prose or cut short still yield their complete records.
		if recs, derr := stream.DecodeArray(text, nil); derr == nil {
			arr := make([]any, len(recs))
			for i, r := range recs {
				arr[i] = r.Data
			}
			return arr, nil
		}
		return text, nil
	}

	if err != nil {
		if len(spec.RequiredFields) > 0 {
			return nil, errors.Parse("output is not valid JSON").WithCause(err)
		}
		return text, nil
	}
	if len(spec.RequiredFields) > 0 {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, errors.Parse("output is not a JSON object")
		}
		if err := stream.RequireFields(spec.RequiredFields...)(obj); err != nil {
			return nil, errors.Parse(err.Error()).WithCause(err)
		}
	}
	return v, nil
}

// ImageGeneration calls GenerateImage.
type ImageGeneration struct{}

func (ImageGeneration) Type() recipe.NodeType { return recipe.NodeImageGeneration }

func (ImageGeneration) Execute(ctx context.Context, req Request) (Output, error) {
	res, err := req.Provider.GenerateImage(ctx, req.Prompt, callOptions(req))
	if err != nil {
		return Output{}, err
	}
	if res.ImageURL == "" {
		return Output{}, errors.Parse("provider returned no image url")
	}
	v := map[string]any{"imageUrl": res.ImageURL}
	if res.RevisedPrompt != "" {
		v["revisedPrompt"] = res.RevisedPrompt
	}
	return Output{Value: v, Model: res.Model}, nil
}

// VideoGeneration calls GenerateVideo.
type VideoGeneration struct{}

func (VideoGeneration) Type() recipe.NodeType { return recipe.NodeVideoGeneration }

func (VideoGeneration) Execute(ctx context.Context, req Request) (Output, error) {
	res, err := req.Provider.GenerateVideo(ctx, req.Prompt, callOptions(req))
	if err != nil {
		return Output{}, err
	}
	if res.VideoURL == "" {
		return Output{}, errors.Parse("provider returned no video url")
	}
	v := map[string]any{"videoUrl": res.VideoURL}
	if res.Duration > 0 {
		v["duration"] = res.Duration
	}
	return Output{Value: v, Model: res.Model}, nil
}
