package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.ServiceName != "recipeflow" || cfg.SampleRate != 1.0 || cfg.Interval != 15*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error %v", err)
	}
	cfg.SampleRate = 2
	if cfg.Validate() == nil {
		t.Error("expected sample rate validation error")
	}
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), SpanNodeExecute)
	SetSpanAttributes(ctx, attribute.String(AttrNodeID, "n1"))
	AddSpanEvent(ctx, "retry", attribute.Int(AttrAttempt, 2))
	SetSpanError(ctx, errors.New("provider down"))
	SetSpanError(ctx, nil)
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	s := ended[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status())
	}
	found := false
	for _, a := range s.Attributes() {
		if a.Key == AttrNodeID && a.Value.AsString() == "n1" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing node attribute in %v", s.Attributes())
	}
	if len(s.Events()) < 2 {
		t.Errorf("expected retry and exception events, got %d", len(s.Events()))
	}
}

func TestSpanHelpers_NoSpan(t *testing.T) {
	ctx := context.Background()
	SetSpanAttributes(ctx, attribute.String("k", "v"))
	SetSpanError(ctx, errors.New("x"))
	AddSpanEvent(ctx, "e")
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.ExecutionStarted(ctx)
	m.RecordNode(ctx, "text_generation", "completed", time.Second)
	m.RecordRetry(ctx, "text_generation")
	m.RecordProviderCall(ctx, "ollama", "textGeneration", "ok")
	m.RecordStreamRecords(ctx, "emitted", 3)
	m.ExecutionFinished(ctx, "completed", 2*time.Second)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	for _, want := range []string{
		"recipe.execution.total", "recipe.execution.duration", "recipe.node.total",
		"recipe.node.retries", "provider.call.total", "stream.records.total",
	} {
		if !names[want] {
			t.Errorf("metric %s not recorded (have %v)", want, names)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.ExecutionStarted(ctx)
	m.ExecutionFinished(ctx, "failed", 0)
	m.RecordNode(ctx, "x", "failed", 0)
	m.RecordRetry(ctx, "x")
	m.RecordProviderCall(ctx, "p", "c", "error")
	m.RecordStreamRecords(ctx, "rejected", 1)
}
