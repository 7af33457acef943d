package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/recipeflow/logger"
)

// InitMeter initializes the OpenTelemetry meter provider.
func InitMeter(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", cfg.ServiceName,
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}

// Meter returns the package meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Metrics holds the instruments recorded by the engine.
type Metrics struct {
	executionTotal    metric.Int64Counter
	executionDuration metric.Float64Histogram
	executionActive   metric.Int64UpDownCounter
	nodeTotal         metric.Int64Counter
	nodeDuration      metric.Float64Histogram
	nodeRetries       metric.Int64Counter
	providerCalls     metric.Int64Counter
	streamRecords     metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.executionTotal, err = meter.Int64Counter("recipe.execution.total",
		metric.WithDescription("Recipe executions by terminal status")); err != nil {
		return nil, fmt.Errorf("creating recipe.execution.total: %w", err)
	}
	if m.executionDuration, err = meter.Float64Histogram("recipe.execution.duration",
		metric.WithDescription("Recipe execution wall time"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating recipe.execution.duration: %w", err)
	}
	if m.executionActive, err = meter.Int64UpDownCounter("recipe.execution.active",
		metric.WithDescription("Recipe executions currently running")); err != nil {
		return nil, fmt.Errorf("creating recipe.execution.active: %w", err)
	}
	if m.nodeTotal, err = meter.Int64Counter("recipe.node.total",
		metric.WithDescription("Node executions by type and status")); err != nil {
		return nil, fmt.Errorf("creating recipe.node.total: %w", err)
	}
	if m.nodeDuration, err = meter.Float64Histogram("recipe.node.duration",
		metric.WithDescription("Node execution time including retries"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating recipe.node.duration: %w", err)
	}
	if m.nodeRetries, err = meter.Int64Counter("recipe.node.retries",
		metric.WithDescription("Node retry attempts")); err != nil {
		return nil, fmt.Errorf("creating recipe.node.retries: %w", err)
	}
	if m.providerCalls, err = meter.Int64Counter("provider.call.total",
		metric.WithDescription("Capability provider calls by provider, capability and status")); err != nil {
		return nil, fmt.Errorf("creating provider.call.total: %w", err)
	}
	if m.streamRecords, err = meter.Int64Counter("stream.records.total",
		metric.WithDescription("Records emitted or rejected by the streaming decoder")); err != nil {
		return nil, fmt.Errorf("creating stream.records.total: %w", err)
	}
	return &m, nil
}

// ExecutionStarted increments the active execution gauge.
func (m *Metrics) ExecutionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.executionActive.Add(ctx, 1)
}

// ExecutionFinished records a terminal execution.
func (m *Metrics) ExecutionFinished(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.executionActive.Add(ctx, -1)
	m.executionTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
	m.executionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

// RecordNode records one node result.
func (m *Metrics) RecordNode(ctx context.Context, nodeType, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrNodeType, nodeType),
		attribute.String(AttrStatus, status),
	)
	m.nodeTotal.Add(ctx, 1, attrs)
	m.nodeDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordRetry records a retry of a node.
func (m *Metrics) RecordRetry(ctx context.Context, nodeType string) {
	if m == nil {
		return
	}
	m.nodeRetries.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrNodeType, nodeType)))
}

// RecordProviderCall records one capability provider call.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, capability, status string) {
	if m == nil {
		return
	}
	m.providerCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrCapability, capability),
		attribute.String(AttrStatus, status),
	))
}

// RecordStreamRecords records decoder output; outcome is "emitted" or "rejected".
func (m *Metrics) RecordStreamRecords(ctx context.Context, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.streamRecords.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}
