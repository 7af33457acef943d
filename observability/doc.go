// Package observability wires OpenTelemetry tracing and metrics for recipe
// executions.
//
// Init installs OTLP/HTTP exporters when enabled; otherwise the global no-op
// providers stay in place and every helper here is safe to call. Metrics
// methods are nil-safe so components can run without instruments.
package observability
