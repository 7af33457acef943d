// Package errors provides the unified error type used across recipe
// validation, capability resolution and execution. Every failure surfaced by
// the engine carries a machine-readable code, a retryable flag and optional
// structured details so it can be recorded on an execution as-is.
package errors
