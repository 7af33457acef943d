package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Recipe definition errors
const (
	// ErrCodeStructural indicates an invalid recipe graph (cycle, dangling edge, duplicate id).
	ErrCodeStructural ErrorCode = "STRUCTURAL_ERROR"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Execution errors
const (
	// ErrCodeResolution indicates a node input mapping could not be resolved.
	ErrCodeResolution ErrorCode = "RESOLUTION_ERROR"
	// ErrCodeNoCapability indicates no provider is configured for a capability at any tier.
	ErrCodeNoCapability ErrorCode = "NO_CAPABILITY_CONFIGURED"
	// ErrCodeUnsupported indicates a provider does not implement the requested capability.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED_CAPABILITY"
	// ErrCodeProvider indicates a capability provider call failed.
	ErrCodeProvider ErrorCode = "PROVIDER_ERROR"
	// ErrCodeParse indicates provider output could not be turned into structured records.
	ErrCodeParse ErrorCode = "PARSE_ERROR"
	// ErrCodeTimeout indicates the call timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeServiceUnavailable indicates a dependency is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates a conflict with the current state of the resource.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeStore indicates a document store failure.
	ErrCodeStore ErrorCode = "STORE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeProvider:           true,
	ErrCodeParse:              true,
	ErrCodeTimeout:            true,
	ErrCodeServiceUnavailable: true,
	ErrCodeStore:              true,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
