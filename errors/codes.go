package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Resource errors
const (
	// ErrCodeNotFound indicates the requested entry was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeVersionMismatch indicates a stored entry was written with another schema version.
	ErrCodeVersionMismatch ErrorCode = "VERSION_MISMATCH"
	// ErrCodeStale indicates a cached entry is older than its freshness window.
	ErrCodeStale ErrorCode = "STALE"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Storage errors
const (
	// ErrCodeSerialization indicates a stored record could not be encoded or decoded.
	ErrCodeSerialization ErrorCode = "SERIALIZATION_FAILED"
	// ErrCodeStorageRead indicates the backing store failed a read.
	ErrCodeStorageRead ErrorCode = "STORAGE_READ_FAILED"
	// ErrCodeStorageWrite indicates the backing store failed a write or delete.
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE_FAILED"
	// ErrCodeQuotaExceeded indicates the backing store rejected a write for lack of space.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
)

// Authentication errors
const (
	// ErrCodeProvider indicates the external authentication provider failed.
	ErrCodeProvider ErrorCode = "PROVIDER_ERROR"
	// ErrCodeUnauthorized indicates there is no authenticated session.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeTokenExpired indicates the session token has expired.
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
	// ErrCodeInvalidToken indicates the session token failed verification.
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeStorageRead:  true,
	ErrCodeStorageWrite: true,
	ErrCodeProvider:     true,
	ErrCodeInternal:     false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
