package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// NotFound creates a new AppError for a key that holds no entry.
func NotFound(resource, key string) *AppError {
	details := map[string]any{"resource": resource}
	if key != "" {
		details["key"] = key
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("No %s is stored.", resource),
		HTTPStatus: http.StatusNotFound, Details: details,
	}
}

// VersionMismatch creates a new AppError for an entry written under another schema version.
func VersionMismatch(key string, want, got int) *AppError {
	return &AppError{
		Code: ErrCodeVersionMismatch, Message: fmt.Sprintf("Stored entry has version %d, want %d.", got, want),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"key": key, "want": want, "got": got},
	}
}

// Stale creates a new AppError for a cached entry past its freshness window.
func Stale(resource string) *AppError {
	return &AppError{
		Code: ErrCodeStale, Message: fmt.Sprintf("The cached %s is stale.", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"resource": resource},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}

// Serialization creates a new AppError for a record that could not be encoded or decoded.
func Serialization(key string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSerialization, Message: "Stored record is malformed or incompatible.",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"key": key}, Cause: cause,
	}
}

// StorageRead creates a new AppError for a failed read from the backing store.
func StorageRead(backend, key string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStorageRead, Message: fmt.Sprintf("The %s store could not be read.", backend),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"backend": backend, "key": key}, Cause: cause,
	}
}

// StorageWrite creates a new AppError for a failed write or delete on the backing store.
func StorageWrite(backend, key string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStorageWrite, Message: fmt.Sprintf("The %s store could not be written.", backend),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"backend": backend, "key": key}, Cause: cause,
	}
}

// QuotaExceeded creates a new AppError for a write rejected for lack of space.
func QuotaExceeded(backend string, limit int) *AppError {
	return &AppError{
		Code: ErrCodeQuotaExceeded, Message: fmt.Sprintf("The %s store is full.", backend),
		HTTPStatus: http.StatusInsufficientStorage,
		Details:    map[string]any{"backend": backend, "limit": limit},
	}
}

// Provider creates a new AppError for a failed authentication provider call.
func Provider(operation string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeProvider, Message: "The authentication provider encountered an error.",
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"operation": operation}, Cause: cause,
	}
}

// Unauthorized creates a new AppError for a missing session.
func Unauthorized(reason string) *AppError {
	if reason == "" {
		reason = "Authentication required."
	}
	return &AppError{
		Code: ErrCodeUnauthorized, Message: reason,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// TokenExpired creates a new AppError for an expired session token.
func TokenExpired() *AppError {
	return &AppError{
		Code: ErrCodeTokenExpired, Message: "Your session has expired. Please sign in again.",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// InvalidToken creates a new AppError for a session token that failed verification.
func InvalidToken(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInvalidToken, Message: "Invalid session token. Please sign in again.",
		HTTPStatus: http.StatusUnauthorized, Cause: cause,
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}
