package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/grantsnap/statekit/errors"
)

// MaxKeyLength bounds storage keys accepted from callers.
const MaxKeyLength = 256

// Validator collects field errors for values that arrive outside a struct,
// such as route parameters and token claims.
type Validator struct {
	errors []FieldError
}

// FieldError is one failed check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{}
}

// AddError records a failure for field.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any check failed.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns the recorded failures.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an INVALID_INPUT AppError listing every failure, or nil.
func (v *Validator) Validate() error {
	if !v.HasErrors() {
		return nil
	}
	return newFieldsError(v.errors)
}

// Required rejects empty and whitespace-only values.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// StorageKey checks a key supplied by a client: non-empty, at most
// MaxKeyLength bytes, no whitespace or control characters.
func (v *Validator) StorageKey(field, key string) *Validator {
	switch {
	case key == "":
		v.AddError(field, "is required")
	case len(key) > MaxKeyLength:
		v.AddError(field, fmt.Sprintf("must be at most %d bytes", MaxKeyLength))
	case strings.IndexFunc(key, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0:
		v.AddError(field, "must not contain whitespace or control characters")
	}
	return v
}

// Email accepts an empty value or one shaped like local@domain.
func (v *Validator) Email(field, value string) *Validator {
	if value == "" {
		return v
	}
	at := strings.LastIndexByte(value, '@')
	if at <= 0 || at == len(value)-1 || strings.ContainsAny(value, " \t\r\n") {
		v.AddError(field, "must be an email address")
	}
	return v
}

// Custom records message for field when condition is false.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddError(field, message)
	}
	return v
}

func newFieldsError(fields []FieldError) *errors.AppError {
	messages := make([]string, len(fields))
	for i, e := range fields {
		messages[i] = e.Field + ": " + e.Message
	}
	appErr := errors.Validation(strings.Join(messages, "; "))
	appErr.Details = map[string]any{"fields": fields}
	return appErr
}
