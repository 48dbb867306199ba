// Package errors provides coded errors for posterforge. Codes categorize
// failures for job records and map onto HTTP statuses at the API boundary.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents an error code for categorization.
type Code string

// Generic codes.
const (
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeTimeout       Code = "TIMEOUT"
	CodeUnavailable   Code = "UNAVAILABLE"
)

// Render-pipeline codes.
const (
	CodeInvalidTheme        Code = "INVALID_THEME"
	CodeRenderFailed        Code = "RENDER_FAILED"
	CodeArtifactNotProduced Code = "ARTIFACT_NOT_PRODUCED"
	CodeJobNotReady         Code = "JOB_NOT_READY"
	CodeGateBusy            Code = "GATE_BUSY"
	CodeMissingCacheKey     Code = "MISSING_CACHE_KEY"
)

// Error is a coded error with operation context.
type Error struct {
	// Code is the error code for categorization.
	Code Code
	// Message is the human-readable error message.
	Message string
	// Op is the operation that failed (e.g. "orchestrator.submit").
	Op string
	// Err is the underlying error.
	Err error
	// Fields contains additional context fields.
	Fields map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString("[")
		b.WriteString(string(e.Code))
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithField adds a context field to the error.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidTheme:
		return 400
	case CodeNotFound:
		return 404
	case CodeConflict, CodeAlreadyExists, CodeJobNotReady:
		return 409
	case CodeRenderFailed, CodeArtifactNotProduced:
		return 502
	case CodeUnavailable, CodeGateBusy:
		return 503
	case CodeTimeout:
		return 504
	default:
		return 500
	}
}

// New creates a new error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with operation context. The code of an
// already-coded error is preserved.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Code: e.Code, Message: message, Op: op, Err: err, Fields: e.Fields}
	}
	return &Error{Code: CodeInternal, Message: message, Op: op, Err: err}
}

// WrapWithCode wraps an error with a specific code.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Op: op, Err: err}
}

// NotFound creates a not found error for a resource.
func NotFound(resource string, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, id)).
		WithField("resource", resource).
		WithField("id", id)
}

// AlreadyExists creates an already exists error for a resource.
func AlreadyExists(resource string, id string) *Error {
	return New(CodeAlreadyExists, fmt.Sprintf("%s already exists: %s", resource, id)).
		WithField("resource", resource).
		WithField("id", id)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field string, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

// InvalidTheme creates an invalid theme error listing the valid presets.
func InvalidTheme(theme string, available []string) *Error {
	return Newf(CodeInvalidTheme, "theme invalid: %q; available: %s", theme, strings.Join(available, ", ")).
		WithField("theme", theme).
		WithField("available", available)
}

// Timeout creates a timeout error.
func Timeout(operation string) *Error {
	return New(CodeTimeout, fmt.Sprintf("operation timed out: %s", operation)).
		WithField("operation", operation)
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return 500
}

// GetFields extracts context fields from an error.
func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) && e.Fields != nil {
		return e.Fields
	}
	return nil
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
