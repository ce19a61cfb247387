package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Application error codes
const (
	EINVALID  = "invalid"   // Invalid input or validation failure
	ENOTFOUND = "not_found" // Resource not found
	ECONFLICT = "conflict"  // Resource conflict (e.g., artifact not ready)
	EINTERNAL = "internal"  // Internal server error
)

// Report pipeline error kinds. Every stage of the report pipeline returns an
// error carrying exactly one of these codes.
const (
	ETRANSIENT = "transient_infra" // Job store unreachable, connection dropped
	EDATALOAD  = "data_load"       // Report data could not be loaded
	ENARRATIVE = "narrative"       // A required section narrative failed
	ERENDER    = "render"          // LaTeX emission or compilation failed
	EPACKAGE   = "package"         // Archive staging or zip failed
	EPERSIST   = "persist"         // Artifact could not be stored
)

// ErrNoData is returned when an address has no audits to report on.
var ErrNoData = errors.New("no audit data available")

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "narrative.fanout")
	Message string // Human-readable message
	Err     error  // Underlying error
}

// Error renders "op: message: cause", omitting empty parts.
func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.Op, e.Message} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// genericMessage replaces internal error details in client responses.
const genericMessage = "An internal error occurred. Please try again later."

// asError returns the outermost *Error in err's chain.
func asError(err error) (*Error, bool) {
	var e *Error
	if err == nil || !errors.As(err, &e) {
		return nil, false
	}
	return e, true
}

// ErrorCode returns the code of the outermost Error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := asError(err); ok {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the message safe to show a client. Internal errors
// are reduced to a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := asError(err); ok && e.Code != EINTERNAL {
		return e.Message
	}
	return genericMessage
}

// ErrorOp returns the operation of the outermost Error, if any.
func ErrorOp(err error) string {
	if e, ok := asError(err); ok {
		return e.Op
	}
	return ""
}

// IsTransient reports whether err is a transient infrastructure failure.
func IsTransient(err error) bool {
	return ErrorCode(err) == ETRANSIENT
}

// NotFound reports a missing resource.
func NotFound(op, resource, id string) *Error {
	return Errorf(ENOTFOUND, op, "%s with ID %q not found", resource, id)
}

// Invalid reports a request the caller must correct.
func Invalid(op, message string) *Error {
	return &Error{Code: EINVALID, Op: op, Message: message}
}

// Conflict reports a request that does not fit the resource's current state.
func Conflict(op, message string) *Error {
	return &Error{Code: ECONFLICT, Op: op, Message: message}
}

// Internal wraps an unexpected failure whose details stay server-side.
func Internal(err error, op, message string) *Error {
	return Wrap(err, EINTERNAL, op, message)
}

// ValidationError maps request fields to what is wrong with them.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{Op: op, Fields: map[string]string{field: message}}
}

// Add records another field error and returns e.
func (e *ValidationError) Add(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = message
	return e
}
