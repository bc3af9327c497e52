// Package errdefs defines the error taxonomy shared by the orchestrator core.
// Every caller-visible failure carries one of these codes so the API layer can
// map it to a transport status without inspecting error strings.
package errdefs

import (
	"errors"
	"fmt"
)

// Code classifies an orchestrator error
type Code string

const (
	// CodeValidation covers bad or conflicting input, e.g. duplicate ports or
	// paths, deleting the default cluster. Never retried automatically.
	CodeValidation Code = "VALIDATION"

	// CodeConflict covers operations invalid in the current state: double
	// start, a concurrent task against the same node. Caller may retry later.
	CodeConflict Code = "CONFLICT"

	// CodeNotFound covers lookups of unknown nodes, clusters or tasks.
	CodeNotFound Code = "NOT_FOUND"

	// CodeTimeout covers exceeded health-probe or graceful-stop deadlines.
	CodeTimeout Code = "TIMEOUT"

	// CodeIO covers filesystem failures during provisioning or removal.
	CodeIO Code = "IO"

	// CodeInternal covers unexpected crashes and recovered panics.
	CodeInternal Code = "INTERNAL"
)

// Error is a classified orchestrator error
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured detail fields to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithCause records the underlying error
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

func newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a VALIDATION error
func Validation(format string, args ...interface{}) *Error {
	return newf(CodeValidation, format, args...)
}

// Conflict creates a CONFLICT error
func Conflict(format string, args ...interface{}) *Error {
	return newf(CodeConflict, format, args...)
}

// NotFound creates a NOT_FOUND error
func NotFound(format string, args ...interface{}) *Error {
	return newf(CodeNotFound, format, args...)
}

// Timeout creates a TIMEOUT error
func Timeout(format string, args ...interface{}) *Error {
	return newf(CodeTimeout, format, args...)
}

// IO creates an IO error
func IO(format string, args ...interface{}) *Error {
	return newf(CodeIO, format, args...)
}

// Internal creates an INTERNAL error
func Internal(format string, args ...interface{}) *Error {
	return newf(CodeInternal, format, args...)
}

// CodeOf returns the code carried by err, or CodeInternal for unclassified
// errors
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsValidation reports whether err is a VALIDATION error
func IsValidation(err error) bool { return is(err, CodeValidation) }

// IsConflict reports whether err is a CONFLICT error
func IsConflict(err error) bool { return is(err, CodeConflict) }

// IsNotFound reports whether err is a NOT_FOUND error
func IsNotFound(err error) bool { return is(err, CodeNotFound) }

// IsTimeout reports whether err is a TIMEOUT error
func IsTimeout(err error) bool { return is(err, CodeTimeout) }

// IsIO reports whether err is an IO error
func IsIO(err error) bool { return is(err, CodeIO) }
