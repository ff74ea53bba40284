package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and for HTTP status mapping.
type Code string

const (
	ErrCodeNotFound   Code = "NOT_FOUND"
	ErrCodeForbidden  Code = "FORBIDDEN"
	ErrCodeBadRequest Code = "BAD_REQUEST"
	ErrCodeConflict   Code = "CONFLICT"
	ErrCodeInternal   Code = "INTERNAL"
)

// Error is a coded error. Every failure surfaced by the engine carries one.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an underlying error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports that a resource with the given identifier does not exist.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %q not found", resource, id)
}

// Forbidden reports an ownership or role mismatch.
func Forbidden(message string) *Error {
	return New(ErrCodeForbidden, message)
}

// BadRequest reports an invalid state transition or malformed input.
func BadRequest(message string) *Error {
	return New(ErrCodeBadRequest, message)
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeBadRequest, "invalid %s: %s", field, message)
}

// Conflict reports a store-level conflict that survived the engine's retry.
func Conflict(message string) *Error {
	return New(ErrCodeConflict, message)
}

// CodeOf extracts the code from an error chain, defaulting to internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error code to the HTTP status the handler should write.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
