package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes an API failure for logging, metrics, and retry
// classification.
type ErrorType string

const (
	// TypeValidation indicates the server rejected the request as invalid (HTTP 400).
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates the room or resource does not exist (HTTP 404).
	TypeNotFound ErrorType = "not_found"
	// TypeConflict indicates a conflicting concurrent write (HTTP 409).
	TypeConflict ErrorType = "conflict"
	// TypeExternal indicates the server or network failed (5xx, transport errors,
	// open circuit breaker).
	TypeExternal ErrorType = "external"
)

// Error is a structured API failure with a human-readable message taken from
// the server's error body when one was provided.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Permanent reports whether retrying the same request can ever succeed.
// Validation, not-found, and conflict answers are authoritative; external
// failures are transient.
func (e *Error) Permanent() bool {
	return e.Type != TypeExternal
}

// fromStatus maps an HTTP error status and server message to a structured error.
func fromStatus(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusBadRequest:
		return &Error{Type: TypeValidation, Message: message}
	case status == http.StatusNotFound:
		return &Error{Type: TypeNotFound, Message: message}
	case status == http.StatusConflict:
		return &Error{Type: TypeConflict, Message: message}
	default:
		return &Error{Type: TypeExternal, Message: fmt.Sprintf("HTTP %d: %s", status, message)}
	}
}

// externalError wraps a transport-level failure.
func externalError(message string, cause error) *Error {
	return &Error{Type: TypeExternal, Message: message, Cause: cause}
}

// AsAPIError converts any error into a structured *Error, wrapping unknown
// errors as external failures.
func AsAPIError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return externalError("request failed", err)
}
