// Package domain provides the core types shared by the relay components.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of a relay error.
type ErrorKind string

const (
	// ErrorKindValidation indicates a malformed inbound request.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindSynthesis indicates the model backend could not produce a usable action.
	ErrorKindSynthesis ErrorKind = "synthesis"

	// ErrorKindActionExecution indicates the synthesized action failed while running.
	ErrorKindActionExecution ErrorKind = "action_execution"

	// ErrorKindEncoding indicates a response body did not match its declared content type.
	ErrorKindEncoding ErrorKind = "encoding"

	// ErrorKindDelivery indicates a webhook POST failed.
	ErrorKindDelivery ErrorKind = "delivery"
)

// Error is the canonical error type returned by relay components.
type Error struct {
	// Kind is the category of error
	Kind ErrorKind

	// Op names the operation that failed (e.g. "synthesize", "deliver")
	Op string

	// Message is a human-readable description; Err's text is used when empty
	Message string

	// StatusCode is the suggested HTTP status code, 0 means derive from Kind
	StatusCode int

	// Err is the underlying cause
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status an inbound caller should see for this error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Kind {
	case ErrorKindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WithStatusCode sets a specific HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// Convenience constructors

// ErrValidation creates a validation error.
func ErrValidation(message string) *Error {
	return &Error{Kind: ErrorKindValidation, Op: "validate", Message: message}
}

// ErrSynthesis wraps err as a synthesis error.
func ErrSynthesis(message string, err error) *Error {
	return &Error{Kind: ErrorKindSynthesis, Op: "synthesize", Message: message, Err: err}
}

// ErrActionExecution wraps err as an action execution error.
func ErrActionExecution(message string, err error) *Error {
	return &Error{Kind: ErrorKindActionExecution, Op: "run action", Message: message, Err: err}
}

// ErrEncoding wraps err as an encoding error.
func ErrEncoding(message string, err error) *Error {
	return &Error{Kind: ErrorKindEncoding, Op: "encode", Message: message, Err: err}
}

// ErrDelivery wraps err as a delivery error.
func ErrDelivery(message string, err error) *Error {
	return &Error{Kind: ErrorKindDelivery, Op: "deliver", Message: message, Err: err}
}

// IsKind reports whether err (or anything it wraps) is a relay Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not a relay Error.
func KindOf(err error) ErrorKind {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return ""
}
