// Package memerr provides the unified error taxonomy for the memory engine.
//
// Modeled on the teacher's infrastructure/errors.ServiceError shape
// (Code/Message/Err/WithDetails), with the auth/crypto/TEE error codes
// replaced by the nine error kinds the memory engine actually surfaces.
package memerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the memory engine's error categories.
type Kind string

const (
	Validation    Kind = "validation"
	NotFound      Kind = "not_found"
	InvalidState  Kind = "invalid_state"
	QuotaExceeded Kind = "quota_exceeded"
	Timeout       Kind = "timeout"
	Storage       Kind = "storage"
	Serialization Kind = "serialization"
	CircuitOpen   Kind = "circuit_open"
	Security      Kind = "security"
)

// Error is a structured error carrying a Kind, a human message, optional
// details, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair to the error and returns it for chaining.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether a caller may retry the operation that produced
// this error. Only Timeout and Storage are retryable per spec; CircuitOpen
// is a fast-fail signal the caller should degrade against, not retry blindly.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case Timeout, Storage:
		return true
	default:
		return false
	}
}

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a Kind and message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Common constructors for the most frequently raised errors.

func ErrValidation(message string) *Error    { return New(Validation, message) }
func ErrNotFound(message string) *Error      { return New(NotFound, message) }
func ErrInvalidState(message string) *Error  { return New(InvalidState, message) }
func ErrQuotaExceeded(message string) *Error { return New(QuotaExceeded, message) }
func ErrTimeout(message string) *Error       { return New(Timeout, message) }
func ErrSecurity(message string) *Error      { return New(Security, message) }
func ErrCircuitOpen(message string) *Error   { return New(CircuitOpen, message) }
