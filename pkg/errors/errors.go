package errors

import (
	"errors"
	"fmt"
)

// Error represents a typed domain error with a machine-readable code.
type Error struct {
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios. Placement, capacity, and
// qualification shortfalls are deliberately not here: they are batch events,
// not errors.
var (
	ErrNotFound           = New("NOT_FOUND", 404, "resource not found")
	ErrValidation         = New("VALIDATION_ERROR", 400, "validation failed")
	ErrConflict           = New("CONFLICT", 409, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", 412, "precondition failed")
	ErrBuildLocked        = New("BUILD_IN_PROGRESS", 423, "a build is already running for this term")
	ErrInternal           = New("INTERNAL_ERROR", 500, "internal error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
