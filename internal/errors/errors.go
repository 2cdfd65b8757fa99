// Package errors defines the stable error codes shared by all opcode components.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	// NotFound indicates a referenced chunk, rule, snapshot, or error log is absent.
	NotFound Code = "NOT_FOUND"
	// InvalidInput indicates a request missing required fields or carrying bad values.
	InvalidInput Code = "INVALID_INPUT"
	// Conflict indicates a uniqueness violation, e.g. a duplicate relationship triple.
	Conflict Code = "CONFLICT"
	// AlreadyValidated indicates a validate call on a rule that was already validated.
	AlreadyValidated Code = "ALREADY_VALIDATED"
	// InvalidParent indicates a snapshot parent from the wrong project or timeline.
	InvalidParent Code = "INVALID_PARENT"
	// WrongType indicates a snapshot of the wrong timeline type for the operation.
	WrongType Code = "WRONG_TYPE"
	// AlreadyProcessing indicates a concurrent processing pass on the same project.
	AlreadyProcessing Code = "ALREADY_PROCESSING"
	// GeneratorFailure indicates a single chunk-kind generator failed.
	// These are captured per kind, never propagated past the orchestrator.
	GeneratorFailure Code = "GENERATOR_FAILURE"
	// StorageFailure indicates a transaction or commit failure.
	StorageFailure Code = "STORAGE_FAILURE"
)

// Error is an error with a stable code, an optional details map, and an
// optional wrapped cause.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

// New creates an Error with the given code and message.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails attaches a details map and returns the error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// IsCode reports whether err (or anything it wraps) carries the given code.
func IsCode(err error, code Code) bool {
	var oe *Error
	if stderrors.As(err, &oe) {
		return oe.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or StorageFailure if err carries none.
func CodeOf(err error) Code {
	var oe *Error
	if stderrors.As(err, &oe) {
		return oe.Code
	}
	return StorageFailure
}
