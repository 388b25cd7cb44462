// Package domainerrors carries coded errors across service boundaries.
//
// Services translate store-level sentinel errors into coded errors so the
// transport layer can map them onto status codes without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation marks malformed or policy-violating input. It is raised
	// before any persistence and must be surfaced inline by callers.
	CodeValidation Code = "validation_error"
	// CodeBadRequest marks transport-level input problems (undecodable bodies, bad ids).
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput marks values that fail parsing at trust boundaries.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks absent entities on paths where absence is an error.
	CodeNotFound Code = "not_found"
	// CodeConflict marks requests that clash with current state.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation is returned by aggregates whose invariants would break.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeDependency marks failures of external collaborators (person directory,
	// evidence store). Non-fatal for per-person and batch work.
	CodeDependency Code = "dependency_error"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost coded message, without wrapped causes.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
