package model

import (
	"errors"
	"fmt"
)

type ErrorType int

const (
	ErrorFailure ErrorType = iota
	ErrorValidation
	ErrorProblem
	ErrorNotFound
	ErrorConflict
	ErrorUnauthorized
)

func (t ErrorType) String() string {
	switch t {
	case ErrorFailure:
		return "failure"
	case ErrorValidation:
		return "validation"
	case ErrorProblem:
		return "problem"
	case ErrorNotFound:
		return "not_found"
	case ErrorConflict:
		return "conflict"
	case ErrorUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is the typed outcome of an auth or roster operation. A nil *Error
// (or nil error) means success.
type Error struct {
	Type        ErrorType
	Code        string
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on type and code so sentinel comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type && e.Code == other.Code
}

func Failure(code, description string) *Error {
	return &Error{Type: ErrorFailure, Code: code, Description: description}
}

func Validation(code, description string) *Error {
	return &Error{Type: ErrorValidation, Code: code, Description: description}
}

func Problem(code, description string) *Error {
	return &Error{Type: ErrorProblem, Code: code, Description: description}
}

func NotFound(code, description string) *Error {
	return &Error{Type: ErrorNotFound, Code: code, Description: description}
}

func Conflict(code, description string) *Error {
	return &Error{Type: ErrorConflict, Code: code, Description: description}
}

func Unauthorized(code, description string) *Error {
	return &Error{Type: ErrorUnauthorized, Code: code, Description: description}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
