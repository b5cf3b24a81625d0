// Package errors defines the error taxonomy shared by the index, retrieval
// and experiment packages. Callers match on the sentinels with errors.Is and
// recover the detail message through *AppError.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateIndex     = errors.New("index already exists")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrPipelineType       = errors.New("pipeline stage type mismatch")
	ErrMissingField       = errors.New("missing required field")
	ErrExternalDependency = errors.New("external dependency failure")
	ErrInternal           = errors.New("internal error")
)

// Exit codes returned by the command line tools.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitNotFound      = 3
	ExitConflict      = 4
	ExitExternalError = 5
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
	Cause    error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

// Unwrap exposes both the sentinel and the underlying cause so errors.Is
// matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCodeFor(sentinel),
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return New(sentinel, fmt.Sprintf(format, args...))
}

// Wrap attaches a sentinel and message to an underlying error.
func Wrap(sentinel error, cause error, format string, args ...any) *AppError {
	e := Newf(sentinel, format, args...)
	e.Cause = cause
	return e
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrDuplicateIndex):
		return ExitConflict
	case errors.Is(err, ErrInvalidParameter), errors.Is(err, ErrPipelineType):
		return ExitUsage
	case errors.Is(err, ErrExternalDependency):
		return ExitExternalError
	default:
		return ExitFailure
	}
}
