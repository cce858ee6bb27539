// Package errors defines the sentinel errors shared by the indexing engine
// and an AppError wrapper that carries a human-readable message and the
// process exit code the CLI should report.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInput                 = errors.New("input error")
	ErrDuplicateDocumentID   = errors.New("duplicate document id")
	ErrBuilderFinalized      = errors.New("builder already finalized")
	ErrStorageUnwritable     = errors.New("storage unwritable")
	ErrStorageFull           = errors.New("storage full")
	ErrSerializationFailure  = errors.New("serialization failure")
	ErrFormatVersionMismatch = errors.New("segment format version mismatch")
	ErrCorruptSegment        = errors.New("corrupt segment")
	ErrInvalidConfig         = errors.New("invalid configuration")
)

// Exit codes reported by the CLI.
const (
	ExitFailure       = 1
	ExitUsage         = 2
	ExitStorage       = 3
	ExitSerialization = 4
)

type AppError struct {
	Err      error
	Cause    error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCodeFor(sentinel),
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCodeFor(sentinel),
	}
}

// Wrap attaches a sentinel to an underlying cause so that both errors.Is
// checks succeed.
func Wrap(sentinel error, cause error, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Cause:    cause,
		Message:  fmt.Sprintf("%s: %v", message, cause),
		ExitCode: exitCodeFor(sentinel),
	}
}

// ExitCode maps err to the exit status the CLI should return.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.ExitCode != 0 {
		return appErr.ExitCode
	}
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return ExitUsage
	case errors.Is(err, ErrStorageUnwritable), errors.Is(err, ErrStorageFull):
		return ExitStorage
	case errors.Is(err, ErrSerializationFailure),
		errors.Is(err, ErrFormatVersionMismatch),
		errors.Is(err, ErrCorruptSegment):
		return ExitSerialization
	default:
		return ExitFailure
	}
}
