// Package errors provides coded errors for the mediawatch pipeline.
//
// Codes split into two classes. Retryable codes describe a job that failed this
// pass and will be picked up again by the next one because nothing was recorded
// in the ledger. Fatal codes stop the process at startup.
//
// Usage:
//
//	// In a job - wrap the cause with a code
//	if err := copyFile(src, dst); err != nil {
//	    return errors.Wrapf(err, errors.CodeCopy, "copy %s", src)
//	}
//
//	// In the caller - branch on the class
//	var coded *errors.Error
//	if errors.As(err, &coded) && coded.Retryable() {
//	    logger.Warn("job failed, will retry next pass", "error", err)
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the pipeline.
const (
	CodeCopy       Code = "COPY"
	CodeSpawn      Code = "SPAWN"
	CodeExitStatus Code = "EXIT_STATUS"
	CodeLedger     Code = "LEDGER"
	CodeWatchInit  Code = "WATCH_INIT"
	CodeValidation Code = "VALIDATION"
	CodeInternal   Code = "INTERNAL"
)

// Retryable reports whether a failure with this code leaves the item eligible
// for the next pass.
func (c Code) Retryable() bool {
	switch c {
	case CodeCopy, CodeSpawn, CodeExitStatus, CodeLedger:
		return true
	default:
		return false
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Retryable reports whether the error leaves the item eligible for another pass.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}

// Sentinel errors for use with errors.Is().
var (
	ErrCopy       = &Error{Code: CodeCopy, Message: "copy failed"}
	ErrSpawn      = &Error{Code: CodeSpawn, Message: "spawn failed"}
	ErrExitStatus = &Error{Code: CodeExitStatus, Message: "non-zero exit"}
	ErrLedger     = &Error{Code: CodeLedger, Message: "ledger append failed"}
	ErrWatchInit  = &Error{Code: CodeWatchInit, Message: "watch init failed"}
	ErrValidation = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal   = &Error{Code: CodeInternal, Message: "internal error"}
)

// CodeOf returns the code carried by err, or CodeInternal when err is not coded.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// WatchInitf creates a fatal watch initialization error with formatted message.
func WatchInitf(format string, args ...any) *Error {
	return &Error{Code: CodeWatchInit, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
