package session

import (
	"errors"
	"fmt"

	"github.com/roach88/composer/internal/builder"
)

// Error is a failure of the session itself, as opposed to a mutation the
// builder refused.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Op is the kind of the command that failed, if any.
	Op OpKind

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes session errors.
type ErrorCode string

const (
	// ErrCodeInvalidOp indicates a command object that is malformed or
	// missing an argument its kind requires.
	ErrCodeInvalidOp ErrorCode = "INVALID_OP"

	// ErrCodeNothingToUndo indicates Undo on an empty history.
	ErrCodeNothingToUndo ErrorCode = "NOTHING_TO_UNDO"

	// ErrCodeNotRunnable indicates Run on a query with an empty stage.
	ErrCodeNotRunnable ErrorCode = "NOT_RUNNABLE"

	// ErrCodeDerivation indicates the query could not be rendered after a
	// change; the change was rolled back.
	ErrCodeDerivation ErrorCode = "DERIVATION_FAILED"

	// ErrCodeCompile indicates the external compiler rejected the query.
	ErrCodeCompile ErrorCode = "COMPILE_FAILED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg += fmt.Sprintf(" (op=%s)", e.Op)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HasCode returns true if err is (or wraps) a session Error with code.
func HasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsUserError reports whether err was caused by the request rather than by
// the session: a refused mutation or a malformed command.
func IsUserError(err error) bool {
	if builder.IsMutationError(err) {
		return true
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code != ErrCodeDerivation
	}
	return false
}

// CodeOf returns the error code carried by err, whether it comes from the
// builder or the session, or "" for any other error.
func CodeOf(err error) string {
	var me *builder.MutationError
	if errors.As(err, &me) {
		return string(me.Code)
	}
	var se *Error
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return ""
}

func invalidOp(kind OpKind, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidOp, Message: fmt.Sprintf(format, args...), Op: kind}
}
