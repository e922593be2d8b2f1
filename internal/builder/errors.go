package builder

import (
	"errors"
	"fmt"
)

// MutationError represents a structural mutation the builder refused.
//
// The builder never partially applies a refused mutation: the owned query
// is exactly as it was before the call.
type MutationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Stage is the text form of the addressed stage path, when there is one.
	Stage string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes mutation errors.
type ErrorCode string

const (
	// ErrCodeInvalidStage indicates the stage path addresses no stage.
	ErrCodeInvalidStage ErrorCode = "INVALID_STAGE"

	// ErrCodeNotFilterable indicates a per-field filter on a turtle or join.
	ErrCodeNotFilterable ErrorCode = "NOT_FILTERABLE"

	// ErrCodeNotDefinable indicates a reference that cannot be inlined.
	ErrCodeNotDefinable ErrorCode = "NOT_DEFINABLE"

	// ErrCodeIndexOutOfRange indicates a field, filter or ordering index
	// outside the addressed list.
	ErrCodeIndexOutOfRange ErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeInvalidLimit indicates a negative limit.
	ErrCodeInvalidLimit ErrorCode = "INVALID_LIMIT"

	// ErrCodeUnknownParameter indicates an argument for an undeclared parameter.
	ErrCodeUnknownParameter ErrorCode = "UNKNOWN_PARAMETER"

	// ErrCodeInvalidParameter indicates an argument that does not fit the
	// parameter's declared type.
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// ErrCodeStageKindMismatch indicates content the stage kind cannot hold,
	// or a merge of stages of different kinds.
	ErrCodeStageKindMismatch ErrorCode = "STAGE_KIND_MISMATCH"

	// ErrCodeNotAQuery indicates a name that does not resolve to a turtle.
	ErrCodeNotAQuery ErrorCode = "NOT_A_QUERY"

	// ErrCodeNotOrderable indicates an ordering target that is not an
	// atomic output field.
	ErrCodeNotOrderable ErrorCode = "NOT_ORDERABLE"

	// ErrCodeInvalidPermutation indicates a reorder that is not a bijection.
	ErrCodeInvalidPermutation ErrorCode = "INVALID_PERMUTATION"
)

// Error implements the error interface.
func (e *MutationError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s (stage=%s)", e.Code, e.Message, e.Stage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// IsMutationError returns true if err is (or wraps) a MutationError.
func IsMutationError(err error) bool {
	var me *MutationError
	return errors.As(err, &me)
}

// HasCode returns true if err is (or wraps) a MutationError with code.
func HasCode(err error, code ErrorCode) bool {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

func newError(code ErrorCode, format string, args ...any) *MutationError {
	return &MutationError{Code: code, Message: fmt.Sprintf(format, args...)}
}
