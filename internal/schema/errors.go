package schema

import (
	"errors"
	"fmt"

	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/stagepath"
)

// FieldNotFoundError reports a dotted path segment with no matching field.
type FieldNotFoundError struct {
	Path    string // full dotted path being resolved
	Segment string // segment that was not found
	Source  string // name of the schema searched
}

func (e *FieldNotFoundError) Error() string {
	if e.Path == e.Segment {
		return fmt.Sprintf("field %q not found in %q", e.Segment, e.Source)
	}
	return fmt.Sprintf("field %q not found in %q (resolving %q)", e.Segment, e.Source, e.Path)
}

// NotNavigableError reports a non-terminal path segment that names a field
// which is neither a join nor a nested query.
type NotNavigableError struct {
	Path    string
	Segment string
}

func (e *NotNavigableError) Error() string {
	return fmt.Sprintf("path segment %q of %q is not a join or query", e.Segment, e.Path)
}

// NotAStageError is the auto-expansion signal: a stage address crossed a
// field entry that is a bare reference to a turtle rather than an embedded
// query. Parent and FieldIndex locate the reference; Turtle is the resolved
// definition to expand in its place.
//
// This is a recoverable condition. The builder catches it, expands the
// reference and retries; it never escapes the builder's public API.
type NotAStageError struct {
	Parent     stagepath.Path
	FieldIndex int
	Turtle     *model.Turtle
}

func (e *NotAStageError) Error() string {
	return fmt.Sprintf("field %d of stage %s is a reference to query %q, not a stage",
		e.FieldIndex, e.Parent, e.Turtle.FieldName())
}

// IsFieldNotFound returns true if err is (or wraps) a FieldNotFoundError.
func IsFieldNotFound(err error) bool {
	var fe *FieldNotFoundError
	return errors.As(err, &fe)
}

// IsNotNavigable returns true if err is (or wraps) a NotNavigableError.
func IsNotNavigable(err error) bool {
	var ne *NotNavigableError
	return errors.As(err, &ne)
}

// AsNotAStage extracts a NotAStageError from err.
func AsNotAStage(err error) (*NotAStageError, bool) {
	var ns *NotAStageError
	if errors.As(err, &ns) {
		return ns, true
	}
	return nil, false
}

// StageNotFoundError reports a stage address that does not exist in the
// pipeline tree, or that crosses a field which cannot hold stages.
type StageNotFoundError struct {
	Path   stagepath.Path
	Reason string
}

func (e *StageNotFoundError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Path, e.Reason)
}
