package loader

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes reported by the loader.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeReadFailed   = "E002" // File read error
	ErrCodeUnsupported  = "E003" // Unsupported format or extension
	ErrCodeLoadFailed   = "E004" // CUE load failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE build failed
	ErrCodeDecodeFailed = "E007" // YAML/JSON decode failed

	ErrCodeSchema          = "E101" // Does not satisfy #Model
	ErrCodeDuplicateSource = "E102" // Two sources share a name
	ErrCodeDuplicateField  = "E103" // Two fields of a source share a name
	ErrCodeInvalidType     = "E104" // Unknown value or expression type
	ErrCodeInvalidQuery    = "E105" // Malformed turtle pipeline
	ErrCodeInvalidJoin     = "E106" // Malformed join
)

// LoadError is a model loading or validation failure.
type LoadError struct {
	Code    string
	Message string
	// Path locates the offending element, e.g. "names.by_state".
	Path string
	Pos  token.Pos
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// HasCode reports whether err is a LoadError with the given code.
func HasCode(err error, code string) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Code == code
}
