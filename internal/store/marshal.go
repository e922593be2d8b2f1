package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/composer/internal/model"
)

// marshalQuery converts a query definition to JSON TEXT for storage.
func marshalQuery(q *model.Query) (string, error) {
	if q == nil {
		return "", fmt.Errorf("marshal query: nil query")
	}
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("marshal query: %w", err)
	}
	return string(data), nil
}

// marshalArguments converts argument overrides to JSON TEXT.
// Uses json.Encoder with HTML escaping disabled so quoted string literals
// are stored verbatim; map keys are sorted by encoding/json.
func marshalArguments(args map[string]string) (string, error) {
	if args == nil {
		args = map[string]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(args); err != nil {
		return "", fmt.Errorf("marshal arguments: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalQuery(data string) (*model.Query, error) {
	var q model.Query
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return nil, fmt.Errorf("unmarshal query: %w", err)
	}
	return &q, nil
}

func unmarshalArguments(data string) (map[string]string, error) {
	args := map[string]string{}
	if data == "" || data == "{}" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(data), &args); err != nil {
		return nil, fmt.Errorf("unmarshal arguments: %w", err)
	}
	return args, nil
}
