// Package loader reads semantic model definitions from disk.
//
// Three encodings are accepted: CUE (a single .cue file or a directory
// holding a CUE package), YAML and JSON. Every encoding is checked against
// the embedded #Model schema with the CUE evaluator, exported as JSON and
// decoded into model.Model. A final semantic pass reports what the schema
// cannot express, such as duplicate names.
package loader

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"

	"github.com/roach88/composer/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Format is the encoding of a model definition.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// DetectFormat picks the format from a path. Directories are CUE packages.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model not found: %s", path)}
	}
	if info.IsDir() {
		return FormatCUE, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported model file extension: %s", path)}
}

// LoadFile reads the model at path, detecting its format.
func LoadFile(path string) (*model.Model, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	var v cue.Value
	switch format {
	case FormatCUE:
		v, err = buildCUE(ctx, path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
		}
		v, err = encode(ctx, format, data, path)
	}
	if err != nil {
		return nil, err
	}
	return decode(ctx, v)
}

// LoadBytes decodes a model held in memory.
func LoadBytes(format Format, data []byte) (*model.Model, error) {
	ctx := cuecontext.New()
	var v cue.Value
	var err error
	if format == FormatCUE {
		v = ctx.CompileBytes(data, cue.Filename("model.cue"))
		if err := v.Err(); err != nil {
			return nil, cueError(ErrCodeBuildFailed, err)
		}
	} else {
		v, err = encode(ctx, format, data, "")
		if err != nil {
			return nil, err
		}
	}
	return decode(ctx, v)
}

func buildCUE(ctx *cue.Context, path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model not found: %s", path)}
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return cue.Value{}, cueError(ErrCodeBuildFailed, err)
		}
		return v, nil
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, cueError(ErrCodeBuildFailed, err)
	}
	return v, nil
}

// encode turns YAML or JSON bytes into a CUE value.
func encode(ctx *cue.Context, format Format, data []byte, name string) (cue.Value, error) {
	var raw any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cue.Value{}, &LoadError{Code: ErrCodeDecodeFailed, Message: fmt.Sprintf("parsing YAML %s: %v", name, err)}
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return cue.Value{}, &LoadError{Code: ErrCodeDecodeFailed, Message: fmt.Sprintf("parsing JSON %s: %v", name, err)}
		}
	default:
		return cue.Value{}, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported format %q", format)}
	}
	if _, ok := raw.(map[string]any); !ok {
		return cue.Value{}, &LoadError{Code: ErrCodeDecodeFailed, Message: "model must be a mapping"}
	}
	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return cue.Value{}, cueError(ErrCodeBuildFailed, err)
	}
	return v, nil
}

// decode checks v against #Model and converts it.
func decode(ctx *cue.Context, v cue.Value) (*model.Model, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueError(ErrCodeGeneric, err)
	}
	def := schema.LookupPath(cue.ParsePath("#Model"))

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	var m model.Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &LoadError{Code: ErrCodeDecodeFailed, Message: err.Error()}
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// cueError converts the first CUE error into a LoadError with position.
func cueError(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
