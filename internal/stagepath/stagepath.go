// Package stagepath addresses stages inside a pipeline tree.
//
// A Path names a stage by walking from the top-level pipeline: each Part
// selects a stage and one of its field entries (which must be a nested
// query), and the final StageIndex selects a stage of the innermost
// pipeline. A Path with no parts addresses a top-level stage.
//
//	Path{StageIndex: 1}                                     top-level stage 1
//	Path{Parts: []Part{{0, 2}}, StageIndex: 0}              stage 0 of the query in field 2 of stage 0
//
// The text form joins parts as "stage:field" with "/" and ends with the
// terminal stage index, so the second example above is "0:2/0".
package stagepath

import (
	"fmt"
	"strconv"
	"strings"
)

// Part is one level of nesting: field FieldIndex of stage StageIndex.
type Part struct {
	StageIndex int `json:"stage_index"`
	FieldIndex int `json:"field_index"`
}

// Path is a recursive stage address.
type Path struct {
	Parts      []Part
	StageIndex int
}

// Root returns the address of top-level stage i.
func Root(i int) Path {
	return Path{StageIndex: i}
}

// Push extends p one level deeper: the stage p addresses becomes a parent,
// and the new path addresses stage step.StageIndex of the query held in
// field step.FieldIndex of that parent.
func Push(p Path, step Part) Path {
	parts := make([]Part, 0, len(p.Parts)+1)
	parts = append(parts, p.Parts...)
	parts = append(parts, Part{StageIndex: p.StageIndex, FieldIndex: step.FieldIndex})
	return Path{Parts: parts, StageIndex: step.StageIndex}
}

// Pop removes the outermost nesting level.
//
// When p is nested it returns that level and the remaining address
// relative to the nested query, with nested=true. Otherwise it returns
// the terminal stage index in head.StageIndex and nested=false.
func Pop(p Path) (head Part, rest Path, nested bool) {
	if len(p.Parts) == 0 {
		return Part{StageIndex: p.StageIndex}, Path{}, false
	}
	rest = Path{
		Parts:      append([]Part(nil), p.Parts[1:]...),
		StageIndex: p.StageIndex,
	}
	return p.Parts[0], rest, true
}

// Parent returns the address of the stage holding the nested query that
// contains p's stage, and the index of that query's field entry.
//
// Parent panics when p is not nested; callers must check IsNested first.
func Parent(p Path) (parent Path, fieldIndex int) {
	if len(p.Parts) == 0 {
		panic("stagepath: Parent of a top-level path")
	}
	last := p.Parts[len(p.Parts)-1]
	return Path{
		Parts:      append([]Part(nil), p.Parts[:len(p.Parts)-1]...),
		StageIndex: last.StageIndex,
	}, last.FieldIndex
}

// IsNested reports whether p addresses a stage inside a nested query.
func (p Path) IsNested() bool {
	return len(p.Parts) > 0
}

// Depth returns the number of nesting levels.
func (p Path) Depth() int {
	return len(p.Parts)
}

// Equal reports whether two paths address the same stage.
func (p Path) Equal(o Path) bool {
	if p.StageIndex != o.StageIndex || len(p.Parts) != len(o.Parts) {
		return false
	}
	for i := range p.Parts {
		if p.Parts[i] != o.Parts[i] {
			return false
		}
	}
	return true
}

// String renders the text form, e.g. "0:2/1".
func (p Path) String() string {
	var b strings.Builder
	for _, part := range p.Parts {
		fmt.Fprintf(&b, "%d:%d/", part.StageIndex, part.FieldIndex)
	}
	b.WriteString(strconv.Itoa(p.StageIndex))
	return b.String()
}

// Parse reads the text form produced by String.
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Path{}, fmt.Errorf("stagepath: empty path")
	}
	segs := strings.Split(s, "/")
	var p Path
	for _, seg := range segs[:len(segs)-1] {
		stage, field, ok := strings.Cut(seg, ":")
		if !ok {
			return Path{}, fmt.Errorf("stagepath: %q: nesting level %q must be stage:field", s, seg)
		}
		si, err := parseIndex(stage)
		if err != nil {
			return Path{}, fmt.Errorf("stagepath: %q: %w", s, err)
		}
		fi, err := parseIndex(field)
		if err != nil {
			return Path{}, fmt.Errorf("stagepath: %q: %w", s, err)
		}
		p.Parts = append(p.Parts, Part{StageIndex: si, FieldIndex: fi})
	}
	si, err := parseIndex(segs[len(segs)-1])
	if err != nil {
		return Path{}, fmt.Errorf("stagepath: %q: %w", s, err)
	}
	p.StageIndex = si
	return p, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or with constant input.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative index %d", n)
	}
	return n, nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
