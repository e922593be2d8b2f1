// Package tags encodes renderer choices as annotation tag lines.
//
// A renderer tag is a comment-style line such as "# bar_chart" attached to
// a query or field entry. Tag lines may carry other tokens; only the
// closed set of renderer names below is interpreted here. A token of the
// form "-name" cancels a renderer inherited from the definition the
// annotation was derived from.
package tags

import (
	"strings"

	"github.com/roach88/composer/internal/model"
)

// Renderer names a result renderer.
type Renderer string

const (
	None         Renderer = ""
	Table        Renderer = "table"
	Dashboard    Renderer = "dashboard"
	List         Renderer = "list"
	ListDetail   Renderer = "list_detail"
	BarChart     Renderer = "bar_chart"
	LineChart    Renderer = "line_chart"
	ScatterChart Renderer = "scatter_chart"
	ShapeMap     Renderer = "shape_map"
	SegmentMap   Renderer = "segment_map"
	PointMap     Renderer = "point_map"
	Sparkline    Renderer = "sparkline"
	JSON         Renderer = "json"
)

// Renderers is the closed set of known renderers, in menu order.
var Renderers = []Renderer{
	Table, Dashboard, List, ListDetail, BarChart, LineChart,
	ScatterChart, ShapeMap, SegmentMap, PointMap, Sparkline, JSON,
}

// IsRenderer reports whether name is a known renderer.
func IsRenderer(name string) bool {
	for _, r := range Renderers {
		if string(r) == name {
			return true
		}
	}
	return false
}

// Parse returns the renderer an annotation selects, or None.
//
// Inherited notes are read first (outermost ancestor first), then the
// annotation's own notes, so later lines override earlier ones. Within a
// line the first recognised renderer token wins.
func Parse(a *model.Annotation) Renderer {
	current := None
	for _, line := range lines(a) {
		current = parseLine(line, current)
	}
	return current
}

// Inherited returns the renderer a's ancestors select, ignoring a's own notes.
func Inherited(a *model.Annotation) Renderer {
	if a == nil {
		return None
	}
	return Parse(a.Inherits)
}

func lines(a *model.Annotation) []string {
	if a == nil {
		return nil
	}
	return append(lines(a.Inherits), a.Notes...)
}

func parseLine(line string, current Renderer) Renderer {
	body, ok := tagBody(line)
	if !ok {
		return current
	}
	for _, tok := range strings.Fields(body) {
		if name, negated := strings.CutPrefix(tok, "-"); negated {
			if Renderer(tokenName(name)) == current {
				current = None
			}
			continue
		}
		if name := tokenName(tok); IsRenderer(name) {
			return Renderer(name)
		}
	}
	return current
}

// tagBody strips the leading "#" of a tag line. Lines starting with "##"
// are model-level tags and are ignored.
func tagBody(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") || strings.HasPrefix(line, "##") {
		return "", false
	}
	return line[1:], true
}

// tokenName strips property suffixes: "bar_chart.stack=true" is bar_chart.
func tokenName(tok string) string {
	if i := strings.IndexAny(tok, ".="); i >= 0 {
		return tok[:i]
	}
	return tok
}

func isRendererToken(tok string) bool {
	name := strings.TrimPrefix(tok, "-")
	return IsRenderer(tokenName(name))
}

// Apply returns a copy of a with its own renderer tokens replaced so that
// Parse on the result yields r.
//
// When r is None and an inherited renderer is in effect, a "# -name" line
// is emitted to suppress it. When r matches the inherited renderer no own
// line is needed. Apply returns nil when the result carries nothing.
func Apply(a *model.Annotation, r Renderer) *model.Annotation {
	out := a.Clone()
	if out == nil {
		out = &model.Annotation{}
	}

	var kept []string
	for _, line := range out.Notes {
		body, ok := tagBody(line)
		if !ok {
			kept = append(kept, line)
			continue
		}
		var toks []string
		removed := false
		for _, tok := range strings.Fields(body) {
			if isRendererToken(tok) {
				removed = true
				continue
			}
			toks = append(toks, tok)
		}
		switch {
		case !removed:
			kept = append(kept, line)
		case len(toks) > 0:
			kept = append(kept, "# "+strings.Join(toks, " "))
		}
	}

	inherited := Inherited(out)
	switch {
	case r == None && inherited != None:
		kept = append(kept, "# -"+string(inherited))
	case r != None && r != inherited:
		kept = append(kept, "# "+string(r))
	}
	out.Notes = kept

	if out.IsEmpty() {
		return nil
	}
	return out
}
