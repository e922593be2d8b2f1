package writer

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/composer/internal/model"
)

// Form selects the surface syntax of rendered source text.
type Form string

const (
	// FormRun is a bare statement: run: src -> { ... }
	FormRun Form = "run"
	// FormQuery is a named query: query: name is src -> { ... }
	FormQuery Form = "query"
	// FormView is a view body for use inside the source: view: name is { ... }
	FormView Form = "view"
	// FormMarkdown is the query form fenced in a markdown document.
	FormMarkdown Form = "markdown"
)

// Forms lists every form, in menu order.
var Forms = []Form{FormRun, FormQuery, FormView, FormMarkdown}

// ParseForm validates a form name.
func ParseForm(s string) (Form, error) {
	f := Form(s)
	if !slices.Contains(Forms, f) {
		return "", fmt.Errorf("unknown source form %q (want one of run, query, view, markdown)", s)
	}
	return f, nil
}

// DefaultName is the display name of a query that has none.
const DefaultName = "new_query"

const indentUnit = "  "

// Render dispatches to the method for form. modelPath is only used by
// FormMarkdown.
func (w *Writer) Render(form Form, q *model.Query, args map[string]string, modelPath string) (string, error) {
	switch form {
	case FormRun:
		return w.RunString(q, args)
	case FormQuery:
		return w.QueryString(q, args)
	case FormView:
		return w.ViewString(q)
	case FormMarkdown:
		return w.MarkdownString(q, args, modelPath)
	}
	return "", fmt.Errorf("unknown source form %q", form)
}

// RunString renders q as a run statement.
func (w *Writer) RunString(q *model.Query, args map[string]string) (string, error) {
	return w.render(q, "run: "+w.sourceRef(args)+" -> ")
}

// QueryString renders q as a named query declaration.
func (w *Writer) QueryString(q *model.Query, args map[string]string) (string, error) {
	return w.render(q, "query: "+queryName(q)+" is "+w.sourceRef(args)+" -> ")
}

// ViewString renders q as a view. The first stage carries no source
// reference; a view reads the source it is declared in.
func (w *Writer) ViewString(q *model.Query) (string, error) {
	return w.render(q, "view: "+queryName(q)+" is ")
}

// MarkdownString renders the query form inside a markdown document with a
// title header and a comment naming the query and its model.
func (w *Writer) MarkdownString(q *model.Query, args map[string]string, modelPath string) (string, error) {
	body, err := w.QueryString(q, args)
	if err != nil {
		return "", err
	}
	name := queryName(q)
	title := cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString("<!-- malloy-query\n")
	fmt.Fprintf(&b, "  name=%q\n", name)
	fmt.Fprintf(&b, "  model=%q\n", modelPath)
	b.WriteString("-->\n")
	b.WriteString("```malloy\n")
	b.WriteString(body)
	b.WriteString("\n```")
	return b.String(), nil
}

func queryName(q *model.Query) string {
	if q.Name == "" {
		return DefaultName
	}
	return q.Name
}

// sourceRef names the root source, followed by the parameter overrides
// that differ from their declared defaults, in declaration order.
func (w *Writer) sourceRef(args map[string]string) string {
	src := w.nav.Root
	var parts []string
	for _, p := range src.Parameters {
		v, ok := args[p.Name]
		if !ok || (p.Default != nil && *p.Default == v) {
			continue
		}
		parts = append(parts, p.Name+" is "+v)
	}
	if len(parts) == 0 {
		return src.Name
	}
	return src.Name + "(" + strings.Join(parts, ", ") + ")"
}

// printer accumulates indented lines.
type printer struct {
	b strings.Builder
}

func (p *printer) line(indent int, s string) {
	for i := 0; i < indent; i++ {
		p.b.WriteString(indentUnit)
	}
	p.b.WriteString(s)
	p.b.WriteByte('\n')
}

func (p *printer) String() string {
	return strings.TrimSuffix(p.b.String(), "\n")
}

func (w *Writer) render(q *model.Query, head string) (string, error) {
	if q == nil || len(q.Pipeline) == 0 {
		return "", fmt.Errorf("query has no stages")
	}
	var p printer
	writeTags(&p, 0, q.Annotation)
	if err := w.writePipeline(&p, 0, head, q.Pipeline, w.nav.Root); err != nil {
		return "", err
	}
	return p.String(), nil
}

func writeTags(p *printer, indent int, a *model.Annotation) {
	if a == nil {
		return
	}
	for _, n := range a.Notes {
		p.line(indent, n)
	}
}

// writePipeline writes prefix followed by each stage in braces, joined by
// "->". Stage bodies are one level deeper than indent.
func (w *Writer) writePipeline(p *printer, indent int, prefix string, stages []*model.Stage, input *model.Source) error {
	cur := input
	for i, s := range stages {
		if i == 0 {
			p.line(indent, prefix+"{")
		} else {
			p.line(indent, "} -> {")
		}
		if err := w.writeStage(p, indent+1, s, cur); err != nil {
			return fmt.Errorf("stage %d: %w", i, err)
		}
		if i < len(stages)-1 {
			next, err := w.nav.Eval.NextSchema(cur, s)
			if err != nil {
				return fmt.Errorf("stage %d: %w", i, err)
			}
			cur = next
		}
	}
	p.line(indent, "}")
	return nil
}

// block is a run of consecutive entries written under one clause.
type block struct {
	prop    Property
	tags    []string
	entries []model.Entry
}

func (w *Writer) writeStage(p *printer, indent int, s *model.Stage, input *model.Source) error {
	var where, having []model.Filter
	for _, f := range s.Filters {
		if f.IsHaving() {
			having = append(having, f)
		} else {
			where = append(where, f)
		}
	}
	writeFilters(p, indent, "where", where)
	writeFilters(p, indent, "having", having)

	var blocks []*block
	for _, e := range s.Fields {
		prop, err := w.entryProperty(s.Kind, input, e)
		if err != nil {
			return err
		}
		var tags []string
		if a := e.EntryAnnotation(); a != nil {
			tags = a.Notes
		}
		if n := len(blocks); n > 0 && blocks[n-1].prop == prop && slices.Equal(blocks[n-1].tags, tags) {
			blocks[n-1].entries = append(blocks[n-1].entries, e)
			continue
		}
		blocks = append(blocks, &block{prop: prop, tags: tags, entries: []model.Entry{e}})
	}
	for _, bl := range blocks {
		for _, t := range bl.tags {
			p.line(indent, t)
		}
		if len(bl.entries) == 1 {
			if err := w.writeEntry(p, indent, string(bl.prop)+": ", bl.entries[0], input); err != nil {
				return err
			}
			continue
		}
		p.line(indent, string(bl.prop)+":")
		for _, e := range bl.entries {
			if err := w.writeEntry(p, indent+1, "", e, input); err != nil {
				return err
			}
		}
	}

	if len(s.OrderBy) > 0 {
		keys := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			keys[i] = model.LastSegment(o.Field)
			if o.Direction != model.DirectionNone {
				keys[i] += " " + string(o.Direction)
			}
		}
		p.line(indent, "order_by: "+strings.Join(keys, ", "))
	}
	if s.Limit != nil {
		p.line(indent, "limit: "+strconv.Itoa(*s.Limit))
	}
	return nil
}

func writeFilters(p *printer, indent int, keyword string, fs []model.Filter) {
	switch len(fs) {
	case 0:
		return
	case 1:
		p.line(indent, keyword+": "+fs[0].Code)
		return
	}
	p.line(indent, keyword+":")
	for i, f := range fs {
		code := f.Code
		if i < len(fs)-1 {
			code += ","
		}
		p.line(indent+1, code)
	}
}

func (w *Writer) writeEntry(p *printer, indent int, prefix string, e model.Entry, input *model.Source) error {
	switch e := e.(type) {
	case *model.Reference:
		p.line(indent, prefix+e.Path)
	case *model.Renamed:
		p.line(indent, prefix+e.As+" is "+e.Path)
	case *model.Filtered:
		codes := make([]string, len(e.Filters))
		for i, f := range e.Filters {
			codes[i] = f.Code
		}
		p.line(indent, prefix+e.As+" is "+e.Path+" { where: "+strings.Join(codes, ", ")+" }")
	case *model.Inline:
		p.line(indent, prefix+e.Field.Name+" is "+e.Field.Code)
	case *model.Nested:
		return w.writePipeline(p, indent, prefix+e.Query.Name+" is ", e.Query.Pipeline, input)
	default:
		return fmt.Errorf("unsupported entry type %T", e)
	}
	return nil
}
