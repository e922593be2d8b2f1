package session

import (
	"github.com/roach88/composer/internal/builder"
	"github.com/roach88/composer/internal/filterexpr"
	"github.com/roach88/composer/internal/measure"
	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/stagepath"
	"github.com/roach88/composer/internal/tags"
)

// OpKind names a session command.
type OpKind string

const (
	OpAddField              OpKind = "add_field"
	OpToggleField           OpKind = "toggle_field"
	OpRemoveField           OpKind = "remove_field"
	OpRenameField           OpKind = "rename_field"
	OpReorderFields         OpKind = "reorder_fields"
	OpAddFilter             OpKind = "add_filter"
	OpAddFilterToField      OpKind = "add_filter_to_field"
	OpEditFilter            OpKind = "edit_filter"
	OpRemoveFilter          OpKind = "remove_filter"
	OpAddLimit              OpKind = "add_limit"
	OpRemoveLimit           OpKind = "remove_limit"
	OpAddOrderBy            OpKind = "add_order_by"
	OpEditOrderBy           OpKind = "edit_order_by"
	OpRemoveOrderBy         OpKind = "remove_order_by"
	OpAddNestedQuery        OpKind = "add_nested_query"
	OpAddDefinition         OpKind = "add_definition"
	OpReplaceWithDefinition OpKind = "replace_with_definition"
	OpAddStage              OpKind = "add_stage"
	OpRemoveStage           OpKind = "remove_stage"
	OpLoadQuery             OpKind = "load_query"
	OpSetRenderer           OpKind = "set_renderer"
	OpEditParameter         OpKind = "edit_parameter"
	OpSetName               OpKind = "set_name"
	OpClear                 OpKind = "clear"
)

// Op is one serialisable edit. Which members are read depends on Kind;
// Stage defaults to the first top-level stage.
type Op struct {
	Kind  OpKind          `json:"op" yaml:"op"`
	Stage *stagepath.Path `json:"stage,omitempty" yaml:"stage,omitempty"`

	// Field is a field path in the stage input (add_field, toggle_field).
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	// Index addresses a field entry of the stage.
	Index *int `json:"index,omitempty" yaml:"index,omitempty"`
	// FilterIndex and OrderIndex address filters and orderings.
	FilterIndex *int `json:"filter_index,omitempty" yaml:"filter_index,omitempty"`
	OrderIndex  *int `json:"order_index,omitempty" yaml:"order_index,omitempty"`

	// Name is the new name, alias, nested query, turtle or parameter
	// name, depending on Kind.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Value is a parameter value; nil resets the parameter.
	Value *string `json:"value,omitempty" yaml:"value,omitempty"`

	Filter     *FilterSpec     `json:"filter,omitempty" yaml:"filter,omitempty"`
	Definition *DefinitionSpec `json:"definition,omitempty" yaml:"definition,omitempty"`

	Limit     int             `json:"limit,omitempty" yaml:"limit,omitempty"`
	Direction model.Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
	// OrderBy names the field a limit orders by, when given.
	OrderBy string `json:"order_by,omitempty" yaml:"order_by,omitempty"`

	Renderer    tags.Renderer `json:"renderer,omitempty" yaml:"renderer,omitempty"`
	Permutation []int         `json:"permutation,omitempty" yaml:"permutation,omitempty"`
}

// FilterSpec is a filter given either as source text or as a picker
// structure. Code wins when both are set.
type FilterSpec struct {
	Code   string             `json:"code,omitempty" yaml:"code,omitempty"`
	Picker *filterexpr.Filter `json:"picker,omitempty" yaml:"picker,omitempty"`
	// Having marks a filter on aggregated values.
	Having bool `json:"having,omitempty" yaml:"having,omitempty"`
}

// DefinitionSpec is a new field definition, given either as a measure
// template or as raw code with its types.
type DefinitionSpec struct {
	Name       string            `json:"name" yaml:"name"`
	Template   *measure.Template `json:"template,omitempty" yaml:"template,omitempty"`
	Code       string            `json:"code,omitempty" yaml:"code,omitempty"`
	Type       model.ValueType   `json:"type,omitempty" yaml:"type,omitempty"`
	Expression model.ExprKind    `json:"expression,omitempty" yaml:"expression,omitempty"`
}

func (op Op) stage() stagepath.Path {
	if op.Stage == nil {
		return stagepath.Root(0)
	}
	return *op.Stage
}

func (op Op) index(what string, p *int) (int, error) {
	if p == nil {
		return 0, invalidOp(op.Kind, "%s is required", what)
	}
	return *p, nil
}

func (op Op) filter() (model.Filter, error) {
	if op.Filter == nil {
		return model.Filter{}, invalidOp(op.Kind, "filter is required")
	}
	code := op.Filter.Code
	if code == "" && op.Filter.Picker != nil {
		var err error
		if code, err = filterexpr.Code(*op.Filter.Picker); err != nil {
			return model.Filter{}, &Error{Code: ErrCodeInvalidOp, Message: "bad filter picker", Op: op.Kind, Err: err}
		}
	}
	if code == "" {
		return model.Filter{}, invalidOp(op.Kind, "filter has no code")
	}
	kind := model.ExprScalar
	if op.Filter.Having {
		kind = model.ExprAggregate
	}
	return model.Filter{Code: code, Kind: kind}, nil
}

// definition builds the atomic field a DefinitionSpec describes. Template
// field types are resolved against the stage input.
func (op Op) definition(b *builder.Builder, p stagepath.Path) (*model.Atomic, error) {
	d := op.Definition
	if d == nil {
		return nil, invalidOp(op.Kind, "definition is required")
	}
	if d.Template == nil {
		if d.Code == "" || d.Type == "" {
			return nil, invalidOp(op.Kind, "definition needs a template or code and type")
		}
		expr := d.Expression
		if expr == "" {
			expr = model.ExprScalar
		}
		return &model.Atomic{Name: d.Name, Type: d.Type, Expression: expr, Code: d.Code}, nil
	}

	in := model.TypeNumber
	if d.Template.Field != "" {
		input, err := b.StageInput(p)
		if err != nil {
			return nil, err
		}
		f, err := b.Navigator().ResolveField(input, d.Template.Field)
		if err != nil {
			return nil, err
		}
		a, ok := f.(*model.Atomic)
		if !ok {
			return nil, invalidOp(op.Kind, "template field %q is not atomic", d.Template.Field)
		}
		in = a.Type
	}
	def, err := measure.Define(d.Name, *d.Template, in)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidOp, Message: "bad template", Op: op.Kind, Err: err}
	}
	return def, nil
}

// apply runs op against b. The returned path is set for add_stage.
func (op Op) apply(b *builder.Builder) (*stagepath.Path, error) {
	p := op.stage()
	switch op.Kind {
	case OpAddField:
		return nil, b.AddField(p, op.Field)
	case OpToggleField:
		return nil, b.ToggleField(p, op.Field)
	case OpRemoveField:
		idx, err := op.index("index", op.Index)
		if err != nil {
			return nil, err
		}
		return nil, b.RemoveField(p, idx)
	case OpRenameField:
		idx, err := op.index("index", op.Index)
		if err != nil {
			return nil, err
		}
		return nil, b.RenameField(p, idx, op.Name)
	case OpReorderFields:
		return nil, b.ReorderFields(p, op.Permutation)
	case OpAddFilter:
		f, err := op.filter()
		if err != nil {
			return nil, err
		}
		return nil, b.AddFilter(p, f)
	case OpAddFilterToField:
		idx, err := op.index("index", op.Index)
		if err != nil {
			return nil, err
		}
		f, err := op.filter()
		if err != nil {
			return nil, err
		}
		return nil, b.AddFilterToField(p, idx, f, op.Name)
	case OpEditFilter:
		fi, err := op.index("filter_index", op.FilterIndex)
		if err != nil {
			return nil, err
		}
		f, err := op.filter()
		if err != nil {
			return nil, err
		}
		return nil, b.EditFilter(p, fi, f, op.Index)
	case OpRemoveFilter:
		fi, err := op.index("filter_index", op.FilterIndex)
		if err != nil {
			return nil, err
		}
		return nil, b.RemoveFilter(p, fi, op.Index)
	case OpAddLimit:
		var order *model.OrderBy
		if op.OrderBy != "" {
			order = &model.OrderBy{Field: op.OrderBy, Direction: op.Direction}
		}
		return nil, b.AddLimit(p, op.Limit, order)
	case OpRemoveLimit:
		return nil, b.RemoveLimit(p)
	case OpAddOrderBy:
		idx, err := op.index("index", op.Index)
		if err != nil {
			return nil, err
		}
		return nil, b.AddOrderBy(p, idx, op.Direction)
	case OpEditOrderBy:
		oi, err := op.index("order_index", op.OrderIndex)
		if err != nil {
			return nil, err
		}
		return nil, b.EditOrderBy(p, oi, op.Direction)
	case OpRemoveOrderBy:
		oi, err := op.index("order_index", op.OrderIndex)
		if err != nil {
			return nil, err
		}
		return nil, b.RemoveOrderBy(p, oi)
	case OpAddNestedQuery:
		return nil, b.AddNewNestedQuery(p, op.Name)
	case OpAddDefinition:
		def, err := op.definition(b, p)
		if err != nil {
			return nil, err
		}
		return nil, b.AddDefinition(p, def)
	case OpReplaceWithDefinition:
		idx, err := op.index("index", op.Index)
		if err != nil {
			return nil, err
		}
		return nil, b.ReplaceWithDefinition(p, idx, nil)
	case OpAddStage:
		var parent *stagepath.Path
		idx := 0
		if op.Stage != nil {
			var err error
			if idx, err = op.index("index", op.Index); err != nil {
				return nil, err
			}
			parent = op.Stage
		}
		added, err := b.AddStage(parent, idx)
		if err != nil {
			return nil, err
		}
		return &added, nil
	case OpRemoveStage:
		return nil, b.RemoveStage(p)
	case OpLoadQuery:
		return nil, b.LoadQuery(op.Name)
	case OpSetRenderer:
		return nil, b.SetRenderer(p, op.Index, op.Renderer)
	case OpEditParameter:
		return nil, b.EditParameter(op.Name, op.Value)
	case OpSetName:
		b.SetName(op.Name)
		return nil, nil
	case OpClear:
		b.Clear()
		return nil, nil
	case "":
		return nil, invalidOp(op.Kind, "op kind is required")
	}
	return nil, invalidOp(op.Kind, "unknown op %q", op.Kind)
}
