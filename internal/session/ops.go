package session

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/section"
)

var ErrBadOp = errors.New("invalid operation")

// Op is one edit sent by a thin client.
//
//	{"op":"set","path":"a.x","value":"hello"}
//	{"op":"set_number","path":"a.n","value":"1,200.5"}
//	{"op":"set_row","path":"a.y","index":0,"value":{"n":1}}
//	{"op":"set_row_field","path":"a.y","index":0,"field":"n","value":5}
//	{"op":"add_row","path":"a.y"}
//	{"op":"remove_row","path":"a.y","index":0}
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Index int    `json:"index,omitempty"`
	Field string `json:"field,omitempty"`
	Value any    `json:"value,omitempty"`
}

// ApplyOps runs ops in order and stops at the first failure. It returns how
// many ops were applied; earlier edits stay applied.
func ApplyOps(st *section.State, ops []Op) (int, error) {
	for i, op := range ops {
		if err := op.apply(st); err != nil {
			return i, fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return len(ops), nil
}

func (o Op) apply(st *section.State) error {
	path, err := document.ParsePath(o.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadOp, err)
	}
	value, err := document.Normalize(o.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadOp, err)
	}

	switch o.Op {
	case "set":
		return st.SetField(path, value)
	case "set_number":
		return st.SetNumber(path, numberText(value))
	case "set_row":
		return st.SetArrayRow(path, o.Index, "", value)
	case "set_row_field":
		if o.Field == "" {
			return fmt.Errorf("%w: set_row_field needs field", ErrBadOp)
		}
		return st.SetArrayRow(path, o.Index, o.Field, value)
	case "add_row":
		var tmpl document.Document
		if value != nil {
			obj, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: add_row value must be an object", ErrBadOp)
			}
			tmpl = obj
		}
		return st.AddRow(path, tmpl)
	case "remove_row":
		return st.RemoveRow(path, o.Index)
	default:
		return fmt.Errorf("%w: unknown op %q", ErrBadOp, o.Op)
	}
}

func numberText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
