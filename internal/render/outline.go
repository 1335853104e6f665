// Package render turns report sections into a heading outline and writes
// it as Markdown, HTML, or .docx.
package render

import (
	"slices"
	"strconv"
	"strings"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/registry"
	"github.com/dgallion1/brsrform/internal/validation"
)

// Outline is the root of a rendered report.
type Outline struct {
	Title    string
	Sections []*Node
}

// Node is one heading with its scalar answers, an optional table for a
// repeatable array, and nested objects as children.
type Node struct {
	Title    string
	Fields   []Field
	Table    *Table
	Children []*Node
}

// Field is one labelled answer.
type Field struct {
	Label string
	Value string
}

// Table holds a repeatable array; every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// BuildOutline renders every registry section in order. Each stored
// document is merged onto its shape first so unanswered fields still show.
func BuildOutline(reg *registry.Registry, title string, sections map[string]document.Document) *Outline {
	o := &Outline{Title: title}
	for _, def := range reg.All() {
		o.Sections = append(o.Sections, SectionNode(def, sections[def.Field]))
	}
	return o
}

// SectionNode renders one section's stored document.
func SectionNode(def *registry.Definition, stored document.Document) *Node {
	merged, _ := document.MergeShape(def.Shape(), stored)
	b := builder{labels: map[string]bool{}}
	for _, spec := range def.Rows {
		if spec.Label != "" {
			b.labels[spec.Label] = true
		}
	}
	return b.objectNode(def.Title, merged)
}

type builder struct {
	// labels are serial-number columns, placed first in tables.
	labels map[string]bool
}

func (b builder) objectNode(title string, obj map[string]any) *Node {
	n := &Node{Title: title}
	for _, k := range sortedKeys(obj) {
		switch v := obj[k].(type) {
		case map[string]any:
			n.Children = append(n.Children, b.objectNode(humanize(k), v))
		case []any:
			n.Children = append(n.Children, &Node{Title: humanize(k), Table: b.tableOf(v)})
		default:
			n.Fields = append(n.Fields, Field{Label: humanize(k), Value: formatValue(v)})
		}
	}
	return n
}

// tableOf builds columns from the union of row keys, serial labels first.
func (b builder) tableOf(rows []any) *Table {
	seen := map[string]bool{}
	var keys []string
	scalarRows := false
	for _, r := range rows {
		obj, ok := r.(map[string]any)
		if !ok {
			scalarRows = true
			continue
		}
		for k := range obj {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	slices.SortFunc(keys, func(x, y string) int {
		if lx, ly := b.labels[x], b.labels[y]; lx != ly {
			if lx {
				return -1
			}
			return 1
		}
		return strings.Compare(x, y)
	})
	if scalarRows && len(keys) == 0 {
		keys = []string{""}
	}

	t := &Table{}
	for _, k := range keys {
		if k == "" {
			t.Header = append(t.Header, "Value")
			continue
		}
		t.Header = append(t.Header, humanize(k))
	}
	for _, r := range rows {
		cells := make([]string, len(keys))
		obj, isObj := r.(map[string]any)
		for i, k := range keys {
			switch {
			case isObj:
				cells[i] = formatValue(obj[k])
			case i == 0:
				cells[i] = formatValue(r)
			}
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return validation.PlainText(t)
	case map[string]any, []any:
		// Nested structure inside a table cell; flatten to key=value pairs.
		var parts []string
		if m, ok := t.(map[string]any); ok {
			for _, k := range sortedKeys(m) {
				parts = append(parts, k+"="+formatValue(m[k]))
			}
		} else {
			for _, el := range t.([]any) {
				parts = append(parts, formatValue(el))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// humanize turns "turnover_pct" into "Turnover pct".
func humanize(key string) string {
	s := strings.TrimSpace(strings.ReplaceAll(key, "_", " "))
	if s == "" {
		return key
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
