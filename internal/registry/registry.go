// Package registry is the lookup table from section ID to backend wire field,
// default shape, repeatable tables, and validation rules.
package registry

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/section"
	"github.com/dgallion1/brsrform/internal/validation"
	"gopkg.in/yaml.v3"
)

//go:embed sections.yaml
var builtin []byte

// Definition describes one section of the report.
type Definition struct {
	ID    string
	Title string
	// Field is the key the backend stores this section under.
	Field string
	Rows  map[string]section.RowSpec
	Rules []validation.RuleSpec

	shape document.Document
	gate  *validation.Gate
}

// Shape returns a fresh deep copy of the section's default document.
func (d *Definition) Shape() document.Document {
	return document.CloneDocument(d.shape)
}

// Gate returns the compiled validation rules.
func (d *Definition) Gate() *validation.Gate { return d.gate }

// Registry holds section definitions in declaration order.
type Registry struct {
	ordered []*Definition
	byID    map[string]*Definition
	byField map[string]*Definition
}

type fileFormat struct {
	Sections []struct {
		ID    string         `yaml:"id"`
		Title string         `yaml:"title"`
		Field string         `yaml:"field"`
		Shape map[string]any `yaml:"shape"`
		Rows  []struct {
			Path     string         `yaml:"path"`
			Label    string         `yaml:"label"`
			Template map[string]any `yaml:"template"`
		} `yaml:"rows"`
		Rules []validation.RuleSpec `yaml:"rules"`
	} `yaml:"sections"`
}

// Default returns the built-in BRSR registry.
func Default() (*Registry, error) {
	return Load(bytes.NewReader(builtin))
}

// LoadFile reads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and checks a YAML registry. Section IDs and wire fields must be
// unique, and every declared row table must be an array in the shape.
func Load(r io.Reader) (*Registry, error) {
	var ff fileFormat
	if err := yaml.NewDecoder(r).Decode(&ff); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if len(ff.Sections) == 0 {
		return nil, fmt.Errorf("registry has no sections")
	}

	reg := &Registry{
		byID:    make(map[string]*Definition, len(ff.Sections)),
		byField: make(map[string]*Definition, len(ff.Sections)),
	}
	for _, s := range ff.Sections {
		if s.ID == "" || s.Field == "" {
			return nil, fmt.Errorf("section %q: id and field are required", s.ID)
		}
		if _, dup := reg.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate section id %q", s.ID)
		}
		if other, dup := reg.byField[s.Field]; dup {
			return nil, fmt.Errorf("section %q reuses field %q of section %q", s.ID, s.Field, other.ID)
		}

		shape, err := document.NormalizeDocument(s.Shape)
		if err != nil {
			return nil, fmt.Errorf("section %s shape: %w", s.ID, err)
		}
		def := &Definition{
			ID:    s.ID,
			Title: s.Title,
			Field: s.Field,
			Rows:  make(map[string]section.RowSpec, len(s.Rows)),
			Rules: s.Rules,
			shape: shape,
		}
		for _, row := range s.Rows {
			p, err := document.ParsePath(row.Path)
			if err != nil {
				return nil, fmt.Errorf("section %s rows: %w", s.ID, err)
			}
			if v, _ := document.Get(shape, p); !isArray(v) {
				return nil, fmt.Errorf("section %s rows: %s is not an array in the shape", s.ID, row.Path)
			}
			tmpl, err := document.NormalizeDocument(row.Template)
			if err != nil {
				return nil, fmt.Errorf("section %s row %s: %w", s.ID, row.Path, err)
			}
			def.Rows[p.String()] = section.RowSpec{Template: tmpl, Label: row.Label}
		}
		if def.gate, err = validation.FromSpecs(s.Rules); err != nil {
			return nil, fmt.Errorf("section %s rules: %w", s.ID, err)
		}

		reg.ordered = append(reg.ordered, def)
		reg.byID[def.ID] = def
		reg.byField[def.Field] = def
	}
	return reg, nil
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

// Lookup finds a section by ID.
func (r *Registry) Lookup(id string) (*Definition, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// ByField finds a section by its backend wire field.
func (r *Registry) ByField(field string) (*Definition, bool) {
	d, ok := r.byField[field]
	return d, ok
}

// All returns definitions in declaration order.
func (r *Registry) All() []*Definition {
	out := make([]*Definition, len(r.ordered))
	copy(out, r.ordered)
	return out
}
