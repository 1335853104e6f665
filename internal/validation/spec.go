package validation

import (
	"fmt"

	"github.com/dgallion1/brsrform/internal/document"
)

// RuleSpec is the declarative form of a rule, as written in the section registry.
type RuleSpec struct {
	Kind    string   `yaml:"kind" json:"kind"`
	Path    string   `yaml:"path" json:"path"`
	When    string   `yaml:"when,omitempty" json:"when,omitempty"`
	Field   string   `yaml:"field,omitempty" json:"field,omitempty"`
	Min     *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Parts   []string `yaml:"parts,omitempty" json:"parts,omitempty"`
	Message string   `yaml:"message,omitempty" json:"message,omitempty"`
}

var validKinds = map[string]bool{
	"required":           true,
	"required_if":        true,
	"rich_text_required": true,
	"range":              true,
	"at_least_one_row":   true,
	"each_row_required":  true,
	"sum_not_exceeds":    true,
}

// FromSpecs compiles specs into a Gate, rejecting unknown kinds and bad paths.
func FromSpecs(specs []RuleSpec) (*Gate, error) {
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		if !validKinds[s.Kind] {
			return nil, fmt.Errorf("rule %d: unknown kind %q", i, s.Kind)
		}
		if err := checkPaths(s); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, s.Kind, err)
		}
		switch s.Kind {
		case "required":
			rules = append(rules, Required(s.Path, s.Message))
		case "required_if":
			if s.When == "" {
				return nil, fmt.Errorf("rule %d: required_if needs when", i)
			}
			rules = append(rules, RequiredIf(s.When, s.Path, s.Message))
		case "rich_text_required":
			rules = append(rules, RichTextRequired(s.Path, s.Message))
		case "range":
			if s.Min == nil || s.Max == nil {
				return nil, fmt.Errorf("rule %d: range needs min and max", i)
			}
			rules = append(rules, Range(s.Path, *s.Min, *s.Max, s.Message))
		case "at_least_one_row":
			if s.Field == "" {
				return nil, fmt.Errorf("rule %d: at_least_one_row needs field", i)
			}
			rules = append(rules, AtLeastOneRow(s.Path, RowHasValue(s.Field), s.Message))
		case "each_row_required":
			if s.Field == "" {
				return nil, fmt.Errorf("rule %d: each_row_required needs field", i)
			}
			rules = append(rules, EachRowRequired(s.Path, s.When, s.Field, s.Message))
		case "sum_not_exceeds":
			if len(s.Parts) == 0 {
				return nil, fmt.Errorf("rule %d: sum_not_exceeds needs parts", i)
			}
			rules = append(rules, SumNotExceeds(s.Path, s.Parts, s.Message))
		}
	}
	return NewGate(rules...), nil
}

func checkPaths(s RuleSpec) error {
	paths := append([]string{s.Path}, s.Parts...)
	if s.When != "" {
		paths = append(paths, s.When)
	}
	for _, p := range paths {
		if _, err := document.ParsePath(p); err != nil {
			return err
		}
	}
	return nil
}
