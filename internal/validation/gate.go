// Package validation evaluates required-field and cross-field rules against a
// section document before it may be saved.
package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/brsrform/internal/document"
)

// Severity separates blocking errors from warnings that need confirmation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Result maps field paths to human-readable messages.
type Result struct {
	Errors   map[string]string `json:"errors"`
	Warnings map[string]string `json:"warnings"`
}

func newResult() Result {
	return Result{Errors: map[string]string{}, Warnings: map[string]string{}}
}

// Blocking reports whether any error prevents saving.
func (r Result) Blocking() bool { return len(r.Errors) > 0 }

// HasWarnings reports whether saving needs explicit confirmation.
func (r Result) HasWarnings() bool { return len(r.Warnings) > 0 }

// Add records a message; the first message per path wins.
func (r Result) Add(sev Severity, path, msg string) {
	m := r.Errors
	if sev == SeverityWarning {
		m = r.Warnings
	}
	if _, exists := m[path]; !exists {
		m[path] = msg
	}
}

// Summary joins messages in path order for a single banner string.
func (r Result) Summary() string {
	paths := make([]string, 0, len(r.Errors))
	for p := range r.Errors {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, p+": "+r.Errors[p])
	}
	return strings.Join(parts, "; ")
}

// Rule inspects a document and records findings into r.
type Rule interface {
	Check(doc document.Document, r Result)
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(doc document.Document, r Result)

func (f RuleFunc) Check(doc document.Document, r Result) { f(doc, r) }

// Gate runs every rule on demand. It holds no state between runs.
type Gate struct {
	rules []Rule
}

func NewGate(rules ...Rule) *Gate {
	return &Gate{rules: rules}
}

// Validate runs all rules synchronously.
func (g *Gate) Validate(doc document.Document) Result {
	r := newResult()
	if g == nil {
		return r
	}
	for _, rule := range g.rules {
		rule.Check(doc, r)
	}
	return r
}

// Required fails when the value is missing, null, or a blank string.
func Required(path, msg string) Rule {
	p := document.MustPath(path)
	return RuleFunc(func(doc document.Document, r Result) {
		if isBlank(doc, p) {
			r.Add(SeverityError, path, orDefault(msg, "this field is required"))
		}
	})
}

// RequiredIf applies Required to path only while the value at when is truthy.
func RequiredIf(when, path, msg string) Rule {
	w := document.MustPath(when)
	p := document.MustPath(path)
	return RuleFunc(func(doc document.Document, r Result) {
		cond, _ := document.Get(doc, w)
		if truthy(cond) && isBlank(doc, p) {
			r.Add(SeverityError, path, orDefault(msg, "required when "+when+" is set"))
		}
	})
}

// RichTextRequired treats markup with no visible text as blank.
func RichTextRequired(path, msg string) Rule {
	p := document.MustPath(path)
	return RuleFunc(func(doc document.Document, r Result) {
		v, _ := document.Get(doc, p)
		s, _ := v.(string)
		if strings.TrimSpace(PlainText(s)) == "" {
			r.Add(SeverityError, path, orDefault(msg, "this field is required"))
		}
	})
}

// Range checks a numeric value lies in [min, max]. Blank values are left to Required.
func Range(path string, min, max float64, msg string) Rule {
	p := document.MustPath(path)
	return RuleFunc(func(doc document.Document, r Result) {
		v, found := document.Get(doc, p)
		if !found || v == nil || v == "" {
			return
		}
		n, ok := number(v)
		if !ok {
			r.Add(SeverityError, path, "must be a number")
			return
		}
		if n < min || n > max {
			r.Add(SeverityError, path, orDefault(msg, fmt.Sprintf("must be between %g and %g", min, max)))
		}
	})
}

// AtLeastOneRow requires some row of the array at path to satisfy pred.
func AtLeastOneRow(path string, pred func(row map[string]any) bool, msg string) Rule {
	p := document.MustPath(path)
	return RuleFunc(func(doc document.Document, r Result) {
		v, _ := document.Get(doc, p)
		arr, _ := v.([]any)
		for _, el := range arr {
			if row, ok := el.(map[string]any); ok && pred(row) {
				return
			}
		}
		r.Add(SeverityError, path, orDefault(msg, "at least one row is required"))
	})
}

// RowHasValue is an AtLeastOneRow predicate for a non-blank field.
func RowHasValue(field string) func(row map[string]any) bool {
	return func(row map[string]any) bool {
		return !blankValue(row[field])
	}
}

// EachRowRequired reports blank field values per row as "path.i.field".
// When when is non-empty only rows whose when field is truthy are checked.
func EachRowRequired(path, when, field, msg string) Rule {
	p := document.MustPath(path)
	return RuleFunc(func(doc document.Document, r Result) {
		v, _ := document.Get(doc, p)
		arr, _ := v.([]any)
		for i, el := range arr {
			row, _ := el.(map[string]any)
			if when != "" && !truthy(row[when]) {
				continue
			}
			if blankValue(row[field]) {
				r.Add(SeverityError, path+"."+strconv.Itoa(i)+"."+field, orDefault(msg, "this field is required"))
			}
		}
	})
}

// SumNotExceeds warns when the parts add up to more than the stated total.
func SumNotExceeds(total string, parts []string, msg string) Rule {
	tp := document.MustPath(total)
	pps := make([]document.Path, len(parts))
	for i, part := range parts {
		pps[i] = document.MustPath(part)
	}
	return RuleFunc(func(doc document.Document, r Result) {
		tv, _ := document.Get(doc, tp)
		limit, ok := number(tv)
		if !ok {
			return
		}
		var sum float64
		for _, pp := range pps {
			v, _ := document.Get(doc, pp)
			if n, ok := number(v); ok {
				sum += n
			}
		}
		if sum > limit {
			r.Add(SeverityWarning, total, orDefault(msg, fmt.Sprintf("parts add up to %g, more than the total %g", sum, limit)))
		}
	})
}

func isBlank(doc document.Document, p document.Path) bool {
	v, found := document.Get(doc, p)
	return !found || blankValue(v)
}

func blankValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "y", "true":
			return true
		}
	}
	return false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func orDefault(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
