// Package section holds the editable state of one mounted report section.
package section

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dgallion1/brsrform/internal/document"
)

var (
	ErrLocked     = errors.New("section is locked")
	ErrNotAnArray = errors.New("value at path is not an array")
)

// RowSpec describes a repeatable table inside a section.
type RowSpec struct {
	// Template is copied for every AddRow that does not supply its own row.
	Template document.Document
	// Label names the 1-based serial field ("sno") kept in step with row position.
	Label string
}

// State is one section's working document. Every mutator replaces the
// document with a copy-on-write successor and marks the state dirty. State is
// not safe for concurrent use; persistence.Section serializes access.
type State struct {
	doc      document.Document
	baseline document.Document
	dirty    bool
	locked   bool
	errors   map[string]string
	warnings map[string]string
	rows     map[string]RowSpec
}

// New seeds a clean state. rows is keyed by array path ("a.y").
func New(doc document.Document, rows map[string]RowSpec) *State {
	if doc == nil {
		doc = document.Document{}
	}
	if rows == nil {
		rows = map[string]RowSpec{}
	}
	return &State{
		doc:      doc,
		baseline: doc,
		errors:   map[string]string{},
		warnings: map[string]string{},
		rows:     rows,
	}
}

// Document returns the current tree. It is shared: treat it as read-only.
func (s *State) Document() document.Document { return s.doc }

// Baseline is the document as of the last load or save.
func (s *State) Baseline() document.Document { return s.baseline }

func (s *State) Dirty() bool  { return s.dirty }
func (s *State) Locked() bool { return s.locked }

// SetLocked gates every mutator. A locked state never changes its document
// or dirty flag.
func (s *State) SetLocked(locked bool) { s.locked = locked }

// Errors returns a copy of the blocking validation messages by path.
func (s *State) Errors() map[string]string { return copyMap(s.errors) }

// Warnings returns a copy of the non-blocking validation messages by path.
func (s *State) Warnings() map[string]string { return copyMap(s.warnings) }

// SetValidation replaces the stored validation result.
func (s *State) SetValidation(errs, warnings map[string]string) {
	s.errors = copyMap(errs)
	s.warnings = copyMap(warnings)
}

// Seed replaces the document and baseline and clears dirty and validation.
func (s *State) Seed(doc document.Document) {
	if doc == nil {
		doc = document.Document{}
	}
	s.doc = doc
	s.baseline = doc
	s.dirty = false
	s.errors = map[string]string{}
	s.warnings = map[string]string{}
}

// MarkSaved makes the current document the baseline.
func (s *State) MarkSaved() {
	s.baseline = s.doc
	s.dirty = false
}

// Revert drops local edits back to the baseline.
func (s *State) Revert() error {
	if s.locked {
		return ErrLocked
	}
	s.doc = s.baseline
	s.dirty = false
	s.errors = map[string]string{}
	s.warnings = map[string]string{}
	return nil
}

// SetField stores value at path and clears any message recorded there.
func (s *State) SetField(path document.Path, value any) error {
	if s.locked {
		return ErrLocked
	}
	next, err := document.Set(s.doc, path, value)
	if err != nil {
		return err
	}
	s.commit(next, path.String())
	return nil
}

// SetNumber parses raw as a number and stores it, or stores null when raw is
// blank, does not parse, or is not finite (JSON has no NaN or Inf).
func (s *State) SetNumber(path document.Path, raw string) error {
	var v any
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(raw, ",", "")), 64)
	if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		v = f
	}
	return s.SetField(path, v)
}

// SetArrayRow replaces the row at index when field is empty, otherwise sets
// one field inside it. Other rows keep their identity.
func (s *State) SetArrayRow(arrayPath document.Path, index int, field string, value any) error {
	if s.locked {
		return ErrLocked
	}
	arr, err := s.array(arrayPath)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(arr) {
		return fmt.Errorf("set row %s[%d]: %w", arrayPath, index, document.ErrIndexOutOfRange)
	}
	target := arrayPath.Append(document.Index(index))
	if field == "" {
		next, err := document.Set(s.doc, target, value)
		if err != nil {
			return err
		}
		s.commit(next, target.String())
		return nil
	}

	next, err := document.Update(s.doc, target, func(v any, _ bool) (any, error) {
		row, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("row %d is not an object: %w", index, document.ErrNotAnObject)
		}
		cp := make(map[string]any, len(row)+1)
		for k, rv := range row {
			cp[k] = rv
		}
		cp[field] = value
		return cp, nil
	})
	if err != nil {
		return err
	}
	s.commit(next, target.Append(document.Key{Name: field}).String())
	return nil
}

// AddRow appends a fresh copy of template, or of the registered template
// when template is nil. A missing array is created.
func (s *State) AddRow(arrayPath document.Path, template document.Document) error {
	if s.locked {
		return ErrLocked
	}
	arr, err := s.array(arrayPath)
	if err != nil {
		return err
	}
	spec := s.rows[arrayPath.String()]
	if template == nil {
		template = spec.Template
	}
	row := document.CloneDocument(template)
	if spec.Label != "" {
		row[spec.Label] = float64(len(arr) + 1)
	}

	grown := make([]any, len(arr), len(arr)+1)
	copy(grown, arr)
	grown = append(grown, row)

	next, err := document.Set(s.doc, arrayPath, grown)
	if err != nil {
		return err
	}
	s.commit(next, "")
	return nil
}

// RemoveRow deletes the row at index and renumbers the serial label of every
// later row in the same step.
func (s *State) RemoveRow(arrayPath document.Path, index int) error {
	if s.locked {
		return ErrLocked
	}
	arr, err := s.array(arrayPath)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(arr) {
		return fmt.Errorf("remove row %s[%d]: %w", arrayPath, index, document.ErrIndexOutOfRange)
	}
	label := s.rows[arrayPath.String()].Label

	shrunk := make([]any, 0, len(arr)-1)
	shrunk = append(shrunk, arr[:index]...)
	for i, row := range arr[index+1:] {
		if obj, ok := row.(map[string]any); ok && label != "" {
			if _, has := obj[label]; has {
				cp := make(map[string]any, len(obj))
				for k, v := range obj {
					cp[k] = v
				}
				cp[label] = float64(index + i + 1)
				row = cp
			}
		}
		shrunk = append(shrunk, row)
	}

	next, err := document.Set(s.doc, arrayPath, shrunk)
	if err != nil {
		return err
	}
	s.commit(next, "")
	s.dropMessagesUnder(arrayPath.String() + ".")
	return nil
}

func (s *State) array(path document.Path) ([]any, error) {
	v, found := document.Get(s.doc, path)
	if !found || v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotAnArray)
	}
	return arr, nil
}

func (s *State) commit(next document.Document, clearPath string) {
	s.doc = next
	s.dirty = true
	if clearPath != "" {
		delete(s.errors, clearPath)
		delete(s.warnings, clearPath)
	}
}

// dropMessagesUnder discards row-level messages after a removal shifts row positions.
func (s *State) dropMessagesUnder(prefix string) {
	for k := range s.errors {
		if strings.HasPrefix(k, prefix) {
			delete(s.errors, k)
		}
	}
	for k := range s.warnings {
		if strings.HasPrefix(k, prefix) {
			delete(s.warnings, k)
		}
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
