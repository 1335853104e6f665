package section

import (
	"errors"
	"testing"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/google/go-cmp/cmp"
)

func p(s string) document.Path { return document.MustPath(s) }

func newState() *State {
	return New(document.Document{
		"a": map[string]any{"x": "", "y": []any{}},
		"b": false,
	}, nil)
}

func TestState_AddRowThenSetRowField(t *testing.T) {
	s := newState()
	if err := s.AddRow(p("a.y"), document.Document{"n": 0.0}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetArrayRow(p("a.y"), 0, "n", 5.0); err != nil {
		t.Fatal(err)
	}
	got, _ := document.Get(s.Document(), p("a.y"))
	if diff := cmp.Diff([]any{map[string]any{"n": 5.0}}, got); diff != "" {
		t.Errorf("a.y mismatch (-want +got):\n%s", diff)
	}
	if !s.Dirty() {
		t.Error("expected dirty after mutation")
	}
}

func TestState_AddRowCopiesTemplate(t *testing.T) {
	tmpl := document.Document{"n": 0.0}
	s := newState()
	if err := s.AddRow(p("a.y"), tmpl); err != nil {
		t.Fatal(err)
	}
	if err := s.SetArrayRow(p("a.y"), 0, "n", 9.0); err != nil {
		t.Fatal(err)
	}
	if tmpl["n"] != 0.0 {
		t.Errorf("template was mutated through the row: %v", tmpl)
	}
}

func TestState_AddRowRemoveRowInverse(t *testing.T) {
	rows := []any{map[string]any{"sno": 1.0, "v": "a"}, map[string]any{"sno": 2.0, "v": "b"}}
	s := New(document.Document{"t": rows}, map[string]RowSpec{
		"t": {Template: document.Document{"sno": 1.0, "v": ""}, Label: "sno"},
	})

	if err := s.AddRow(p("t"), nil); err != nil {
		t.Fatal(err)
	}
	got, _ := document.Get(s.Document(), p("t.2.sno"))
	if got != 3.0 {
		t.Errorf("expected appended row labelled 3, got %v", got)
	}
	if err := s.RemoveRow(p("t"), len(rows)); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rows, s.Document()["t"]); diff != "" {
		t.Errorf("add then remove should restore rows (-want +got):\n%s", diff)
	}
}

func TestState_RemoveRowRenumbersLaterRows(t *testing.T) {
	first := map[string]any{"sno": 1.0, "v": "a"}
	s := New(document.Document{"t": []any{
		first,
		map[string]any{"sno": 2.0, "v": "b"},
		map[string]any{"sno": 3.0, "v": "c"},
		map[string]any{"v": "no label"},
	}}, map[string]RowSpec{"t": {Label: "sno"}})

	if err := s.RemoveRow(p("t"), 1); err != nil {
		t.Fatal(err)
	}
	want := []any{
		map[string]any{"sno": 1.0, "v": "a"},
		map[string]any{"sno": 2.0, "v": "c"},
		map[string]any{"v": "no label"},
	}
	if diff := cmp.Diff(want, s.Document()["t"]); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	kept := s.Document()["t"].([]any)[0].(map[string]any)
	kept["marker"] = true
	if _, ok := first["marker"]; !ok {
		t.Error("expected rows before the removed index to keep their identity")
	}
}

func TestState_RowIndexErrors(t *testing.T) {
	s := newState()
	if err := s.SetArrayRow(p("a.y"), 0, "n", 1.0); !errors.Is(err, document.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange on empty array, got %v", err)
	}
	if err := s.RemoveRow(p("a.y"), 0); !errors.Is(err, document.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if err := s.AddRow(p("a.x"), nil); !errors.Is(err, ErrNotAnArray) {
		t.Errorf("expected ErrNotAnArray, got %v", err)
	}
	if s.Dirty() {
		t.Error("failed mutations should not mark dirty")
	}
}

func TestState_SetRowFieldOnScalarRow(t *testing.T) {
	s := New(document.Document{"a": map[string]any{"y": []any{"plain"}}}, nil)
	if err := s.SetArrayRow(p("a.y"), 0, "n", 1.0); !errors.Is(err, document.ErrNotAnObject) {
		t.Errorf("expected ErrNotAnObject, got %v", err)
	}
	got, _ := document.Get(s.Document(), p("a.y"))
	if diff := cmp.Diff([]any{"plain"}, got); diff != "" {
		t.Errorf("a.y mismatch (-want +got):\n%s", diff)
	}
	if s.Dirty() {
		t.Error("failed mutation should not mark dirty")
	}
	if err := s.SetArrayRow(p("a.y"), 0, "", "swapped"); err != nil {
		t.Fatal(err)
	}
	if v, _ := document.Get(s.Document(), p("a.y.0")); v != "swapped" {
		t.Errorf("a.y.0 = %v, want swapped", v)
	}
}

func TestState_AddRowCreatesMissingArray(t *testing.T) {
	s := newState()
	if err := s.AddRow(p("c.rows"), nil); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{map[string]any{}}, s.Document()["c"].(map[string]any)["rows"]); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestState_SetFieldClearsErrorAtPath(t *testing.T) {
	s := newState()
	s.SetValidation(map[string]string{"a.x": "required", "b": "required"}, map[string]string{"a.x": "check"})

	if err := s.SetField(p("a.x"), "filled"); err != nil {
		t.Fatal(err)
	}
	errs := s.Errors()
	if _, ok := errs["a.x"]; ok {
		t.Error("expected error at a.x to be cleared")
	}
	if _, ok := errs["b"]; !ok {
		t.Error("expected unrelated error to remain")
	}
	if len(s.Warnings()) != 0 {
		t.Errorf("expected warning at a.x cleared, got %v", s.Warnings())
	}
}

func TestState_SetNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"12.5", 12.5},
		{" 1,200 ", 1200.0},
		{"", nil},
		{"abc", nil},
		{"NaN", nil},
		{"Inf", nil},
		{"-infinity", nil},
		{"1e400", nil},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			s := newState()
			if err := s.SetNumber(p("n"), tc.raw); err != nil {
				t.Fatal(err)
			}
			v, found := document.Get(s.Document(), p("n"))
			if !found || v != tc.want {
				t.Errorf("got %v (found=%v), want %v", v, found, tc.want)
			}
		})
	}
}

func TestState_LockedMutatorsAreNoOps(t *testing.T) {
	s := New(document.Document{"t": []any{map[string]any{"sno": 1.0}}, "x": ""}, nil)
	s.SetLocked(true)
	before := s.Document()

	mutations := map[string]func() error{
		"SetField":    func() error { return s.SetField(p("x"), "v") },
		"SetNumber":   func() error { return s.SetNumber(p("x"), "3") },
		"SetArrayRow": func() error { return s.SetArrayRow(p("t"), 0, "sno", 9.0) },
		"AddRow":      func() error { return s.AddRow(p("t"), nil) },
		"RemoveRow":   func() error { return s.RemoveRow(p("t"), 0) },
		"Revert":      func() error { return s.Revert() },
	}
	for name, fn := range mutations {
		t.Run(name, func(t *testing.T) {
			if err := fn(); !errors.Is(err, ErrLocked) {
				t.Errorf("expected ErrLocked, got %v", err)
			}
			if diff := cmp.Diff(before, s.Document()); diff != "" {
				t.Errorf("document changed while locked (-want +got):\n%s", diff)
			}
			if s.Dirty() {
				t.Error("dirty flipped while locked")
			}
		})
	}
}

func TestState_MarkSavedAndRevert(t *testing.T) {
	s := newState()
	_ = s.SetField(p("a.x"), "saved")
	s.MarkSaved()
	if s.Dirty() {
		t.Error("expected clean after MarkSaved")
	}
	_ = s.SetField(p("a.x"), "unsaved")
	if err := s.Revert(); err != nil {
		t.Fatal(err)
	}
	if v, _ := document.Get(s.Document(), p("a.x")); v != "saved" {
		t.Errorf("expected revert to baseline, got %v", s.Document())
	}
	if s.Dirty() {
		t.Error("expected clean after revert")
	}
}
