package document

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func shape() Document {
	return Document{
		"a": map[string]any{"x": "", "y": []any{}},
		"b": false,
	}
}

func TestMerge_PartialOverShape(t *testing.T) {
	got := Merge(shape(), Document{"a": map[string]any{"x": "hello"}})
	want := Document{"a": map[string]any{"x": "hello", "y": []any{}}, "b": false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_EmptyOverlayIsIdentity(t *testing.T) {
	base := Document{
		"name":     "",
		"count":    nil,
		"flag":     true,
		"nested":   map[string]any{"deep": map[string]any{"v": 1.0}},
		"template": []any{map[string]any{"sno": 1.0, "activity": ""}},
		"empty":    []any{},
	}
	got := Merge(base, Document{})
	if diff := cmp.Diff(base, got); diff != "" {
		t.Errorf("merge(base, {}) should equal base (-want +got):\n%s", diff)
	}
}

func TestMerge_FullOverlayWins(t *testing.T) {
	base := Document{
		"name":   "",
		"nested": map[string]any{"v": 0.0, "w": ""},
		"rows":   []any{map[string]any{"n": 0.0}},
		"flag":   false,
	}
	overlay := Document{
		"name":   "Acme Ltd",
		"nested": map[string]any{"v": 42.0, "w": "set"},
		"rows":   []any{map[string]any{"n": 1.0}, map[string]any{"n": 2.0}},
		"flag":   true,
	}
	got := Merge(base, CloneDocument(overlay))
	if diff := cmp.Diff(overlay, got); diff != "" {
		t.Errorf("overlay should win at every leaf (-want +got):\n%s", diff)
	}
}

func TestMerge_ArrayRules(t *testing.T) {
	tmpl := []any{map[string]any{"sno": 1.0, "activity": ""}}
	tests := []struct {
		name    string
		base    any
		overlay []any
		want    []any
	}{
		{"non-empty overlay replaces base", tmpl, []any{map[string]any{"activity": "mining"}}, []any{map[string]any{"activity": "mining"}}},
		{"empty overlay keeps template row", tmpl, []any{}, tmpl},
		{"empty overlay over empty base", []any{}, []any{}, []any{}},
		{"empty overlay over empty-object rows", []any{map[string]any{}}, []any{}, []any{}},
		{"empty overlay over scalar base", "x", []any{}, []any{}},
		{"scalar template row counts", []any{""}, []any{}, []any{""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Merge(Document{"rows": tc.base}, Document{"rows": tc.overlay})
			if diff := cmp.Diff(tc.want, got["rows"]); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMerge_ScalarPrecedence(t *testing.T) {
	base := Document{"cleared": "default", "kept": "default", "nullBase": nil}
	got := Merge(base, Document{"cleared": nil, "extra": 3.0})

	if v, ok := got["cleared"]; !ok || v != nil {
		t.Errorf("explicit null in overlay should win, got %v (present=%v)", v, ok)
	}
	if got["kept"] != "default" {
		t.Errorf("absent overlay key should keep base, got %v", got["kept"])
	}
	if v, ok := got["nullBase"]; !ok || v != nil {
		t.Errorf("null base with absent overlay should stay present as null")
	}
	if got["extra"] != 3.0 {
		t.Errorf("overlay-only key should be taken, got %v", got["extra"])
	}
}

func TestMerge_ObjectOverScalarWinsVerbatim(t *testing.T) {
	obj := map[string]any{"k": "v"}
	got := Merge(Document{"a": "scalar"}, Document{"a": obj})
	if diff := cmp.Diff(obj, got["a"]); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := shape()
	overlay := Document{"a": map[string]any{"x": "hello", "z": 1.0}}
	baseCopy := CloneDocument(base)
	overlayCopy := CloneDocument(overlay)

	_ = Merge(base, overlay)

	if diff := cmp.Diff(baseCopy, base); diff != "" {
		t.Errorf("base mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(overlayCopy, overlay); diff != "" {
		t.Errorf("overlay mutated (-want +got):\n%s", diff)
	}
}

func TestMergeShape_DropsLegacyKeys(t *testing.T) {
	partial := Document{
		"a":      map[string]any{"x": "hello", "legacy_inner": "old"},
		"legacy": "old",
		"rows":   []any{map[string]any{"n": 1.0, "extra": "kept"}},
	}
	sh := Document{
		"a":    map[string]any{"x": "", "y": []any{}},
		"b":    false,
		"rows": []any{map[string]any{"n": 0.0}},
	}

	got, dropped := MergeShape(sh, partial)
	want := Document{
		"a":    map[string]any{"x": "hello", "y": []any{}},
		"b":    false,
		"rows": []any{map[string]any{"n": 1.0, "extra": "kept"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.legacy_inner", "legacy"}, dropped); diff != "" {
		t.Errorf("dropped mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeShape_NewShapeKeysAppear(t *testing.T) {
	sh := Document{"old": "", "added_later": map[string]any{"flag": false}}
	got, dropped := MergeShape(sh, Document{"old": "stored"})
	if len(dropped) != 0 {
		t.Errorf("expected nothing dropped, got %v", dropped)
	}
	if v, _ := Get(got, MustPath("added_later.flag")); v != false {
		t.Errorf("expected default for key added after report start, got %v", v)
	}
}

func TestNormalize_YAMLTypes(t *testing.T) {
	in := map[string]any{
		"i":    3,
		"nest": map[any]any{"k": int64(4)},
		"arr":  []any{1, "s", nil, true},
	}
	got, err := NormalizeDocument(in)
	if err != nil {
		t.Fatal(err)
	}
	want := Document{
		"i":    3.0,
		"nest": map[string]any{"k": 4.0},
		"arr":  []any{1.0, "s", nil, true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if _, err := Normalize(struct{}{}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestDecode_EmptyAndNull(t *testing.T) {
	for _, in := range []string{"", "null", "{}"} {
		d, err := Decode([]byte(in))
		if err != nil {
			t.Fatalf("Decode(%q): %v", in, err)
		}
		if d == nil || len(d) != 0 {
			t.Errorf("Decode(%q) = %v, want empty document", in, d)
		}
	}
	if _, err := Decode([]byte("[1]")); err == nil {
		t.Error("expected error for array payload")
	}
}
