package document

import "sort"

// Merge combines base (usually a section's default shape) with overlay (what
// the backend has stored), key by key over the union of both objects:
//
//   - object over object recurses;
//   - object over anything else wins verbatim;
//   - a non-empty overlay array wins verbatim; an empty one loses only to a
//     base array carrying a meaningful template row;
//   - a present overlay scalar (null included) wins, an absent one keeps base.
//
// Neither input is modified. Subtrees taken from one side are shared, not copied.
func Merge(base, overlay Document) Document {
	out := make(Document, len(base)+len(overlay))
	for k, bv := range base {
		if _, ok := overlay[k]; !ok {
			out[k] = bv
		}
	}
	for k, ov := range overlay {
		bv := base[k]
		out[k] = mergeValue(bv, ov)
	}
	return out
}

func mergeValue(bv, ov any) any {
	switch o := ov.(type) {
	case map[string]any:
		if b, ok := bv.(map[string]any); ok {
			return Merge(b, o)
		}
		return o
	case []any:
		if len(o) > 0 {
			return o
		}
		if b, ok := bv.([]any); ok && hasTemplateRow(b) {
			return b
		}
		return o
	default:
		return ov
	}
}

// hasTemplateRow reports whether arr holds at least one element that is not
// an empty object.
func hasTemplateRow(arr []any) bool {
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok && len(m) == 0 {
			continue
		}
		return true
	}
	return false
}

// MergeShape merges a stored partial document onto a section shape and then
// drops object keys the shape does not declare. Array contents and objects that
// replaced a non-object shape value are kept verbatim. The dropped paths are
// returned sorted so callers can log legacy keys.
func MergeShape(shape, partial Document) (Document, []string) {
	merged := Merge(shape, partial)
	var dropped []string
	out, _ := prune(shape, merged, nil, &dropped)
	sort.Strings(dropped)
	return out, dropped
}

func prune(shape, doc Document, at Path, dropped *[]string) (Document, bool) {
	var out Document
	for k, v := range doc {
		sv, declared := shape[k]
		if !declared {
			if out == nil {
				out = copyObject(doc)
			}
			delete(out, k)
			*dropped = append(*dropped, at.Append(Field(k)).String())
			continue
		}
		sm, sok := sv.(map[string]any)
		dm, dok := v.(map[string]any)
		if !sok || !dok {
			continue
		}
		if pruned, changed := prune(sm, dm, at.Append(Field(k)), dropped); changed {
			if out == nil {
				out = copyObject(doc)
			}
			out[k] = pruned
		}
	}
	if out == nil {
		return doc, false
	}
	return out, true
}

func copyObject(m Document) Document {
	cp := make(Document, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
