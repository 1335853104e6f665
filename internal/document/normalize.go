package document

import (
	"encoding/json"
	"fmt"
)

// Clone deep-copies objects and arrays. Scalars are immutable and shared.
func Clone(v any) any {
	switch n := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(n))
		for k, el := range n {
			cp[k] = Clone(el)
		}
		return cp
	case []any:
		cp := make([]any, len(n))
		for i, el := range n {
			cp[i] = Clone(el)
		}
		return cp
	default:
		return v
	}
}

// CloneDocument is Clone for a whole document.
func CloneDocument(d Document) Document {
	if d == nil {
		return Document{}
	}
	return Clone(d).(map[string]any)
}

// Normalize converts a decoded tree (YAML decoders yield ints and
// map[any]any) into the same types encoding/json produces.
func Normalize(v any) (any, error) {
	switch n := v.(type) {
	case nil, string, bool, float64:
		return n, nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("normalize number %q: %w", n, err)
		}
		return f, nil
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, el := range n {
			nv, err := Normalize(el)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, el := range n {
			nv, err := Normalize(el)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(n))
		for i, el := range n {
			nv, err := Normalize(el)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("normalize: unsupported type %T", v)
	}
}

// NormalizeDocument is Normalize for a top-level object.
func NormalizeDocument(d map[string]any) (Document, error) {
	v, err := Normalize(d)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// Decode parses a JSON object. Empty input and JSON null decode to an empty document.
func Decode(data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, nil
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if d == nil {
		d = Document{}
	}
	return d, nil
}
