// Package document holds the untyped JSON tree edited by a report section,
// with copy-on-write path access and the shape-aware deep merge used on load.
package document

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Document is one section's tree: JSON objects decode to map[string]any,
// arrays to []any, numbers to float64.
type Document = map[string]any

var (
	ErrEmptyPath       = errors.New("empty path")
	ErrIndexOutOfRange = errors.New("array index out of range")
	ErrNotAnObject     = errors.New("path crosses an array with a non-index key")
)

// Key is one step of a Path. Numeric keys index arrays and name object keys.
type Key struct {
	Name    string
	Index   int
	Indexed bool
}

// Path addresses a value inside a Document.
type Path []Key

// Field returns an object key.
func Field(name string) Key {
	if n, err := strconv.Atoi(name); err == nil && n >= 0 {
		return Key{Name: name, Index: n, Indexed: true}
	}
	return Key{Name: name}
}

// Index returns an array index key.
func Index(i int) Key {
	return Key{Name: strconv.Itoa(i), Index: i, Indexed: true}
}

// ParsePath accepts dotted paths with optional brackets: "a.y[0].n" or "a.y.0.n".
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyPath
	}
	var p Path
	for _, seg := range strings.Split(s, ".") {
		name := seg
		var idx []string
		if open := strings.IndexByte(seg, '['); open >= 0 {
			name = seg[:open]
			rest := seg[open:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("parse path %q: unexpected %q", s, rest)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("parse path %q: unclosed bracket", s)
				}
				idx = append(idx, rest[1:end])
				rest = rest[end+1:]
			}
		}
		if name == "" && len(idx) == 0 {
			return nil, fmt.Errorf("parse path %q: empty segment", s)
		}
		if name != "" {
			p = append(p, Field(name))
		}
		for _, raw := range idx {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("parse path %q: bad index %q", s, raw)
			}
			p = append(p, Index(n))
		}
	}
	return p, nil
}

// MustPath is ParsePath for literals.
func MustPath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	var sb strings.Builder
	for i, k := range p {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(k.Name)
	}
	return sb.String()
}

// Append returns a new path; p is never aliased.
func (p Path) Append(keys ...Key) Path {
	out := make(Path, 0, len(p)+len(keys))
	out = append(out, p...)
	return append(out, keys...)
}

// Get returns the value at path. Missing intermediate or final keys report
// found=false rather than an error.
func Get(doc any, path Path) (any, bool) {
	cur := doc
	for _, k := range path {
		switch n := cur.(type) {
		case map[string]any:
			v, ok := n[k.Name]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			if !k.Indexed || k.Index >= len(n) {
				return nil, false
			}
			cur = n[k.Index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set returns a copy of doc with value stored at path. Every object and array
// on the path is shallow-copied; everything off the path is shared. Absent or
// scalar intermediates become empty objects. Array indexes must already exist.
func Set(doc Document, path Path, value any) (Document, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	out, err := setIn(doc, path, value)
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", path, err)
	}
	return out.(map[string]any), nil
}

func setIn(node any, path Path, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	k := path[0]
	if arr, ok := node.([]any); ok {
		if !k.Indexed {
			return nil, ErrNotAnObject
		}
		if k.Index >= len(arr) {
			return nil, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, k.Index, len(arr))
		}
		child, err := setIn(arr[k.Index], path[1:], value)
		if err != nil {
			return nil, err
		}
		cp := make([]any, len(arr))
		copy(cp, arr)
		cp[k.Index] = child
		return cp, nil
	}

	obj, _ := node.(map[string]any)
	child, err := setIn(obj[k.Name], path[1:], value)
	if err != nil {
		return nil, err
	}
	cp := make(map[string]any, len(obj)+1)
	for key, v := range obj {
		cp[key] = v
	}
	cp[k.Name] = child
	return cp, nil
}

// Update applies fn to the value at path and stores the result with Set.
// fn sees found=false when the path is missing.
func Update(doc Document, path Path, fn func(v any, found bool) (any, error)) (Document, error) {
	cur, found := Get(doc, path)
	next, err := fn(cur, found)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", path, err)
	}
	return Set(doc, path, next)
}
