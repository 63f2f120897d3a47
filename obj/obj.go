// Package obj navigates dynamic JSON objects, like result payloads and projections,
// using dot separated paths.
package obj

import (
	"errors"
	"fmt"
	"strings"
)

// O is a dynamic object, as decoded from JSON.
type O = map[string]any

var (
	// ErrNotFound is returned when a key of the path is missing.
	ErrNotFound = errors.New("obj: key not found")

	// ErrInvalidPath is returned for malformed paths.
	ErrInvalidPath = errors.New("obj: invalid path")
)

// Get returns the value of type T at the dot separated path, like "author.address.city".
// Every segment but the last must be an object. Keys containing dots are double quoted,
// like `author."with.dot".value`, and a quote inside a key is escaped with a backslash.
//
// A missing key anywhere in the path is an [ErrNotFound], a malformed path is an [ErrInvalidPath].
// A value of another type than T is also an error.
func Get[T any](o O, path string) (T, error) {
	var z T
	segments, ok := splitPath(path)
	if !ok {
		return z, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	node := o
	last := len(segments) - 1
	for i, key := range segments {
		v, found := node[key]
		if !found {
			return z, fmt.Errorf("%w: %q", ErrNotFound, strings.Join(segments[:i+1], "."))
		}
		if i == last {
			tv, ok := v.(T)
			if !ok {
				return z, fmt.Errorf("value at path %q: want %T, got %T", path, z, v)
			}
			return tv, nil
		}
		child, ok := v.(O)
		if !ok {
			return z, fmt.Errorf("path %q: %q is %T, not an object", path, strings.Join(segments[:i+1], "."), v)
		}
		node = child
	}
	return z, nil
}

// Lookup returns the value at path, first as a literal key of o and then traversing
// nested objects like [Get]. Query projections use literal keys like "author.name"
// while payloads nest them, Lookup finds both.
func Lookup(o O, path string) (any, bool) {
	if v, ok := o[path]; ok {
		return v, true
	}
	v, err := Get[any](o, path)
	if err != nil {
		return nil, false
	}
	return v, true
}

// IsValidPath reports whether path can be used with [Get].
func IsValidPath(path string) bool {
	_, ok := splitPath(path)
	return ok
}

// splitPath splits path on the dots outside double quotes.
// Empty segments, like in "a..b" or "a.", make the path invalid.
func splitPath(path string) ([]string, bool) {
	var (
		segments []string
		seg      strings.Builder
		quoted   bool
		escaped  bool
	)
	for _, r := range path {
		switch {
		case escaped:
			if r != '"' {
				seg.WriteRune('\\')
			}
			seg.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == '.' && !quoted:
			if seg.Len() == 0 {
				return nil, false
			}
			segments = append(segments, seg.String())
			seg.Reset()
		default:
			seg.WriteRune(r)
		}
	}
	if escaped {
		seg.WriteRune('\\')
	}
	if seg.Len() == 0 {
		return nil, false
	}
	return append(segments, seg.String()), true
}
