// Package fieldpath addresses values inside a record document by a list of
// segments, e.g. "options.0.value". Reads report absence explicitly; writes
// create intermediate maps and slices as needed.
package fieldpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Document is the generic JSON-shaped form of a record.
type Document = map[string]any

// Path is a parsed dotted accessor.
type Path []string

var errEmptyPath = errors.New("fieldpath: empty path")

// Parse splits s on dots. Empty segments are rejected.
func Parse(s string) (Path, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errEmptyPath
	}
	parts := strings.Split(s, ".")
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("fieldpath: %q: empty segment at %d", s, i)
		}
	}
	return Path(parts), nil
}

// MustParse is Parse for literals known at compile time.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String joins the path back into dotted form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

func index(seg string) (int, bool) {
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Get walks doc along p. The second result is false when any segment is
// missing or the shape does not allow the step.
func Get(doc any, p Path) (any, bool) {
	cur := doc
	for _, seg := range p {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := index(seg)
			if !ok || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at p inside doc, creating missing containers: a numeric
// next segment creates a slice, anything else a map. Slices grow with nil
// elements to reach the index. Existing scalars on the path are an error.
func Set(doc Document, p Path, value any) error {
	if len(p) == 0 {
		return errEmptyPath
	}
	if doc == nil {
		return errors.New("fieldpath: nil document")
	}
	if _, err := set(doc, p, value); err != nil {
		return fmt.Errorf("fieldpath: set %s: %w", p, err)
	}
	return nil
}

func set(container any, p Path, value any) (any, error) {
	seg := p[0]
	last := len(p) == 1

	switch c := container.(type) {
	case map[string]any:
		if last {
			c[seg] = value
			return c, nil
		}
		child, err := set(ensure(c[seg], p[1]), p[1:], value)
		if err != nil {
			return nil, err
		}
		c[seg] = child
		return c, nil
	case []any:
		i, ok := index(seg)
		if !ok {
			return nil, fmt.Errorf("segment %q is not an index", seg)
		}
		for len(c) <= i {
			c = append(c, nil)
		}
		if last {
			c[i] = value
			return c, nil
		}
		child, err := set(ensure(c[i], p[1]), p[1:], value)
		if err != nil {
			return nil, err
		}
		c[i] = child
		return c, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T at %q", container, seg)
	}
}

// ensure returns existing when it is a container, otherwise a fresh one
// shaped for the next segment.
func ensure(existing any, next string) any {
	switch existing.(type) {
	case map[string]any, []any:
		return existing
	case nil:
		if _, ok := index(next); ok {
			return []any{}
		}
		return map[string]any{}
	default:
		return existing
	}
}
