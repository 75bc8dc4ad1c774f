// Package transform holds the named value transforms applied while
// replicating fields between modes.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/starford/cardsync/internal/fieldpath"
)

// Context gives a transform access to both records involved in a mapping.
type Context struct {
	Source fieldpath.Document
	Target fieldpath.Document
}

// Func converts a source value before it is written to the target.
type Func func(value any, tc Context) (any, error)

// Registry maps transform names to functions. It is built once at startup
// and handed to the executor; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns a registry pre-populated with the built-in transforms.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	for name, fn := range builtins() {
		r.funcs[name] = fn
	}
	return r
}

// Register adds a named transform. Names are unique.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return errors.New("transform: name is required")
	}
	if fn == nil {
		return fmt.Errorf("transform: %s: nil function", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("transform: %s: already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Apply runs the named transform. An empty or unregistered name returns
// value unchanged: a rule that references a removed transform still
// replicates.
func (r *Registry) Apply(value any, name string, tc Context) (any, error) {
	if name == "" {
		return value, nil
	}
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return value, nil
	}
	out, err := fn(value, tc)
	if err != nil {
		return nil, fmt.Errorf("transform: %s: %w", name, err)
	}
	return out, nil
}
