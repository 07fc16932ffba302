// Package helpers maintains the named helper functions invocable from
// template expressions.
//
// Helpers are pure functions of their arguments. Registration happens at
// engine setup; Freeze makes the registry read-only before the first
// render, after which concurrent render calls share it without locking
// concerns. There is no package-level registry: each engine owns its own.
package helpers

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	qerrors "github.com/conneroisu/quill/internal/errors"
)

// Func is a helper implementation.
type Func func(args []any) (any, error)

// entry pairs an implementation with its arity policy. maxArgs -1 means
// variadic.
type entry struct {
	fn      Func
	minArgs int
	maxArgs int
}

// Registry maps helper names to implementations. It satisfies the
// evaluator's Helpers interface.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	frozen  atomic.Bool
}

// NewRegistry creates an empty helper registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// NewWithBuiltins creates a registry pre-populated with the built-in
// helper set.
func NewWithBuiltins() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Register adds or replaces a helper. Registering on a frozen registry is
// an error; helpers are setup-time configuration, not render-time state.
func (r *Registry) Register(name string, minArgs, maxArgs int, fn Func) error {
	if name == "" || fn == nil {
		return fmt.Errorf("helper registration requires a name and an implementation")
	}
	if r.frozen.Load() {
		return fmt.Errorf("helper registry is frozen; register helpers before rendering")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{fn: fn, minArgs: minArgs, maxArgs: maxArgs}
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// Exists reports whether a helper name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the sorted registered helper names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call dispatches a helper by name, enforcing its arity policy.
func (r *Registry) Call(name string, args []any) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &qerrors.RenderError{Kind: qerrors.UnknownHelper, Name: name}
	}
	if len(args) < e.minArgs || (e.maxArgs >= 0 && len(args) > e.maxArgs) {
		return nil, &qerrors.RenderError{
			Kind:    qerrors.TypeMismatch,
			Name:    name,
			Message: fmt.Sprintf("helper takes %s, got %d", arityString(e.minArgs, e.maxArgs), len(args)),
		}
	}
	return e.fn(args)
}

func arityString(min, max int) string {
	switch {
	case max < 0:
		return fmt.Sprintf("at least %d argument(s)", min)
	case min == max:
		return fmt.Sprintf("%d argument(s)", min)
	default:
		return fmt.Sprintf("%d to %d arguments", min, max)
	}
}
