// Package registry maps plugin kind names from run configuration to
// factories, populated explicitly at startup.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownPluginKind is returned when no factory is registered for a kind.
var ErrUnknownPluginKind = errors.New("registry: unknown plugin kind")

// Factory builds a T from decoded parameters.
type Factory[T any] func(p Params) (T, error)

// Registry is a named set of factories. Kind names are case-insensitive.
type Registry[T any] struct {
	name string

	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// New creates an empty registry. The name appears in error messages.
func New[T any](name string) *Registry[T] {
	return &Registry[T]{
		name:      name,
		factories: make(map[string]Factory[T]),
	}
}

func normalize(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// Register adds a factory. Registering an empty or taken kind is an error.
func (r *Registry[T]) Register(kind string, f Factory[T]) error {
	k := normalize(kind)
	if k == "" {
		return fmt.Errorf("%s registry: empty kind", r.name)
	}
	if f == nil {
		return fmt.Errorf("%s registry: nil factory for %q", r.name, k)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[k]; ok {
		return fmt.Errorf("%s registry: kind %q already registered", r.name, k)
	}
	r.factories[k] = f
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (r *Registry[T]) MustRegister(kind string, f Factory[T]) {
	if err := r.Register(kind, f); err != nil {
		panic(err)
	}
}

// New builds the plugin registered under kind.
func (r *Registry[T]) New(kind string, p Params) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[normalize(kind)]
	r.mu.RUnlock()

	var zero T
	if !ok {
		return zero, fmt.Errorf("%w: %s %q (known: %s)",
			ErrUnknownPluginKind, r.name, kind, strings.Join(r.Kinds(), ", "))
	}
	v, err := f(p)
	if err != nil {
		return zero, fmt.Errorf("%s %q: %w", r.name, normalize(kind), err)
	}
	return v, nil
}

// Has reports whether kind is registered.
func (r *Registry[T]) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[normalize(kind)]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry[T]) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
