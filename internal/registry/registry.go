// Package registry selects a backend by configured priority and health.
package registry

import (
	"fmt"
)

// Backend is anything that can be registered by name.
type Backend interface {
	Name() string
	Healthy() bool
}

// Registry maps names to backends and resolves the first healthy one in
// priority order at call time. It is built once and passed to dependents.
type Registry[T Backend] struct {
	byName   map[string]T
	priority []string
}

// New builds a registry. Every priority entry must name a registered backend.
func New[T Backend](priority []string, backends ...T) (*Registry[T], error) {
	byName := make(map[string]T, len(backends))
	for _, b := range backends {
		if _, dup := byName[b.Name()]; dup {
			return nil, fmt.Errorf("duplicate backend %q", b.Name())
		}
		byName[b.Name()] = b
	}
	for _, name := range priority {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("priority names unknown backend %q", name)
		}
	}
	return &Registry[T]{byName: byName, priority: append([]string(nil), priority...)}, nil
}

// Select returns the first healthy backend in priority order.
func (r *Registry[T]) Select() (T, bool) {
	for _, name := range r.priority {
		if b := r.byName[name]; b.Healthy() {
			return b, true
		}
	}
	var zero T
	return zero, false
}

// Get returns a backend by name.
func (r *Registry[T]) Get(name string) (T, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// Priority returns the configured order.
func (r *Registry[T]) Priority() []string {
	return append([]string(nil), r.priority...)
}
