package component

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownType indicates a lookup for an unregistered component type.
var ErrUnknownType = errors.New("unknown component type")

// Constructor builds a component instance from its node params.
type Constructor func(params map[string]any) (Component, error)

// Registry is a thread-safe name-to-constructor map. Types are registered
// explicitly at startup; there is no reflective dispatch.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Constructor)}
}

// Register adds a constructor for a type name.
// Panics if the name is empty, the constructor is nil, or the name is
// already registered. Registration errors are programmer errors.
func (r *Registry) Register(typeName string, ctor Constructor) {
	if typeName == "" {
		panic("component: type name cannot be empty")
	}
	if ctor == nil {
		panic("component: constructor cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[typeName]; exists {
		panic(fmt.Sprintf("component: duplicate type name: %s", typeName))
	}
	r.entries[typeName] = ctor
}

// Has reports whether a type name is registered.
func (r *Registry) Has(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[typeName]
	return ok
}

// New instantiates a component of the given type with the given params.
func (r *Registry) New(typeName string, params map[string]any) (Component, error) {
	r.mu.RLock()
	ctor, ok := r.entries[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	return ctor(params)
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
