package system

import (
	"reflect"
	"sync"
)

// ExtensionRegistry lazily constructs and caches one instance per concrete
// type, the way a plugin (serialization, persistence, remoting) attaches
// itself to the actor system without the core importing any of those
// packages.
type ExtensionRegistry struct {
	mu    sync.Mutex
	byTyp map[reflect.Type]any
}

func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{byTyp: make(map[reflect.Type]any)}
}

// GetOrInsert returns the extension already registered for T, or calls
// insert exactly once to create and cache it. Concurrent callers racing on
// the same T all observe the same instance.
func GetOrInsert[T any](r *ExtensionRegistry, insert func() T) T {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		typ = reflect.TypeOf((*T)(nil)).Elem()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byTyp[typ]; ok {
		return existing.(T)
	}
	created := insert()
	r.byTyp[typ] = created
	return created
}

// Get returns the extension for T if it has already been inserted.
func Get[T any](r *ExtensionRegistry) (T, bool) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		typ = reflect.TypeOf((*T)(nil)).Elem()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byTyp[typ]
	if !ok {
		return zero, false
	}
	return existing.(T), true
}
