package module

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Config contains the type name and raw configuration for a component.
type Config struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Constructor builds an implementation of T from raw settings.
type Constructor[T any] func(map[string]any) (T, error)

// Registry stores constructors keyed by component type.
type Registry[T any] struct {
	mu    sync.RWMutex
	ctors map[string]Constructor[T]
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{ctors: make(map[string]Constructor[T])}
}

// Register adds a constructor for the given type name.
func (r *Registry[T]) Register(name string, c Constructor[T]) error {
	if c == nil {
		return fmt.Errorf("constructor nil for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctors[name]; ok {
		return fmt.Errorf("constructor already registered for %s", name)
	}
	r.ctors[name] = c
	return nil
}

// Create instantiates a component from its configuration.
func (r *Registry[T]) Create(cfg Config) (T, error) {
	r.mu.RLock()
	c, ok := r.ctors[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown component type %q", cfg.Type)
	}
	return c(cfg.Conf)
}

// Types lists registered type names in lexical order.
func (r *Registry[T]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Decode fills out the provided struct using json tags. A nil map decodes
// into the zero value.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
