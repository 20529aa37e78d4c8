// Package extension provides a static registry of optional node extensions.
// Extensions are compiled in and registered by name; the configuration
// selects which ones a node activates at startup. There is no directory
// scanning or dynamic loading.
package extension

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Extension is an optional capability attached to the node's lifecycle.
type Extension interface {
	// Name identifies the extension in configuration and logs.
	Name() string
	// Init is called once after the network layer has started.
	Init(ctx context.Context) error
	// Shutdown is called during node stop, before the network layer is torn down.
	Shutdown() error
}

// Factory constructs a fresh extension instance.
type Factory func() Extension

// Registry maps extension names to their factories.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
}

// NewRegistry creates an empty extension registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering the same name twice is an
// error; extension names must be unambiguous in configuration.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("extension %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Names returns the registered extension names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve instantiates the named extensions in order. An unknown name is a
// startup error, not a silent skip: a misconfigured extension list should
// stop the node before it joins the network.
func (r *Registry) Resolve(names []string) ([]Extension, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exts := make([]Extension, 0, len(names))
	for _, name := range names {
		factory, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown extension %q", name)
		}
		exts = append(exts, factory())
	}
	return exts, nil
}
