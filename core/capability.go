package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Capability is the uniform invoke surface every external tool satisfies.
// Implementations live outside the runtime (file access, shell, web fetch,
// UI automation, memory search) and are registered by name at startup.
//
// Invoke must honor ctx cancellation and deadlines: the dispatcher applies a
// per-tool timeout and expects the capability to return promptly once the
// context is done.
type Capability interface {
	// Name returns the unique tool identifier (snake_case recommended).
	Name() string

	// Description is exposed to the model to guide tool selection.
	Description() string

	// Parameters returns a JSON schema describing the accepted arguments.
	Parameters() map[string]any

	// Invoke executes the capability with already-decoded arguments and
	// returns textual content for the model.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Registry maps tool names to capabilities. It is populated during startup
// and frozen before the first dispatch; afterwards it is safely shared by
// reference across all concurrent dispatch operations.
type Registry struct {
	mu     sync.RWMutex
	frozen bool
	caps   map[string]Capability
}

// NewRegistry constructs an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds a capability. Registering after Freeze or under a duplicate
// name is an error.
func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %q", c.Name())
	}
	if _, exists := r.caps[c.Name()]; exists {
		return fmt.Errorf("capability %q already registered", c.Name())
	}
	r.caps[c.Name()] = c
	return nil
}

// Freeze marks the registry read-only. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
