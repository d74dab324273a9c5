package core

import "context"

// FuncCapability adapts a plain function into a Capability. It covers the
// common case of a tool that needs no state beyond its closure.
type FuncCapability struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

// NewCapability wraps fn as a registrable Capability. A nil parameters schema
// is replaced by an empty object schema.
func NewCapability(name, description string, parameters map[string]any, fn func(ctx context.Context, args map[string]any) (string, error)) *FuncCapability {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FuncCapability{name: name, description: description, parameters: parameters, fn: fn}
}

// Name implements Capability.
func (c *FuncCapability) Name() string { return c.name }

// Description implements Capability.
func (c *FuncCapability) Description() string { return c.description }

// Parameters implements Capability.
func (c *FuncCapability) Parameters() map[string]any { return c.parameters }

// Invoke implements Capability.
func (c *FuncCapability) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return c.fn(ctx, args)
}
