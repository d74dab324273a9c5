// Package testutil holds small builders shared by tests across packages.
package testutil

import (
	"context"
	"fmt"

	"github.com/parley-ai/parley/core"
)

// EchoCapability returns a tool that echoes its "text" argument.
func EchoCapability() core.Capability {
	return core.NewCapability("echo", "echoes the given text", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}, func(_ context.Context, args map[string]any) (string, error) {
		return fmt.Sprintf("%v", args["text"]), nil
	})
}

// StaticCapability returns a tool that always answers with content.
func StaticCapability(name, content string) core.Capability {
	return core.NewCapability(name, "returns a fixed answer", nil,
		func(_ context.Context, _ map[string]any) (string, error) {
			return content, nil
		})
}

// FailingCapability returns a tool that always fails with reason.
func FailingCapability(name, reason string) core.Capability {
	return core.NewCapability(name, "always fails", nil,
		func(_ context.Context, _ map[string]any) (string, error) {
			return "", fmt.Errorf("%s", reason)
		})
}
