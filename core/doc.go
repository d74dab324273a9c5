// Package core provides the foundational domain types and interfaces of the
// parley runtime. It defines:
//
//   - Messages (immutable conversation records with roles and tool calls)
//   - ToolCallRequest / ToolResult (the tool invocation protocol)
//   - Sessions (durable identity for an ordered message log)
//   - Capability + Registry (uniform invoke surface for external tools)
//   - Store (the persistence boundary for sessions and message batches)
//
// The package intentionally keeps implementation concerns (providers,
// orchestration, concrete stores) out of scope, exposing small interfaces so
// backends can be swapped without touching the turn engine.
package core
