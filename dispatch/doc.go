// Package dispatch executes the tool calls requested by a completion. Calls
// within one batch run concurrently under a semaphore bound and each runs
// under its own timeout. Failures never escape as errors; every call resolves
// to a ToolResult so the conversation always continues with a complete set of
// results. Tools configured for delegation are answered by an isolated
// sub-conversation against the tool's own model endpoint.
package dispatch
