// Package completion turns a provider's incremental stream into one finalized
// assistant message. The Assembler reconstructs text and tool calls from
// fragments keyed by the provider-supplied index; the Client adds per-request
// timeouts and bounded retry with backoff on transient failures.
package completion
