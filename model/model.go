package model

import (
	"context"

	"github.com/parley-ai/parley/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object (draft agnostic, minimal subset
// expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized completion input: target model, ordered
// message history, optional tool schema, sampling temperature and a response
// length bound.
type Request struct {
	Model       string           `json:"model"`
	Messages    []core.Message   `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int64            `json:"max_tokens"`
}

// FinishReason reports why the provider stopped generating.
type FinishReason string

const (
	// FinishStop is a natural end of the response.
	FinishStop FinishReason = "stop"
	// FinishToolCalls means the model requested tool invocations.
	FinishToolCalls FinishReason = "tool_calls"
	// FinishLength means the response hit the length bound.
	FinishLength FinishReason = "length"
)

// TokenUsage captures token accounting reported with the finish event.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolCallDelta is one streamed fragment of a tool call. Fragments for the
// same call share an Index; ID and Name arrive once, Arguments accumulate
// across fragments until the finish event.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamEvent is one incremental event of a streaming completion. Exactly one
// of the fields is set.
type StreamEvent struct {
	TextDelta string         `json:"text_delta,omitempty"`
	ToolCall  *ToolCallDelta `json:"tool_call,omitempty"`
	Finish    *Finish        `json:"finish,omitempty"`
}

// Finish terminates a streamed response and reports the stop reason.
type Finish struct {
	Reason FinishReason `json:"reason"`
	Usage  *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", ...
}

// Provider is the minimal interface the completion client drives. Stream
// opens a streaming request and delivers incremental events on the returned
// channel, which is closed after the finish event or on failure. The error
// channel carries at most one terminal error. Implementations must stop
// promptly when ctx is cancelled.
type Provider interface {
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error)

	// Info returns information about the provider implementation.
	Info() Info
}

// TextEvent builds a text delta event.
func TextEvent(text string) StreamEvent { return StreamEvent{TextDelta: text} }

// ToolCallEvent builds a tool-call fragment event.
func ToolCallEvent(index int, id, name, args string) StreamEvent {
	return StreamEvent{ToolCall: &ToolCallDelta{Index: index, ID: id, Name: name, Arguments: args}}
}

// FinishEvent builds a terminal event with the given reason.
func FinishEvent(reason FinishReason) StreamEvent {
	return StreamEvent{Finish: &Finish{Reason: reason}}
}
