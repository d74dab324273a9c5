package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author class of a Message.
type Role string

// Conversation roles. They mirror the chat-completion wire protocol so
// messages can be handed to providers without translation.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest is a tool invocation requested by the model inside an
// assistant message. Arguments hold the fully assembled JSON payload; a
// request is never dispatched while its arguments are still streaming.
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResultStatus classifies the outcome of a tool invocation.
type ResultStatus string

const (
	// ResultSuccess marks a tool call that produced usable output.
	ResultSuccess ResultStatus = "success"
	// ResultError marks a tool call that failed, timed out or was disabled.
	// The content carries the error text so the model can react to it.
	ResultError ResultStatus = "error"
)

// ToolResult is the outcome of exactly one ToolCallRequest. CallID must
// reference a request emitted earlier in the same turn; results with no
// matching request are rejected by the conversation actor.
type ToolResult struct {
	CallID  string       `json:"call_id"`
	Status  ResultStatus `json:"status"`
	Content string       `json:"content"`
}

// Message is one finalized conversation record. Messages are immutable once
// produced; a session's log is append-only and totally ordered by finalize
// time. ToolCalls is populated only on assistant messages, ToolCallID only on
// tool messages.
type Message struct {
	ID         string            `json:"id"`
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewID generates a unique identifier for messages, turns and tool calls.
func NewID() string { return uuid.NewString() }

// NewSystemMessage builds a system message carrying instructions.
func NewSystemMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleSystem, Content: text, CreatedAt: time.Now().UTC()}
}

// NewUserMessage builds a user-authored text message.
func NewUserMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: text, CreatedAt: time.Now().UTC()}
}

// NewAssistantMessage builds an assistant message from reconstructed text and
// any tool call requests the model emitted alongside it.
func NewAssistantMessage(text string, calls []ToolCallRequest) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Content: text, ToolCalls: calls, CreatedAt: time.Now().UTC()}
}

// NewToolMessage wraps a ToolResult as a tool-role message referencing the
// originating call.
func NewToolMessage(res ToolResult) Message {
	return Message{ID: NewID(), Role: RoleTool, Content: res.Content, ToolCallID: res.CallID, CreatedAt: time.Now().UTC()}
}

// HasToolCalls reports whether the message requests any tool invocations.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }
