package completion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

// callState accumulates the fragments of one tool call. ID and Name arrive in
// the opening fragment; Arguments build up across subsequent fragments.
type callState struct {
	id   string
	name string
	args strings.Builder
}

// Assembler reconstructs a single assistant message from stream events. It is
// not safe for concurrent use; each streamed response gets its own Assembler.
type Assembler struct {
	text   strings.Builder
	calls  map[int]*callState
	finish *model.Finish
}

// NewAssembler returns an empty assembler ready for the first event.
func NewAssembler() *Assembler {
	return &Assembler{calls: make(map[int]*callState)}
}

// Apply folds one stream event into the accumulated state. Events arriving
// after the finish event violate the stream contract and fail immediately.
func (a *Assembler) Apply(ev model.StreamEvent) error {
	if a.finish != nil {
		return &model.ProtocolError{Reason: "event received after finish"}
	}
	switch {
	case ev.Finish != nil:
		a.finish = ev.Finish
	case ev.ToolCall != nil:
		a.applyToolCall(ev.ToolCall)
	case ev.TextDelta != "":
		a.text.WriteString(ev.TextDelta)
	}
	return nil
}

func (a *Assembler) applyToolCall(d *model.ToolCallDelta) {
	cs, ok := a.calls[d.Index]
	if !ok {
		cs = &callState{}
		a.calls[d.Index] = cs
	}
	if d.ID != "" {
		cs.id = d.ID
	}
	if d.Name != "" {
		cs.name = d.Name
	}
	if d.Arguments != "" {
		cs.args.WriteString(d.Arguments)
	}
}

// Finished reports whether the terminal finish event has been applied.
func (a *Assembler) Finished() bool { return a.finish != nil }

// Finalize seals the accumulated state into an assistant message. It fails if
// no finish event arrived or any tool call is missing its identity, so a
// truncated stream never yields a partially assembled message.
func (a *Assembler) Finalize() (core.Message, *model.TokenUsage, error) {
	if a.finish == nil {
		return core.Message{}, nil, &model.ProtocolError{Reason: "stream ended without a finish event"}
	}

	indices := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var requests []core.ToolCallRequest
	for _, idx := range indices {
		cs := a.calls[idx]
		if cs.id == "" || cs.name == "" {
			return core.Message{}, nil, &model.ProtocolError{
				Reason: fmt.Sprintf("tool call at index %d missing id or name", idx),
			}
		}
		requests = append(requests, core.ToolCallRequest{
			ID:        cs.id,
			Name:      cs.name,
			Arguments: cs.args.String(),
		})
	}

	if a.finish.Reason == model.FinishToolCalls && len(requests) == 0 {
		return core.Message{}, nil, &model.ProtocolError{Reason: "finish reported tool calls but none were streamed"}
	}

	return core.NewAssistantMessage(a.text.String(), requests), a.finish.Usage, nil
}
