package model

import (
	"context"
	"sync"
	"time"
)

// Script describes one canned provider response for ScriptedProvider. Either
// Events are replayed in order, or Err terminates the stream. Delay is
// applied before each event, letting tests simulate slow or hanging streams.
type Script struct {
	Events []StreamEvent
	Err    error
	Delay  time.Duration
}

// ScriptedProvider is an in-memory Provider replaying pre-registered scripts,
// one per Stream call in registration order. Useful for deterministic tests
// of the completion client and the conversation actor.
type ScriptedProvider struct {
	mu      sync.Mutex
	info    Info
	scripts []Script
	calls   int
	// Requests records every request received, for assertions.
	Requests []Request
}

// NewScriptedProvider constructs an empty scripted provider.
func NewScriptedProvider(name string) *ScriptedProvider {
	return &ScriptedProvider{info: Info{Name: name, Provider: "scripted"}}
}

// Add registers the next script to replay.
func (p *ScriptedProvider) Add(s Script) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, s)
	return p
}

// AddText registers a plain text completion ending with a natural stop.
func (p *ScriptedProvider) AddText(text string) *ScriptedProvider {
	return p.Add(Script{Events: []StreamEvent{TextEvent(text), FinishEvent(FinishStop)}})
}

// AddToolCall registers a completion that requests a single tool invocation.
func (p *ScriptedProvider) AddToolCall(id, name, args string) *ScriptedProvider {
	return p.Add(Script{Events: []StreamEvent{
		ToolCallEvent(0, id, name, ""),
		ToolCallEvent(0, "", "", args),
		FinishEvent(FinishToolCalls),
	}})
}

// AddError registers a stream that fails with err before any event.
func (p *ScriptedProvider) AddError(err error) *ScriptedProvider {
	return p.Add(Script{Err: err})
}

// Calls returns how many Stream invocations were served.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Stream implements Provider by replaying the next registered script.
func (p *ScriptedProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error) {
	p.mu.Lock()
	var script Script
	if p.calls < len(p.scripts) {
		script = p.scripts[p.calls]
	} else {
		script = Script{Events: []StreamEvent{TextEvent("ok"), FinishEvent(FinishStop)}}
	}
	p.calls++
	p.Requests = append(p.Requests, req)
	p.mu.Unlock()

	out := make(chan StreamEvent, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		if script.Err != nil {
			errCh <- script.Err
			return
		}
		for _, ev := range script.Events {
			if script.Delay > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(script.Delay):
				}
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- ev:
			}
		}
	}()
	return out, errCh
}

// Info implements Provider.
func (p *ScriptedProvider) Info() Info { return p.info }
