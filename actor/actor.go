package actor

import (
	"context"
	"fmt"
	"sync"

	"github.com/parley-ai/parley/completion"
	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/dispatch"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
)

// State is the turn-processing phase of a conversation actor. It changes only
// inside the actor goroutine; reads are synchronized for observers.
type State string

const (
	// StateIdle means no turn is being processed.
	StateIdle State = "idle"
	// StateAwaitingCompletion means a model request is in flight.
	StateAwaitingCompletion State = "awaiting_completion"
	// StateDispatchingTools means requested tool calls are executing.
	StateDispatchingTools State = "dispatching_tools"
	// StateFailed marks the window between a turn failing and the next
	// turn starting; the actor itself stays alive.
	StateFailed State = "failed"
)

// Deps bundles the collaborators every conversation actor needs.
type Deps struct {
	Store      core.Store
	Client     *completion.Client
	Dispatcher *dispatch.Dispatcher
	Registry   *core.Registry
	Config     *config.Config
	Logger     *logging.RuntimeLogger
}

// TurnResult is the outcome of one successfully finalized turn.
type TurnResult struct {
	TurnID string
	// Reply is the final assistant message of the turn.
	Reply core.Message
	// Produced lists every message the turn appended to the log, in
	// finalize order (intermediate assistant messages, tool results, and
	// the final reply).
	Produced []core.Message
	// Rounds is the number of completions the turn consumed.
	Rounds int
	// Usage aggregates token accounting across all rounds.
	Usage model.TokenUsage
}

type turnRequest struct {
	ctx  context.Context
	text string
	done chan turnOutcome
}

type turnOutcome struct {
	result *TurnResult
	err    error
}

// Actor owns one session. All turn processing happens on its single mailbox
// goroutine, which guarantees at most one completion in flight per session
// and strictly ordered appends to the session log.
type Actor struct {
	sessionID string
	deps      Deps
	logger    *logging.RuntimeLogger

	mailbox chan *turnRequest
	quit    chan struct{}
	stopped chan struct{}

	mu      sync.RWMutex
	state   State
	history []core.Message
	crash   error

	stopOnce sync.Once
}

// NewActor creates an actor for sessionID. Start must be called before
// Submit.
func NewActor(sessionID string, deps Deps) *Actor {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return &Actor{
		sessionID: sessionID,
		deps:      deps,
		logger:    logger.WithComponent("actor").WithSession(sessionID, ""),
		mailbox:   make(chan *turnRequest),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		state:     StateIdle,
	}
}

// Start loads the persisted log and launches the mailbox goroutine. An actor
// restarted after a crash resumes from exactly the messages that were
// finalized before it died.
func (a *Actor) Start(ctx context.Context) error {
	history, err := a.deps.Store.LoadRecent(ctx, a.sessionID, 0)
	if err != nil {
		return fmt.Errorf("load session log: %w", err)
	}
	a.mu.Lock()
	a.history = history
	a.mu.Unlock()

	go a.loop()
	a.logger.Debug("actor started", "history_len", len(history))
	return nil
}

// Stop drains the actor. In-flight and queued turns observe ctx cancellation
// through their own request contexts; Stop returns once the goroutine exits
// or ctx expires.
func (a *Actor) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.quit) })
	select {
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current turn-processing phase.
func (a *Actor) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Err returns the crash error if the actor's goroutine died.
func (a *Actor) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.crash
}

// Alive reports whether the mailbox goroutine is still running.
func (a *Actor) Alive() bool {
	select {
	case <-a.stopped:
		return false
	default:
		return true
	}
}

// Submit enqueues one user turn and blocks until the turn finishes, fails or
// ctx is cancelled. Turns are processed strictly one at a time in submission
// order.
func (a *Actor) Submit(ctx context.Context, text string) (*TurnResult, error) {
	req := &turnRequest{ctx: ctx, text: text, done: make(chan turnOutcome, 1)}
	select {
	case <-a.stopped:
		return nil, fmt.Errorf("session %s: actor stopped", a.sessionID)
	case <-a.quit:
		return nil, fmt.Errorf("session %s: actor stopping", a.sessionID)
	case <-ctx.Done():
		return nil, ctx.Err()
	case a.mailbox <- req:
	}

	select {
	case out := <-req.done:
		return out.result, out.err
	case <-a.stopped:
		// The loop delivers the outcome before it exits, so when both
		// channels are ready the turn already finished and its messages are
		// persisted. That outcome wins over the shutdown error.
		select {
		case out := <-req.done:
			return out.result, out.err
		default:
		}
		return nil, fmt.Errorf("session %s: actor stopped mid-turn", a.sessionID)
	}
}

// loop is the mailbox goroutine. A panic escaping turn processing kills the
// actor; the supervisor decides whether to restart it.
func (a *Actor) loop() {
	defer close(a.stopped)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("actor panicked: %v", r)
			a.mu.Lock()
			a.crash = err
			a.mu.Unlock()
			a.logger.Error("actor crashed", "error", err.Error())
		}
	}()

	for {
		select {
		case <-a.quit:
			return
		case req := <-a.mailbox:
			result, err := a.processTurn(req.ctx, req.text)
			req.done <- turnOutcome{result: result, err: err}
		}
	}
}

func (a *Actor) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// processTurn drives one full completion/tool loop. The user message is
// persisted up front; everything the turn produces is buffered and persisted
// as one batch only when the turn finalizes, so a cancelled or failed turn
// leaves no partial output in the log.
func (a *Actor) processTurn(ctx context.Context, text string) (result *TurnResult, err error) {
	turnID := core.NewID()
	logger := a.logger.WithSession(a.sessionID, turnID)

	defer func() {
		if err != nil {
			// Failed stays observable until the next turn starts; the
			// actor itself remains serviceable.
			a.setState(StateFailed)
			logger.Error("turn failed", "error", err.Error())
			return
		}
		a.setState(StateIdle)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userMsg := core.NewUserMessage(text)
	if perr := a.deps.Store.AppendMessages(ctx, a.sessionID, []core.Message{userMsg}); perr != nil {
		// Persistence trouble does not abort the conversation; the turn
		// continues on the in-memory history.
		logger.Error("failed to persist user message", "error", perr.Error())
	}
	a.mu.Lock()
	a.history = append(a.history, userMsg)
	a.mu.Unlock()

	limiter := newRoundLimiter(a.deps.Config.MaxRounds)
	tools := a.toolDefinitions()

	var (
		produced []core.Message
		usage    model.TokenUsage
	)

	for {
		if lerr := limiter.increment(); lerr != nil {
			return nil, lerr
		}

		a.setState(StateAwaitingCompletion)
		res, cerr := a.deps.Client.Complete(ctx, model.Request{
			Model:       a.deps.Config.Model,
			Messages:    a.requestMessages(produced),
			Tools:       tools,
			Temperature: a.deps.Config.Temperature,
			MaxTokens:   a.deps.Config.MaxTokens,
		})
		if cerr != nil {
			return nil, cerr
		}
		if res.Usage != nil {
			usage.PromptTokens += res.Usage.PromptTokens
			usage.CompletionTokens += res.Usage.CompletionTokens
			usage.TotalTokens += res.Usage.TotalTokens
		}

		assistant := res.Message
		produced = append(produced, assistant)

		if !assistant.HasToolCalls() {
			return a.finalize(ctx, logger, turnID, assistant, produced, usage, limiter.rounds())
		}

		a.setState(StateDispatchingTools)
		logger.Debug("dispatching tool calls", "count", len(assistant.ToolCalls), "round", limiter.rounds())
		results := a.deps.Dispatcher.Dispatch(ctx, assistant.ToolCalls)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		validated, verr := matchResults(assistant.ToolCalls, results)
		if verr != nil {
			return nil, verr
		}
		for _, r := range validated {
			produced = append(produced, core.NewToolMessage(r))
		}
	}
}

// finalize persists the turn's output as one batch and commits it to the
// in-memory history. A persistence failure is logged but does not withhold
// the answer from the caller.
func (a *Actor) finalize(ctx context.Context, logger *logging.RuntimeLogger, turnID string, reply core.Message, produced []core.Message, usage model.TokenUsage, rounds int) (*TurnResult, error) {
	if perr := a.deps.Store.AppendMessages(ctx, a.sessionID, produced); perr != nil {
		logger.Error("failed to persist turn output", "error", perr.Error(), "message_count", len(produced))
	}
	a.mu.Lock()
	a.history = append(a.history, produced...)
	a.mu.Unlock()

	logger.Info("turn finalized",
		"rounds", rounds,
		"message_count", len(produced),
		"token_count", usage.TotalTokens,
	)
	return &TurnResult{
		TurnID:   turnID,
		Reply:    reply,
		Produced: produced,
		Rounds:   rounds,
		Usage:    usage,
	}, nil
}

// requestMessages assembles the provider-facing view: system prompt, the
// persisted history, then the current turn's unfinalized output.
func (a *Actor) requestMessages(produced []core.Message) []core.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()

	msgs := make([]core.Message, 0, len(a.history)+len(produced)+1)
	if sp := a.deps.Config.SystemPrompt; sp != "" {
		msgs = append(msgs, core.NewSystemMessage(sp))
	}
	msgs = append(msgs, a.history...)
	msgs = append(msgs, produced...)
	return msgs
}

// toolDefinitions exposes every enabled registered capability to the model.
func (a *Actor) toolDefinitions() []model.ToolDefinition {
	if a.deps.Registry == nil {
		return nil
	}
	var defs []model.ToolDefinition
	for _, name := range a.deps.Registry.Names() {
		if !a.deps.Config.ToolConfigFor(name).IsEnabled() {
			continue
		}
		capability, _ := a.deps.Registry.Lookup(name)
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        capability.Name(),
				Description: capability.Description(),
				Parameters:  capability.Parameters(),
			},
		})
	}
	return defs
}

// matchResults verifies the dispatcher answered exactly the requested calls
// and returns the results in request order. A result referencing an unknown
// call means the turn state is corrupt and the turn must fail.
func matchResults(calls []core.ToolCallRequest, results []core.ToolResult) ([]core.ToolResult, error) {
	byCall := make(map[string]core.ToolResult, len(results))
	for _, r := range results {
		if _, dup := byCall[r.CallID]; dup {
			return nil, fmt.Errorf("duplicate tool result for call %q", r.CallID)
		}
		byCall[r.CallID] = r
	}
	known := make(map[string]bool, len(calls))
	for _, c := range calls {
		known[c.ID] = true
	}
	for id := range byCall {
		if !known[id] {
			return nil, fmt.Errorf("tool result references unknown call %q", id)
		}
	}

	ordered := make([]core.ToolResult, 0, len(calls))
	for _, c := range calls {
		r, ok := byCall[c.ID]
		if !ok {
			return nil, fmt.Errorf("no tool result for call %q", c.ID)
		}
		ordered = append(ordered, r)
	}
	return ordered, nil
}
