// Package parley provides a high-level façade over the conversation runtime:
// supervised per-session actors, streaming completion reconstruction, tool
// dispatch and delegation, and durable session logs. Most applications
// interact with this package by:
//  1. Creating a Runtime via New() (optionally overriding the store, provider
//     and logger)
//  2. Registering tool capabilities
//  3. Creating sessions and submitting user turns (Submit or SubmitAsync)
//
// The façade delegates orchestration to the actor supervisor while keeping
// setup ergonomics concise. All defaults are safe for local development;
// production deployments typically supply a SQLite-backed store, a YAML
// configuration file and a structured logger.
package parley

import (
	"context"
	"fmt"

	"github.com/parley-ai/parley/actor"
	"github.com/parley-ai/parley/completion"
	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/dispatch"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
	"github.com/parley-ai/parley/model/anthropic"
	"github.com/parley-ai/parley/model/openai"
	"github.com/parley-ai/parley/session"
)

// Options configures the Runtime.
type Options struct {
	// Config supplies model credentials, limits and per-tool settings.
	// Defaults to config.Default() with the APIKey left empty, which only
	// works together with an explicit Provider.
	Config *config.Config

	// Provider overrides the primary model endpoint. When nil, an OpenAI
	// chat-completions provider is built from Config.
	Provider model.Provider

	// Store holds sessions and message logs (defaults to in-memory).
	Store core.Store

	// Logger receives structured runtime logs (defaults to JSON on stdout
	// at info level).
	Logger *logging.RuntimeLogger
}

// Runtime is the high-level façade aggregating the supervisor and services.
type Runtime struct {
	opts       Options
	registry   *core.Registry
	supervisor *actor.Supervisor
	store      core.Store
}

// New creates a Runtime with optional overrides. Capabilities must be
// registered before the first Submit; the registry freezes on first use.
func New(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		Config: config.Default(),
		Store:  session.NewInMemoryStore(),
		Logger: logging.NewLogger(nil),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(nil)
	}

	provider := opts.Provider
	if provider == nil {
		provider = openai.New(func(o *openai.Options) {
			o.APIKey = opts.Config.APIKey
			o.BaseURL = opts.Config.BaseURL
			o.Model = opts.Config.Model
		})
	}

	registry := core.NewRegistry()
	client := completion.New(provider, func(o *completion.Options) {
		o.RetryAttempts = opts.Config.RetryAttempts
		o.RetryBackoff = opts.Config.RetryBackoff.Std()
		o.Timeout = opts.Config.CompletionTimeout.Std()
		o.Logger = opts.Logger.WithComponent("completion")
	})
	dispatcher := dispatch.NewDispatcher(registry, opts.Config, func(o *dispatch.Options) {
		o.Logger = opts.Logger.WithComponent("dispatch")
		o.Factory = providerFactory
	})

	supervisor := actor.NewSupervisor(actor.Deps{
		Store:      opts.Store,
		Client:     client,
		Dispatcher: dispatcher,
		Registry:   registry,
		Config:     opts.Config,
		Logger:     opts.Logger,
	})

	return &Runtime{
		opts:       opts,
		registry:   registry,
		supervisor: supervisor,
		store:      opts.Store,
	}
}

// providerFactory builds the delegated endpoint for a tool from its config.
// An empty or "openai" base URL family uses the chat-completions adapter;
// "anthropic" selects the Messages API adapter.
func providerFactory(tc config.ToolConfig) (model.Provider, error) {
	switch tc.SettingString("provider", "openai") {
	case "openai":
		return openai.New(func(o *openai.Options) {
			o.APIKey = tc.APIKey
			o.BaseURL = tc.BaseURL
			o.Model = tc.Model
		}), nil
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			o.APIKey = tc.APIKey
			o.BaseURL = tc.BaseURL
			o.Model = tc.Model
			if tc.MaxTokens > 0 {
				o.MaxTokens = tc.MaxTokens
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", tc.SettingString("provider", ""))
	}
}

// RegisterCapability adds a tool capability to the runtime's registry.
func (r *Runtime) RegisterCapability(c core.Capability) error {
	return r.registry.Register(c)
}

// CreateSession allocates a fresh session.
func (r *Runtime) CreateSession(ctx context.Context) (core.Session, error) {
	return r.store.CreateSession(ctx)
}

// ListSessions returns sessions ordered by most recent activity.
func (r *Runtime) ListSessions(ctx context.Context, limit, offset int) ([]core.Session, error) {
	return r.store.ListSessions(ctx, limit, offset)
}

// RenameSession sets a human-readable session title.
func (r *Runtime) RenameSession(ctx context.Context, sessionID, title string) error {
	return r.store.RenameSession(ctx, sessionID, title)
}

// DeleteSession removes the session, its log, and its actor if one is live.
func (r *Runtime) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.supervisor.Evict(ctx, sessionID); err != nil {
		return err
	}
	return r.store.DeleteSession(ctx, sessionID)
}

// History returns up to limit most recent messages of the session log in
// finalize order.
func (r *Runtime) History(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	return r.store.LoadRecent(ctx, sessionID, limit)
}

// Submit sends one user turn to the session and blocks until the turn
// finishes, fails or ctx is cancelled. Turns for the same session are
// processed strictly one at a time.
func (r *Runtime) Submit(ctx context.Context, sessionID, text string) (*actor.TurnResult, error) {
	r.registry.Freeze()
	return r.supervisor.Submit(ctx, sessionID, text)
}

// SubmitAsync sends one user turn and returns immediately with a result
// channel carrying exactly one outcome.
func (r *Runtime) SubmitAsync(ctx context.Context, sessionID, text string) <-chan TurnOutcome {
	out := make(chan TurnOutcome, 1)
	go func() {
		defer close(out)
		result, err := r.Submit(ctx, sessionID, text)
		out <- TurnOutcome{Result: result, Err: err}
	}()
	return out
}

// TurnOutcome pairs a turn result with its terminal error.
type TurnOutcome struct {
	Result *actor.TurnResult
	Err    error
}

// Shutdown stops all actors, waiting up to the supervisor's grace period for
// in-flight turns to drain.
func (r *Runtime) Shutdown(ctx context.Context) error {
	return r.supervisor.Stop(ctx)
}
