package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, caps ...core.Capability) *core.Registry {
	t.Helper()
	registry := core.NewRegistry()
	for _, c := range caps {
		require.NoError(t, registry.Register(c))
	}
	registry.Freeze()
	return registry
}

func echoCapability() core.Capability {
	return core.NewCapability("echo", "echoes its input", nil,
		func(_ context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("%v", args["text"]), nil
		})
}

func TestDispatchSuccess(t *testing.T) {
	registry := newTestRegistry(t, echoCapability())
	d := NewDispatcher(registry, config.Default())

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "echo", Arguments: `{"text":"hi"}`},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "call_1", results[0].CallID)
	assert.Equal(t, core.ResultSuccess, results[0].Status)
	assert.Equal(t, "hi", results[0].Content)
}

func TestDispatchPreservesRequestOrder(t *testing.T) {
	slow := core.NewCapability("slow", "sleeps briefly", nil,
		func(ctx context.Context, _ map[string]any) (string, error) {
			time.Sleep(30 * time.Millisecond)
			return "slow done", nil
		})
	fast := core.NewCapability("fast", "returns immediately", nil,
		func(_ context.Context, _ map[string]any) (string, error) {
			return "fast done", nil
		})
	registry := newTestRegistry(t, slow, fast)
	d := NewDispatcher(registry, config.Default())

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_slow", Name: "slow", Arguments: "{}"},
		{ID: "call_fast", Name: "fast", Arguments: "{}"},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "call_slow", results[0].CallID)
	assert.Equal(t, "call_fast", results[1].CallID)
}

func TestDispatchParallelismBound(t *testing.T) {
	var active, peak int32
	counting := core.NewCapability("counting", "tracks concurrency", nil,
		func(_ context.Context, _ map[string]any) (string, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return "ok", nil
		})
	registry := newTestRegistry(t, counting)

	cfg := config.Default()
	cfg.MaxParallelTools = 2
	d := NewDispatcher(registry, cfg)

	calls := make([]core.ToolCallRequest, 6)
	for i := range calls {
		calls[i] = core.ToolCallRequest{ID: fmt.Sprintf("call_%d", i), Name: "counting", Arguments: "{}"}
	}
	results := d.Dispatch(context.Background(), calls)

	require.Len(t, results, 6)
	for _, r := range results {
		assert.Equal(t, core.ResultSuccess, r.Status)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDispatchUnknownTool(t *testing.T) {
	registry := newTestRegistry(t)
	d := NewDispatcher(registry, config.Default())

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "missing", Arguments: "{}"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, core.ResultError, results[0].Status)
	assert.Contains(t, results[0].Content, "missing")
}

func TestDispatchDisabledTool(t *testing.T) {
	registry := newTestRegistry(t, echoCapability())
	cfg := config.Default()
	cfg.Tools.Exclude = []string{"echo"}
	d := NewDispatcher(registry, cfg)

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "echo", Arguments: `{"text":"hi"}`},
	})

	require.Len(t, results, 1)
	assert.Equal(t, core.ResultError, results[0].Status)
	assert.Contains(t, results[0].Content, "disabled")
}

func TestDispatchInvalidArguments(t *testing.T) {
	registry := newTestRegistry(t, echoCapability())
	d := NewDispatcher(registry, config.Default())

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "echo", Arguments: `{not json`},
	})

	require.Len(t, results, 1)
	assert.Equal(t, core.ResultError, results[0].Status)
	assert.Contains(t, results[0].Content, "invalid arguments")
}

func TestDispatchToolError(t *testing.T) {
	failing := core.NewCapability("failing", "always fails", nil,
		func(_ context.Context, _ map[string]any) (string, error) {
			return "", errors.New("disk on fire")
		})
	registry := newTestRegistry(t, failing)
	d := NewDispatcher(registry, config.Default())

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "failing", Arguments: "{}"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, core.ResultError, results[0].Status)
	assert.Contains(t, results[0].Content, "disk on fire")
}

func TestDispatchPanicContained(t *testing.T) {
	panicking := core.NewCapability("panicking", "panics", nil,
		func(_ context.Context, _ map[string]any) (string, error) {
			panic("boom")
		})
	registry := newTestRegistry(t, panicking)
	d := NewDispatcher(registry, config.Default())

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "panicking", Arguments: "{}"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, core.ResultError, results[0].Status)
	assert.Contains(t, results[0].Content, "panic")
}

func TestDispatchTimeoutIsIndependentPerCall(t *testing.T) {
	hang := core.NewCapability("hang", "blocks until cancelled", nil,
		func(ctx context.Context, _ map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	quick := core.NewCapability("quick", "returns immediately", nil,
		func(_ context.Context, _ map[string]any) (string, error) {
			return "done", nil
		})
	registry := newTestRegistry(t, hang, quick)

	cfg := config.Default()
	cfg.ToolTimeout = config.Duration(30 * time.Millisecond)
	d := NewDispatcher(registry, cfg)

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_hang", Name: "hang", Arguments: "{}"},
		{ID: "call_quick", Name: "quick", Arguments: "{}"},
	})

	require.Len(t, results, 2)
	assert.Equal(t, core.ResultError, results[0].Status)
	assert.Contains(t, results[0].Content, "timed out")
	assert.Equal(t, core.ResultSuccess, results[1].Status)
	assert.Equal(t, "done", results[1].Content)
}

func TestDispatchDelegatedTool(t *testing.T) {
	registry := newTestRegistry(t) // no direct capability registered
	provider := model.NewScriptedProvider("delegate").AddText("summary of results")

	cfg := config.Default()
	cfg.Tools.Configs = map[string]config.ToolConfig{
		"research": {Delegate: true, APIKey: "sub-key", Model: "sub-model", SystemPrompt: "You research things."},
	}
	d := NewDispatcher(registry, cfg, func(o *Options) {
		o.Factory = func(config.ToolConfig) (model.Provider, error) { return provider, nil }
	})

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "research", Arguments: `{"topic":"go"}`},
	})

	require.Len(t, results, 1)
	assert.Equal(t, core.ResultSuccess, results[0].Status)
	assert.Equal(t, "summary of results", results[0].Content)

	// The sub-conversation saw the tool's own prompt and the raw arguments.
	require.Len(t, provider.Requests, 1)
	req := provider.Requests[0]
	assert.Equal(t, "sub-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, core.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "You research things.", req.Messages[0].Content)
	assert.Equal(t, core.RoleUser, req.Messages[1].Role)
	assert.JSONEq(t, `{"topic":"go"}`, req.Messages[1].Content)
}

func TestDispatchDelegationTimeout(t *testing.T) {
	registry := newTestRegistry(t)
	provider := model.NewScriptedProvider("delegate").Add(model.Script{
		Events: []model.StreamEvent{model.TextEvent("slow"), model.FinishEvent(model.FinishStop)},
		Delay:  time.Second,
	})

	cfg := config.Default()
	cfg.Tools.Configs = map[string]config.ToolConfig{
		"research": {Delegate: true, APIKey: "k", Model: "m", Timeout: config.Duration(30 * time.Millisecond)},
	}
	d := NewDispatcher(registry, cfg, func(o *Options) {
		o.Factory = func(config.ToolConfig) (model.Provider, error) { return provider, nil }
	})

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "research", Arguments: "{}"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, core.ResultError, results[0].Status)
	assert.Contains(t, results[0].Content, "delegated tool")
	assert.Contains(t, results[0].Content, "timed out")
}

func TestDispatchDelegationFailureContained(t *testing.T) {
	registry := newTestRegistry(t)
	cfg := config.Default()
	cfg.Tools.Configs = map[string]config.ToolConfig{
		"research": {Delegate: true, APIKey: "k", Model: "m"},
	}
	d := NewDispatcher(registry, cfg, func(o *Options) {
		o.Factory = func(config.ToolConfig) (model.Provider, error) {
			return nil, errors.New("unknown provider")
		}
	})

	results := d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "research", Arguments: "{}"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, core.ResultError, results[0].Status)
	assert.Contains(t, results[0].Content, "delegation setup")
}

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingLogger) record(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingLogger) Debug(msg string, _ ...any) { r.record(msg) }
func (r *recordingLogger) Info(msg string, _ ...any)  { r.record(msg) }
func (r *recordingLogger) Warn(msg string, _ ...any)  { r.record(msg) }
func (r *recordingLogger) Error(msg string, _ ...any) { r.record(msg) }

func (r *recordingLogger) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestDispatchRecordsToolCallOutcomes(t *testing.T) {
	failing := core.NewCapability("broken", "always fails", nil,
		func(_ context.Context, _ map[string]any) (string, error) {
			return "", errors.New("no signal")
		})
	registry := newTestRegistry(t, echoCapability(), failing)
	logger := &recordingLogger{}
	d := NewDispatcher(registry, config.Default(), func(o *Options) {
		o.Logger = logger
	})

	d.Dispatch(context.Background(), []core.ToolCallRequest{
		{ID: "call_1", Name: "echo", Arguments: `{"text":"hi"}`},
		{ID: "call_2", Name: "broken", Arguments: "{}"},
	})

	msgs := logger.messages()
	assert.Contains(t, msgs, "tool call completed")
	assert.Contains(t, msgs, "tool call failed")
}
