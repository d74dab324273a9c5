package parley

import (
	"context"
	"testing"
	"time"

	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/internal/testutil"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, provider model.Provider, caps ...core.Capability) *Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.APIKey = "test-key"

	rt := New(func(o *Options) {
		o.Config = cfg
		o.Provider = provider
		o.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelError})
	})
	for _, c := range caps {
		require.NoError(t, rt.RegisterCapability(c))
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		rt.Shutdown(ctx)
	})
	return rt
}

func TestRuntimeBasicTurn(t *testing.T) {
	provider := model.NewScriptedProvider("test").AddText("Hello!")
	rt := newTestRuntime(t, provider)

	ctx := context.Background()
	sess, err := rt.CreateSession(ctx)
	require.NoError(t, err)

	result, err := rt.Submit(ctx, sess.ID, "Hi there")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", result.Reply.Content)

	history, err := rt.History(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Hi there", history[0].Content)
	assert.Equal(t, "Hello!", history[1].Content)
}

func TestRuntimeToolTurn(t *testing.T) {
	provider := model.NewScriptedProvider("test").
		AddToolCall("call_1", "echo", `{"text":"ping"}`).
		AddText("The tool said ping.")
	rt := newTestRuntime(t, provider, testutil.EchoCapability())

	ctx := context.Background()
	sess, err := rt.CreateSession(ctx)
	require.NoError(t, err)

	result, err := rt.Submit(ctx, sess.ID, "Use the echo tool")
	require.NoError(t, err)
	assert.Equal(t, "The tool said ping.", result.Reply.Content)
	assert.Equal(t, 2, result.Rounds)

	history, err := rt.History(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, core.RoleTool, history[2].Role)
	assert.Equal(t, "ping", history[2].Content)
}

func TestRuntimeParallelToolsInOneRound(t *testing.T) {
	provider := model.NewScriptedProvider("test").
		Add(model.Script{Events: []model.StreamEvent{
			model.ToolCallEvent(0, "call_time", "clock", "{}"),
			model.ToolCallEvent(1, "call_fail", "broken", "{}"),
			model.FinishEvent(model.FinishToolCalls),
		}}).
		AddText("One worked, one did not.")
	rt := newTestRuntime(t, provider,
		testutil.StaticCapability("clock", "12:00"),
		testutil.FailingCapability("broken", "no signal"),
	)

	ctx := context.Background()
	sess, err := rt.CreateSession(ctx)
	require.NoError(t, err)

	result, err := rt.Submit(ctx, sess.ID, "check both")
	require.NoError(t, err)
	assert.Equal(t, "One worked, one did not.", result.Reply.Content)

	// One success and one contained error, both resolved before the final
	// completion, in request order.
	history, err := rt.History(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, "call_time", history[2].ToolCallID)
	assert.Equal(t, "12:00", history[2].Content)
	assert.Equal(t, "call_fail", history[3].ToolCallID)
	assert.Contains(t, history[3].Content, "no signal")
}

func TestRuntimeSubmitAsync(t *testing.T) {
	provider := model.NewScriptedProvider("test").AddText("async answer")
	rt := newTestRuntime(t, provider)

	ctx := context.Background()
	sess, err := rt.CreateSession(ctx)
	require.NoError(t, err)

	outcome := <-rt.SubmitAsync(ctx, sess.ID, "question")
	require.NoError(t, outcome.Err)
	assert.Equal(t, "async answer", outcome.Result.Reply.Content)
}

func TestRuntimeSessionManagement(t *testing.T) {
	rt := newTestRuntime(t, model.NewScriptedProvider("test"))

	ctx := context.Background()
	sess, err := rt.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, rt.RenameSession(ctx, sess.ID, "greetings"))
	sessions, err := rt.ListSessions(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "greetings", sessions[0].Title)

	require.NoError(t, rt.DeleteSession(ctx, sess.ID))
	sessions, err = rt.ListSessions(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = rt.Submit(ctx, sess.ID, "hello?")
	require.Error(t, err)
}

func TestRuntimeConversationContinuity(t *testing.T) {
	provider := model.NewScriptedProvider("test").
		AddText("Nice to meet you, Ada.").
		AddText("Your name is Ada.")
	rt := newTestRuntime(t, provider)

	ctx := context.Background()
	sess, err := rt.CreateSession(ctx)
	require.NoError(t, err)

	_, err = rt.Submit(ctx, sess.ID, "My name is Ada.")
	require.NoError(t, err)
	_, err = rt.Submit(ctx, sess.ID, "What's my name?")
	require.NoError(t, err)

	// The second request carries the whole prior exchange.
	require.Len(t, provider.Requests, 2)
	var contents []string
	for _, m := range provider.Requests[1].Messages {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "My name is Ada.")
	assert.Contains(t, contents, "Nice to meet you, Ada.")
	assert.Contains(t, contents, "What's my name?")
}
