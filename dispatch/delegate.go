package dispatch

import (
	"context"
	"fmt"

	"github.com/parley-ai/parley/completion"
	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

// delegate answers a tool call by running an isolated sub-conversation on the
// tool's own endpoint. The sub-conversation consists of the tool's system
// prompt and the call arguments as the user turn; its final assistant text is
// the tool result. Nothing from it enters the parent session log.
func (d *Dispatcher) delegate(ctx context.Context, call core.ToolCallRequest, tc config.ToolConfig) (string, error) {
	if d.opts.Factory == nil {
		return "", fmt.Errorf("delegation not configured")
	}
	provider, err := d.opts.Factory(tc)
	if err != nil {
		return "", fmt.Errorf("delegation setup: %w", err)
	}

	systemPrompt := tc.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = fmt.Sprintf(
			"You are a specialized assistant acting as the %q tool. "+
				"Answer the request described by the JSON input directly and concisely.", call.Name)
	}
	messages := []core.Message{
		core.NewSystemMessage(systemPrompt),
		core.NewUserMessage(delegateInput(call)),
	}

	req := model.Request{
		Model:     tc.Model,
		Messages:  messages,
		MaxTokens: tc.MaxTokens,
	}
	if tc.Temperature != nil {
		req.Temperature = *tc.Temperature
	}

	// The surrounding per-tool deadline already bounds the sub-conversation,
	// so the client runs without a timeout of its own.
	client := completion.New(provider, func(o *completion.Options) {
		o.RetryAttempts = 1
		o.Logger = d.opts.Logger
	})
	res, err := client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return res.Message.Content, nil
}

func delegateInput(call core.ToolCallRequest) string {
	if call.Arguments == "" {
		return "{}"
	}
	return call.Arguments
}
