// Package openai implements the model.Provider interface on top of the
// OpenAI Chat Completions API (streaming with function/tool calling). Any
// OpenAI-compatible endpoint works by overriding the base URL, which is how
// delegated tools point at entirely different providers.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

// Options configure the OpenAI provider adapter.
type Options struct {
	APIKey  string
	BaseURL string
	// Model is reported by Info and used when a request leaves Model empty.
	Model string
}

// Provider wraps the OpenAI Chat Completions API behind model.Provider.
type Provider struct {
	client openai.Client
	opts   Options
}

// New creates a provider from explicit credentials.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &Provider{client: openai.NewClient(clientOpts...), opts: opts}
}

// Stream implements model.Provider. It adapts chunked chat completion deltas
// into model.StreamEvents; the finish event is emitted last so token usage
// reported after the final choice is still attached.
func (p *Provider) Stream(ctx context.Context, req model.Request) (<-chan model.StreamEvent, <-chan error) {
	out := make(chan model.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := p.buildParams(req)
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)

		var (
			finishReason model.FinishReason
			usage        *model.TokenUsage
		)

		for stream.Next() {
			ck := stream.Current()
			if ck.Usage.TotalTokens > 0 {
				usage = &model.TokenUsage{
					PromptTokens:     int(ck.Usage.PromptTokens),
					CompletionTokens: int(ck.Usage.CompletionTokens),
					TotalTokens:      int(ck.Usage.TotalTokens),
				}
			}
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					if !emit(ctx, out, model.TextEvent(ch.Delta.Content)) {
						return
					}
				}
				for _, tc := range ch.Delta.ToolCalls {
					ev := model.ToolCallEvent(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)
					if !emit(ctx, out, ev) {
						return
					}
				}
				if ch.FinishReason != "" {
					finishReason = mapFinishReason(ch.FinishReason)
				}
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- classify(err)
			return
		}
		if finishReason == "" {
			errCh <- &model.ProtocolError{Reason: "stream ended without a finish event"}
			return
		}
		emit(ctx, out, model.StreamEvent{Finish: &model.Finish{Reason: finishReason, Usage: usage}})
	}()

	return out, errCh
}

func emit(ctx context.Context, out chan<- model.StreamEvent, ev model.StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// buildParams assembles the request parameters including tool definitions.
func (p *Provider) buildParams(req model.Request) openai.ChatCompletionNewParams {
	m := req.Model
	if m == "" {
		m = p.opts.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages:    buildMessages(req.Messages),
		Model:       openai.ChatModel(m),
		Temperature: openai.Float(req.Temperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Function.Name,
					Description: openai.String(tdef.Function.Description),
					Parameters:  tdef.Function.Parameters,
				},
			}
		}
		params.Tools = tools
	}
	return params
}

// buildMessages converts the ordered message history into the wire format.
// The history is already correctly interleaved by the conversation actor, so
// this is a straight per-role mapping.
func buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if !m.HasToolCalls() {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls)),
			}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for i, tc := range m.ToolCalls {
				assistant.ToolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func mapFinishReason(reason string) model.FinishReason {
	switch reason {
	case "tool_calls", "function_call":
		return model.FinishToolCalls
	case "length":
		return model.FinishLength
	default:
		return model.FinishStop
	}
}

// classify maps SDK failures onto the runtime error taxonomy.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{Status: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &model.TransportError{Err: err}
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: "openai"}
}
