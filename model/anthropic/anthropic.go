// Package anthropic implements the model.Provider interface on top of the
// Anthropic Messages API with full streaming support, including incremental
// tool-use argument fragments.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

// Options configure the Anthropic provider adapter.
type Options struct {
	APIKey  string
	BaseURL string
	// Model is reported by Info and used when a request leaves Model empty.
	Model string
	// MaxTokens is the fallback response bound; the Messages API requires one.
	MaxTokens int64
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	client anthropic.Client
	opts   Options
}

// New creates a provider from explicit credentials.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:     string(anthropic.ModelClaude3_5Sonnet20241022),
		MaxTokens: 4096,
	}
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

	return &Provider{client: anthropic.NewClient(clientOpts...), opts: opts}
}

// Stream implements model.Provider. Content block indices from the Messages
// API carry over as fragment indices, so tool-use argument deltas accumulate
// per block exactly like the OpenAI adapter's per-index tool call deltas.
func (p *Provider) Stream(ctx context.Context, req model.Request) (<-chan model.StreamEvent, <-chan error) {
	out := make(chan model.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := p.buildParams(req)
		stream := p.client.Messages.NewStreaming(ctx, params)

		var (
			stopReason string
			usage      model.TokenUsage
		)

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.PromptTokens = int(ev.Message.Usage.InputTokens)
			case anthropic.ContentBlockStartEvent:
				if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					if !emit(ctx, out, model.ToolCallEvent(int(ev.Index), block.ID, block.Name, "")) {
						return
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" && !emit(ctx, out, model.TextEvent(delta.Text)) {
						return
					}
				case anthropic.InputJSONDelta:
					if delta.PartialJSON != "" {
						if !emit(ctx, out, model.ToolCallEvent(int(ev.Index), "", "", delta.PartialJSON)) {
							return
						}
					}
				}
			case anthropic.MessageDeltaEvent:
				if ev.Delta.StopReason != "" {
					stopReason = string(ev.Delta.StopReason)
				}
				usage.CompletionTokens = int(ev.Usage.OutputTokens)
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- classify(err)
			return
		}
		if stopReason == "" {
			errCh <- &model.ProtocolError{Reason: "stream ended without a stop reason"}
			return
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		emit(ctx, out, model.StreamEvent{Finish: &model.Finish{
			Reason: mapStopReason(stopReason),
			Usage:  &usage,
		}})
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

func (p *Provider) buildParams(req model.Request) anthropic.MessageNewParams {
	m := req.Model
	if m == "" {
		m = p.opts.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m),
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system := extractSystem(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

// buildMessages converts the ordered history into Messages API turns. Tool
// results become tool_result blocks inside a user message, which is how the
// Messages API expects them.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case core.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = tc.Arguments
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		}
	}
	return out
}

func extractSystem(msgs []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range msgs {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if t.Function.Parameters != nil {
			if props, ok := t.Function.Parameters["properties"]; ok {
				schema.Properties = props
			}
			if req, ok := t.Function.Parameters["required"]; ok {
				schema.Required = toStringSlice(req)
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
	}
	return out
}

func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func mapStopReason(reason string) model.FinishReason {
	switch reason {
	case "tool_use":
		return model.FinishToolCalls
	case "max_tokens":
		return model.FinishLength
	default:
		return model.FinishStop
	}
}

// classify maps SDK failures onto the runtime error taxonomy.
func classify(err error) error {
	var apiErr *anthropic.Error
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
	return model.Info{Name: p.opts.Model, Provider: "anthropic"}
}
