package engine

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
	"github.com/mindloop/mindloop/tools"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
)

// AnthropicBackend generates completions with the Anthropic Messages API.
// Responses stream internally so OnDelta callers see fragments as they
// arrive; tool requests surface as CompletionToolCalls.
type AnthropicBackend struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	log       *zap.Logger
}

// NewAnthropicBackend creates a backend for the given client and model.
// An empty model selects the default.
func NewAnthropicBackend(client *anthropic.Client, model string, log *zap.Logger) *AnthropicBackend {
	if model == "" {
		model = defaultModel
	}
	return &AnthropicBackend{
		client:    client,
		model:     model,
		maxTokens: defaultMaxTokens,
		log:       log,
	}
}

// Complete runs one generation round over the transcript.
func (b *AnthropicBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: b.maxTokens,
		Messages:  toAPIMessages(req.Messages),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
	}
	if len(req.Tools) > 0 {
		params.Tools = toAPITools(req.Tools)
	}

	resp, err := b.stream(ctx, params, req.OnDelta)
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}

	completion := &Completion{Kind: CompletionFinal}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			completion.Text += block.Text
		case "tool_use":
			completion.ToolCalls = append(completion.ToolCalls, core.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	if len(completion.ToolCalls) > 0 {
		completion.Kind = CompletionToolCalls
	}

	b.log.Debug("generation round finished",
		zap.Int("tool_calls", len(completion.ToolCalls)),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))
	return completion, nil
}

func (b *AnthropicBackend) stream(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) (*anthropic.Message, error) {
	stream := b.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			b.log.Warn("event accumulation failed", zap.Error(err))
		}
		if onDelta == nil {
			continue
		}
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				onDelta(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}

// toAPIMessages converts the stored transcript to API message params. Tool
// results travel as user-role tool_result blocks, matching how the API
// expects them back.
func toAPIMessages(msgs []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Input, call.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case core.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out
}

func toAPITools(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := anthropic.ToolInputSchemaParam{
			Properties: def.InputSchema["properties"],
		}
		if required, ok := def.InputSchema["required"].([]string); ok {
			schema.Required = required
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}
