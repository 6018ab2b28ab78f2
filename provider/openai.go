package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"llmgate/model"
)

// OpenAIChatAdapter normalizes the Chat Completions streaming protocol:
// each fragment is a small delta against one evolving assistant message.
type OpenAIChatAdapter struct {
	client    openai.Client
	brand     string
	model     string
	maxTokens int
	usageFn   func(openai.CompletionUsage) model.TokenUsage
}

// NewOpenAIChatAdapter creates the chat-family adapter for the OpenAI brand.
func NewOpenAIChatAdapter(cfg Config) (*OpenAIChatAdapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if cfg.APIKey == "" {
		return nil, newConfigError("OpenAI API key is required")
	}
	if cfg.Model == "" {
		return nil, newConfigError("model is required")
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &OpenAIChatAdapter{
		client:    client,
		brand:     BrandOpenAI,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		usageFn:   mapOpenAIUsage,
	}, nil
}

func (p *OpenAIChatAdapter) Brand() string { return p.brand }
func (p *OpenAIChatAdapter) Model() string { return p.model }

// Stream implements model.Adapter for the chat-turn protocol family.
func (p *OpenAIChatAdapter) Stream(ctx context.Context, req *model.Request, emit model.EmitFunc) error {
	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(req),
		Model:    openai.ChatModel(p.model),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.maxTokens))
	}
	if tools := toOpenAITools(req.Tools); tools != nil {
		params.Tools = tools
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	if err := emit(model.Event{Kind: model.EventTurnStarted}); err != nil {
		return err
	}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			if err := emit(model.TextEvent(delta.Content)); err != nil {
				return err
			}
		}

		for _, tc := range delta.ToolCalls {
			ev := model.ToolCallDelta{
				Index:             int(tc.Index),
				ID:                tc.ID,
				Name:              tc.Function.Name,
				ArgumentsFragment: tc.Function.Arguments,
			}
			if err := emit(model.ToolDeltaEvent(ev)); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}

	// Confirmed tool calls only exist in the accumulated final message;
	// deltas alone are never treated as confirmation.
	if len(acc.Choices) > 0 {
		for i, call := range acc.Choices[0].Message.ToolCalls {
			done := model.ToolCall{
				ID:        call.ID,
				Index:     i,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			}
			if err := emit(model.ToolDoneEvent(done)); err != nil {
				return err
			}
		}
	}

	if err := emit(model.UsageEvent(p.usageFn(acc.Usage))); err != nil {
		return err
	}
	return emit(model.Event{Kind: model.EventTurnDone})
}
