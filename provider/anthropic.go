package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"llmgate/model"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicAdapter normalizes the Messages streaming protocol, the block
// family: content arrives as indexed blocks, each opened by a start event,
// grown by deltas and closed by a stop event. Tool arguments stream as
// partial JSON inside a tool_use block rather than as message-level deltas.
type AnthropicAdapter struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int
}

// NewAnthropicAdapter creates the block-family adapter.
func NewAnthropicAdapter(cfg Config) (*AnthropicAdapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if cfg.APIKey == "" {
		return nil, newConfigError("Anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, newConfigError("model is required")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		// MaxTokens is mandatory on the Messages API.
		maxTokens = defaultAnthropicMaxTokens
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &AnthropicAdapter{
		client:    &client,
		model:     anthropic.Model(cfg.Model),
		maxTokens: maxTokens,
	}, nil
}

func (p *AnthropicAdapter) Brand() string { return BrandAnthropic }
func (p *AnthropicAdapter) Model() string { return string(p.model) }

// Stream implements model.Adapter for the block protocol family.
func (p *AnthropicAdapter) Stream(ctx context.Context, req *model.Request, emit model.EmitFunc) error {
	messages, systemBlocks := toAnthropicMessages(req)

	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: int64(p.maxTokens),
	}
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	if tools := toAnthropicTools(req.Tools); tools != nil {
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}

	if err := emit(model.Event{Kind: model.EventTurnStarted}); err != nil {
		return err
	}

	// Tool deltas carry a dense zero-based index, so block indexes (which
	// count text blocks too) are remapped as tool_use blocks open.
	toolIndexByBlock := map[int64]int{}
	toolCount := 0

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return fmt.Errorf("error accumulating message: %w", err)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := eventVariant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				idx := toolCount
				toolCount++
				toolIndexByBlock[eventVariant.Index] = idx
				delta := model.ToolCallDelta{
					Index: idx,
					ID:    block.ID,
					Name:  block.Name,
				}
				if err := emit(model.ToolDeltaEvent(delta)); err != nil {
					return err
				}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if err := emit(model.TextEvent(deltaVariant.Text)); err != nil {
					return err
				}
			case anthropic.InputJSONDelta:
				idx, ok := toolIndexByBlock[eventVariant.Index]
				if !ok {
					continue
				}
				delta := model.ToolCallDelta{
					Index:             idx,
					ArgumentsFragment: deltaVariant.PartialJSON,
				}
				if err := emit(model.ToolDeltaEvent(delta)); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("Anthropic streaming error: %w", err)
	}

	// Confirmed tool calls come from the accumulated message content.
	index := 0
	for _, block := range msg.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		done := model.ToolCall{
			ID:        toolUse.ID,
			Index:     index,
			Name:      toolUse.Name,
			Arguments: string(toolUse.Input),
		}
		index++
		if err := emit(model.ToolDoneEvent(done)); err != nil {
			return err
		}
	}

	usage := model.TokenUsage{
		InputTokens:      int(msg.Usage.InputTokens),
		OutputTokens:     int(msg.Usage.OutputTokens),
		CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
		CacheWriteTokens: int(msg.Usage.CacheCreationInputTokens),
	}
	if err := emit(model.UsageEvent(usage)); err != nil {
		return err
	}
	return emit(model.Event{Kind: model.EventTurnDone})
}

// toAnthropicMessages converts generic history to Anthropic format. System
// content goes to the separate system parameter, not the messages array.
// Assistant tool calls replay as tool_use blocks and tool results as
// tool_result blocks inside user messages, which is where the Messages API
// expects them.
func toAnthropicMessages(req *model.Request) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	if req.System != "" {
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: req.System})
	}

	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Content})

		case model.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) > 0 {
				msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
			}

		case model.RoleTool:
			msgs = append(msgs, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return msgs, systemBlocks
}

// toAnthropicTools converts the flattened catalogue to the Messages API
// tool shape.
func toAnthropicTools(catalogue []model.ToolDescriptor) []anthropic.ToolUnionParam {
	if len(catalogue) == 0 {
		return nil
	}

	out := make([]anthropic.ToolUnionParam, len(catalogue))
	for i, d := range catalogue {
		schema := d.DeclaredSchema()
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
		}
		if required, ok := schema["required"].([]string); ok {
			inputSchema.Required = required
		} else if rawRequired, ok := schema["required"].([]any); ok {
			required := make([]string, 0, len(rawRequired))
			for _, r := range rawRequired {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
			inputSchema.Required = required
		}

		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, d.DeclaredName())
		if desc := d.DeclaredDescription(); desc != "" {
			out[i].OfTool.Description = anthropic.String(desc)
		}
	}
	return out
}
