package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"llmgate/model"
)

// OpenAIResponsesAdapter normalizes the Responses API, the event-protocol
// family: the stream is a sequence of discrete typed lifecycle events
// (response created, output item added, text delta, response completed).
// It is selected instead of the chat adapter when a session enables a
// built-in capability, since web and file search only exist here.
type OpenAIResponsesAdapter struct {
	client       openai.Client
	model        string
	maxTokens    int
	capabilities Capabilities
}

// NewOpenAIResponsesAdapter creates the event-family adapter for the OpenAI
// brand.
func NewOpenAIResponsesAdapter(cfg Config) (*OpenAIResponsesAdapter, error) {
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

	return &OpenAIResponsesAdapter{
		client:       client,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		capabilities: cfg.Capabilities,
	}, nil
}

func (p *OpenAIResponsesAdapter) Brand() string { return BrandOpenAI }
func (p *OpenAIResponsesAdapter) Model() string { return p.model }

// Stream implements model.Adapter for the event protocol family.
func (p *OpenAIResponsesAdapter) Stream(ctx context.Context, req *model.Request, emit model.EmitFunc) error {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(p.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: p.toInputItems(req),
		},
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}
	if p.maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(p.maxTokens))
	}
	params.Tools = p.toResponseTools(req.Tools)

	stream := p.client.Responses.NewStreaming(ctx, params)

	if err := emit(model.Event{Kind: model.EventTurnStarted}); err != nil {
		return err
	}

	for stream.Next() {
		event := stream.Current()

		switch variant := event.AsAny().(type) {
		case responses.ResponseTextDeltaEvent:
			if err := emit(model.TextEvent(variant.Delta)); err != nil {
				return err
			}

		case responses.ResponseOutputItemAddedEvent:
			item := variant.Item
			if item.Type != "function_call" {
				continue
			}
			// Name and call id arrive on the item-added event; argument
			// text follows as separate delta events for the same index.
			delta := model.ToolCallDelta{
				Index: int(variant.OutputIndex),
				ID:    item.CallID,
				Name:  item.Name,
			}
			if err := emit(model.ToolDeltaEvent(delta)); err != nil {
				return err
			}

		case responses.ResponseFunctionCallArgumentsDeltaEvent:
			delta := model.ToolCallDelta{
				Index:             int(variant.OutputIndex),
				ArgumentsFragment: variant.Delta,
			}
			if err := emit(model.ToolDeltaEvent(delta)); err != nil {
				return err
			}

		case responses.ResponseCompletedEvent:
			if err := p.emitCompleted(variant.Response, emit); err != nil {
				return err
			}

		case responses.ResponseErrorEvent:
			if err := emit(model.ErrorEvent(fmt.Errorf("OpenAI response error: %s", variant.Message))); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("OpenAI responses streaming error: %w", err)
	}

	return emit(model.Event{Kind: model.EventTurnDone})
}

// emitCompleted confirms tool calls and reports usage from the terminal
// lifecycle event.
func (p *OpenAIResponsesAdapter) emitCompleted(resp responses.Response, emit model.EmitFunc) error {
	index := 0
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		done := model.ToolCall{
			ID:        item.CallID,
			Index:     index,
			Name:      item.Name,
			Arguments: item.Arguments,
		}
		index++
		if err := emit(model.ToolDoneEvent(done)); err != nil {
			return err
		}
	}

	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		CachedTokens: int(resp.Usage.InputTokensDetails.CachedTokens),
	}
	return emit(model.UsageEvent(usage))
}

// toInputItems rebuilds the Responses input list from generic history.
func (p *OpenAIResponsesAdapter) toInputItems(req *model.Request) responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleAssistant:
			if msg.Content != "" {
				items = append(items, easyMessage(msg.Role, msg.Content))
			}
			for _, call := range msg.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(call.Arguments, call.ID, call.Name))
			}

		case model.RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(msg.ToolCallID, msg.Content))

		default:
			items = append(items, easyMessage(msg.Role, msg.Content))
		}
	}

	return items
}

func easyMessage(role, content string) responses.ResponseInputItemUnionParam {
	return responses.ResponseInputItemUnionParam{
		OfMessage: &responses.EasyInputMessageParam{
			Role: responses.EasyInputMessageRole(role),
			Content: responses.EasyInputMessageContentUnionParam{
				OfString: openai.String(content),
			},
		},
	}
}

// toResponseTools merges the session's function catalogue with the built-in
// tools the enabled capabilities demand.
func (p *OpenAIResponsesAdapter) toResponseTools(catalogue []model.ToolDescriptor) []responses.ToolUnionParam {
	var out []responses.ToolUnionParam

	if p.capabilities.WebSearch {
		out = append(out, responses.ToolUnionParam{
			OfWebSearch: &responses.WebSearchToolParam{
				Type: responses.WebSearchToolTypeWebSearch,
			},
		})
	}
	if p.capabilities.FileSearch {
		out = append(out, responses.ToolUnionParam{
			OfFileSearch: &responses.FileSearchToolParam{
				VectorStoreIDs: p.capabilities.VectorStoreIDs,
			},
		})
	}

	for _, d := range catalogue {
		out = append(out, responses.ToolParamOfFunction(d.DeclaredName(), d.DeclaredSchema(), false))
	}
	return out
}
