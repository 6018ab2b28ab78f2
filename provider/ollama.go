package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"llmgate/model"
)

// OllamaAdapter speaks the chat-turn protocol against a local Ollama server.
// Unlike the hosted chat APIs, Ollama delivers tool calls whole inside a
// response chunk rather than as argument fragments, so the adapter emits
// confirmed calls directly.
type OllamaAdapter struct {
	client    *api.Client
	model     string
	maxTokens int
}

// NewOllamaAdapter creates the adapter for a local Ollama server. No API key
// is required.
func NewOllamaAdapter(cfg Config) (*OllamaAdapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "llama3.1:latest"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, newConfigError(fmt.Sprintf("invalid Ollama URL: %v", err))
	}

	return &OllamaAdapter{
		client:    api.NewClient(parsedURL, http.DefaultClient),
		model:     modelName,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (p *OllamaAdapter) Brand() string { return BrandOllama }
func (p *OllamaAdapter) Model() string { return p.model }

// Stream implements model.Adapter.
func (p *OllamaAdapter) Stream(ctx context.Context, req *model.Request, emit model.EmitFunc) error {
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: toOllamaMessages(req),
		Tools:    toOllamaTools(req.Tools),
		Stream:   func(b bool) *bool { return &b }(true),
	}
	if p.maxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": p.maxTokens}
	}

	if err := emit(model.Event{Kind: model.EventTurnStarted}); err != nil {
		return err
	}

	var collected []model.ToolCall
	var usage model.TokenUsage

	respFunc := func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			if err := emit(model.TextEvent(resp.Message.Content)); err != nil {
				return err
			}
		}

		for _, tc := range resp.Message.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			idx := len(collected)
			collected = append(collected, model.ToolCall{
				// Ollama assigns no call ids; synthesize stable ones so
				// results can be matched back to their calls.
				ID:        fmt.Sprintf("call_%d", idx),
				Index:     idx,
				Name:      tc.Function.Name,
				Arguments: string(args),
			})
		}

		if resp.Done {
			usage.InputTokens = resp.Metrics.PromptEvalCount
			usage.OutputTokens = resp.Metrics.EvalCount
		}
		return nil
	}

	if err := p.client.Chat(ctx, chatReq, respFunc); err != nil {
		return fmt.Errorf("Ollama chat error: %w", err)
	}

	for _, call := range collected {
		if err := emit(model.ToolDoneEvent(call)); err != nil {
			return err
		}
	}
	if err := emit(model.UsageEvent(usage)); err != nil {
		return err
	}
	return emit(model.Event{Kind: model.EventTurnDone})
}

func toOllamaMessages(req *model.Request) []api.Message {
	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: req.System})
	}

	for _, msg := range req.Messages {
		out := api.Message{Role: msg.Role, Content: msg.Content}
		for _, call := range msg.ToolCalls {
			var args api.ToolCallFunctionArguments
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				args = api.ToolCallFunctionArguments{}
			}
			out.ToolCalls = append(out.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      call.Name,
					Arguments: args,
				},
			})
		}
		msgs = append(msgs, out)
	}
	return msgs
}

// toOllamaTools converts the wrapper-shaped catalogue to Ollama's tool type.
// The schema map goes through a JSON round trip because ToolFunctionParameters
// is a fully typed structure rather than a free-form map.
func toOllamaTools(catalogue []model.ToolDescriptor) []api.Tool {
	if len(catalogue) == 0 {
		return nil
	}

	tools := make([]api.Tool, 0, len(catalogue))
	for _, d := range catalogue {
		var params api.ToolFunctionParameters
		if raw, err := json.Marshal(d.DeclaredSchema()); err == nil {
			if err := json.Unmarshal(raw, &params); err != nil {
				params = api.ToolFunctionParameters{Type: "object"}
			}
		}
		if params.Type == "" {
			params.Type = "object"
		}

		tools = append(tools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        d.DeclaredName(),
				Description: d.DeclaredDescription(),
				Parameters:  params,
			},
		})
	}
	return tools
}
