package provider

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"

	"llmgate/model"
)

func testHistory() []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Content: "What's the weather in Paris?", Timestamp: time.Now()},
		{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{
				{ID: "call_1", Name: "get_weather", Arguments: `{"location":"Paris"}`},
			},
			Timestamp: time.Now(),
		},
		{Role: model.RoleTool, ToolCallID: "call_1", Content: `{"temp":18}`, Timestamp: time.Now()},
		{Role: model.RoleAssistant, Content: "It is 18 degrees in Paris.", Timestamp: time.Now()},
	}
}

func TestToOpenAIMessages(t *testing.T) {
	req := &model.Request{
		System:   "You are a helpful assistant.",
		Messages: testHistory(),
	}

	msgs := toOpenAIMessages(req)

	// system + user + assistant(tool calls) + tool + assistant
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if msgs[1].OfUser == nil {
		t.Error("second message should be the user turn")
	}

	assistant := msgs[2].OfAssistant
	if assistant == nil {
		t.Fatal("third message should be the assistant tool-call turn")
	}
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 replayed tool call, got %d", len(assistant.ToolCalls))
	}
	fn := assistant.ToolCalls[0].OfFunction
	if fn == nil || fn.Function.Name != "get_weather" {
		t.Error("tool call replay lost the function name")
	}

	if msgs[3].OfTool == nil {
		t.Fatal("fourth message should be the tool result")
	}
	if msgs[3].OfTool.ToolCallID != "call_1" {
		t.Errorf("tool result call id = %q, want call_1", msgs[3].OfTool.ToolCallID)
	}
}

func TestToOpenAITools(t *testing.T) {
	catalogue := BuildCatalog(BrandOpenAI, []ToolDef{
		{
			ToolID:      "srv__echo",
			Name:        "echo",
			Description: "Echo the input back",
			Schema:      map[string]any{"type": "object"},
		},
	})

	tools := toOpenAITools(catalogue)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	fn := tools[0].OfFunction
	if fn == nil {
		t.Fatal("expected a function tool")
	}
	if fn.Function.Name != "echo" {
		t.Errorf("name = %q, want echo", fn.Function.Name)
	}
	if fn.Function.Description.Value != "Echo the input back" {
		t.Errorf("description = %q", fn.Function.Description.Value)
	}
}

func TestMapOpenAIUsage(t *testing.T) {
	var u openai.CompletionUsage
	payload := `{
		"prompt_tokens": 120,
		"completion_tokens": 40,
		"total_tokens": 160,
		"prompt_tokens_details": {"cached_tokens": 100}
	}`
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		t.Fatal(err)
	}

	usage := mapOpenAIUsage(u)
	if usage.InputTokens != 120 || usage.OutputTokens != 40 {
		t.Errorf("base counters = %d/%d, want 120/40", usage.InputTokens, usage.OutputTokens)
	}
	if usage.CachedTokens != 100 {
		t.Errorf("CachedTokens = %d, want 100", usage.CachedTokens)
	}
}

func TestMapDeepSeekUsage(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantHit  int
		wantMiss int
	}{
		{
			name: "cache counters present",
			payload: `{
				"prompt_tokens": 100,
				"completion_tokens": 20,
				"prompt_cache_hit_tokens": 70,
				"prompt_cache_miss_tokens": 30
			}`,
			wantHit:  70,
			wantMiss: 30,
		},
		{
			name: "counters absent falls back to all-miss",
			payload: `{
				"prompt_tokens": 100,
				"completion_tokens": 20
			}`,
			wantHit:  0,
			wantMiss: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u openai.CompletionUsage
			if err := json.Unmarshal([]byte(tt.payload), &u); err != nil {
				t.Fatal(err)
			}

			usage := mapDeepSeekUsage(u)
			if usage.CacheHitTokens != tt.wantHit {
				t.Errorf("CacheHitTokens = %d, want %d", usage.CacheHitTokens, tt.wantHit)
			}
			if usage.CacheMissTokens != tt.wantMiss {
				t.Errorf("CacheMissTokens = %d, want %d", usage.CacheMissTokens, tt.wantMiss)
			}
		})
	}
}

func TestToAnthropicMessages(t *testing.T) {
	req := &model.Request{
		System:   "Be brief.",
		Messages: testHistory(),
	}

	msgs, system := toAnthropicMessages(req)

	if len(system) != 1 || system[0].Text != "Be brief." {
		t.Errorf("system blocks = %+v", system)
	}
	// user + assistant(tool_use) + user(tool_result) + assistant
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[1].Role != "assistant" {
		t.Errorf("second message role = %q, want assistant", msgs[1].Role)
	}
	if msgs[2].Role != "user" {
		t.Errorf("tool results must replay inside a user message, got role %q", msgs[2].Role)
	}
}

func TestToOllamaTools(t *testing.T) {
	catalogue := BuildCatalog(BrandOllama, []ToolDef{
		{
			Name:        "calculate",
			Description: "Evaluate an expression",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"expression": map[string]any{"type": "string"},
				},
				"required": []string{"expression"},
			},
		},
	})

	tools := toOllamaTools(catalogue)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	fn := tools[0].Function
	if fn.Name != "calculate" {
		t.Errorf("name = %q", fn.Name)
	}
	if fn.Parameters.Type != "object" {
		t.Errorf("parameters type = %q, want object", fn.Parameters.Type)
	}
	if len(fn.Parameters.Required) != 1 || fn.Parameters.Required[0] != "expression" {
		t.Errorf("required = %v", fn.Parameters.Required)
	}
}
