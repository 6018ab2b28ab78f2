package provider

import (
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name: "ollama adapter with defaults",
			config: Config{
				Brand: BrandOllama,
			},
			expectError: false,
		},
		{
			name: "openai adapter",
			config: Config{
				Brand:  BrandOpenAI,
				Model:  "gpt-4o-mini",
				APIKey: "test-key",
			},
			expectError: false,
		},
		{
			name: "openai adapter without key",
			config: Config{
				Brand: BrandOpenAI,
				Model: "gpt-4o-mini",
			},
			expectError: true,
		},
		{
			name: "anthropic adapter",
			config: Config{
				Brand:  BrandAnthropic,
				Model:  "claude-sonnet-4-5-20250929",
				APIKey: "test-key",
			},
			expectError: false,
		},
		{
			name: "anthropic adapter without model",
			config: Config{
				Brand:  BrandAnthropic,
				APIKey: "test-key",
			},
			expectError: true,
		},
		{
			name: "deepseek adapter with default model",
			config: Config{
				Brand:  BrandDeepSeek,
				APIKey: "test-key",
			},
			expectError: false,
		},
		{
			name: "unknown brand",
			config: Config{
				Brand: "acme",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if !IsConfigError(err) {
					t.Errorf("expected a config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if adapter == nil {
				t.Fatal("expected adapter, got nil")
			}
			if adapter.Brand() != tt.config.Brand {
				t.Errorf("Brand() = %q, want %q", adapter.Brand(), tt.config.Brand)
			}
		})
	}
}

// The protocol family for OpenAI is fixed at construction: plain configs get
// Chat Completions, capability-enabled configs get the Responses API.
func TestNewOpenAIProtocolSelection(t *testing.T) {
	tests := []struct {
		name         string
		capabilities Capabilities
		wantEvent    bool
	}{
		{name: "no capabilities", capabilities: Capabilities{}, wantEvent: false},
		{name: "web search", capabilities: Capabilities{WebSearch: true}, wantEvent: true},
		{name: "file search", capabilities: Capabilities{FileSearch: true}, wantEvent: true},
		{
			name:         "both capabilities",
			capabilities: Capabilities{WebSearch: true, FileSearch: true},
			wantEvent:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := New(Config{
				Brand:        BrandOpenAI,
				Model:        "gpt-4o",
				APIKey:       "test-key",
				Capabilities: tt.capabilities,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			_, isEvent := adapter.(*OpenAIResponsesAdapter)
			if isEvent != tt.wantEvent {
				t.Errorf("got event-protocol adapter = %v, want %v", isEvent, tt.wantEvent)
			}
		})
	}
}

func TestBuildCatalog(t *testing.T) {
	defs := []ToolDef{
		{
			ToolID:      "weather__get_weather",
			Name:        "get_weather",
			Description: "Get the current weather for a location",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"location": map[string]any{"type": "string"},
				},
				"required": []string{"location"},
			},
		},
	}

	t.Run("wrapper shape for chat family", func(t *testing.T) {
		catalogue := BuildCatalog(BrandOpenAI, defs)
		if len(catalogue) != 1 {
			t.Fatalf("expected 1 descriptor, got %d", len(catalogue))
		}
		d := catalogue[0]
		if d.Type != "function" || d.Function == nil {
			t.Fatal("expected wrapper-shaped descriptor")
		}
		if d.Function.Name != "get_weather" {
			t.Errorf("Function.Name = %q", d.Function.Name)
		}
		if d.Name != "" {
			t.Errorf("flattened Name should be empty, got %q", d.Name)
		}
		if d.ToolID != "weather__get_weather" {
			t.Errorf("ToolID = %q", d.ToolID)
		}
	})

	t.Run("flattened shape for block family", func(t *testing.T) {
		catalogue := BuildCatalog(BrandAnthropic, defs)
		d := catalogue[0]
		if d.Function != nil {
			t.Fatal("expected flattened descriptor without wrapper")
		}
		if d.Name != "get_weather" {
			t.Errorf("Name = %q", d.Name)
		}
		if d.Schema == nil {
			t.Error("Schema should carry the input schema")
		}
		if d.ToolID != "weather__get_weather" {
			t.Errorf("ToolID = %q", d.ToolID)
		}
	})

	t.Run("empty defs", func(t *testing.T) {
		if got := BuildCatalog(BrandOpenAI, nil); got != nil {
			t.Errorf("expected nil catalogue, got %v", got)
		}
	})
}
