package mcp

import (
	"context"
	"regexp"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func managerWithServer(id string, running bool, tools ...mcptypes.Tool) *Manager {
	m := NewManager()
	m.servers[id] = &ServerConn{
		ID:      id,
		Tools:   tools,
		Running: running,
	}
	return m
}

func weatherTool() mcptypes.Tool {
	return mcptypes.Tool{
		Name:        "get_weather",
		Description: "Get the current weather for a location",
		InputSchema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"location": map[string]any{"type": "string"},
			},
			Required: []string{"location"},
		},
	}
}

func TestToolDefs(t *testing.T) {
	m := managerWithServer("weather", true, weatherTool())

	defs := m.ToolDefs([]string{"weather", "missing"})
	if len(defs) != 1 {
		t.Fatalf("expected 1 def, got %d", len(defs))
	}

	def := defs[0]
	if def.Name != "weather__get_weather" {
		t.Errorf("Name = %q, want namespaced weather__get_weather", def.Name)
	}
	if def.ToolID != def.Name {
		t.Errorf("ToolID = %q, want same as name", def.ToolID)
	}
	if def.Schema["type"] != "object" {
		t.Errorf("schema type = %v", def.Schema["type"])
	}
	required, ok := def.Schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "location" {
		t.Errorf("schema required = %v", def.Schema["required"])
	}
}

// Upstream providers restrict function names to [a-zA-Z0-9_-]; namespaced
// names must stay inside that charset or the dispatch is rejected before
// any turn runs.
func TestToolDefsNamesAreLegalFunctionNames(t *testing.T) {
	m := managerWithServer("weather-eu", true, weatherTool())

	defs := m.ToolDefs([]string{"weather-eu"})
	if len(defs) != 1 {
		t.Fatalf("expected 1 def, got %d", len(defs))
	}

	legal := regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	if !legal.MatchString(defs[0].Name) {
		t.Errorf("Name %q is not a legal provider function name", defs[0].Name)
	}

	// The namespaced name must still route back to the owning server.
	server, tool := splitToolID(defs[0].Name)
	if server != "weather-eu" || tool != "get_weather" {
		t.Errorf("splitToolID(%q) = (%q, %q)", defs[0].Name, server, tool)
	}
}

func TestToolDefsSkipsStoppedServers(t *testing.T) {
	m := managerWithServer("weather", false, weatherTool())

	if defs := m.ToolDefs([]string{"weather"}); len(defs) != 0 {
		t.Errorf("expected no defs from a stopped server, got %d", len(defs))
	}
}

func TestOwns(t *testing.T) {
	m := managerWithServer("weather", true, weatherTool())

	tests := []struct {
		toolID string
		want   bool
	}{
		{"weather__get_weather", true},
		{"weather__unknown", false},
		{"other__get_weather", false},
		{"get_weather", false}, // no namespace
	}

	for _, tt := range tests {
		if got := m.Owns(tt.toolID); got != tt.want {
			t.Errorf("Owns(%q) = %v, want %v", tt.toolID, got, tt.want)
		}
	}
}

func TestCallToolNoRunningServer(t *testing.T) {
	m := NewManager()

	_, _, err := m.CallTool(context.Background(), "weather__get_weather", nil)
	if err == nil {
		t.Fatal("expected error for unknown server")
	}
}

func TestSplitToolID(t *testing.T) {
	tests := []struct {
		input      string
		wantServer string
		wantTool   string
	}{
		{"weather__get_weather", "weather", "get_weather"},
		{"srv__fs__read", "srv", "fs__read"}, // only the first separator splits
		{"bare", "", "bare"},
	}

	for _, tt := range tests {
		server, tool := splitToolID(tt.input)
		if server != tt.wantServer || tool != tt.wantTool {
			t.Errorf("splitToolID(%q) = (%q, %q), want (%q, %q)",
				tt.input, server, tool, tt.wantServer, tt.wantTool)
		}
	}
}

func TestFlattenContent(t *testing.T) {
	tests := []struct {
		name  string
		items []mcptypes.Content
		want  string
	}{
		{
			name: "single text item",
			items: []mcptypes.Content{
				mcptypes.TextContent{Type: "text", Text: "sunny, 18C"},
			},
			want: "sunny, 18C",
		},
		{
			name: "multiple text items joined",
			items: []mcptypes.Content{
				mcptypes.TextContent{Type: "text", Text: "line one"},
				mcptypes.TextContent{Type: "text", Text: "line two"},
			},
			want: "line one\nline two",
		},
		{
			name:  "empty content",
			items: nil,
			want:  "Tool executed successfully (no output)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flattenContent(tt.items); got != tt.want {
				t.Errorf("flattenContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUsageFromMeta(t *testing.T) {
	t.Run("counters present", func(t *testing.T) {
		meta := &mcptypes.Meta{
			AdditionalFields: map[string]any{
				"usage": map[string]any{
					"input_tokens":  float64(12),
					"output_tokens": float64(34),
				},
			},
		}
		usage := usageFromMeta(meta)
		if usage == nil {
			t.Fatal("expected usage")
		}
		if usage.InputTokens != 12 || usage.OutputTokens != 34 {
			t.Errorf("usage = %+v", usage)
		}
	})

	t.Run("nil meta", func(t *testing.T) {
		if usageFromMeta(nil) != nil {
			t.Error("expected nil usage")
		}
	})

	t.Run("no usage key", func(t *testing.T) {
		meta := &mcptypes.Meta{AdditionalFields: map[string]any{"other": 1}}
		if usageFromMeta(meta) != nil {
			t.Error("expected nil usage")
		}
	})
}
