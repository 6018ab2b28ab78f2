package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"llmgate/model"
	"llmgate/provider"
)

// ToolDefs returns the aggregated tool definitions of the named servers,
// namespaced as "serverID__toolName". The separator stays inside the
// [a-zA-Z0-9_-] charset upstream providers require for function names, so
// the namespaced id can double as the provider-facing name. Servers that
// are not running are skipped rather than failing the whole catalogue.
func (m *Manager) ToolDefs(serverIDs []string) []provider.ToolDef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var defs []provider.ToolDef
	for _, serverID := range serverIDs {
		conn := m.servers[serverID]
		if conn == nil || !conn.Running {
			continue
		}
		for _, tool := range conn.Tools {
			name := serverID + "__" + tool.Name
			defs = append(defs, provider.ToolDef{
				ToolID:      name,
				Name:        name,
				Description: tool.Description,
				Schema:      schemaToMap(tool.InputSchema),
			})
		}
	}
	return defs
}

// Owns reports whether the tool id belongs to a running server. It makes
// Manager a remote caller for the tool executor.
func (m *Manager) Owns(toolID string) bool {
	serverID, toolName := splitToolID(toolID)
	if serverID == "" {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	conn := m.servers[serverID]
	if conn == nil || !conn.Running {
		return false
	}
	for _, tool := range conn.Tools {
		if tool.Name == toolName {
			return true
		}
	}
	return false
}

// CallTool routes a namespaced tool call to its owning server and flattens
// the result to text. Usage counters are read from the result metadata when
// the server reports them.
func (m *Manager) CallTool(ctx context.Context, toolID string, args map[string]any) (string, *model.TokenUsage, error) {
	serverID, toolName := splitToolID(toolID)

	m.mu.RLock()
	conn := m.servers[serverID]
	m.mu.RUnlock()

	if conn == nil || !conn.Running {
		return "", nil, fmt.Errorf("no running server for tool %s", toolID)
	}

	result, err := conn.Client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("tool %s failed: %w", toolID, err)
	}

	content := flattenContent(result.Content)
	if result.IsError {
		return "", nil, fmt.Errorf("tool %s failed: %s", toolID, content)
	}
	return content, usageFromMeta(result.Meta), nil
}

// flattenContent joins the result's content items into one string. Text
// items contribute their text; anything else is carried as JSON so nothing
// the server returned is silently dropped.
func flattenContent(items []mcptypes.Content) string {
	if len(items) == 0 {
		return "Tool executed successfully (no output)"
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch c := item.(type) {
		case mcptypes.TextContent:
			parts = append(parts, c.Text)
		default:
			raw, err := json.Marshal(item)
			if err != nil {
				continue
			}
			parts = append(parts, string(raw))
		}
	}
	return strings.Join(parts, "\n")
}

// usageFromMeta extracts token counters a server attached under the "usage"
// metadata key. Returns nil when the server reported nothing.
func usageFromMeta(meta *mcptypes.Meta) *model.TokenUsage {
	if meta == nil || meta.AdditionalFields == nil {
		return nil
	}
	raw, ok := meta.AdditionalFields["usage"].(map[string]any)
	if !ok {
		return nil
	}

	usage := &model.TokenUsage{
		InputTokens:  intField(raw, "input_tokens"),
		OutputTokens: intField(raw, "output_tokens"),
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		return nil
	}
	return usage
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func splitToolID(toolID string) (serverID, toolName string) {
	idx := strings.Index(toolID, "__")
	if idx == -1 {
		return "", toolID
	}
	return toolID[:idx], toolID[idx+2:]
}

// schemaToMap converts the typed input schema to the free-form map the
// provider catalogue carries.
func schemaToMap(schema mcptypes.ToolInputSchema) map[string]any {
	out := map[string]any{
		"type": schema.Type,
	}
	if out["type"] == "" {
		out["type"] = "object"
	}
	if schema.Properties != nil {
		out["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	if schema.Defs != nil {
		out["$defs"] = schema.Defs
	}
	return out
}
