package provider

import (
	"fmt"

	"llmgate/model"
)

// New creates the adapter for a configuration. Configuration problems
// (unsupported brand, missing credentials) surface here, before any
// upstream call is made.
//
// For the OpenAI brand the protocol family is chosen here and held for the
// life of the session: enabling a built-in capability routes to the
// Responses API adapter, otherwise Chat Completions.
func New(cfg Config) (model.Adapter, error) {
	switch cfg.Brand {
	case BrandOpenAI:
		if cfg.Capabilities.requiresEventProtocol() {
			return NewOpenAIResponsesAdapter(cfg)
		}
		return NewOpenAIChatAdapter(cfg)
	case BrandDeepSeek:
		return NewDeepSeekAdapter(cfg)
	case BrandAnthropic:
		return NewAnthropicAdapter(cfg)
	case BrandOllama:
		return NewOllamaAdapter(cfg)
	default:
		return nil, newConfigError(fmt.Sprintf("unsupported brand: %q", cfg.Brand))
	}
}

// BuildCatalog converts aggregated tool definitions into the catalogue shape
// the brand's payload uses: wrapper-nested function defs for the chat and
// event families, flattened defs for the block family. The internal tool id
// is carried through untouched.
func BuildCatalog(brand string, defs []ToolDef) []model.ToolDescriptor {
	if len(defs) == 0 {
		return nil
	}
	out := make([]model.ToolDescriptor, len(defs))
	for i, def := range defs {
		if brand == BrandAnthropic {
			out[i] = model.ToolDescriptor{
				Name:        def.Name,
				Description: def.Description,
				Schema:      def.Schema,
				ToolID:      def.ToolID,
			}
			continue
		}
		out[i] = model.ToolDescriptor{
			Type: "function",
			Function: &model.FunctionDef{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Schema,
			},
			ToolID: def.ToolID,
		}
	}
	return out
}

// ToolDef is the provider-neutral tool definition handed to BuildCatalog,
// produced by the MCP aggregator and the direct-tool registry.
type ToolDef struct {
	ToolID      string
	Name        string
	Description string
	Schema      map[string]any
}
