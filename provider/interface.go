// Package provider implements the adapter layer between the turn
// orchestrator and the upstream model APIs.
//
// Three wire protocol families are normalized into the canonical event
// sequence defined in the model package:
//
//   - chat-turn protocol: each streamed fragment is a small delta against a
//     single evolving message (OpenAI Chat Completions, DeepSeek, Ollama)
//   - event protocol: the stream is a sequence of discrete typed lifecycle
//     events (OpenAI Responses API)
//   - block protocol: content arrives as typed blocks, each with its own
//     start/delta/stop lifecycle (Anthropic Messages)
//
// Every adapter translates the canonical outbound request into its wire
// shape and its provider's stream back into canonical events, so the
// orchestrator never inspects a provider-specific chunk.
//
// The OpenAI brand is dual-mode: enabling a built-in capability (web search,
// file search) forces the event-protocol family, because those tools only
// exist on the Responses API. The routing decision is a pure function of
// the configuration and is made once, before the first turn.
package provider

import "llmgate/billing"

// Brand identifiers double as billing brands.
const (
	BrandOpenAI    = billing.BrandOpenAI
	BrandAnthropic = billing.BrandAnthropic
	BrandDeepSeek  = billing.BrandDeepSeek
	BrandOllama    = billing.BrandOllama
)

// Capabilities are the provider built-in tools a session may enable.
type Capabilities struct {
	WebSearch      bool
	FileSearch     bool
	VectorStoreIDs []string // for file search
}

// requiresEventProtocol reports whether the configured capabilities force
// the Responses API family for the OpenAI brand.
func (c Capabilities) requiresEventProtocol() bool {
	return c.WebSearch || c.FileSearch
}

// Config holds everything needed to construct one adapter.
type Config struct {
	Brand        string
	BaseURL      string
	APIKey       string
	Model        string
	MaxTokens    int
	Capabilities Capabilities
}
