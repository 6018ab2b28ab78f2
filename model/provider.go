package model

import "context"

// Request is the working outbound payload for one turn. The orchestrator
// rebuilds it from conversation history before every dispatch; the adapter
// applies its provider-specific shape transform on top. The transform is
// idempotent because it always starts from the generic history, so
// re-applying it turn after turn is safe.
type Request struct {
	Model     string
	Messages  []Message
	System    string
	Tools     []ToolDescriptor
	MaxTokens int
}

// Adapter abstracts one upstream protocol family (chat-turn deltas, typed
// lifecycle events, or content blocks) behind the canonical event sequence.
//
// This interface is defined in the model package (not provider package) to
// avoid import cycles: adapter implementations import model, and consumers
// of the interface never import the provider package.
type Adapter interface {
	// Stream performs one turn against the upstream and emits canonical
	// events in arrival order. It returns only after the upstream stream is
	// fully consumed or fails; dispatch-time rejections are returned as an
	// error without any events emitted.
	Stream(ctx context.Context, req *Request, emit EmitFunc) error

	// Brand identifies the billing brand ("openai", "anthropic", ...).
	Brand() string

	// Model returns the model the adapter is bound to.
	Model() string
}
