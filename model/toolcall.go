package model

// ToolCallDelta is a fragment of a tool call arriving mid-stream. Providers
// may interleave fragments for several concurrent calls, so fragments carry
// the call's stable index within the turn; argument text must be concatenated
// per index, never by simple arrival order across calls.
type ToolCallDelta struct {
	Index             int    // stable position within the turn
	ID                string // provider-assigned call id (may arrive on first fragment only)
	Name              string // tool name (may arrive on first fragment only)
	ArgumentsFragment string
}

// ToolCall is a confirmed tool invocation request from the model. Arguments
// is the raw accumulated JSON text; it is parsed lazily by the executor so a
// malformed payload degrades into an error result instead of a failed turn.
type ToolCall struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the settled outcome of one ToolCall. Every dispatched call
// produces exactly one result, failure included.
type ToolResult struct {
	CallID  string      `json:"call_id"`
	Content string      `json:"content"`
	IsError bool        `json:"is_error,omitempty"`
	Usage   *TokenUsage `json:"usage,omitempty"` // billable usage the tool itself reported
}

// FunctionDef is the wrapper-nested function description used by the
// chat-family payload shape.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolDescriptor is one catalogue entry on the working payload. Chat-family
// adapters build the wrapper shape (Type + Function), the block family builds
// the flattened shape (Name + Schema at top level). The resolver tolerates
// both so callers never need to know which adapter built the payload.
type ToolDescriptor struct {
	// wrapper shape
	Type     string       `json:"type,omitempty"`
	Function *FunctionDef `json:"function,omitempty"`

	// flattened shape
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"input_schema,omitempty"`

	// ToolID is the internal identity: "server__tool" for remote tool-server
	// tools, a registry id for direct HTTP tools.
	ToolID string `json:"-"`
}

// DeclaredName returns the name the model addresses the tool by, whichever
// shape the descriptor carries.
func (d ToolDescriptor) DeclaredName() string {
	if d.Function != nil && d.Function.Name != "" {
		return d.Function.Name
	}
	return d.Name
}

// DeclaredSchema returns the JSON schema, whichever shape carries it.
func (d ToolDescriptor) DeclaredSchema() map[string]any {
	if d.Function != nil && d.Function.Parameters != nil {
		return d.Function.Parameters
	}
	return d.Schema
}

// DeclaredDescription returns the human description, whichever shape
// carries it.
func (d ToolDescriptor) DeclaredDescription() string {
	if d.Function != nil && d.Function.Description != "" {
		return d.Function.Description
	}
	return d.Description
}
