package model

import "time"

// Role constants for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents one entry in a session's conversation history.
// History is append-only within a session: turns add assistant answers,
// assistant tool requests and tool results, never rewrite earlier entries.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // set on assistant messages that requested tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool results, correlates to the originating call
	Timestamp  time.Time  `json:"timestamp,omitempty"`
}

// ToolResultMessage builds the normalized tool-result entry appended to
// history after a tool call settles. Failures are encoded as content so the
// next outbound payload is always well-formed.
func ToolResultMessage(callID, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		Timestamp:  time.Now(),
	}
}
