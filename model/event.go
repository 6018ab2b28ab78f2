package model

// EventKind tags the canonical event union. Adapters decide the variant once
// at the provider boundary; nothing downstream inspects provider-specific
// shapes again.
type EventKind string

const (
	EventTurnStarted   EventKind = "turn_started"
	EventTextDelta     EventKind = "text_delta"
	EventToolCallDelta EventKind = "tool_call_delta"
	EventToolCallDone  EventKind = "tool_call_done"
	EventUsage         EventKind = "usage"
	EventTurnDone      EventKind = "turn_done"
	EventError         EventKind = "error"
)

// Event is one increment of provider output in provider-agnostic form.
// Exactly one payload field is set, matching Kind. Events are ephemeral:
// they exist only for the duration of one adapter invocation.
type Event struct {
	Kind EventKind

	Text      string         // EventTextDelta
	ToolDelta *ToolCallDelta // EventToolCallDelta
	ToolCall  *ToolCall      // EventToolCallDone (confirmed, arguments complete)
	Usage     *TokenUsage    // EventUsage
	Err       error          // EventError
}

// EmitFunc receives canonical events in strict arrival order. Returning an
// error aborts the adapter's stream consumption.
type EmitFunc func(Event) error

// TextEvent, ToolDeltaEvent etc. are small constructors so adapters read as
// a sequence of emissions rather than struct literals.
func TextEvent(text string) Event { return Event{Kind: EventTextDelta, Text: text} }

func ToolDeltaEvent(delta ToolCallDelta) Event {
	return Event{Kind: EventToolCallDelta, ToolDelta: &delta}
}

func ToolDoneEvent(call ToolCall) Event {
	return Event{Kind: EventToolCallDone, ToolCall: &call}
}

func UsageEvent(usage TokenUsage) Event { return Event{Kind: EventUsage, Usage: &usage} }

func ErrorEvent(err error) Event { return Event{Kind: EventError, Err: err} }
