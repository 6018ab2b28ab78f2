package agent

import (
	"llmgate/model"
)

// Client event types, one JSON object per stream line. Every event carries
// the thread id once one is established so a disconnecting client can
// resume.
const (
	ClientEventConnection = "connection"
	ClientEventUpdates    = "updates"
	ClientEventText       = "text"
	ClientEventDone       = "done"
	ClientEventError      = "error"
)

// StatusUpdate is the payload of an updates event.
type StatusUpdate struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// ClientEvent is one line of the outward event stream. The Text field is a
// plain fragment for text events and a StatusUpdate for updates events.
type ClientEvent struct {
	Type     string          `json:"type"`
	ThreadID string          `json:"thread_id,omitempty"`
	Text     any             `json:"text,omitempty"`
	Messages []model.Message `json:"messages,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// ClientEmitter receives outward client events. A nil emitter is valid and
// drops everything, which is how synchronous (non-streaming) requests run.
type ClientEmitter func(ClientEvent) error

func connectionEvent(threadID string) ClientEvent {
	return ClientEvent{Type: ClientEventConnection, ThreadID: threadID}
}

func updateEvent(threadID, status string) ClientEvent {
	return ClientEvent{
		Type:     ClientEventUpdates,
		ThreadID: threadID,
		Text:     StatusUpdate{Type: "in_progress", Status: status},
	}
}

func textEvent(threadID, fragment string) ClientEvent {
	return ClientEvent{Type: ClientEventText, ThreadID: threadID, Text: fragment}
}

func doneEvent(threadID string, messages []model.Message) ClientEvent {
	return ClientEvent{Type: ClientEventDone, ThreadID: threadID, Messages: messages}
}

func errorEvent(threadID, message string) ClientEvent {
	return ClientEvent{Type: ClientEventError, ThreadID: threadID, Message: message}
}
