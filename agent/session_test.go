package agent

import (
	"strings"
	"testing"

	"llmgate/provider/testutil"
)

func TestBuilderAttachments(t *testing.T) {
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o")

	session, err := NewBuilder("alice", adapter).
		WithPrompt("Summarize this file").
		WithAttachments([]Attachment{
			{Name: "notes.txt", Content: "first line\nsecond line"},
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	content := session.History[0].Content
	if !strings.Contains(content, "Summarize this file") {
		t.Error("prompt text missing from user message")
	}
	if !strings.Contains(content, "notes.txt") || !strings.Contains(content, "second line") {
		t.Errorf("attachment not folded into prompt: %q", content)
	}
}

func TestBuilderAttachmentsWithoutPrompt(t *testing.T) {
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o")

	_, err := NewBuilder("alice", adapter).
		WithAttachments([]Attachment{{Name: "a.txt", Content: "x"}}).
		Build()
	if err == nil {
		t.Fatal("expected an error when attaching without a prompt")
	}
}

func TestBuilderRequiresHistory(t *testing.T) {
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o")

	_, err := NewBuilder("alice", adapter).Build()
	if err == nil {
		t.Fatal("expected an error for an empty session")
	}
}
