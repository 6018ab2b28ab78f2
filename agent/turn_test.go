package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"llmgate/model"
	"llmgate/provider"
	"llmgate/provider/testutil"
	"llmgate/storage"
	"llmgate/tools"
)

// fakeRemote owns every tool under the "srv" namespace and echoes the
// arguments back.
type fakeRemote struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeRemote) Owns(toolID string) bool {
	return strings.HasPrefix(toolID, "srv__")
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRemote) CallTool(ctx context.Context, toolID string, args map[string]any) (string, *model.TokenUsage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return "", nil, errors.New("server exploded")
	}
	return fmt.Sprintf("result of %s", toolID), &model.TokenUsage{InputTokens: 3, OutputTokens: 2}, nil
}

func testCatalogue() []model.ToolDescriptor {
	return provider.BuildCatalog(provider.BrandOpenAI, []provider.ToolDef{
		{
			ToolID:      "srv__get_weather",
			Name:        "srv__get_weather",
			Description: "Get the weather",
			Schema:      map[string]any{"type": "object"},
		},
	})
}

func collectEvents(t *testing.T) (ClientEmitter, *[]ClientEvent) {
	t.Helper()
	var events []ClientEvent
	return func(ev ClientEvent) error {
		events = append(events, ev)
		return nil
	}, &events
}

func countEvents(events []ClientEvent, kind string) int {
	n := 0
	for _, ev := range events {
		if ev.Type == kind {
			n++
		}
	}
	return n
}

func TestRunPlainAnswer(t *testing.T) {
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o", testutil.TextTurn("Hello there!"))
	store, err := storage.Open(filepath.Join(t.TempDir(), "threads.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	session, err := NewBuilder("alice", adapter).
		WithThread(store, "").
		WithPrompt("Hi").
		Build()
	if err != nil {
		t.Fatal(err)
	}

	emit, events := collectEvents(t)
	result, err := session.Run(context.Background(), emit)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Text != "Hello there!" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.ThreadID == "" {
		t.Fatal("expected a persisted thread id")
	}
	if got := countEvents(*events, ClientEventDone); got != 1 {
		t.Errorf("done events = %d, want exactly 1", got)
	}

	// Exactly one persisted thread entry
	threads, err := store.List("alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 {
		t.Fatalf("expected 1 persisted thread, got %d", len(threads))
	}

	// One usage record for the single round-trip
	usage, err := store.Usage(result.ThreadID)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 {
		t.Errorf("usage records = %d, want 1", len(usage))
	}
}

func TestRunToolTurnThenAnswer(t *testing.T) {
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o",
		testutil.ToolCallTurn("call_1", "srv__get_weather", `{"location":"Paris"}`),
		testutil.TextTurn("It is sunny."),
	)
	remote := &fakeRemote{}

	session, err := NewBuilder("alice", adapter).
		WithPrompt("Weather in Paris?").
		WithTools(testCatalogue(), tools.NewExecutor(nil), remote).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	result, err := session.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Text != "It is sunny." {
		t.Errorf("Text = %q", result.Text)
	}
	if remote.callCount() != 1 {
		t.Errorf("remote calls = %d, want 1", remote.callCount())
	}

	// History: user, assistant(tool call), tool result, assistant answer
	if len(session.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(session.History))
	}
	if len(session.History[1].ToolCalls) != 1 {
		t.Error("assistant tool-call message missing")
	}
	if session.History[2].Role != model.RoleTool || session.History[2].ToolCallID != "call_1" {
		t.Errorf("tool result message = %+v", session.History[2])
	}

	// Provider usage twice plus the tool-reported usage
	if len(session.Usage) != 3 {
		t.Errorf("usage records = %d, want 3", len(session.Usage))
	}
}

func TestRunToolResultParity(t *testing.T) {
	// Two confirmed calls; the unknown one must still produce a result.
	turn := testutil.Turn{Events: []model.Event{
		model.ToolDoneEvent(model.ToolCall{ID: "call_1", Index: 0, Name: "srv__get_weather", Arguments: `{}`}),
		model.ToolDoneEvent(model.ToolCall{ID: "call_2", Index: 1, Name: "no_such_tool", Arguments: `{}`}),
	}}
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o", turn, testutil.TextTurn("done"))

	session, err := NewBuilder("alice", adapter).
		WithPrompt("go").
		WithTools(testCatalogue(), tools.NewExecutor(nil), &fakeRemote{}).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := session.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	toolMessages := 0
	for _, msg := range session.History {
		if msg.Role == model.RoleTool {
			toolMessages++
		}
	}
	if toolMessages != 2 {
		t.Errorf("tool result messages = %d, want 2 (one per confirmed call)", toolMessages)
	}
}

func TestRunRecursionCeiling(t *testing.T) {
	// A model that always requests a tool call.
	turns := make([]testutil.Turn, 0, MaxTurns+2)
	for i := 0; i < MaxTurns+2; i++ {
		turns = append(turns, testutil.ToolCallTurn(fmt.Sprintf("call_%d", i), "srv__get_weather", `{}`))
	}
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o", turns...)
	remote := &fakeRemote{}

	session, err := NewBuilder("alice", adapter).
		WithPrompt("loop").
		WithTools(testCatalogue(), tools.NewExecutor(nil), remote).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	emit, events := collectEvents(t)
	_, err = session.Run(context.Background(), emit)
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}
	if remote.callCount() != MaxTurns {
		t.Errorf("tool rounds = %d, want exactly %d", remote.callCount(), MaxTurns)
	}
	if got := countEvents(*events, ClientEventError); got != 1 {
		t.Errorf("error events = %d, want 1", got)
	}
	if got := countEvents(*events, ClientEventDone); got != 0 {
		t.Errorf("done events = %d, want 0 on failure", got)
	}
}

func TestRunFailurePersistsUsageForEstablishedThread(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "threads.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	// Establish the thread with a plain successful turn first.
	first := testutil.NewScriptedAdapter("openai", "gpt-4o", testutil.TextTurn("ok"))
	session, err := NewBuilder("alice", first).
		WithThread(store, "").
		WithPrompt("hi").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	result, err := session.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	// Resume it with a model stuck requesting tools until the ceiling.
	turns := make([]testutil.Turn, 0, MaxTurns+1)
	for i := 0; i < MaxTurns+1; i++ {
		turns = append(turns, testutil.ToolCallTurn(fmt.Sprintf("call_%d", i), "srv__get_weather", `{}`))
	}
	stuck := testutil.NewScriptedAdapter("openai", "gpt-4o", turns...)
	resumed, err := NewBuilder("alice", stuck).
		WithThread(store, result.ThreadID).
		WithPrompt("loop").
		WithTools(testCatalogue(), tools.NewExecutor(nil), &fakeRemote{}).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	_, err = resumed.Run(context.Background(), nil)
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}

	// One record from the first run, then one provider record plus one
	// tool-reported record per round before the ceiling.
	usage, err := store.Usage(result.ThreadID)
	if err != nil {
		t.Fatal(err)
	}
	if want := 1 + 2*MaxTurns; len(usage) != want {
		t.Errorf("persisted usage records = %d, want %d", len(usage), want)
	}
}

func TestRunArgumentOrderStability(t *testing.T) {
	// Fragments for two calls arrive interleaved; each call's fragments
	// must concatenate in index order, not arrival order.
	turn := testutil.Turn{Events: []model.Event{
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 0, ID: "call_a", Name: "srv__get_weather"}),
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 1, ID: "call_b", Name: "srv__get_weather"}),
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 0, ArgumentsFragment: `{"a":`}),
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 1, ArgumentsFragment: `{"b":`}),
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 0, ArgumentsFragment: `1}`}),
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 1, ArgumentsFragment: `2}`}),
		// Confirmations without argument bodies force the fragment path.
		model.ToolDoneEvent(model.ToolCall{ID: "call_a", Index: 0, Name: "srv__get_weather"}),
		model.ToolDoneEvent(model.ToolCall{ID: "call_b", Index: 1, Name: "srv__get_weather"}),
	}}
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o", turn, testutil.TextTurn("ok"))

	session, err := NewBuilder("alice", adapter).
		WithPrompt("go").
		WithTools(testCatalogue(), tools.NewExecutor(nil), &fakeRemote{}).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := session.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	assistant := session.History[1]
	if len(assistant.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(assistant.ToolCalls))
	}
	if got := assistant.ToolCalls[0].Arguments; got != `{"a":1}` {
		t.Errorf("call 0 arguments = %q, want {\"a\":1}", got)
	}
	if got := assistant.ToolCalls[1].Arguments; got != `{"b":2}` {
		t.Errorf("call 1 arguments = %q, want {\"b\":2}", got)
	}
}

func TestRunDeltasAloneAreNotConfirmed(t *testing.T) {
	// A turn with deltas but no confirmation is a plain-text turn.
	turn := testutil.Turn{Events: []model.Event{
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 0, ID: "call_x", Name: "srv__get_weather"}),
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 0, ArgumentsFragment: `{}`}),
		model.TextEvent("Actually, no tool needed."),
	}}
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o", turn)
	remote := &fakeRemote{}

	session, err := NewBuilder("alice", adapter).
		WithPrompt("go").
		WithTools(testCatalogue(), tools.NewExecutor(nil), remote).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	result, err := session.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if remote.callCount() != 0 {
		t.Errorf("remote calls = %d, want 0", remote.callCount())
	}
	if result.Text != "Actually, no tool needed." {
		t.Errorf("Text = %q", result.Text)
	}
}

func TestRunStreamsClientEvents(t *testing.T) {
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o", testutil.TextTurn("Hi there"))

	session, err := NewBuilder("alice", adapter).WithPrompt("hey").Build()
	if err != nil {
		t.Fatal(err)
	}

	emit, events := collectEvents(t)
	if _, err := session.Run(context.Background(), emit); err != nil {
		t.Fatal(err)
	}

	if (*events)[0].Type != ClientEventConnection {
		t.Errorf("first event = %q, want connection", (*events)[0].Type)
	}
	if countEvents(*events, ClientEventText) == 0 {
		t.Error("expected text fragments in the client stream")
	}
	last := (*events)[len(*events)-1]
	if last.Type != ClientEventDone {
		t.Errorf("last event = %q, want done", last.Type)
	}
}

func TestRunResumeExistingThread(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "threads.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	first := testutil.NewScriptedAdapter("openai", "gpt-4o", testutil.TextTurn("First answer"))
	session, err := NewBuilder("alice", first).
		WithThread(store, "").
		WithPrompt("First question").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	result, err := session.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	second := testutil.NewScriptedAdapter("openai", "gpt-4o", testutil.TextTurn("Second answer"))
	resumed, err := NewBuilder("alice", second).
		WithThread(store, result.ThreadID).
		WithPrompt("Follow-up").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	result2, err := resumed.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result2.ThreadID != result.ThreadID {
		t.Errorf("resume created a new thread: %s vs %s", result2.ThreadID, result.ThreadID)
	}
	// first Q, first A, follow-up, second A
	if len(result2.Messages) != 4 {
		t.Errorf("resumed history length = %d, want 4", len(result2.Messages))
	}
}

func TestRunThreadOwnershipEnforced(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "threads.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o", testutil.TextTurn("hi"))
	session, err := NewBuilder("alice", adapter).
		WithThread(store, "").
		WithPrompt("hello").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	result, err := session.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewBuilder("mallory", testutil.NewScriptedAdapter("openai", "gpt-4o")).
		WithThread(store, result.ThreadID).
		WithPrompt("gimme").
		Build()
	if err == nil {
		t.Fatal("expected ownership error when resuming another user's thread")
	}
}

func TestRunCallerKeyZeroCost(t *testing.T) {
	adapter := testutil.NewScriptedAdapter("openai", "gpt-4o", testutil.TextTurn("free"))

	session, err := NewBuilder("alice", adapter).
		WithPrompt("hi").
		WithCallerKey(true).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := session.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(session.Usage) != 1 {
		t.Fatalf("usage records = %d, want 1", len(session.Usage))
	}
	rec := session.Usage[0]
	if rec.Cost != 0 {
		t.Errorf("BYOK cost = %v, want 0", rec.Cost)
	}
	if rec.Input == 0 {
		t.Error("BYOK record should keep the token breakdown")
	}
}
