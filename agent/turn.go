package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"llmgate/config"
	"llmgate/model"
)

// MaxTurns is the recursion ceiling: the maximum number of tool-driven
// round-trips before the session is forcibly failed.
const MaxTurns = 10

// ErrRecursionLimit distinguishes a model stuck requesting tools from a
// genuine upstream failure.
var ErrRecursionLimit = errors.New("recursion limit exceeded")

// State is one node of the turn state machine.
type State int

const (
	StateBuilding State = iota
	StateDispatching
	StateToolExecuting
	StateTerminal
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "BUILDING"
	case StateDispatching:
		return "DISPATCHING"
	case StateToolExecuting:
		return "TOOL-EXECUTING"
	case StateTerminal:
		return "TERMINAL"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Result is what a finished session hands back to the transport layer.
type Result struct {
	ThreadID string
	Text     string
	Messages []model.Message
}

// Run drives the session through the turn loop until a terminal state. The
// loop is explicit rather than recursive so the ceiling check is a plain
// counter comparison. A nil emitter runs the session synchronously.
func (s *Session) Run(ctx context.Context, emit ClientEmitter) (*Result, error) {
	if emit == nil {
		emit = func(ClientEvent) error { return nil }
	}

	if err := emit(connectionEvent(s.ThreadID)); err != nil {
		return nil, err
	}

	var finalText strings.Builder
	turns := 0
	state := StateBuilding
	var req *model.Request
	var turn *turnCollector

	for {
		switch state {
		case StateBuilding:
			req = s.buildRequest()
			state = StateDispatching

		case StateDispatching:
			turn = newTurnCollector()
			err := s.Adapter.Stream(ctx, req, func(ev model.Event) error {
				turn.consume(ev)
				return s.reemit(emit, ev)
			})
			if err == nil && turn.streamErr != nil {
				err = turn.streamErr
			}
			if err != nil {
				_ = emit(errorEvent(s.ThreadID, err.Error()))
				return nil, s.failed(err)
			}

			s.recordUsage(turn.usage)

			calls := turn.confirmedCalls()
			if len(calls) > 0 {
				// Text may have streamed before the calls were confirmed;
				// the turn is tool-driven regardless.
				state = StateToolExecuting
				continue
			}

			finalText.WriteString(turn.text.String())
			s.History = append(s.History, model.Message{
				Role:      model.RoleAssistant,
				Content:   turn.text.String(),
				Timestamp: time.Now(),
			})

			if err := s.persist(); err != nil {
				_ = emit(errorEvent(s.ThreadID, err.Error()))
				return nil, s.failed(fmt.Errorf("failed to persist thread: %w", err))
			}

			state = StateTerminal

		case StateToolExecuting:
			calls := turn.confirmedCalls()

			assistantMsg := model.Message{
				Role:      model.RoleAssistant,
				ToolCalls: calls,
				Timestamp: time.Now(),
			}
			if s.KeepToolTurnText {
				assistantMsg.Content = turn.text.String()
			}
			s.History = append(s.History, assistantMsg)

			for _, call := range calls {
				_ = emit(updateEvent(s.ThreadID, fmt.Sprintf("Running tool %s", call.Name)))
			}

			if s.Executor == nil {
				err := fmt.Errorf("turn requested %d tool calls but no executor is attached", len(calls))
				_ = emit(errorEvent(s.ThreadID, err.Error()))
				return nil, s.failed(err)
			}

			results := s.Executor.ExecuteAll(ctx, s.Remote, s.UserID, calls, s.Catalogue)
			for _, result := range results {
				s.History = append(s.History, model.ToolResultMessage(result.CallID, result.Content))
				if result.Usage != nil {
					s.recordUsage(*result.Usage)
				}
			}

			turns++
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Agent] Turn %d/%d: executed %d tool calls", turns, MaxTurns, len(calls))
			}
			if turns >= MaxTurns {
				err := fmt.Errorf("%w: %d tool rounds without a final answer", ErrRecursionLimit, turns)
				_ = emit(errorEvent(s.ThreadID, err.Error()))
				return nil, s.failed(err)
			}

			state = StateBuilding

		case StateTerminal:
			result := &Result{
				ThreadID: s.ThreadID,
				Text:     finalText.String(),
				Messages: s.History,
			}
			if err := emit(doneEvent(s.ThreadID, s.History)); err != nil {
				return nil, err
			}
			return result, nil
		}
	}
}

// failed marks the terminal failure. The thread id, when one was already
// established, travels with the error event so the client can resume, and
// usage accumulated before the failure is still written to that thread.
func (s *Session) failed(err error) error {
	if uerr := s.persistUsage(); uerr != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Agent] Could not persist usage after failure (thread=%s): %v", s.ThreadID, uerr)
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Agent] Session failed (thread=%s): %v", s.ThreadID, err)
	}
	return err
}

// reemit translates one canonical event into the outward client stream so
// the client never goes silent mid-turn.
func (s *Session) reemit(emit ClientEmitter, ev model.Event) error {
	switch ev.Kind {
	case model.EventTurnStarted:
		return emit(updateEvent(s.ThreadID, "Generating response"))
	case model.EventTextDelta:
		return emit(textEvent(s.ThreadID, ev.Text))
	case model.EventToolCallDelta:
		if ev.ToolDelta != nil && ev.ToolDelta.Name != "" {
			return emit(updateEvent(s.ThreadID, fmt.Sprintf("Preparing tool call %s", ev.ToolDelta.Name)))
		}
		return nil
	default:
		return nil
	}
}

// turnCollector accumulates one provider turn: text, argument fragments
// keyed by call index, confirmed calls and the final usage payload.
type turnCollector struct {
	text      strings.Builder
	fragments map[int]*callFragments
	confirmed map[int]model.ToolCall
	usage     model.TokenUsage
	streamErr error
}

type callFragments struct {
	id   string
	name string
	args strings.Builder
}

func newTurnCollector() *turnCollector {
	return &turnCollector{
		fragments: make(map[int]*callFragments),
		confirmed: make(map[int]model.ToolCall),
	}
}

// consume folds one canonical event into the collector. Events are
// processed in arrival order; fragments are bucketed by call index so
// interleaved streams concatenate correctly.
func (c *turnCollector) consume(ev model.Event) {
	switch ev.Kind {
	case model.EventTextDelta:
		c.text.WriteString(ev.Text)

	case model.EventToolCallDelta:
		if ev.ToolDelta == nil {
			return
		}
		frag := c.fragments[ev.ToolDelta.Index]
		if frag == nil {
			frag = &callFragments{}
			c.fragments[ev.ToolDelta.Index] = frag
		}
		if ev.ToolDelta.ID != "" {
			frag.id = ev.ToolDelta.ID
		}
		if ev.ToolDelta.Name != "" {
			frag.name = ev.ToolDelta.Name
		}
		frag.args.WriteString(ev.ToolDelta.ArgumentsFragment)

	case model.EventToolCallDone:
		if ev.ToolCall != nil {
			c.confirmed[ev.ToolCall.Index] = *ev.ToolCall
		}

	case model.EventUsage:
		if ev.Usage != nil {
			c.usage = *ev.Usage
		}

	case model.EventError:
		if c.streamErr == nil {
			c.streamErr = ev.Err
		}
	}
}

// confirmedCalls returns the turn's tool calls in index order. Deltas alone
// never count; only calls confirmed at turn end are returned. A confirmed
// call with empty arguments falls back to the accumulated fragments for its
// index.
func (c *turnCollector) confirmedCalls() []model.ToolCall {
	if len(c.confirmed) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(c.confirmed))
	for idx := range c.confirmed {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]model.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		call := c.confirmed[idx]
		if call.Arguments == "" {
			if frag := c.fragments[idx]; frag != nil {
				call.Arguments = frag.args.String()
			}
		}
		calls = append(calls, call)
	}
	return calls
}
