// Package testutil provides scripted adapters and fixtures for exercising
// the orchestration loop without a live upstream.
package testutil

import (
	"context"

	"llmgate/model"
)

// Turn is one scripted model turn: the events an adapter would emit between
// turn_started and turn_done, in order.
type Turn struct {
	Events []model.Event
}

// ScriptedAdapter implements model.Adapter by replaying pre-written turns.
// Each Stream call consumes the next turn; calling past the script's end
// replays an empty turn. The lifecycle events (turn_started, usage,
// turn_done) are added automatically unless the turn already contains them.
type ScriptedAdapter struct {
	BrandName string
	ModelName string
	Turns     []Turn

	// Requests records every request Stream received, for assertions.
	Requests []*model.Request

	cursor int
}

// NewScriptedAdapter creates an adapter that replays turns in order.
func NewScriptedAdapter(brand, modelName string, turns ...Turn) *ScriptedAdapter {
	return &ScriptedAdapter{
		BrandName: brand,
		ModelName: modelName,
		Turns:     turns,
	}
}

func (a *ScriptedAdapter) Brand() string { return a.BrandName }
func (a *ScriptedAdapter) Model() string { return a.ModelName }

// Stream implements model.Adapter.
func (a *ScriptedAdapter) Stream(ctx context.Context, req *model.Request, emit model.EmitFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.Requests = append(a.Requests, req)

	var turn Turn
	if a.cursor < len(a.Turns) {
		turn = a.Turns[a.cursor]
	}
	a.cursor++

	if err := emit(model.Event{Kind: model.EventTurnStarted}); err != nil {
		return err
	}
	sawUsage := false
	for _, ev := range turn.Events {
		if ev.Kind == model.EventUsage {
			sawUsage = true
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
	if !sawUsage {
		if err := emit(model.UsageEvent(model.TokenUsage{InputTokens: 10, OutputTokens: 5})); err != nil {
			return err
		}
	}
	return emit(model.Event{Kind: model.EventTurnDone})
}

// TextTurn builds a turn that streams content as two text deltas.
func TextTurn(content string) Turn {
	half := len(content) / 2
	return Turn{Events: []model.Event{
		model.TextEvent(content[:half]),
		model.TextEvent(content[half:]),
	}}
}

// ToolCallTurn builds a turn that streams one tool call as fragmented deltas
// followed by its confirmation.
func ToolCallTurn(id, name, arguments string) Turn {
	half := len(arguments) / 2
	return Turn{Events: []model.Event{
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 0, ID: id, Name: name}),
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 0, ArgumentsFragment: arguments[:half]}),
		model.ToolDeltaEvent(model.ToolCallDelta{Index: 0, ArgumentsFragment: arguments[half:]}),
		model.ToolDoneEvent(model.ToolCall{ID: id, Index: 0, Name: name, Arguments: arguments}),
	}}
}
