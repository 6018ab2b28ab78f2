// Package tools resolves and executes the tool calls a model requests
// during a turn: resolution against the payload's tool catalogue, argument
// normalization, routing to remote tool servers or direct HTTP tools, and
// per-call failure isolation.
package tools

import (
	"github.com/sahilm/fuzzy"

	"llmgate/model"
)

// Binding is the result of resolving a declared tool name against the
// catalogue. A miss is represented by Found=false rather than an error so
// callers can degrade into an error-bearing tool result instead of aborting
// the turn.
type Binding struct {
	ToolID string
	Schema map[string]any
	Found  bool
}

// Resolve locates a tool by the name the model declared. The catalogue may
// describe tools in either payload shape (wrapper-nested function defs from
// the chat family, flattened defs from the block family); both are tolerated
// here so the caller never needs to know which adapter built the payload.
func Resolve(name string, catalogue []model.ToolDescriptor) Binding {
	for _, d := range catalogue {
		if d.DeclaredName() == name {
			return Binding{
				ToolID: d.ToolID,
				Schema: d.DeclaredSchema(),
				Found:  true,
			}
		}
	}
	return Binding{}
}

// Suggest returns the closest catalogue names to a name that failed to
// resolve, best match first. Used to make not-found tool results actionable
// for the model on the next round.
func Suggest(name string, catalogue []model.ToolDescriptor) []string {
	names := make([]string, 0, len(catalogue))
	for _, d := range catalogue {
		if n := d.DeclaredName(); n != "" {
			names = append(names, n)
		}
	}

	matches := fuzzy.Find(name, names)
	const maxSuggestions = 3
	suggestions := make([]string, 0, maxSuggestions)
	for _, m := range matches {
		suggestions = append(suggestions, m.Str)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	return suggestions
}
