package tools

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for tool lookup. Callers branch on these to phrase the
// error content handed back to the model.
var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrNotAuthorized = errors.New("user is not authorized for tool")
)

// Endpoint describes where and how a direct tool is invoked.
type Endpoint struct {
	URL     string
	Headers map[string]string
	Schema  map[string]any
}

// Lookup is the tool-authorization/ownership collaborator: given an internal
// tool id and the requesting user, it returns the callable endpoint or an
// error. Implementations decide authorization policy.
type Lookup interface {
	Resolve(ctx context.Context, toolID, userID string) (Endpoint, error)
}

// RegisteredTool is one entry in a StaticRegistry. An empty AllowedUsers
// list means the tool is open to every user.
type RegisteredTool struct {
	Endpoint     Endpoint
	AllowedUsers []string
}

// StaticRegistry is a config-backed Lookup: the gateway's direct HTTP tools
// are declared in the config file and loaded once at startup.
type StaticRegistry map[string]RegisteredTool

func (r StaticRegistry) Resolve(_ context.Context, toolID, userID string) (Endpoint, error) {
	entry, ok := r[toolID]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrUnknownTool, toolID)
	}
	if len(entry.AllowedUsers) == 0 {
		return entry.Endpoint, nil
	}
	for _, u := range entry.AllowedUsers {
		if u == userID {
			return entry.Endpoint, nil
		}
	}
	return Endpoint{}, fmt.Errorf("%w: %s", ErrNotAuthorized, toolID)
}
