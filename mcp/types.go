// Package mcp manages connections to MCP tool servers and exposes their
// tools to sessions. Servers are either remote (SSE or streamable HTTP) or
// local child processes speaking stdio. Tool names are namespaced as
// "serverID__toolName" so calls route back to the owning server while the
// name stays legal as an upstream function name.
package mcp

import (
	"os/exec"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// TransportKind selects how a server is reached.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportSSE            TransportKind = "sse"
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// ServerConfig describes one tool server.
type ServerConfig struct {
	ID        string            `toml:"id"`
	Transport TransportKind     `toml:"transport"`
	URL       string            `toml:"url"`
	Headers   map[string]string `toml:"headers"`

	// Stdio transport only.
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`
}

// ServerConn is a live connection to a tool server.
type ServerConn struct {
	ID      string
	Client  *client.Client
	Tools   []mcptypes.Tool
	Process *exec.Cmd // nil for remote transports
	Running bool
}
