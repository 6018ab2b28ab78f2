package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"llmgate/config"
)

const protocolVersion = "2025-06-18"

// Manager owns the set of live tool-server connections. It is safe for
// concurrent use.
type Manager struct {
	servers map[string]*ServerConn
	mu      sync.RWMutex
}

// NewManager creates an empty manager. Servers are attached with Start.
func NewManager() *Manager {
	return &Manager{
		servers: make(map[string]*ServerConn),
	}
}

// Start connects a server, initializes the MCP session and caches its tool
// list. Starting an already-running server is an error.
func (m *Manager) Start(ctx context.Context, cfg ServerConfig) error {
	m.mu.Lock()
	if conn := m.servers[cfg.ID]; conn != nil && conn.Running {
		m.mu.Unlock()
		return fmt.Errorf("server %s already running", cfg.ID)
	}
	m.mu.Unlock()

	var mcpClient *client.Client
	var process *exec.Cmd
	var err error

	switch cfg.Transport {
	case TransportSSE:
		mcpClient, err = newSSEClient(ctx, cfg)
	case TransportStreamableHTTP:
		mcpClient, err = newStreamableHTTPClient(ctx, cfg)
	case TransportStdio, "":
		mcpClient, process, err = newStdioClient(cfg)
	default:
		return fmt.Errorf("server %s: unknown transport %q", cfg.ID, cfg.Transport)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to server %s: %w", cfg.ID, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "llmgate",
				Version: "1.0.0",
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("failed to initialize server %s: %w", cfg.ID, err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools for %s: %w", cfg.ID, err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Server '%s' up (%s), %d tools", cfg.ID, cfg.Transport, len(toolsResult.Tools))
	}

	m.mu.Lock()
	m.servers[cfg.ID] = &ServerConn{
		ID:      cfg.ID,
		Client:  mcpClient,
		Tools:   toolsResult.Tools,
		Process: process,
		Running: true,
	}
	m.mu.Unlock()

	return nil
}

// Stop disconnects one server. The close runs under a short timeout because
// stdio children may ignore the shutdown request.
func (m *Manager) Stop(ctx context.Context, serverID string) error {
	m.mu.Lock()
	conn, exists := m.servers[serverID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("server %s not found", serverID)
	}
	conn.Running = false
	delete(m.servers, serverID)
	m.mu.Unlock()

	return closeConn(ctx, conn)
}

// Shutdown disconnects every server. Errors are collected, not short-circuited,
// so one stuck server cannot keep the rest alive.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	conns := make([]*ServerConn, 0, len(m.servers))
	for _, conn := range m.servers {
		conn.Running = false
		conns = append(conns, conn)
	}
	m.servers = make(map[string]*ServerConn)
	m.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		if err := closeConn(ctx, conn); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func closeConn(ctx context.Context, conn *ServerConn) error {
	if conn.Client == nil {
		return nil
	}

	closeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	closeDone := make(chan error, 1)
	go func() {
		closeDone <- conn.Client.Close()
	}()

	select {
	case err := <-closeDone:
		if err != nil {
			return fmt.Errorf("failed to close server %s: %w", conn.ID, err)
		}
	case <-closeCtx.Done():
		if conn.Process != nil && conn.Process.Process != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Server '%s' did not close in time, killing PID %d", conn.ID, conn.Process.Process.Pid)
			}
			_ = conn.Process.Process.Kill()
		}
	}
	return nil
}

func newSSEClient(ctx context.Context, cfg ServerConfig) (*client.Client, error) {
	var opts []transport.ClientOption
	if len(cfg.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(cfg.Headers))
	}

	mcpClient, err := client.NewSSEMCPClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	// SSE transport must be started before Initialize or ListTools.
	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}
	return mcpClient, nil
}

func newStreamableHTTPClient(ctx context.Context, cfg ServerConfig) (*client.Client, error) {
	var opts []transport.StreamableHTTPCOption
	if len(cfg.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
	}

	mcpClient, err := client.NewStreamableHttpClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start HTTP transport: %w", err)
	}
	return mcpClient, nil
}

func newStdioClient(cfg ServerConfig) (*client.Client, *exec.Cmd, error) {
	// The child inherits the process environment so PATH and friends
	// survive, then the configured vars are appended on top.
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	var capturedCmd *exec.Cmd
	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd
		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		cfg.Command,
		env,
		cfg.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, nil, err
	}

	if capturedCmd != nil && capturedCmd.Process != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Started local server '%s' with PID %d", cfg.ID, capturedCmd.Process.Pid)
	}
	return mcpClient, capturedCmd, nil
}
