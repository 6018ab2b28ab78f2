package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"llmgate/config"
	"llmgate/model"
)

// DefaultCallTimeout is the hard wall-clock ceiling for one tool call. A
// hanging tool times out on its own; it never stalls the session or its
// sibling calls.
const DefaultCallTimeout = 30 * time.Second

// RemoteCaller is a remote tool-protocol client already attached to the
// session. Ownership is checked first: a tool id claimed by an attached
// client is always invoked there, bypassing the registry.
type RemoteCaller interface {
	Owns(toolID string) bool
	CallTool(ctx context.Context, toolID string, args map[string]any) (content string, usage *model.TokenUsage, err error)
}

// Executor dispatches resolved tool calls. It is stateless across sessions;
// the per-session pieces (remote clients, user identity) arrive per call.
type Executor struct {
	Registry    Lookup
	HTTPClient  *http.Client
	CallTimeout time.Duration
}

func NewExecutor(registry Lookup) *Executor {
	return &Executor{
		Registry:    registry,
		HTTPClient:  &http.Client{},
		CallTimeout: DefaultCallTimeout,
	}
}

// ExecuteAll runs every confirmed tool call of a turn concurrently and waits
// for all of them to settle. One result per call, in call order; a failing
// call yields an error-bearing result and never aborts its siblings.
func (e *Executor) ExecuteAll(ctx context.Context, remote RemoteCaller, userID string, calls []model.ToolCall, catalogue []model.ToolDescriptor) []model.ToolResult {
	results := make([]model.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.ToolCall) {
			defer wg.Done()
			results[i] = e.execute(ctx, remote, userID, call, catalogue)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (e *Executor) execute(ctx context.Context, remote RemoteCaller, userID string, call model.ToolCall, catalogue []model.ToolDescriptor) model.ToolResult {
	binding := Resolve(call.Name, catalogue)
	if !binding.Found {
		return errorResult(call, notFoundContent(call.Name, catalogue))
	}

	args := NormalizeArguments(call.Arguments)
	ApplySchemaDefaults(args, binding.Schema)

	timeout := e.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if remote != nil && remote.Owns(binding.ToolID) {
		content, usage, err := remote.CallTool(callCtx, binding.ToolID, args)
		if err != nil {
			return errorResult(call, fmt.Sprintf("tool %q failed: %v", call.Name, err))
		}
		return model.ToolResult{CallID: call.ID, Content: content, Usage: usage}
	}

	if e.Registry == nil {
		return errorResult(call, fmt.Sprintf("tool %q unavailable: no direct tool registry configured", call.Name))
	}

	endpoint, err := e.Registry.Resolve(callCtx, binding.ToolID, userID)
	if err != nil {
		return errorResult(call, fmt.Sprintf("tool %q unavailable: %v", call.Name, err))
	}

	content, usage, err := e.invokeHTTP(callCtx, endpoint, binding.ToolID, userID, args)
	if err != nil {
		return errorResult(call, fmt.Sprintf("tool %q failed: %v", call.Name, err))
	}
	return model.ToolResult{CallID: call.ID, Content: content, Usage: usage}
}

// invokeHTTP posts the call to a direct tool endpoint. The response is either
// a bare payload (used verbatim as content) or an envelope carrying content
// plus the tool's own billable usage.
func (e *Executor) invokeHTTP(ctx context.Context, endpoint Endpoint, toolID, userID string, args map[string]any) (string, *model.TokenUsage, error) {
	body, err := json.Marshal(map[string]any{
		"tool_id":   toolID,
		"user_id":   userID,
		"arguments": args,
	})
	if err != nil {
		return "", nil, fmt.Errorf("encoding tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range endpoint.Headers {
		req.Header.Set(k, v)
	}

	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading tool response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("tool endpoint returned %s: %s", resp.Status, truncate(string(payload), 200))
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[tools] %s returned %d bytes", toolID, len(payload))
	}

	var envelope struct {
		Content json.RawMessage   `json:"content"`
		Usage   *model.TokenUsage `json:"usage"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Content != nil {
		var text string
		if err := json.Unmarshal(envelope.Content, &text); err != nil {
			text = string(envelope.Content)
		}
		return text, envelope.Usage, nil
	}
	return string(payload), nil, nil
}

func notFoundContent(name string, catalogue []model.ToolDescriptor) string {
	content := fmt.Sprintf("tool %q is not available in this conversation", name)
	if suggestions := Suggest(name, catalogue); len(suggestions) > 0 {
		content += "; closest matches: " + strings.Join(suggestions, ", ")
	}
	return content
}

func errorResult(call model.ToolCall, content string) model.ToolResult {
	return model.ToolResult{CallID: call.ID, Content: content, IsError: true}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
