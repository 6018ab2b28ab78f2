package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"llmgate/agent"
	"llmgate/config"
	"llmgate/model"
	"llmgate/provider"
	"llmgate/storage"
)

type chatRequest struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
	Prompt   string `json:"prompt"`
	ThreadID string `json:"thread_id,omitempty"`
	System   string `json:"system,omitempty"`
	Stream   bool   `json:"stream,omitempty"`

	// APIKey makes this a bring-your-own-key request: the caller's key is
	// used upstream and the usage records carry zero cost.
	APIKey string `json:"api_key,omitempty"`

	// ToolServers selects which attached MCP servers this session may use.
	ToolServers []string `json:"tool_servers,omitempty"`

	Attachments []agent.Attachment `json:"attachments,omitempty"`
}

type chatResponse struct {
	Success  bool            `json:"success"`
	ThreadID string          `json:"thread_id"`
	Text     string          `json:"text"`
	Messages []model.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, "malformed request body")
		return
	}
	if req.UserID == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, "user_id and prompt are required")
		return
	}

	providerCfg, ok := s.cfg.Providers[req.Provider]
	if !ok {
		writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, "unknown provider: "+req.Provider)
		return
	}

	apiKey := providerCfg.APIKey
	callerKey := false
	if req.APIKey != "" {
		apiKey = req.APIKey
		callerKey = true
	}

	adapter, err := s.newAdapter(provider.Config{
		Brand:     providerCfg.Brand,
		BaseURL:   providerCfg.BaseURL,
		APIKey:    apiKey,
		Model:     providerCfg.Model,
		MaxTokens: providerCfg.MaxTokens,
		Capabilities: provider.Capabilities{
			WebSearch:      providerCfg.WebSearch,
			FileSearch:     providerCfg.FileSearch,
			VectorStoreIDs: providerCfg.VectorStoreIDs,
		},
	})
	if err != nil {
		// Configuration problems fail fast, before any upstream call.
		writeError(w, http.StatusBadRequest, errorCodeConfig, err.Error())
		return
	}

	session, err := agent.NewBuilder(req.UserID, adapter).
		WithThread(s.store, req.ThreadID).
		WithSystem(s.systemPrompt(req)).
		WithPrompt(req.Prompt).
		WithAttachments(req.Attachments).
		WithTools(s.catalogue(providerCfg.Brand, req.ToolServers), s.executor, s.manager).
		WithPricing(s.cfg.Pricing).
		WithProviderID(req.Provider).
		WithCallerKey(callerKey).
		Build()
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, storage.ErrThreadNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, errorCodeInvalidRequest, err.Error())
		return
	}

	if req.Stream {
		s.streamChat(w, r, session)
		return
	}

	result, err := session.Run(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusBadGateway, errorCodeUpstream, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Success:  true,
		ThreadID: result.ThreadID,
		Text:     result.Text,
		Messages: result.Messages,
	})
}

// streamChat runs the session with the NDJSON client-event stream attached:
// one JSON object per line, flushed as it happens. Terminal errors surface
// as an error event on the stream, not an HTTP status, since headers are
// long gone.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, session *agent.Session) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)

	emit := func(ev agent.ClientEvent) error {
		if err := encoder.Encode(ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if _, err := session.Run(r.Context(), emit); err != nil {
		// The session already emitted its own terminal error event for
		// orchestration failures; this catches emit failures only.
		if config.DebugLog != nil {
			config.DebugLog.Printf("[HTTP] Streaming session ended with error: %v", err)
		}
	}
}

func (s *Server) systemPrompt(req chatRequest) string {
	if req.System != "" {
		return req.System
	}
	return s.cfg.SystemPrompt
}
