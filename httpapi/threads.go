package httpapi

import (
	"errors"
	"net/http"

	"llmgate/billing"
	"llmgate/model"
	"llmgate/storage"
)

type threadResponse struct {
	ThreadID     string           `json:"thread_id"`
	UserID       string           `json:"user_id"`
	Provider     string           `json:"provider"`
	Model        string           `json:"model"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Messages     []model.Message  `json:"messages"`
	Usage        []billing.Record `json:"usage"`
	TotalCost    float64          `json:"total_cost"`
}

func (s *Server) handleThreadGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	thread, err := s.store.Load(id)
	if errors.Is(err, storage.ErrThreadNotFound) {
		writeError(w, http.StatusNotFound, errorCodeNotFound, "thread not found: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorCodeUpstream, err.Error())
		return
	}

	usage, err := s.store.Usage(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorCodeUpstream, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, threadResponse{
		ThreadID:     thread.ID,
		UserID:       thread.UserID,
		Provider:     thread.ProviderID,
		Model:        thread.Model,
		SystemPrompt: thread.SystemPrompt,
		Messages:     thread.Messages,
		Usage:        usage,
		TotalCost:    billing.Sum(usage),
	})
}

type threadListEntry struct {
	ThreadID     string `json:"thread_id"`
	Model        string `json:"model"`
	MessageCount int    `json:"message_count"`
	UpdatedAt    string `json:"updated_at"`
}

func (s *Server) handleThreadList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, "user_id query parameter is required")
		return
	}

	threads, err := s.store.List(userID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorCodeUpstream, err.Error())
		return
	}

	entries := make([]threadListEntry, 0, len(threads))
	for _, meta := range threads {
		entries = append(entries, threadListEntry{
			ThreadID:     meta.ID,
			Model:        meta.Model,
			MessageCount: meta.MessageCount,
			UpdatedAt:    meta.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": entries})
}
