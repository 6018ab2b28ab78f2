// Package httpapi exposes the gateway over HTTP: one chat endpoint that
// streams client events as NDJSON (or answers synchronously), plus thread
// retrieval and a health probe. The layer stays thin; all orchestration
// lives in the agent package.
package httpapi

import (
	"net/http"

	"llmgate/config"
	"llmgate/mcp"
	"llmgate/model"
	"llmgate/provider"
	"llmgate/storage"
	"llmgate/tools"
)

// Server wires the gateway's collaborators into HTTP handlers.
type Server struct {
	cfg      *config.Config
	store    *storage.ThreadStore
	manager  *mcp.Manager
	registry tools.StaticRegistry
	executor *tools.Executor

	// newAdapter builds the provider adapter for a request; tests swap in
	// a scripted one.
	newAdapter func(provider.Config) (model.Adapter, error)
}

// NewServer creates the handler set.
func NewServer(cfg *config.Config, store *storage.ThreadStore, manager *mcp.Manager) *Server {
	registry := buildRegistry(cfg)
	return &Server{
		cfg:        cfg,
		store:      store,
		manager:    manager,
		registry:   registry,
		executor:   tools.NewExecutor(registry),
		newAdapter: provider.New,
	}
}

// Router returns the route table.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/threads", s.handleThreadList)
	mux.HandleFunc("GET /v1/threads/{id}", s.handleThreadGet)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func buildRegistry(cfg *config.Config) tools.StaticRegistry {
	registry := tools.StaticRegistry{}
	for _, tc := range cfg.DirectTools {
		registry[tc.Name] = tools.RegisteredTool{
			Endpoint: tools.Endpoint{
				URL:    tc.URL,
				Schema: tc.Schema,
			},
			AllowedUsers: tc.AllowedUsers,
		}
	}
	return registry
}

// catalogue assembles the session's tool catalogue for a brand: MCP server
// tools plus configured direct tools.
func (s *Server) catalogue(brand string, serverIDs []string) []model.ToolDescriptor {
	var defs []provider.ToolDef
	if s.manager != nil {
		defs = s.manager.ToolDefs(serverIDs)
	}
	for _, tc := range s.cfg.DirectTools {
		defs = append(defs, provider.ToolDef{
			ToolID:      tc.Name,
			Name:        tc.Name,
			Description: tc.Description,
			Schema:      tc.Schema,
		})
	}
	return provider.BuildCatalog(brand, defs)
}
