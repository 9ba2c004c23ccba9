package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// APIHandler serves the system endpoints: version, health and the JSON
// 404 for unmatched API paths.
type APIHandler struct {
	chat   interfaces.ChatService
	logger arbor.ILogger
}

func NewAPIHandler(chat interfaces.ChatService, logger arbor.ILogger) *APIHandler {
	return &APIHandler{chat: chat, logger: logger}
}

// VersionHandler returns build information.
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler reports liveness plus downstream LLM reachability.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := map[string]string{"status": "ok", "llm": "ok"}
	if h.chat == nil {
		status["llm"] = "unavailable"
	} else if err := h.chat.HealthCheck(r.Context()); err != nil {
		status["llm"] = err.Error()
	}
	WriteJSON(w, http.StatusOK, status)
}

// NotFoundHandler answers unmatched /api/ paths with JSON.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
