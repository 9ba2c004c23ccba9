package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/services/connectors"
)

// ImportHandler exposes the GitHub document import.
type ImportHandler struct {
	importer *connectors.GitHubImporter
	logger   arbor.ILogger
}

func NewImportHandler(importer *connectors.GitHubImporter, logger arbor.ILogger) *ImportHandler {
	return &ImportHandler{importer: importer, logger: logger}
}

// GitHubImportHandler handles POST /api/import/github.
func (h *ImportHandler) GitHubImportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	if h.importer == nil {
		WriteError(w, http.StatusServiceUnavailable, "github import is not configured")
		return
	}

	var req connectors.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.JobID == 0 || req.Owner == "" || req.Repo == "" {
		WriteError(w, http.StatusBadRequest, "job_id, owner and repo are required")
		return
	}

	summary, err := h.importer.Import(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("repo", req.Owner+"/"+req.Repo).Msg("GitHub import failed")
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}
