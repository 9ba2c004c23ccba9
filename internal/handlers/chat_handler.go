package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ChatHandler is the HTTP front of the chat intake surface.
type ChatHandler struct {
	chat   interfaces.ChatService
	logger arbor.ILogger
}

func NewChatHandler(chat interfaces.ChatService, logger arbor.ILogger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

// ChatHandler handles POST /api/chat.
func (h *ChatHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	if h.chat == nil {
		WriteError(w, http.StatusServiceUnavailable, "chat is not available (no LLM provider configured)")
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.chat.Handle(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("Chat request failed")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HealthHandler handles GET /api/chat/health.
func (h *ChatHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	if h.chat == nil {
		WriteError(w, http.StatusServiceUnavailable, "chat is not available (no LLM provider configured)")
		return
	}
	if err := h.chat.HealthCheck(r.Context()); err != nil {
		WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	WriteSuccess(w, "chat service healthy")
}
