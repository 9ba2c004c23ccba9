package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/services/mailbox"
)

// MailboxHandler manages the IMAP alert mailbox configuration and the
// manual poll trigger.
type MailboxHandler struct {
	client  *mailbox.Client
	service *mailbox.Service
	logger  arbor.ILogger
}

func NewMailboxHandler(client *mailbox.Client, service *mailbox.Service, logger arbor.ILogger) *MailboxHandler {
	return &MailboxHandler{client: client, service: service, logger: logger}
}

// ConfigHandler handles GET and POST /api/mailbox/config.
func (h *MailboxHandler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		cfg, err := h.client.GetConfig(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load mailbox config")
			return
		}
		// Never echo the password back.
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"host":         cfg.Host,
			"port":         cfg.Port,
			"username":     cfg.Username,
			"use_tls":      cfg.UseTLS,
			"has_password": cfg.Password != "",
		})
	case "POST":
		var cfg mailbox.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if cfg.Host == "" || cfg.Username == "" {
			WriteError(w, http.StatusBadRequest, "host and username are required")
			return
		}
		if cfg.Port == 0 {
			cfg.Port = 993
		}
		if err := h.client.SetConfig(r.Context(), &cfg); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to save mailbox config")
			return
		}
		WriteSuccess(w, "mailbox configuration saved")
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// PollHandler handles POST /api/mailbox/poll, running one poll cycle
// outside the schedule.
func (h *MailboxHandler) PollHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	if err := h.service.Poll(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Manual mailbox poll failed")
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteSuccess(w, "mailbox polled")
}
