package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/services/events"
)

const sseHeartbeatInterval = 25 * time.Second

// EventsHandler streams presentation events over SSE, one connection per
// user. Delivery is lossy: a slow consumer drops events rather than
// blocking the bus.
type EventsHandler struct {
	events interfaces.EventService
	logger arbor.ILogger
}

func NewEventsHandler(eventService interfaces.EventService, logger arbor.ILogger) *EventsHandler {
	return &EventsHandler{events: eventService, logger: logger}
}

// EventsHandler handles GET /api/events?user_id={id}.
func (h *EventsHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Lift the server write deadline; this response stays open for the
	// life of the subscription.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug().Err(err).Msg("Could not clear SSE write deadline")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan *events.UserEvent, 64)
	handler := func(_ context.Context, event interfaces.Event) error {
		ue, ok := event.Payload.(*events.UserEvent)
		if !ok || ue.UserID != userID {
			return nil
		}
		select {
		case ch <- ue:
		default:
			// Slow consumer, drop.
		}
		return nil
	}
	if err := h.events.Subscribe(interfaces.EventPresentation, handler); err != nil {
		WriteError(w, http.StatusInternalServerError, "subscription failed")
		return
	}
	defer func() {
		if err := h.events.Unsubscribe(interfaces.EventPresentation, handler); err != nil {
			h.logger.Warn().Err(err).Msg("SSE unsubscribe failed")
		}
	}()

	h.logger.Debug().Str("user_id", userID).Msg("SSE stream opened")
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug().Str("user_id", userID).Msg("SSE stream closed")
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ue := <-ch:
			data, err := json.Marshal(ue.Event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ue.Event.Phase, data)
			flusher.Flush()
		}
	}
}
