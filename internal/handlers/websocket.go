package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/services/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local deployment, any origin.
	},
}

type wsClient struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

func (c *wsClient) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// WebSocketHandler pushes presentation events to connected browsers.
// Each client declares its user on connect and only sees that user's
// jobs. A shared rate limiter caps the overall push frequency.
type WebSocketHandler struct {
	events  interfaces.EventService
	logger  arbor.ILogger
	mu      sync.RWMutex
	clients map[*wsClient]bool
	limiter *rate.Limiter
	started sync.Once
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		events:  eventService,
		logger:  logger,
		clients: make(map[*wsClient]bool),
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 20),
	}
}

// HandleWebSocket handles GET /ws?user_id={id}.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.started.Do(func() {
		if err := h.events.Subscribe(interfaces.EventPresentation, h.onEvent); err != nil {
			h.logger.Error().Err(err).Msg("WebSocket event subscription failed")
		}
	})

	client := &wsClient{conn: conn, userID: userID}
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Str("user_id", userID).Int("clients", count).Msg("WebSocket client connected")

	// Read loop exists only to notice the close.
	go func() {
		defer h.drop(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *WebSocketHandler) onEvent(_ context.Context, event interfaces.Event) error {
	ue, ok := event.Payload.(*events.UserEvent)
	if !ok {
		return nil
	}
	if !h.limiter.Allow() {
		return nil
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		if c.userID == ue.UserID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(ue.Event); err != nil {
			h.logger.Debug().Err(err).Str("user_id", c.userID).Msg("WebSocket write failed, dropping client")
			h.drop(c)
		}
	}
	return nil
}

func (h *WebSocketHandler) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
	h.mu.Unlock()
}

// CloseAll disconnects every client, used on shutdown.
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
}
