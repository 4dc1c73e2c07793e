package bus

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

// wsFrame is the JSON message sent to push-channel clients.
type wsFrame struct {
	Event     string         `json:"event"`
	ScopeID   string         `json:"scopeId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// WebsocketHandler upgrades HTTP connections and relays hub events as
// named JSON messages.
type WebsocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebsocketHandler creates a WebsocketHandler. allowedOrigins guards
// the upgrade handshake; an empty list allows same-origin only.
func NewWebsocketHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *WebsocketHandler {
	if logger == nil {
		logger = slog.Default()
	}

	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &WebsocketHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// ServeHTTP handles GET /ws?userId=... by subscribing the connection to
// the hub and relaying events until either side closes.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	userID := r.URL.Query().Get("userId")
	sub := h.hub.Subscribe(userID)

	h.logger.Debug("push channel connected", "subscriber", sub.ID(), "user_id", userID)

	go h.readLoop(conn, sub)
	h.writeLoop(conn, sub)
}

// readLoop drains client frames (none are expected) and unsubscribes on
// disconnect.
func (h *WebsocketHandler) readLoop(conn *websocket.Conn, sub *Subscriber) {
	defer h.hub.Unsubscribe(sub)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebsocketHandler) writeLoop(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
				return
			}

			frame := wsFrame{
				Event:     string(event.Channel()),
				ScopeID:   event.ScopeID(),
				Timestamp: event.Timestamp(),
				Data:      event.Payload(),
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}
		}
	}
}
