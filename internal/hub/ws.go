package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin during development.
	CheckOrigin: func(*http.Request) bool { return true },
}

type statusMessage struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// ServeWS upgrades the request, subscribes the connection to the hub and
// runs the read/write pumps. The read pump exists only to detect
// disconnects and answer control frames.
func ServeWS(h *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if logger != nil {
			logger.Warn("websocket upgrade failed", "err", err)
		}
		return
	}
	sub := h.Subscribe()

	if welcome, err := json.Marshal(statusMessage{
		Type:      "status",
		Connected: true,
		Message:   "Connected to room monitor feed",
	}); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, welcome)
	}

	go writePump(conn, sub, logger)
	go readPump(conn, h, sub, logger)
}

func readPump(conn *websocket.Conn, h *Hub, sub *Subscriber, logger *slog.Logger) {
	defer func() {
		h.Unsubscribe(sub)
		_ = conn.Close()
	}()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				if logger != nil {
					logger.Debug("websocket read error", "err", err)
				}
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub *Subscriber, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if logger != nil {
					logger.Debug("websocket write error", "err", err)
				}
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
