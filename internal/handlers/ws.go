package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cartsync/cartsync-backend/internal/commands"
	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type WSHandler struct {
	log      *logger.Logger
	hub      *realtime.Hub
	router   *commands.Router
	upgrader websocket.Upgrader
}

func NewWSHandler(log *logger.Logger, hub *realtime.Hub, router *commands.Router) *WSHandler {
	return &WSHandler{
		log:    log.With("handler", "WSHandler"),
		hub:    hub,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Single trust domain; cross-origin browsers are allowed.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the connection and owns it until the client goes away. One
// session per connection; all frames to the client flow through the
// session's outbound channel so the socket has a single writer.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err, "remote", c.Request.RemoteAddr)
		return
	}

	sess := h.hub.NewSession()
	h.log.Debug("Session connected", "session_id", sess.ID, "remote", c.Request.RemoteAddr)

	go h.writePump(conn, sess)
	h.readPump(conn, sess)
}

func (h *WSHandler) readPump(conn *websocket.Conn, sess *realtime.Session) {
	defer func() {
		h.hub.CloseSession(sess)
		conn.Close()
		h.log.Debug("Session disconnected", "session_id", sess.ID)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Unexpected close", "session_id", sess.ID, "error", err)
			}
			return
		}

		resp, send := h.router.Dispatch(sess, raw)
		if !send {
			continue
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			h.log.Error("Failed to marshal response", "session_id", sess.ID, "error", err)
			continue
		}
		if !sess.Send(payload) {
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, sess *realtime.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.CloseSession(sess)
		conn.Close()
	}()

	for {
		select {
		case <-sess.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-sess.Outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.log.Debug("Write failed, dropping session", "session_id", sess.ID, "error", err)
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
