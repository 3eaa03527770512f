package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"launchpad/internal/logger"
	"launchpad/internal/service"
	"launchpad/internal/transport/rest/middleware"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// clients only send pings and close frames
	maxMessageSize = 512
	sendBuffer     = 256
)

// SessionLookup finds a session owned by a founder
type SessionLookup interface {
	Get(sessionID, founderID string) (*service.Session, error)
}

// Handler upgrades session event streams
type Handler struct {
	hub      *Hub
	authSvc  *service.AuthService
	sessions SessionLookup
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewHandler creates a new WebSocket handler. checkOrigin may be nil to
// accept any origin.
func NewHandler(hub *Hub, authSvc *service.AuthService, sessions SessionLookup, checkOrigin func(*http.Request) bool, log logger.Logger) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		hub:      hub,
		authSvc:  authSvc,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		log: log,
	}
}

// requestToken prefers ?token= since browsers cannot set headers on a
// WebSocket handshake, and falls back to the Authorization header.
func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token, _ := middleware.BearerToken(r.Header.Get("Authorization"))
	return token
}

// SessionWS handles GET /v1/ws/sessions/{sessionId}?token=
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	token := requestToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.authSvc.ValidateFounderToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	sess, err := h.sessions.Get(sessionID, claims.FounderID)
	switch {
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, "session belongs to another founder", http.StatusForbidden)
		return
	case err != nil:
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	conn := &Connection{
		SessionID: sessionID,
		FounderID: claims.FounderID,
		Send:      make(chan []byte, sendBuffer),
		Hub:       h.hub,
	}

	// a reconnecting tab re-renders from this before any event arrives
	if data, err := encodeMessage(MsgSessionState, sess.State()); err == nil {
		conn.Send <- data
	} else {
		h.log.Errorw("failed to encode session state", "session_id", sessionID, "error", err)
	}

	registerLive(h.hub, conn, sess)
	go conn.writeLoop(wsConn)
	go conn.readLoop(wsConn, h.log)
}

type liveness interface {
	Closed() bool
}

// registerLive adds conn unless its session closed in the meantime. Close
// marks the session before it queues the disconnect, so either that
// disconnect sees conn or the check below does.
func registerLive(hub *Hub, conn *Connection, sess liveness) {
	hub.Register(conn)
	if sess.Closed() {
		hub.Unregister(conn)
	}
}

func encodeMessage(t MessageType, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Message{Type: t, Payload: raw})
}

// readLoop drains inbound frames until the client goes away. Edits arrive
// over REST, so frames only keep the read deadline fresh.
func (c *Connection) readLoop(wsConn *websocket.Conn, log logger.Logger) {
	defer func() {
		c.Hub.Unregister(c)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := wsConn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnw("websocket read failed", "session_id", c.SessionID, "founder_id", c.FounderID, "error", err)
			}
			return
		}
	}
}

// writeLoop sends queued events and keeps the connection alive with pings.
// A closed Send channel ends the stream with a close frame.
func (c *Connection) writeLoop(wsConn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
