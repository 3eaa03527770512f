package ws

import (
	"encoding/json"
	"sync"

	"launchpad/internal/logger"
	"launchpad/internal/service"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgSessionState     MessageType = "session_state"
	MsgAutosaveStatus   MessageType = service.EventAutosaveStatus
	MsgStepChanged      MessageType = service.EventStepChanged
	MsgValidationResult MessageType = service.EventValidationResult
	MsgSessionClosed    MessageType = service.EventSessionClosed
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans session events out to every connection watching that session.
// A founder may have the form open in several tabs.
type Hub struct {
	conns map[string]map[*Connection]struct{}

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopOnce   sync.Once

	log logger.Logger
}

// Connection represents a WebSocket connection
type Connection struct {
	SessionID string
	FounderID string
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is an encoded event for one session. Disconnect closes
// the session's connections instead; it shares the queue so earlier events
// are delivered first.
type BroadcastMessage struct {
	SessionID  string
	Data       []byte
	Disconnect bool
}

var _ service.Broadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		log:        log,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for _, set := range h.conns {
				for conn := range set {
					close(conn.Send)
				}
			}
			h.conns = make(map[string]map[*Connection]struct{})
			return

		case conn := <-h.register:
			if h.conns[conn.SessionID] == nil {
				h.conns[conn.SessionID] = make(map[*Connection]struct{})
			}
			h.conns[conn.SessionID][conn] = struct{}{}
			h.log.Debugw("websocket connected", "session_id", conn.SessionID, "founder_id", conn.FounderID)

		case conn := <-h.unregister:
			if set, ok := h.conns[conn.SessionID]; ok {
				if _, ok := set[conn]; ok {
					delete(set, conn)
					close(conn.Send)
					if len(set) == 0 {
						delete(h.conns, conn.SessionID)
					}
					h.log.Debugw("websocket disconnected", "session_id", conn.SessionID)
				}
			}

		case msg := <-h.broadcast:
			if msg.Disconnect {
				for conn := range h.conns[msg.SessionID] {
					close(conn.Send)
				}
				delete(h.conns, msg.SessionID)
				continue
			}
			for conn := range h.conns[msg.SessionID] {
				select {
				case conn.Send <- msg.Data:
				default:
					h.log.Warnw("websocket client too slow, event dropped", "session_id", msg.SessionID)
				}
			}
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BroadcastToSession sends an event to every connection of a session
// (implements service.Broadcaster). It never blocks the caller; events are
// dropped when the hub is backed up.
func (h *Hub) BroadcastToSession(sessionID string, msgType string, payload interface{}) {
	data, err := encodeMessage(MessageType(msgType), payload)
	if err != nil {
		h.log.Errorw("failed to encode websocket payload", "type", msgType, "error", err)
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{SessionID: sessionID, Data: data}:
	default:
		h.log.Warnw("websocket broadcast dropped", "session_id", sessionID, "type", msgType)
	}
}

// DisconnectSession closes every connection of a session (implements
// service.Broadcaster). Queued events for the session are sent first.
func (h *Hub) DisconnectSession(sessionID string) {
	select {
	case h.broadcast <- &BroadcastMessage{SessionID: sessionID, Disconnect: true}:
	case <-h.done:
	}
}

// Stop closes all connections and stops the hub
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
