package service

// Event types pushed to a session's WebSocket clients
const (
	EventAutosaveStatus   = "autosave_status"
	EventStepChanged      = "step_changed"
	EventValidationResult = "validation_result"
	EventSessionClosed    = "session_closed"
)

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToSession(sessionID string, msgType string, payload interface{})
	DisconnectSession(sessionID string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastToSession(string, string, interface{}) {}

func (nopBroadcaster) DisconnectSession(string) {}
