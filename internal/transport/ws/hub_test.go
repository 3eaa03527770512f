package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/service"
)

func newConn(hub *Hub, sessionID string) *Connection {
	conn := &Connection{SessionID: sessionID, FounderID: "f-1", Send: make(chan []byte, 8), Hub: hub}
	hub.Register(conn)
	return conn
}

func receive(t *testing.T, conn *Connection) (Message, bool) {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		if !ok {
			return Message{}, false
		}
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg, true
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for websocket message")
		return Message{}, false
	}
}

func TestHub_BroadcastReachesOnlyThatSession(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Stop()

	tab1 := newConn(hub, "s-1")
	tab2 := newConn(hub, "s-1")
	other := newConn(hub, "s-2")

	hub.BroadcastToSession("s-1", service.EventStepChanged, map[string]int{"to": 1})

	for _, conn := range []*Connection{tab1, tab2} {
		msg, ok := receive(t, conn)
		require.True(t, ok)
		assert.Equal(t, MsgStepChanged, msg.Type)
		assert.JSONEq(t, `{"to":1}`, string(msg.Payload))
	}
	select {
	case <-other.Send:
		t.Fatal("event leaked to another session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_DisconnectDeliversQueuedEventsFirst(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Stop()

	conn := newConn(hub, "s-1")

	hub.BroadcastToSession("s-1", service.EventSessionClosed, map[string]string{"reason": "idle"})
	hub.DisconnectSession("s-1")

	msg, ok := receive(t, conn)
	require.True(t, ok)
	assert.Equal(t, MsgSessionClosed, msg.Type)

	_, ok = receive(t, conn)
	assert.False(t, ok, "send channel should be closed after disconnect")

	// unregistering after a disconnect must not close the channel twice
	hub.Unregister(conn)
}

func TestHub_StopClosesConnections(t *testing.T) {
	hub := NewHub(nil)
	conn := newConn(hub, "s-1")

	hub.Stop()
	hub.Stop()

	_, ok := receive(t, conn)
	assert.False(t, ok)

	late := &Connection{SessionID: "s-2", Send: make(chan []byte, 1)}
	hub.Register(late)
	_, ok = <-late.Send
	assert.False(t, ok)
}

type fakeSession struct{ closed bool }

func (f fakeSession) Closed() bool { return f.closed }

func TestRegisterLive_ClosedSessionDropsConnection(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Stop()

	// the session closed and its disconnect ran before this tab registered
	hub.DisconnectSession("s-1")
	late := &Connection{SessionID: "s-1", Send: make(chan []byte, 1), Hub: hub}
	registerLive(hub, late, fakeSession{closed: true})

	_, ok := receive(t, late)
	assert.False(t, ok, "connection to a closed session should be closed")

	live := &Connection{SessionID: "s-1", Send: make(chan []byte, 1), Hub: hub}
	registerLive(hub, live, fakeSession{})
	hub.BroadcastToSession("s-1", service.EventStepChanged, map[string]int{"to": 2})

	msg, ok := receive(t, live)
	require.True(t, ok)
	assert.JSONEq(t, `{"to":2}`, string(msg.Payload))
}
