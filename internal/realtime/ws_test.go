package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackBus short-circuits publish back into the dispatcher, standing in
// for the Redis round trip plus the relay.
type loopbackBus struct {
	dispatcher *Dispatcher
}

func (b *loopbackBus) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	documentID := documentIDFromChannel(DefaultChannelPrefix, channel)
	b.dispatcher.HandleBusMessage(ctx, documentID, message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (b *loopbackBus) PSubscribe(context.Context, ...string) *redis.PubSub {
	panic("not used in tests")
}

type wsRig struct {
	srv      *httptest.Server
	registry *Registry
}

// waitForSessions blocks until the document has n registered sessions;
// registration finishes a beat after the dial handshake returns.
func (rig *wsRig) waitForSessions(t *testing.T, documentID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for rig.registry.SessionCount(documentID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("document %s never reached %d sessions", documentID, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startTestServer(t *testing.T) *wsRig {
	t.Helper()
	log := testLogger()
	registry := NewRegistry(log)
	cursors := NewCursorCache()
	bus := &loopbackBus{}
	pub := NewPublisher(bus, "", log)
	dispatcher := NewDispatcher(registry, log,
		NewCursorHandler(registry, cursors, pub, log),
		NewJoinHandler(registry, pub),
		NewLeaveHandler(registry, cursors, pub),
	)
	bus.dispatcher = dispatcher

	identify := func(r *http.Request) Identity {
		user := r.URL.Query().Get("user")
		return Identity{UserID: user, Name: user}
	}
	handler := NewWSHandler(registry, cursors, dispatcher, pub, identify, 0, log)

	router := mux.NewRouter()
	router.Handle("/ws/{documentID}", handler)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &wsRig{srv: srv, registry: registry}
}

func dial(t *testing.T, rig *wsRig, documentID, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(rig.srv.URL, "http") + "/ws/" + documentID + "?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) OutboundEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt OutboundEvent
	require.NoError(t, json.Unmarshal(raw, &evt))
	return evt
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame")
	assert.True(t, strings.Contains(err.Error(), "timeout") || websocket.IsUnexpectedCloseError(err))
}

func TestWebSocketJoinVisibleToPeersOnly(t *testing.T) {
	rig := startTestServer(t)

	alice := dial(t, rig, "doc-1", "alice")
	rig.waitForSessions(t, "doc-1", 1)
	bob := dial(t, rig, "doc-1", "bob")

	evt := readEvent(t, alice)
	assert.Equal(t, EventJoin, evt.Type)
	assert.Equal(t, "bob", evt.UserName)

	// Alice's own join fired before anyone was listening, and Bob's join
	// is never echoed back to Bob.
	expectSilence(t, bob)
}

func TestWebSocketCursorFanOut(t *testing.T) {
	rig := startTestServer(t)

	alice := dial(t, rig, "doc-1", "alice")
	rig.waitForSessions(t, "doc-1", 1)
	bob := dial(t, rig, "doc-1", "bob")

	// Drain Bob's join on Alice's side.
	readEvent(t, alice)

	require.NoError(t, bob.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"cursor","payload":{"x":42.5,"y":17}}`)))

	evt := readEvent(t, alice)
	require.Equal(t, EventCursor, evt.Type)
	assert.Equal(t, "bob", evt.UserName)
	require.NotNil(t, evt.Cursor)
	assert.Equal(t, 42.5, evt.Cursor.X)

	expectSilence(t, bob)
}

func TestWebSocketDocumentsIsolated(t *testing.T) {
	rig := startTestServer(t)

	alice := dial(t, rig, "doc-1", "alice")
	rig.waitForSessions(t, "doc-1", 1)
	eve := dial(t, rig, "doc-2", "eve")
	rig.waitForSessions(t, "doc-2", 1)

	require.NoError(t, eve.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"cursor","payload":{"x":1,"y":1}}`)))

	expectSilence(t, alice)
}

func TestWebSocketLeaveOnDisconnect(t *testing.T) {
	rig := startTestServer(t)

	alice := dial(t, rig, "doc-1", "alice")
	rig.waitForSessions(t, "doc-1", 1)
	bob := dial(t, rig, "doc-1", "bob")
	readEvent(t, alice)

	require.NoError(t, bob.Close())

	evt := readEvent(t, alice)
	assert.Equal(t, EventLeave, evt.Type)
	assert.Equal(t, "bob", evt.UserName)
}

func TestWebSocketMalformedFrameKeepsConnectionOpen(t *testing.T) {
	rig := startTestServer(t)

	alice := dial(t, rig, "doc-1", "alice")
	rig.waitForSessions(t, "doc-1", 1)
	bob := dial(t, rig, "doc-1", "bob")
	readEvent(t, alice)

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte("junk")))
	require.NoError(t, bob.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"cursor","payload":{"x":5,"y":5}}`)))

	evt := readEvent(t, alice)
	assert.Equal(t, EventCursor, evt.Type, "a bad frame must not drop the connection")
}
