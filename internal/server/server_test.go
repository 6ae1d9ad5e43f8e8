package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wapteam1/volatile-chat/clients/go/volatile"
	"github.com/wapteam1/volatile-chat/internal/server"
	"github.com/wapteam1/volatile-chat/internal/store"
)

type relayFixture struct {
	queues *store.MemoryStore
	wsURL  string
	httpTS *httptest.Server
}

func startRelay(t *testing.T) *relayFixture {
	t.Helper()
	queues := store.NewMemoryStore()
	srv := server.New(zerolog.Nop(), queues)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &relayFixture{
		queues: queues,
		wsURL:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		httpTS: ts,
	}
}

func (f *relayFixture) queueLen(t *testing.T, recipient string) int {
	t.Helper()
	queue, err := f.queues.ReadAll(context.Background(), recipient)
	require.NoError(t, err)
	return len(queue)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestEndToEndOfflineDelivery walks the whole lifecycle: Alice registers,
// sends ciphertext to offline Bob, Bob registers, receives the pending
// batch, decrypts, auto-acknowledges, the queue empties and Alice learns
// the message was seen.
func TestEndToEndOfflineDelivery(t *testing.T) {
	relay := startRelay(t)

	aliceConnected := make(chan struct{}, 1)
	aliceSeen := make(chan string, 1)
	alice := volatile.NewSession(relay.wsURL, "alice", "shared-pass", volatile.Events{
		OnConnect: func() { aliceConnected <- struct{}{} },
		OnSeen:    func(_, seenBy string) { aliceSeen <- seenBy },
	})
	alice.Start()
	defer alice.Close()

	select {
	case <-aliceConnected:
	case <-time.After(5 * time.Second):
		t.Fatal("alice never connected")
	}

	// Bob is offline: the message lands in his queue as opaque ciphertext.
	require.NoError(t, alice.Send("bob", "hola"))
	waitFor(t, "bob's queue to hold the ciphertext", func() bool {
		return relay.queueLen(t, "bob") == 1
	})

	queue, err := relay.queues.ReadAll(context.Background(), "bob")
	require.NoError(t, err)
	require.NotContains(t, queue[0].Content, "hola", "relay must never hold plaintext")

	// Bob comes online, gets the pending batch, renders, auto-acks.
	bobMessages := make(chan volatile.Incoming, 1)
	bob := volatile.NewSession(relay.wsURL, "bob", "shared-pass", volatile.Events{
		OnMessage: func(msg volatile.Incoming) { bobMessages <- msg },
	})
	bob.Start()
	defer bob.Close()

	var msg volatile.Incoming
	select {
	case msg = <-bobMessages:
	case <-time.After(5 * time.Second):
		t.Fatal("bob never received the pending message")
	}
	assert.Equal(t, "hola", msg.Text)
	assert.Equal(t, "alice", msg.From)
	assert.True(t, msg.Readable)

	// The render's acknowledgement deletes the message and notifies Alice.
	waitFor(t, "bob's queue to empty", func() bool {
		return relay.queueLen(t, "bob") == 0
	})

	select {
	case seenBy := <-aliceSeen:
		assert.Equal(t, "bob", seenBy)
	case <-time.After(5 * time.Second):
		t.Fatal("alice never received message_seen")
	}
}

// TestEndToEndLivePush covers the connected-recipient path.
func TestEndToEndLivePush(t *testing.T) {
	relay := startRelay(t)

	connected := make(chan struct{}, 2)
	bobMessages := make(chan volatile.Incoming, 1)

	alice := volatile.NewSession(relay.wsURL, "alice", "pw", volatile.Events{
		OnConnect: func() { connected <- struct{}{} },
	})
	bob := volatile.NewSession(relay.wsURL, "bob", "pw", volatile.Events{
		OnConnect: func() { connected <- struct{}{} },
		OnMessage: func(msg volatile.Incoming) { bobMessages <- msg },
	})
	alice.Start()
	defer alice.Close()
	bob.Start()
	defer bob.Close()

	for i := 0; i < 2; i++ {
		select {
		case <-connected:
		case <-time.After(5 * time.Second):
			t.Fatal("sessions never connected")
		}
	}

	require.NoError(t, alice.Send("bob", "ping"))

	select {
	case msg := <-bobMessages:
		assert.Equal(t, "ping", msg.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("bob never received the live push")
	}

	waitFor(t, "queue to be emptied by the auto-ack", func() bool {
		return relay.queueLen(t, "bob") == 0
	})
}

// rawDial opens a plain websocket for protocol-level assertions.
func rawDial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestProtocolErrorsKeepConnectionOpen(t *testing.T) {
	relay := startRelay(t)
	conn := rawDial(t, relay.wsURL)

	// Garbage frame: typed error, no disconnect.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])

	// Unknown type: error advertises the valid client types.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))
	frame = readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["validTypes"], "register")

	// Frame before register: rejected, still no disconnect.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "seen", "messageId": "01X"}))
	frame = readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])

	// The same connection can still register and operate.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "register", "userId": "alice"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "seen_all"}))
	frame = readFrame(t, conn)
	assert.Equal(t, "ack_seen_all", frame["type"])
	assert.Equal(t, float64(0), frame["deletedCount"])
}

func TestSeenAckSemanticsOverWire(t *testing.T) {
	relay := startRelay(t)

	sender := rawDial(t, relay.wsURL)
	require.NoError(t, sender.WriteJSON(map[string]string{"type": "register", "userId": "alice"}))

	recipient := rawDial(t, relay.wsURL)
	require.NoError(t, recipient.WriteJSON(map[string]string{"type": "register", "userId": "bob"}))

	require.NoError(t, sender.WriteJSON(map[string]string{
		"type": "send_message", "to": "bob", "content": "opaque",
	}))

	push := readFrame(t, recipient)
	require.Equal(t, "new_message", push["type"])
	id := push["message"].(map[string]any)["id"].(string)

	require.NoError(t, recipient.WriteJSON(map[string]string{"type": "seen", "messageId": id}))
	ack := readFrame(t, recipient)
	require.Equal(t, "ack_seen", ack["type"])
	assert.Equal(t, true, ack["deleted"])

	// Duplicate acknowledgement is a not-found, not an error.
	require.NoError(t, recipient.WriteJSON(map[string]string{"type": "seen", "messageId": id}))
	ack = readFrame(t, recipient)
	require.Equal(t, "ack_seen", ack["type"])
	assert.Equal(t, false, ack["deleted"])
	assert.Equal(t, "message not found", ack["reason"])

	// The sender got exactly one message_sent and one message_seen.
	sent := readFrame(t, sender)
	require.Equal(t, "message_sent", sent["type"])
	seen := readFrame(t, sender)
	require.Equal(t, "message_seen", seen["type"])
	assert.Equal(t, "bob", seen["seenBy"])
}

func TestHealthEndpoint(t *testing.T) {
	relay := startRelay(t)

	resp, err := http.Get(relay.httpTS.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
}
