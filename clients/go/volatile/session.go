// Package volatile provides a client for the volatile-chat relay: an
// ephemeral, end-to-end-encrypted one-to-one messaging protocol. The session
// holds the shared password in memory only, encrypts everything it sends,
// decrypts everything it receives, and acknowledges each rendered message so
// the relay can forget it.
package volatile

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Media types carried inside envelopes.
const (
	MediaText  = "text"
	MediaImage = "image"
	MediaAudio = "audio"
)

// UnreadablePlaceholder is rendered in place of a message that failed to
// decrypt. Decryption failure is downgraded, never propagated.
const UnreadablePlaceholder = "[unreadable message]"

// Reconnect backoff: fixed base, doubling per attempt, capped.
const (
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

// ErrEmptyMessage is returned by Send for empty or whitespace-only input.
var ErrEmptyMessage = errors.New("message is empty")

// ErrSessionClosed is returned when the session has been closed.
var ErrSessionClosed = errors.New("session closed")

// ErrNotConnected is returned when no live channel is available.
var ErrNotConnected = errors.New("not connected")

// Incoming is a received message after decryption (or placeholder
// substitution). Text carries the plaintext for text messages and the
// placeholder for unreadable ones; Data carries the decoded raw bytes for
// media messages.
type Incoming struct {
	ID        string
	From      string
	Text      string
	Data      []byte
	MediaType string
	Timestamp int64
	Readable  bool
}

// Events are the session's render callbacks. All are optional and are
// invoked from the session's read goroutine.
type Events struct {
	// OnMessage renders one incoming message. By the time it is called the
	// seen acknowledgement is already on its way: rendering is the deletion
	// trigger, with no separate confirmation step.
	OnMessage func(msg Incoming)

	// OnLocalEcho renders the caller's own plaintext immediately after an
	// optimistic send, before any server acknowledgement.
	OnLocalEcho func(text string)

	// OnSent fires when the relay accepts a message for delivery.
	OnSent func(messageID string)

	// OnSeen fires when a recipient read one of the caller's messages.
	OnSeen func(messageID, seenBy string)

	// OnAllSeen fires when a recipient bulk-read count of the caller's
	// messages.
	OnAllSeen func(seenBy string, count int)

	// OnConnect fires after each successful register, including reconnects.
	OnConnect func()

	// OnError fires for protocol error frames from the relay.
	OnError func(message string)
}

// wireConn is the subset of *websocket.Conn the session uses, factored out
// so tests can run a session against an in-process pipe.
type wireConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens one channel to the relay.
type Dialer func(url string) (wireConn, error)

func gorillaDialer(url string) (wireConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Session is one client session: identity, shared password, and a live (or
// reconnecting) channel. Credentials live in memory only, for the session's
// lifetime.
type Session struct {
	url    string
	events Events
	dial   Dialer

	mu        sync.Mutex
	identity  string
	password  string
	conn      wireConn
	attempts  int
	reconnect *time.Timer
	closed    bool

	// writeMu serializes writes to the connection. The websocket allows at
	// most one concurrent writer, and both the caller (Send, SeenAll) and
	// the read goroutine (the seen acknowledgement) write.
	writeMu sync.Mutex
}

// Option customizes a session.
type Option func(*Session)

// WithDialer replaces the websocket dialer (used by tests).
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// NewSession creates a session for identity speaking the given shared
// password. Call Start to open the channel.
func NewSession(url, identity, password string, events Events, opts ...Option) *Session {
	s := &Session{
		url:      url,
		identity: identity,
		password: password,
		events:   events,
		dial:     gorillaDialer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the channel. Dial failures are not fatal: the session keeps
// reconnecting with exponential backoff until Close is called.
func (s *Session) Start() {
	s.connect()
}

// connect dials, registers, and hands the connection to the read loop.
func (s *Session) connect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	url, identity := s.url, s.identity
	s.mu.Unlock()

	conn, err := s.dial(url)
	if err != nil {
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if s.closed {
		// Close raced the dial; the cleanup contract is that a completed
		// in-flight attempt is shut immediately.
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.attempts = 0
	s.mu.Unlock()

	s.writeMu.Lock()
	err = conn.WriteJSON(map[string]string{
		"type":   "register",
		"userId": identity,
	})
	s.writeMu.Unlock()
	if err != nil {
		conn.Close()
		s.scheduleReconnect()
		return
	}

	if s.events.OnConnect != nil {
		s.events.OnConnect()
	}

	go s.readLoop(conn)
}

// readLoop consumes frames until the channel dies, then schedules a
// reconnect unless the session was closed.
func (s *Session) readLoop(conn wireConn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleFrame(raw)
	}
	conn.Close()

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	closed := s.closed
	s.mu.Unlock()

	if !closed {
		s.scheduleReconnect()
	}
}

// backoffDelay returns the delay before the given 0-based attempt.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase << uint(attempt)
	if delay <= 0 || delay > backoffMax {
		return backoffMax
	}
	return delay
}

// scheduleReconnect arms the single reconnect timer. Scheduling is
// idempotent: at most one timer is pending at a time, and the per-attempt
// delay doubles up to the cap until a connect succeeds.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.reconnect != nil {
		return
	}

	delay := backoffDelay(s.attempts)
	s.attempts++

	s.reconnect = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.reconnect = nil
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.connect()
		}
	})
}

// Send encrypts text with the held password and transmits it to the peer
// identity. The plaintext is echoed locally right away, not gated on the
// server acknowledgement.
func (s *Session) Send(to, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	password := s.password
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	envelope, err := Encrypt(text, password)
	if err != nil {
		return err
	}

	if err := s.writeSend(to, envelope, MediaText); err != nil {
		return err
	}

	if s.events.OnLocalEcho != nil {
		s.events.OnLocalEcho(text)
	}
	return nil
}

// SendMedia encrypts a raw media payload (capped at 5 MiB before encoding)
// and transmits it with the given media type.
func (s *Session) SendMedia(to string, raw []byte, mediaType string) error {
	if mediaType != MediaImage && mediaType != MediaAudio {
		return &CryptoError{Message: "unsupported media type"}
	}

	s.mu.Lock()
	password := s.password
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	envelope, err := EncryptMedia(raw, password)
	if err != nil {
		return err
	}
	return s.writeSend(to, envelope, mediaType)
}

func (s *Session) writeSend(to, envelope, mediaType string) error {
	return s.writeJSON(map[string]string{
		"type":      "send_message",
		"to":        to,
		"content":   envelope,
		"mediaType": mediaType,
	})
}

func (s *Session) writeJSON(v any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// wireMessage mirrors the relay's message object.
type wireMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Content   string `json:"content"`
	MediaType string `json:"mediaType"`
	Timestamp int64  `json:"timestamp"`
}

// handleFrame dispatches one server frame.
func (s *Session) handleFrame(raw []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return
	}

	switch head.Type {
	case "new_message":
		var f struct {
			Message wireMessage `json:"message"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			return
		}
		s.receive(f.Message)

	case "pending_messages":
		var f struct {
			Messages []wireMessage `json:"messages"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			return
		}
		for _, msg := range f.Messages {
			s.receive(msg)
		}

	case "message_sent":
		if s.events.OnSent != nil {
			var f struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &f); err != nil {
				return
			}
			s.events.OnSent(f.ID)
		}

	case "message_seen":
		if s.events.OnSeen != nil {
			var f struct {
				MessageID string `json:"messageId"`
				SeenBy    string `json:"seenBy"`
			}
			if err := json.Unmarshal(raw, &f); err != nil {
				return
			}
			s.events.OnSeen(f.MessageID, f.SeenBy)
		}

	case "all_messages_seen":
		if s.events.OnAllSeen != nil {
			var f struct {
				SeenBy string `json:"seenBy"`
				Count  int    `json:"count"`
			}
			if err := json.Unmarshal(raw, &f); err != nil {
				return
			}
			s.events.OnAllSeen(f.SeenBy, f.Count)
		}

	case "error":
		if s.events.OnError != nil {
			var f struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(raw, &f); err != nil {
				return
			}
			s.events.OnError(f.Error)
		}
	}
	// ack_seen and ack_seen_all carry nothing the client acts on.
}

// receive decrypts one message addressed to this session, renders it, and
// immediately acknowledges it as seen. The acknowledgement is the deletion
// trigger; a message that failed to decrypt is still acknowledged, rendered
// as a fixed placeholder.
func (s *Session) receive(msg wireMessage) {
	s.mu.Lock()
	password := s.password
	identity := s.identity
	s.mu.Unlock()

	if msg.To != identity {
		return
	}

	text := UnreadablePlaceholder
	var data []byte
	readable := false
	if plaintext, err := Decrypt(msg.Content, password); err == nil {
		if msg.MediaType == MediaText {
			text = plaintext
			readable = true
		} else if raw, err := base64.StdEncoding.DecodeString(plaintext); err == nil {
			text = ""
			data = raw
			readable = true
		}
	}

	if s.events.OnMessage != nil {
		s.events.OnMessage(Incoming{
			ID:        msg.ID,
			From:      msg.From,
			Text:      text,
			Data:      data,
			MediaType: msg.MediaType,
			Timestamp: msg.Timestamp,
			Readable:  readable,
		})
	}

	_ = s.writeJSON(map[string]string{
		"type":      "seen",
		"messageId": msg.ID,
	})
}

// SeenAll asks the relay to drain this identity's queue in one bulk
// acknowledgement.
func (s *Session) SeenAll() error {
	return s.writeJSON(map[string]string{"type": "seen_all"})
}

// Close ends the session: the channel is closed, the pending reconnect timer
// (if any) is cancelled, and identity and password are dropped from memory.
// An in-flight dial may still complete; connect shuts it immediately.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	s.identity = ""
	s.password = ""
}
