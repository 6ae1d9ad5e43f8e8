// Package protocol defines the JSON wire frames exchanged between clients and
// the relay. Frames are a closed set: decoding yields one of the concrete
// frame types below, so dispatch over them is exhaustive and a new frame kind
// cannot be added without the compiler noticing every switch it touches.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wapteam1/volatile-chat/internal/models"
)

// Client-to-server frame types.
const (
	TypeRegister    = "register"
	TypeSendMessage = "send_message"
	TypeSeen        = "seen"
	TypeSeenAll     = "seen_all"
)

// Server-to-client frame types.
const (
	TypePendingMessages = "pending_messages"
	TypeNewMessage      = "new_message"
	TypeMessageSent     = "message_sent"
	TypeMessageSeen     = "message_seen"
	TypeAllMessagesSeen = "all_messages_seen"
	TypeAckSeen         = "ack_seen"
	TypeAckSeenAll      = "ack_seen_all"
	TypeError           = "error"
)

// ValidClientTypes lists every frame type a client may send, in the order
// they are advertised on unknown-type error frames.
var ValidClientTypes = []string{TypeRegister, TypeSendMessage, TypeSeen, TypeSeenAll}

// ErrMalformed indicates a frame that could not be parsed as a JSON object
// with a string "type" field.
var ErrMalformed = errors.New("malformed frame")

// UnknownTypeError indicates a structurally valid frame whose type is not in
// the client frame set.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown frame type %q", e.Type)
}

// MissingFieldError indicates a known frame missing a required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return e.Field + " is required"
}

// ClientFrame is the closed union of frames a client may send.
type ClientFrame interface {
	clientFrame()
	validate() error
}

// Register binds a self-asserted identity to the sending connection.
type Register struct {
	UserID string `json:"userId"`
}

// SendMessage carries one opaque ciphertext envelope to a recipient.
type SendMessage struct {
	To        string           `json:"to"`
	Content   string           `json:"content"`
	MediaType models.MediaType `json:"mediaType,omitempty"`
}

// Seen acknowledges a single message and triggers its deletion.
type Seen struct {
	MessageID string `json:"messageId"`
}

// SeenAll acknowledges and deletes every queued message for the caller.
type SeenAll struct{}

func (Register) clientFrame()    {}
func (SendMessage) clientFrame() {}
func (Seen) clientFrame()        {}
func (SeenAll) clientFrame()     {}

func (f Register) validate() error {
	if f.UserID == "" {
		return &MissingFieldError{Field: "userId"}
	}
	return nil
}

func (f SendMessage) validate() error {
	if f.To == "" {
		return &MissingFieldError{Field: "to"}
	}
	if f.Content == "" {
		return &MissingFieldError{Field: "content"}
	}
	return nil
}

func (f Seen) validate() error {
	if f.MessageID == "" {
		return &MissingFieldError{Field: "messageId"}
	}
	return nil
}

func (SeenAll) validate() error { return nil }

// Decode parses one client frame. It returns ErrMalformed for unparseable
// input, *UnknownTypeError for types outside the client set, and
// *MissingFieldError when a required field is absent.
func Decode(data []byte) (ClientFrame, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, ErrMalformed
	}
	if head.Type == "" {
		return nil, ErrMalformed
	}

	var frame ClientFrame
	switch head.Type {
	case TypeRegister:
		var f Register
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, ErrMalformed
		}
		frame = f
	case TypeSendMessage:
		var f SendMessage
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, ErrMalformed
		}
		frame = f
	case TypeSeen:
		var f Seen
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, ErrMalformed
		}
		frame = f
	case TypeSeenAll:
		frame = SeenAll{}
	default:
		return nil, &UnknownTypeError{Type: head.Type}
	}

	if err := frame.validate(); err != nil {
		return nil, err
	}
	return frame, nil
}

// ServerFrame is the closed union of frames the relay may push to a client.
type ServerFrame interface {
	serverFrame()
}

// PendingMessages delivers the entire queued backlog once, right after a
// successful register, and only when non-empty.
type PendingMessages struct {
	Type     string           `json:"type"`
	Messages []models.Message `json:"messages"`
	Count    int              `json:"count"`
}

// NewMessage is the live push of a single message to a connected recipient.
type NewMessage struct {
	Type    string         `json:"type"`
	Message models.Message `json:"message"`
}

// MessageSent acknowledges a send as accepted for delivery (not delivered).
type MessageSent struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	To        string `json:"to"`
	Timestamp int64  `json:"timestamp"`
}

// MessageSeen notifies the original sender that one message was read and
// deleted.
type MessageSeen struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	SeenBy    string `json:"seenBy"`
	Timestamp int64  `json:"timestamp"`
}

// AllMessagesSeen notifies a sender that count of their messages were read
// and deleted in one bulk acknowledgement.
type AllMessagesSeen struct {
	Type      string `json:"type"`
	SeenBy    string `json:"seenBy"`
	Count     int    `json:"count"`
	Timestamp int64  `json:"timestamp"`
}

// AckSeen answers a seen frame. Deleted is false when the id was already
// gone, which is an expected race rather than an error.
type AckSeen struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	Deleted   bool   `json:"deleted"`
	Reason    string `json:"reason,omitempty"`
}

// AckSeenAll answers a seen_all frame with the number of deleted messages.
type AckSeenAll struct {
	Type         string `json:"type"`
	DeletedCount int    `json:"deletedCount"`
}

// ErrorFrame reports a protocol error without closing the connection.
type ErrorFrame struct {
	Type       string   `json:"type"`
	Error      string   `json:"error"`
	ValidTypes []string `json:"validTypes,omitempty"`
}

func (PendingMessages) serverFrame() {}
func (NewMessage) serverFrame()      {}
func (MessageSent) serverFrame()     {}
func (MessageSeen) serverFrame()     {}
func (AllMessagesSeen) serverFrame() {}
func (AckSeen) serverFrame()         {}
func (AckSeenAll) serverFrame()      {}
func (ErrorFrame) serverFrame()      {}

// NewPendingMessages builds a pending_messages frame.
func NewPendingMessages(msgs []models.Message) PendingMessages {
	return PendingMessages{Type: TypePendingMessages, Messages: msgs, Count: len(msgs)}
}

// NewNewMessage builds a new_message live push frame.
func NewNewMessage(msg models.Message) NewMessage {
	return NewMessage{Type: TypeNewMessage, Message: msg}
}

// NewMessageSent builds a message_sent acknowledgement.
func NewMessageSent(id, to string, ts int64) MessageSent {
	return MessageSent{Type: TypeMessageSent, ID: id, To: to, Timestamp: ts}
}

// NewMessageSeen builds a message_seen sender notification.
func NewMessageSeen(messageID, seenBy string, ts int64) MessageSeen {
	return MessageSeen{Type: TypeMessageSeen, MessageID: messageID, SeenBy: seenBy, Timestamp: ts}
}

// NewAllMessagesSeen builds an all_messages_seen sender notification.
func NewAllMessagesSeen(seenBy string, count int, ts int64) AllMessagesSeen {
	return AllMessagesSeen{Type: TypeAllMessagesSeen, SeenBy: seenBy, Count: count, Timestamp: ts}
}

// NewAckSeen builds an ack_seen acknowledgement.
func NewAckSeen(messageID string, deleted bool, reason string) AckSeen {
	return AckSeen{Type: TypeAckSeen, MessageID: messageID, Deleted: deleted, Reason: reason}
}

// NewAckSeenAll builds an ack_seen_all acknowledgement.
func NewAckSeenAll(deleted int) AckSeenAll {
	return AckSeenAll{Type: TypeAckSeenAll, DeletedCount: deleted}
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(msg string, validTypes []string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Error: msg, ValidTypes: validTypes}
}
