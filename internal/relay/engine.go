// Package relay implements the server-side protocol state machine. The
// engine owns no transport and no global state: the connection registry and
// the queue store are injected, and each connection hands the engine its
// frames in arrival order together with a per-connection Session.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/wapteam1/volatile-chat/internal/metrics"
	"github.com/wapteam1/volatile-chat/internal/models"
	"github.com/wapteam1/volatile-chat/internal/protocol"
	"github.com/wapteam1/volatile-chat/internal/registry"
	"github.com/wapteam1/volatile-chat/internal/store"
)

// storeUnavailable is the error reason sent when the queue backend fails.
// The frame is the whole story: the connection stays open and other
// connections are unaffected.
const storeUnavailable = "store unavailable"

// Session is the engine's view of one connection. The transport creates it
// on open, passes it with every frame, and hands it to Disconnect on close.
// Identity is empty while the connection is unregistered.
type Session struct {
	Peer     registry.Peer
	ConnID   string
	Identity string
}

// Registered reports whether the session has bound an identity.
func (s *Session) Registered() bool {
	return s.Identity != ""
}

// Engine validates client frames and applies them to the registry and the
// queue store. Frames on one session are processed serially by its transport;
// sessions for different connections may call in concurrently.
type Engine struct {
	registry *registry.Registry
	queues   store.QueueStore
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates an engine over the given registry and queue store.
func New(reg *registry.Registry, queues store.QueueStore, logger zerolog.Logger) *Engine {
	return &Engine{
		registry: reg,
		queues:   queues,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleFrame decodes and applies one raw client frame. Every failure is
// answered with an error frame on the originating session; the connection is
// never terminated by the engine.
func (e *Engine) HandleFrame(ctx context.Context, sess *Session, raw []byte) {
	frame, err := protocol.Decode(raw)
	if err != nil {
		e.rejectFrame(sess, err)
		return
	}

	switch f := frame.(type) {
	case protocol.Register:
		metrics.FramesReceived.WithLabelValues(protocol.TypeRegister).Inc()
		e.handleRegister(ctx, sess, f)
	case protocol.SendMessage:
		metrics.FramesReceived.WithLabelValues(protocol.TypeSendMessage).Inc()
		e.handleSendMessage(ctx, sess, f)
	case protocol.Seen:
		metrics.FramesReceived.WithLabelValues(protocol.TypeSeen).Inc()
		e.handleSeen(ctx, sess, f)
	case protocol.SeenAll:
		metrics.FramesReceived.WithLabelValues(protocol.TypeSeenAll).Inc()
		e.handleSeenAll(ctx, sess)
	}
}

// Disconnect releases the session's registry binding. Queued messages for
// the identity stay untouched so they survive the disconnect.
func (e *Engine) Disconnect(sess *Session) {
	if !sess.Registered() {
		return
	}
	e.registry.Remove(sess.Identity, sess.Peer)
	e.logger.Info().
		Str("conn_id", sess.ConnID).
		Msg("connection unregistered")
}

// rejectFrame maps a decode failure onto an error frame.
func (e *Engine) rejectFrame(sess *Session, err error) {
	var unknown *protocol.UnknownTypeError
	var missing *protocol.MissingFieldError

	switch {
	case errors.As(err, &unknown):
		metrics.ErrorFrames.WithLabelValues("unknown_type").Inc()
		e.send(sess, protocol.NewErrorFrame(unknown.Error(), protocol.ValidClientTypes))
	case errors.As(err, &missing):
		metrics.ErrorFrames.WithLabelValues("validation").Inc()
		e.send(sess, protocol.NewErrorFrame(missing.Error(), nil))
	default:
		metrics.ErrorFrames.WithLabelValues("malformed").Inc()
		e.send(sess, protocol.NewErrorFrame("malformed frame", nil))
	}
}

// requireRegistered answers unregistered sessions with an error frame.
func (e *Engine) requireRegistered(sess *Session, frameType string) bool {
	if sess.Registered() {
		return true
	}
	metrics.ErrorFrames.WithLabelValues("unregistered").Inc()
	e.send(sess, protocol.NewErrorFrame(frameType+" requires registration", nil))
	return false
}

// handleRegister binds the identity and flushes its pending queue as one
// batch. Registering again is an idempotent rebind. The flush is a one-shot
// snapshot: a message appended between the snapshot and its delivery is not
// re-checked and waits for a future registration or live push.
func (e *Engine) handleRegister(ctx context.Context, sess *Session, f protocol.Register) {
	if sess.Registered() && sess.Identity != f.UserID {
		e.registry.Remove(sess.Identity, sess.Peer)
	}
	sess.Identity = f.UserID
	e.registry.Register(f.UserID, sess.Peer)

	e.logger.Info().
		Str("conn_id", sess.ConnID).
		Msg("identity registered")

	pending, err := e.queues.ReadAll(ctx, f.UserID)
	if err != nil {
		e.storeError(sess, err)
		return
	}

	metrics.PendingFlushed.Observe(float64(len(pending)))
	if len(pending) > 0 {
		e.send(sess, protocol.NewPendingMessages(pending))
	}
}

// handleSendMessage creates the message, queues it, acks the sender as
// accepted-for-delivery, and live-pushes to a connected recipient. The live
// push never substitutes for queuing; deletion happens only on seen.
func (e *Engine) handleSendMessage(ctx context.Context, sess *Session, f protocol.SendMessage) {
	if !e.requireRegistered(sess, protocol.TypeSendMessage) {
		return
	}

	mediaType := f.MediaType
	if mediaType == "" {
		mediaType = models.MediaText
	}
	if !mediaType.Valid() {
		metrics.ErrorFrames.WithLabelValues("validation").Inc()
		e.send(sess, protocol.NewErrorFrame("invalid mediaType", nil))
		return
	}

	msg := models.Message{
		ID:        ulid.Make().String(),
		From:      sess.Identity,
		To:        f.To,
		Content:   f.Content,
		MediaType: mediaType,
		Timestamp: e.now().UnixMilli(),
	}

	if err := e.queues.Append(ctx, f.To, msg); err != nil {
		e.storeError(sess, err)
		return
	}
	metrics.MessagesQueued.Inc()

	e.send(sess, protocol.NewMessageSent(msg.ID, msg.To, msg.Timestamp))

	if peer, ok := e.registry.Lookup(f.To); ok {
		if err := peer.SendFrame(protocol.NewNewMessage(msg)); err != nil {
			e.logger.Debug().
				Str("message_id", msg.ID).
				Err(err).
				Msg("live push failed, message remains queued")
		} else {
			metrics.MessagesPushedLive.Inc()
		}
	}

	e.logger.Debug().
		Str("conn_id", sess.ConnID).
		Str("message_id", msg.ID).
		Msg("message queued")
}

// handleSeen removes exactly one message from the caller's own queue and
// notifies the original sender if live. An unknown id is an expected race
// (duplicate acknowledgement), answered with deleted:false.
func (e *Engine) handleSeen(ctx context.Context, sess *Session, f protocol.Seen) {
	if !e.requireRegistered(sess, protocol.TypeSeen) {
		return
	}

	msg, found, err := e.queues.RemoveExact(ctx, sess.Identity, f.MessageID)
	if err != nil {
		e.storeError(sess, err)
		return
	}

	if !found {
		e.send(sess, protocol.NewAckSeen(f.MessageID, false, "message not found"))
		return
	}
	metrics.MessagesSeen.Inc()

	if peer, ok := e.registry.Lookup(msg.From); ok {
		e.sendTo(peer, protocol.NewMessageSeen(msg.ID, sess.Identity, e.now().UnixMilli()))
	}

	e.send(sess, protocol.NewAckSeen(f.MessageID, true, ""))

	e.logger.Debug().
		Str("conn_id", sess.ConnID).
		Str("message_id", msg.ID).
		Msg("message seen and deleted")
}

// handleSeenAll drains the caller's queue, notifies each distinct sender once
// with an aggregated count, and acks with the total removed (possibly 0).
func (e *Engine) handleSeenAll(ctx context.Context, sess *Session) {
	if !e.requireRegistered(sess, protocol.TypeSeenAll) {
		return
	}

	drained, err := e.queues.Drain(ctx, sess.Identity)
	if err != nil {
		e.storeError(sess, err)
		return
	}
	metrics.MessagesSeen.Add(float64(len(drained)))

	bySender := make(map[string]int)
	for _, msg := range drained {
		bySender[msg.From]++
	}

	ts := e.now().UnixMilli()
	for sender, count := range bySender {
		if peer, ok := e.registry.Lookup(sender); ok {
			e.sendTo(peer, protocol.NewAllMessagesSeen(sess.Identity, count, ts))
		}
	}

	e.send(sess, protocol.NewAckSeenAll(len(drained)))

	e.logger.Debug().
		Str("conn_id", sess.ConnID).
		Int("deleted", len(drained)).
		Msg("queue drained")
}

// storeError answers a queue backend failure without dropping the connection.
func (e *Engine) storeError(sess *Session, err error) {
	metrics.ErrorFrames.WithLabelValues("store").Inc()
	e.logger.Error().
		Str("conn_id", sess.ConnID).
		Err(err).
		Msg("queue store failure")
	e.send(sess, protocol.NewErrorFrame(storeUnavailable, nil))
}

func (e *Engine) send(sess *Session, frame protocol.ServerFrame) {
	e.sendTo(sess.Peer, frame)
}

func (e *Engine) sendTo(peer registry.Peer, frame protocol.ServerFrame) {
	if err := peer.SendFrame(frame); err != nil {
		e.logger.Debug().Err(err).Msg("frame send failed")
	}
}
