package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is how long one frame write may take.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead; pings go out at pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize caps inbound frames. A 5 MiB media payload grows by
	// base64 encoding plus envelope and frame overhead, so allow 8 MiB.
	maxFrameSize = 8 << 20

	// outboundBuffer is the per-connection queue of frames awaiting the
	// write pump. A connection that falls this far behind gets send
	// failures instead of blocking the relay; queued messages are not
	// lost, they stay in the queue store until acknowledged.
	outboundBuffer = 64
)

var (
	errPeerClosed  = errors.New("peer closed")
	errPeerBacklog = errors.New("peer write backlog full")
)

// wsPeer adapts one websocket connection to the registry.Peer contract.
// SendFrame may be called from any connection's goroutine; all actual writes
// happen on the single write pump goroutine.
type wsPeer struct {
	conn *websocket.Conn
	out  chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{
		conn: conn,
		out:  make(chan []byte, outboundBuffer),
		done: make(chan struct{}),
	}
}

// SendFrame marshals the frame and hands it to the write pump without
// blocking. It fails when the peer is closed or hopelessly behind.
func (p *wsPeer) SendFrame(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		return errPeerClosed
	default:
	}

	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return errPeerClosed
	default:
		return errPeerBacklog
	}
}

// close shuts the peer down exactly once and terminates the write pump.
func (p *wsPeer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// writePump serializes all writes to the websocket and keeps the connection
// alive with periodic pings. It exits when the peer is closed or a write
// fails.
func (p *wsPeer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.close()
	}()

	for {
		select {
		case data := <-p.out:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}
