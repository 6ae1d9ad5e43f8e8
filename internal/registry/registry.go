// Package registry tracks which identity currently owns which live
// connection. It is pure bookkeeping: registering over an existing identity
// silently replaces the mapping and nobody is notified.
package registry

import "sync"

// Peer is one live client channel. The registry only needs to compare peers
// for identity; the relay defines the full sending contract.
type Peer interface {
	SendFrame(frame any) error
}

// Registry maps identities to their single live peer. Last registration wins.
type Registry struct {
	mu    sync.Mutex
	peers map[string]Peer
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{peers: make(map[string]Peer)}
}

// Register binds identity to peer, unconditionally overwriting any previous
// binding. The evicted peer gets no notice.
func (r *Registry) Register(identity string, peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[identity] = peer
}

// Lookup returns the live peer for identity, if any.
func (r *Registry) Lookup(identity string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[identity]
	return p, ok
}

// Remove drops the binding for identity, but only if peer is still the
// current registrant. A connection that was superseded by a newer
// registration for the same identity must not evict its successor when it
// finally closes.
func (r *Registry) Remove(identity string, peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.peers[identity]; ok && current == peer {
		delete(r.peers, identity)
	}
}
