package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPeer struct{ name string }

func (p *stubPeer) SendFrame(any) error { return nil }

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	alice := &stubPeer{name: "alice"}

	r.Register("alice", alice)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, alice, got.(*stubPeer))

	_, ok = r.Lookup("bob")
	assert.False(t, ok)
}

func TestRegisterOverwritesSilently(t *testing.T) {
	r := New()
	first := &stubPeer{name: "first"}
	second := &stubPeer{name: "second"}

	r.Register("alice", first)
	r.Register("alice", second)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, got.(*stubPeer))
	assert.Len(t, r.peers, 1)
}

func TestRemoveIsNoopWhenSuperseded(t *testing.T) {
	r := New()
	old := &stubPeer{name: "old"}
	current := &stubPeer{name: "current"}

	r.Register("alice", old)
	r.Register("alice", current)

	// The evicted connection closes late; it must not evict its successor.
	r.Remove("alice", old)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, current, got.(*stubPeer))
}

func TestRemoveCurrent(t *testing.T) {
	r := New()
	alice := &stubPeer{name: "alice"}

	r.Register("alice", alice)
	r.Remove("alice", alice)

	_, ok := r.Lookup("alice")
	assert.False(t, ok)
	assert.Empty(t, r.peers)
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &stubPeer{}
			r.Register("shared", p)
			r.Lookup("shared")
			r.Remove("shared", p)
		}()
	}
	wg.Wait()
}
