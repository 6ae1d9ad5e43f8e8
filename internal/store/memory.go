package store

import (
	"context"
	"sync"

	"github.com/wapteam1/volatile-chat/internal/models"
)

// MemoryStore is an in-process QueueStore used in development when no Redis
// is configured, and in tests. A single mutex covers all queues: queues are
// short and operations are O(queue length), so contention is not a concern.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string][]models.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{queues: make(map[string][]models.Message)}
}

// Append adds msg to the tail of recipient's queue.
func (s *MemoryStore) Append(_ context.Context, recipient string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[recipient] = append(s.queues[recipient], msg)
	return nil
}

// ReadAll returns a copy of recipient's queue in insertion order.
func (s *MemoryStore) ReadAll(_ context.Context, recipient string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.queues[recipient]
	out := make([]models.Message, len(queue))
	copy(out, queue)
	return out, nil
}

// RemoveExact removes the first message with the given id.
func (s *MemoryStore) RemoveExact(_ context.Context, recipient, id string) (models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.queues[recipient]
	for i, msg := range queue {
		if msg.ID == id {
			s.queues[recipient] = append(queue[:i:i], queue[i+1:]...)
			if len(s.queues[recipient]) == 0 {
				delete(s.queues, recipient)
			}
			return msg, true, nil
		}
	}
	return models.Message{}, false, nil
}

// Drain returns recipient's queue in order and deletes it.
func (s *MemoryStore) Drain(_ context.Context, recipient string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.queues[recipient]
	delete(s.queues, recipient)
	return queue, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
