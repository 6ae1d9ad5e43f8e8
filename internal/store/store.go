// Package store holds the volatile per-recipient message queues. Queues are
// ordered, append-only at the tail, and shrink only through explicit
// acknowledgement. Durability is deliberately weak: a queue survives a client
// disconnect but not a store restart.
package store

import (
	"context"

	"github.com/wapteam1/volatile-chat/internal/models"
)

// QueueStore is the relay's contract with the queue backend. Mutations on the
// same recipient key must be atomic with respect to each other; no
// cross-recipient guarantee is required.
type QueueStore interface {
	// Append adds msg to the tail of recipient's queue.
	Append(ctx context.Context, recipient string, msg models.Message) error

	// ReadAll returns a non-destructive ordered snapshot of recipient's queue.
	ReadAll(ctx context.Context, recipient string) ([]models.Message, error)

	// RemoveExact removes the first message with the given id from
	// recipient's queue. The boolean is false when no such message exists,
	// which callers treat as an expected duplicate-acknowledgement race.
	RemoveExact(ctx context.Context, recipient, id string) (models.Message, bool, error)

	// Drain atomically returns recipient's queue in order and deletes it.
	Drain(ctx context.Context, recipient string) ([]models.Message, error)

	// Ping checks backend reachability.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
