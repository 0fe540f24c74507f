// Package intake moves settlement orders from the message queue into the
// orders table.
package intake

import "context"

// Message is one queue entry.
type Message struct {
	// ID is the queue's id for the entry; it is stored as the order's
	// message_id.
	ID     string
	Source string
	Body   []byte
}

// Consumer is a transactional queue reader. Messages returned by Receive
// belong to the current batch until Commit removes them from the queue or
// Rollback makes them available again. After an error the caller must
// Rollback; the consumer reconnects on the next Receive.
type Consumer interface {
	// Receive returns the next message, or nil if none arrived within the
	// consumer's receive timeout.
	Receive(ctx context.Context) (*Message, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}
