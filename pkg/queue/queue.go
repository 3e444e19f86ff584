package queue

import "context"

// Message is one dequeued queue entry. ID plus PopReceipt form the delivery
// token required to delete it; Deliveries counts how many times the service
// has handed the entry to a consumer.
type Message struct {
	ID         string
	Payload    string
	PopReceipt string
	Deliveries int64
}

// Queue is the durable queue capability used by both relay directions.
// Implementations must be safe for concurrent use.
type Queue interface {
	// EnsureExists creates the queue when absent; idempotent.
	EnsureExists(ctx context.Context) error

	// Enqueue appends one opaque payload.
	Enqueue(ctx context.Context, payload string) error

	// Receive returns at most one message, or nil when the queue is empty.
	// A received message stays invisible to other consumers until deleted
	// or until the visibility timeout expires.
	Receive(ctx context.Context) (*Message, error)

	// Delete acknowledges a message using its delivery token. Deleting a
	// message that is already gone is not an error.
	Delete(ctx context.Context, id, popReceipt string) error
}
