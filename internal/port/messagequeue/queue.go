// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing, subscribing and request/reply.
type Queue interface {
	// Publish sends a message to the given subject on the durable stream.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Request sends data to subject and waits for a single reply or ctx expiry.
	// Requests bypass the stream; a responder must be listening.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// Close shuts down the queue connection.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject prefixes used by taskcrew.
const (
	SubjectTaskChanged = "tasks.changed" // tasks.changed.{business_id}
	SubjectWorkers     = "workers"       // workers.{role}, request/reply
)

// TaskChangedSubject returns the subject change events of a business are published on.
func TaskChangedSubject(businessID string) string {
	return SubjectTaskChanged + "." + businessID
}

// WorkerSubject returns the request/reply subject a role's workers listen on.
func WorkerSubject(role string) string {
	return SubjectWorkers + "." + role
}
