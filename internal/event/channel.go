package event

import "context"

// Channel is the bidirectional event channel a session runs over. The
// concrete implementation (internal/ws) reconnects on its own; sessions only
// observe connect/disconnect/connect_error events on Events. Delivery is
// at-most-once per attempt and ordering is not guaranteed across reconnects,
// so everything consuming Events must be idempotent under re-delivery.
type Channel interface {
	// Send transmits an event to the coordinator. It returns an error when
	// the channel is closed or currently disconnected; callers treat that as
	// a transport fault, never fatal.
	Send(ctx context.Context, ev Event) error

	// Events returns the inbound stream. The channel is closed after Close.
	Events() <-chan Event

	// ConnectionID returns the identifier the coordinator knows this
	// connection by. Empty while disconnected; changes across reconnects.
	ConnectionID() string

	// Close tears the channel down and closes Events. Idempotent.
	Close() error
}
