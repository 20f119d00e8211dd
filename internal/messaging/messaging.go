// Package messaging provides abstractions for message broker communication.
// It defines interfaces that let the pipeline consume and publish events
// without being coupled to a specific broker implementation.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to the broker.
type Message struct {
	// Channel is the pub/sub channel the message was published on.
	Channel string

	// Data is the raw message payload.
	Data []byte

	// ReceivedAt is when this process received the message.
	ReceivedAt time.Time
}

// Subscription is an active subscription over a set of channels.
type Subscription interface {
	// Next blocks until a message arrives, the context is cancelled, or
	// the underlying connection fails. A non-nil error means the
	// subscription is no longer usable and must be re-established.
	Next(ctx context.Context) (*Message, error)

	// Channels returns the channel set this subscription covers.
	Channels() []string

	// Close stops the subscription.
	Close() error
}

// Subscriber subscribes to broker channels.
type Subscriber interface {
	// Subscribe establishes a subscription over the given channels.
	// Messages arrive in per-channel publish order; there is no ordering
	// guarantee across channels.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

// Publisher publishes messages to broker channels.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte) error
}

// Client combines Publisher and Subscriber for full broker access.
type Client interface {
	Publisher
	Subscriber

	// IsConnected reports whether the client currently has a live
	// broker connection.
	IsConnected() bool

	// Close releases the connection and all subscriptions.
	Close() error
}
