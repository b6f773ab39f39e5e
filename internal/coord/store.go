// Package coord wraps the shared coordination store used for cross-instance
// broadcast fan-out, distributed rate-limit flags, and one-shot gates.
package coord

import (
	"context"
	"time"
)

// Message is a single pub/sub delivery.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a live pub/sub subscription. Close releases it; the
// Messages channel is closed afterwards.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Store abstracts the coordination backend. Implementations must be safe for
// concurrent use. All calls honor the caller's context deadline; callers
// treat failures and timeouts as service-unavailable, never as fatal.
type Store interface {
	// SetNX stores value under key with a TTL only if the key is absent.
	// Returns true if the key was set, false if it already existed.
	// The check-and-set is a single atomic operation.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// TTL returns the remaining lifetime of key, or 0 if the key does not
	// exist or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Publish sends payload to every subscriber of channel. Deliveries
	// published from one process to one channel arrive in publish order.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe starts receiving messages published to channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Close releases backend resources. It is idempotent.
	Close() error
}
