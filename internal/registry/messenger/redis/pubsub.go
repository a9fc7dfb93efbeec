// Package redis provides the Redis pub/sub messenger. Redis pub/sub is
// inherently at-most-once: a publish to a channel with no subscribers is
// silently dropped, which matches the messaging slot contract.
package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"regcast/internal/registry/ports"
)

// Messenger publishes payloads to Redis channels named by the identity's
// delivery address.
type Messenger struct {
	client *redis.Client
}

var _ ports.Messenger = (*Messenger)(nil)

// New constructs a Redis pub/sub messenger. The client lifecycle is
// managed externally.
func New(client *redis.Client) *Messenger {
	return &Messenger{client: client}
}

func (m *Messenger) Publish(ctx context.Context, address string, payload []byte) error {
	return m.client.Publish(ctx, address, payload).Err()
}
