package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultPublishTimeout = 600 * time.Millisecond

// Broadcaster delivers an outbound message to every open page and reports
// how many received it.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg Message) (int, error)
}

// RedisBroadcaster publishes outbound messages on a Redis pub/sub channel
// that open pages subscribe to.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
}

// NewRedisBroadcaster wraps an existing client, normally the one backing
// the cache store.
func NewRedisBroadcaster(client *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel}
}

// Broadcast publishes the message and returns the subscriber count.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, msg Message) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("encode broadcast %s: %w", msg.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	n, err := b.client.Publish(ctx, b.channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return int(n), nil
}

// NoopBroadcaster implements Broadcaster with zero effect, for Redis-less
// runs where no page channel exists.
type NoopBroadcaster struct{}

// Broadcast reports zero receivers and always succeeds.
func (NoopBroadcaster) Broadcast(context.Context, Message) (int, error) {
	return 0, nil
}
