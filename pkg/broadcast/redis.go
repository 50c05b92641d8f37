// redis.go fans confirmations out across nodes via Redis pub/sub, one
// channel per document.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/rvoss/coedit/pkg/model"
)

// Redis is a Broadcaster backed by Redis pub/sub.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func channelFor(docID string) string { return "coedit:doc:" + docID }

// Broadcast publishes c as JSON on the document's channel.
func (r *Redis) Broadcast(ctx context.Context, c model.Confirmation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal confirmation: %w", err)
	}
	return r.rdb.Publish(ctx, channelFor(c.DocID), payload).Err()
}

// Subscribe bridges the document's Redis channel onto a typed channel.
// The returned cancel closes the subscription and the channel.
func (r *Redis) Subscribe(ctx context.Context, docID string) (<-chan model.Confirmation, func(), error) {
	pubsub := r.rdb.Subscribe(ctx, channelFor(docID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", docID, err)
	}

	out := make(chan model.Confirmation, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var c model.Confirmation
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				log.Printf("broadcast: bad confirmation on %s: %v", msg.Channel, err)
				continue
			}
			out <- c
		}
	}()

	cancel := func() { pubsub.Close() }
	return out, cancel, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error { return r.rdb.Close() }
