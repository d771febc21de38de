package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ReplaceMessage is the payload published for a live fragment replacement.
// Subscribing web processes forward it to open browser sessions on the
// tenant's channel.
type ReplaceMessage struct {
	Target   string `json:"target"`
	Fragment string `json:"fragment"`
}

// RedisBroadcaster publishes replace messages over Redis pub/sub. Delivery
// is fire-and-forget; there is no acknowledgment from subscribers.
type RedisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster connects a broadcaster to Redis.
func NewRedisBroadcaster(addr, password string) (*RedisBroadcaster, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	return &RedisBroadcaster{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}, nil
}

// BroadcastReplace publishes a rendered fragment for targetID on channelID.
func (b *RedisBroadcaster) BroadcastReplace(ctx context.Context, channelID, targetID, fragment string) error {
	payload, err := json.Marshal(ReplaceMessage{Target: targetID, Fragment: fragment})
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	if err := b.client.Publish(ctx, channelID, payload).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// Subscribe returns a channel of replace messages for channelID. Used by
// the web processes that hold the browser connections.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, channelID string) (<-chan ReplaceMessage, func(), error) {
	sub := b.client.Subscribe(ctx, channelID)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channelID, err)
	}
	out := make(chan ReplaceMessage)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var replace ReplaceMessage
			if err := json.Unmarshal([]byte(msg.Payload), &replace); err != nil {
				continue
			}
			select {
			case out <- replace:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = sub.Close() }, nil
}
