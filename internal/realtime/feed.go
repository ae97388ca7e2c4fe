// Package realtime delivers mesh_signaling inserts to room subscribers in
// commit order, the way the hosted store's change feed does. Each insert is
// published to a per-room Redis channel after the row is committed.
package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/learnchain/course-mesh/config"
)

// Feed is a thin pub/sub wrapper over Redis.
type Feed struct {
	client *redis.Client
}

func Connect(cfg config.RedisConfig) (*Feed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Feed{client: client}, nil
}

func (f *Feed) Close() error {
	return f.client.Close()
}

// RoomChannel names the pub/sub channel carrying one room's inserts.
func RoomChannel(roomCode string) string {
	return "mesh:room:" + roomCode
}

// Publish broadcasts one serialized signaling row to a room's subscribers.
func (f *Feed) Publish(ctx context.Context, channel string, payload []byte) error {
	return f.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a live subscription on a channel. It returns once the
// subscription is acknowledged by the server, so messages published after
// the return are guaranteed to be delivered.
func (f *Feed) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := f.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	return &redisSubscription{pubsub: pubsub}, nil
}

// Subscription is one live channel subscription. Messages arrive in publish
// order. Close is idempotent and causes Messages to be closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

type redisSubscription struct {
	pubsub   *redis.PubSub
	messages chan []byte
}

func (s *redisSubscription) Messages() <-chan []byte {
	if s.messages == nil {
		s.messages = make(chan []byte, 64)
		go func() {
			defer close(s.messages)
			for msg := range s.pubsub.Channel() {
				s.messages <- []byte(msg.Payload)
			}
		}()
	}
	return s.messages
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
