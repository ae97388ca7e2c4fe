// Package signaling turns the record store's insert and change-subscription
// primitives into a room-scoped message bus. Peers cannot reach each other
// directly until they have exchanged connection-setup blobs through this
// relay.
package signaling

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/learnchain/course-mesh/internal/models"
	"github.com/learnchain/course-mesh/internal/realtime"
)

// Inserter appends rows to the signaling log.
type Inserter interface {
	InsertSignal(ctx context.Context, msg models.SignalingMessage) (models.SignalingMessage, error)
}

// Feed delivers committed signaling rows in commit order.
type Feed interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (realtime.Subscription, error)
}

// Handler receives every signaling row observed for the open room.
type Handler func(msg models.SignalingMessage)

// Relay is the room-scoped broadcast channel. At most one room subscription
// is active at a time; opening a new room implicitly leaves the prior one.
type Relay struct {
	store Inserter
	feed  Feed

	mu       sync.Mutex
	roomCode string
	sub      realtime.Subscription
	done     chan struct{}
}

func NewRelay(store Inserter, feed Feed) *Relay {
	return &Relay{store: store, feed: feed}
}

// OpenRoom subscribes to the room's insert feed and dispatches every row to
// handler. It returns once the subscription is acknowledged, not once any
// historical backlog has been delivered.
func (r *Relay) OpenRoom(ctx context.Context, roomCode string, handler Handler) error {
	sub, err := r.feed.Subscribe(ctx, realtime.RoomChannel(roomCode))
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.closeLocked()
	r.roomCode = roomCode
	r.sub = sub
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	go func() {
		for {
			select {
			case payload, ok := <-sub.Messages():
				if !ok {
					return
				}
				var msg models.SignalingMessage
				if err := json.Unmarshal(payload, &msg); err != nil {
					log.Printf("signaling: dropping malformed feed payload: %v", err)
					continue
				}
				handler(msg)
			case <-done:
				return
			}
		}
	}()
	return nil
}

// Publish appends one signaling row and broadcasts it to the room's
// subscribers. A failure surfaces to the caller; the relay never retries.
func (r *Relay) Publish(ctx context.Context, msg models.SignalingMessage) error {
	inserted, err := r.store.InsertSignal(ctx, msg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(inserted)
	if err != nil {
		return err
	}
	return r.feed.Publish(ctx, realtime.RoomChannel(inserted.RoomCode), payload)
}

// Close tears down the live subscription. Idempotent.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}

func (r *Relay) closeLocked() {
	if r.sub != nil {
		r.sub.Close()
		r.sub = nil
	}
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
	r.roomCode = ""
}
