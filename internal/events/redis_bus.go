// Redis-backed event mirror for multi-pod deployments.
//
// The in-memory Bus only delivers events within a single process. RedisBus
// publishes every event to Redis Pub/Sub as well, so a verdict submitted on
// pod 1 is observable by stream subscribers on pod 2.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// PubSubClient is the minimal Redis Pub/Sub surface the bus needs.
type PubSubClient interface {
	// Publish sends a message to a Redis channel.
	Publish(ctx context.Context, channel string, message []byte) error

	// Subscribe registers a callback for messages on a channel pattern.
	// Returns an unsubscribe function.
	Subscribe(ctx context.Context, channel string, handler func([]byte)) (unsubscribe func(), err error)
}

// RedisBus wraps the local Bus and mirrors every event through Redis.
// Events received from Redis (published by other pods) are re-delivered
// to local subscribers only, never re-published.
type RedisBus struct {
	mu     sync.Mutex
	local  *Bus
	pubsub PubSubClient
	prefix string
	unsubs []func()
	closed bool
}

// NewRedisBus creates a Redis-mirrored event bus over an existing local bus.
func NewRedisBus(local *Bus, client PubSubClient, channelPrefix string) *RedisBus {
	if channelPrefix == "" {
		channelPrefix = "selfpromise:events:"
	}
	return &RedisBus{
		local:  local,
		pubsub: client,
		prefix: channelPrefix,
	}
}

// Emit publishes locally and mirrors to Redis. A Redis failure degrades to
// local-only delivery; it never fails the caller.
func (rb *RedisBus) Emit(eventType, source, subject string, data map[string]interface{}) {
	event := NewEvent(eventType, source, subject, data)
	rb.local.Publish(event)

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("[RedisBus] marshal failed", "type", eventType, "error", err)
		return
	}
	if err := rb.pubsub.Publish(context.Background(), rb.prefix+eventType, payload); err != nil {
		slog.Warn("[RedisBus] publish failed, local-only delivery", "type", eventType, "error", err)
	}
}

// Relay subscribes to the Redis channels for the given event types and
// re-delivers remote events to local subscribers.
func (rb *RedisBus) Relay(eventTypes ...string) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, et := range eventTypes {
		unsub, err := rb.pubsub.Subscribe(context.Background(), rb.prefix+et, func(data []byte) {
			var event Event
			if err := json.Unmarshal(data, &event); err != nil {
				slog.Warn("[RedisBus] failed to unmarshal remote event", "error", err)
				return
			}
			rb.local.Publish(&event)
		})
		if err != nil {
			slog.Warn("[RedisBus] subscribe failed, local-only mode", "type", et, "error", err)
			continue
		}
		rb.unsubs = append(rb.unsubs, unsub)
	}
	return nil
}

// Close tears down all Redis subscriptions.
func (rb *RedisBus) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return nil
	}
	rb.closed = true
	for _, unsub := range rb.unsubs {
		unsub()
	}
	rb.unsubs = nil
	return nil
}
