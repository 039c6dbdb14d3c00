package storage

import (
	"context"
	"encoding/json"
	"fmt"

	redisWrapper "github.com/lyzr/flowengine/common/redis"
)

// WebhookChannel is a named pub/sub channel. Publish is fire-and-forget;
// Subscribe blocks the caller until a publisher sends on the channel.
// Delivery is best-effort: a publish with no subscriber is dropped.
type WebhookChannel struct {
	redis  *redisWrapper.Client
	prefix string
}

// NewWebhookChannel creates a webhook pub/sub channel under the given prefix
func NewWebhookChannel(redis *redisWrapper.Client, prefix string) *WebhookChannel {
	return &WebhookChannel{
		redis:  redis,
		prefix: prefix,
	}
}

func (w *WebhookChannel) name(channel string) string {
	return fmt.Sprintf("%s:webhook:%s", w.prefix, channel)
}

// Publish sends a JSON-serialized message to the channel
func (w *WebhookChannel) Publish(ctx context.Context, channel string, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message for %s: %w", channel, err)
	}
	return w.redis.PublishEvent(ctx, w.name(channel), string(data))
}

// Subscribe blocks until one message arrives on the channel and unmarshals
// it into out. Each call is tied to one subscriber instance; the
// subscription is closed before returning.
func (w *WebhookChannel) Subscribe(ctx context.Context, channel string, out any) error {
	sub := w.redis.Subscribe(ctx, w.name(channel))
	defer sub.Close()

	// Wait for the subscription to be confirmed so a concurrent publish
	// is not lost between SUBSCRIBE and the first receive
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		return fmt.Errorf("failed to receive from %s: %w", channel, err)
	}

	if out != nil {
		if err := json.Unmarshal([]byte(msg.Payload), out); err != nil {
			return fmt.Errorf("failed to unmarshal webhook message from %s: %w", channel, err)
		}
	}
	return nil
}
