package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

// Client wraps redis.Client with the operations the engine's storage
// services need, plus debug instrumentation
type Client struct {
	redis  *redis.Client
	logger Logger
}

// NewClient creates a new Redis client wrapper
func NewClient(redisClient *redis.Client, logger Logger) *Client {
	return &Client{
		redis:  redisClient,
		logger: logger,
	}
}

// Set sets a key with optional expiration (0 = no expiration)
func (c *Client) Set(ctx context.Context, key, value string, expiry time.Duration) error {
	err := c.redis.Set(ctx, key, value, expiry).Err()
	if err != nil {
		c.logger.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	c.logger.Debug("redis SET", "key", key, "expiry", expiry)
	return nil
}

// Get retrieves a value by key. The second return value reports whether
// the key exists.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("redis GET key not found", "key", key)
		return "", false, nil
	}
	if err != nil {
		c.logger.Error("redis GET failed", "key", key, "error", err)
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	c.logger.Debug("redis GET", "key", key)
	return val, true, nil
}

// Exists reports whether a key exists
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.redis.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis EXISTS failed", "key", key, "error", err)
		return false, fmt.Errorf("failed to check key %s: %w", key, err)
	}
	return n > 0, nil
}

// Delete removes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	err := c.redis.Del(ctx, keys...).Err()
	if err != nil {
		c.logger.Error("redis DEL failed", "keys", keys, "error", err)
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	c.logger.Debug("redis DEL", "keys", keys)
	return nil
}

// PushToList pushes values to the left of a list
func (c *Client) PushToList(ctx context.Context, key string, values ...any) error {
	err := c.redis.LPush(ctx, key, values...).Err()
	if err != nil {
		c.logger.Error("redis LPUSH failed", "key", key, "error", err)
		return fmt.Errorf("failed to lpush to %s: %w", key, err)
	}
	c.logger.Debug("redis LPUSH", "key", key, "count", len(values))
	return nil
}

// PopList pops one value from the right of a list without blocking.
// Returns found=false when the list is empty.
func (c *Client) PopList(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.RPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		c.logger.Error("redis RPOP failed", "key", key, "error", err)
		return "", false, fmt.Errorf("failed to rpop from %s: %w", key, err)
	}
	c.logger.Debug("redis RPOP", "key", key)
	return val, true, nil
}

// BlockingPopList blocks and pops one value from the right of a list.
// A zero timeout blocks forever. Returns found=false on timeout.
func (c *Client) BlockingPopList(ctx context.Context, timeout time.Duration, keys ...string) (string, bool, error) {
	result, err := c.redis.BRPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		// Timeout - not an error
		return "", false, nil
	}
	if err != nil {
		c.logger.Error("redis BRPOP failed", "keys", keys, "error", err)
		return "", false, fmt.Errorf("failed to brpop from %v: %w", keys, err)
	}
	if len(result) < 2 {
		return "", false, fmt.Errorf("unexpected brpop reply shape from %v", keys)
	}
	c.logger.Debug("redis BRPOP", "keys", keys)
	return result[1], true, nil
}

// ListLength returns the length of a list
func (c *Client) ListLength(ctx context.Context, key string) (int64, error) {
	n, err := c.redis.LLen(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis LLEN failed", "key", key, "error", err)
		return 0, fmt.Errorf("failed to llen %s: %w", key, err)
	}
	return n, nil
}

// PublishEvent publishes a message to a Redis channel
func (c *Client) PublishEvent(ctx context.Context, channel string, message string) error {
	err := c.redis.Publish(ctx, channel, message).Err()
	if err != nil {
		c.logger.Error("redis PUBLISH failed", "channel", channel, "error", err)
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	c.logger.Debug("redis PUBLISH", "channel", channel)
	return nil
}

// Subscribe subscribes to a channel. The caller owns the returned PubSub
// and must Close it.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	c.logger.Debug("redis SUBSCRIBE", "channels", channels)
	return c.redis.Subscribe(ctx, channels...)
}

// SetNX sets a key only if it doesn't exist (for idempotency checks)
func (c *Client) SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error) {
	wasSet, err := c.redis.SetNX(ctx, key, value, expiry).Result()
	if err != nil {
		c.logger.Error("redis SETNX failed", "key", key, "error", err)
		return false, fmt.Errorf("failed to setnx key %s: %w", key, err)
	}
	c.logger.Debug("redis SETNX", "key", key, "was_set", wasSet)
	return wasSet, nil
}
