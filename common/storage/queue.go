// Package storage provides the engine's shared key-value store services:
// a blocking FIFO queue, a TTL cache, and a webhook pub/sub channel. All
// three live under a configured key prefix on the same Redis connection.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisWrapper "github.com/lyzr/flowengine/common/redis"
)

// BlockForever makes QueueStore.Pop wait until a value arrives.
const BlockForever time.Duration = -1

// QueueStore is a blocking list-based FIFO keyed by logical queue name.
// Values are JSON-serialized. Each message is delivered to exactly one
// popper.
type QueueStore struct {
	redis  *redisWrapper.Client
	prefix string
}

// NewQueueStore creates a queue store under the given key prefix
func NewQueueStore(redis *redisWrapper.Client, prefix string) *QueueStore {
	return &QueueStore{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *QueueStore) key(name string) string {
	return fmt.Sprintf("%s:queue:%s", s.prefix, name)
}

// Push left-pushes a JSON-serialized value onto the queue
func (s *QueueStore) Push(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal queue value for %s: %w", name, err)
	}
	return s.redis.PushToList(ctx, s.key(name), data)
}

// Pop right-pops one value from the queue and unmarshals it into out.
//
// A zero timeout returns immediately; BlockForever waits until a value is
// pushed; a positive timeout waits at most that long. Returns found=false
// when nothing was available.
func (s *QueueStore) Pop(ctx context.Context, name string, timeout time.Duration, out any) (bool, error) {
	var (
		raw   string
		found bool
		err   error
	)

	switch {
	case timeout == 0:
		raw, found, err = s.redis.PopList(ctx, s.key(name))
	case timeout == BlockForever:
		// BRPOP with zero timeout blocks until a value arrives
		raw, found, err = s.redis.BlockingPopList(ctx, 0, s.key(name))
	default:
		raw, found, err = s.redis.BlockingPopList(ctx, timeout, s.key(name))
	}

	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if out != nil {
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return false, fmt.Errorf("failed to unmarshal queue value from %s: %w", name, err)
		}
	}
	return true, nil
}

// Length returns the number of pending values in the queue
func (s *QueueStore) Length(ctx context.Context, name string) (int64, error) {
	return s.redis.ListLength(ctx, s.key(name))
}
