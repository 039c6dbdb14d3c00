package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisWrapper "github.com/lyzr/flowengine/common/redis"
)

// CacheStore is a keyed value store with optional TTL. Values are
// JSON-serialized; writes are last-writer-wins across processes.
type CacheStore struct {
	redis  *redisWrapper.Client
	prefix string
}

// NewCacheStore creates a cache store under the given key prefix
func NewCacheStore(redis *redisWrapper.Client, prefix string) *CacheStore {
	return &CacheStore{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *CacheStore) key(k string) string {
	return fmt.Sprintf("%s:cache:%s", s.prefix, k)
}

// Set stores a JSON-serialized value. A zero ttl means persistent.
func (s *CacheStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}
	return s.redis.Set(ctx, s.key(key), string(data), ttl)
}

// Get retrieves a value into out. Returns found=false for missing keys.
func (s *CacheStore) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, found, err := s.redis.Get(ctx, s.key(key))
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return false, fmt.Errorf("failed to unmarshal cache value for %s: %w", key, err)
		}
	}
	return true, nil
}

// SetIfAbsent stores a JSON-serialized value only when the key is
// missing. Reports whether the write happened.
func (s *CacheStore) SetIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}
	return s.redis.SetNX(ctx, s.key(key), string(data), ttl)
}

// Delete removes a key
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	return s.redis.Delete(ctx, s.key(key))
}

// Exists reports whether a key is present
func (s *CacheStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.redis.Exists(ctx, s.key(key))
}
