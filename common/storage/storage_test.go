package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowengine/common/logger"
	redisWrapper "github.com/lyzr/flowengine/common/redis"
)

func testClient(t *testing.T) (*redisWrapper.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return redisWrapper.NewClient(rdb, logger.NewNop()), mr
}

type message struct {
	Seq  int    `json:"seq"`
	Body string `json:"body"`
}

func TestQueueStore_FIFO(t *testing.T) {
	client, _ := testClient(t)
	q := NewQueueStore(client, "test")
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "jobs", message{Seq: 1, Body: "first"}))
	require.NoError(t, q.Push(ctx, "jobs", message{Seq: 2, Body: "second"}))

	length, err := q.Length(ctx, "jobs")
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	var got message
	found, err := q.Pop(ctx, "jobs", 0, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, got.Seq)

	found, err = q.Pop(ctx, "jobs", 0, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, got.Seq)
}

func TestQueueStore_PopEmpty(t *testing.T) {
	client, _ := testClient(t)
	q := NewQueueStore(client, "test")

	var got message
	found, err := q.Pop(context.Background(), "empty", 0, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQueueStore_BlockingPop(t *testing.T) {
	client, _ := testClient(t)
	q := NewQueueStore(client, "test")
	ctx := context.Background()

	done := make(chan message, 1)
	go func() {
		var got message
		found, err := q.Pop(ctx, "jobs", BlockForever, &got)
		if err == nil && found {
			done <- got
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push(ctx, "jobs", message{Seq: 7}))

	select {
	case got := <-done:
		assert.Equal(t, 7, got.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("blocking pop never returned")
	}
}

func TestQueueStore_IsolatedByName(t *testing.T) {
	client, _ := testClient(t)
	q := NewQueueStore(client, "test")
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "a", message{Seq: 1}))

	found, err := q.Pop(ctx, "b", 0, nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheStore_SetGet(t *testing.T) {
	client, _ := testClient(t)
	c := NewCacheStore(client, "test")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]any{"n": 1}, 0))

	var got map[string]any
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float64(1), got["n"])

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k"))
	found, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheStore_SetIfAbsent(t *testing.T) {
	client, mr := testClient(t)
	c := NewCacheStore(client, "test")
	ctx := context.Background()

	set, err := c.SetIfAbsent(ctx, "lock", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = c.SetIfAbsent(ctx, "lock", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, set)

	var got string
	found, err := c.Get(ctx, "lock", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", got)

	// Expired locks are reclaimable
	mr.FastForward(2 * time.Minute)
	set, err = c.SetIfAbsent(ctx, "lock", "second", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)
}

func TestCacheStore_TTLExpiry(t *testing.T) {
	client, mr := testClient(t)
	c := NewCacheStore(client, "test")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	found, err := c.Get(ctx, "short", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWebhookChannel_PublishSubscribe(t *testing.T) {
	client, _ := testClient(t)
	w := NewWebhookChannel(client, "test")
	ctx := context.Background()

	done := make(chan message, 1)
	go func() {
		var got message
		if err := w.Subscribe(ctx, "orders", &got); err == nil {
			done <- got
		}
	}()

	// Give the subscriber time to confirm its subscription
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Publish(ctx, "orders", message{Seq: 3, Body: "hi"}))

	select {
	case got := <-done:
		assert.Equal(t, 3, got.Seq)
		assert.Equal(t, "hi", got.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the message")
	}
}

func TestWebhookChannel_SubscribeCancelled(t *testing.T) {
	client, _ := testClient(t)
	w := NewWebhookChannel(client, "test")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Subscribe(ctx, "silent", nil)
	assert.Error(t, err)
}
