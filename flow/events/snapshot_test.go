package events

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
	"github.com/lyzr/flowengine/common/storage"
)

func testCache(t *testing.T) (*storage.CacheStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	client := redisWrapper.NewClient(rdb, logger.NewNop())
	return storage.NewCacheStore(client, "test"), mr
}

func TestSnapshotWriter_RoundTrip(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	tracker := NewStateTracker("wf-snap", 2)
	tracker.StartWorkflow()
	tracker.OnNodeStarted("a", "counter-producer")
	tracker.OnNodeCompleted("a", "counter-producer", "")

	writer := NewSnapshotWriter(cache, tracker, time.Minute, logger.NewNop())
	writer.Write(ctx)

	state, found, err := ReadSnapshot(ctx, cache, "wf-snap")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "wf-snap", state.WorkflowID)
	assert.Equal(t, StatusRunning, state.Status)
	assert.Equal(t, 2, state.TotalNodes)
	require.Len(t, state.CompletedNodes, 1)
	assert.Equal(t, "a", state.CompletedNodes[0].NodeID)
}

func TestSnapshotWriter_AttachWritesOnEveryEvent(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	tracker := NewStateTracker("wf-attach", 1)
	emitter := NewEmitter("wf-attach", logger.NewNop())
	NewSnapshotWriter(cache, tracker, time.Minute, logger.NewNop()).Attach(emitter)

	tracker.StartWorkflow()
	emitter.Emit(NodeStarted, Payload{"node_id": "a"})

	state, found, err := ReadSnapshot(ctx, cache, "wf-attach")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusRunning, state.Status)
}

func TestSnapshotWriter_TTL(t *testing.T) {
	cache, mr := testCache(t)
	ctx := context.Background()

	tracker := NewStateTracker("wf-ttl", 1)
	writer := NewSnapshotWriter(cache, tracker, time.Minute, logger.NewNop())
	writer.Write(ctx)

	mr.FastForward(2 * time.Minute)

	_, found, err := ReadSnapshot(ctx, cache, "wf-ttl")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReadSnapshot_Missing(t *testing.T) {
	cache, _ := testCache(t)

	state, found, err := ReadSnapshot(context.Background(), cache, "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, state)
}
