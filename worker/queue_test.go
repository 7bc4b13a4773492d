package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/zkgrants/aggregator/log"
)

func testJob(id string) Job {
	return Job{ID: id, Task: leafTask("c1"), CreatedAt: time.Unix(1700000000, 0).UTC()}
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)

	require.NoError(t, q.Push(ctx, testJob("a")))
	require.NoError(t, q.Push(ctx, testJob("b")))
	require.ErrorIs(t, q.Push(ctx, testJob("c")), ErrQueueFull)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", job.ID)
	job, err = q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", job.ID)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = q.Pop(timeoutCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	require.ErrorIs(t, q.Push(ctx, testJob("d")), ErrQueueClosed)
	_, err = q.Pop(ctx)
	require.ErrorIs(t, err, ErrQueueClosed)
}

func newTestRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	return NewRedisQueue(client, "zkagg-test"), server
}

func TestRedisQueue(t *testing.T) {
	ctx := context.Background()
	q, server := newTestRedisQueue(t)
	defer q.Close()

	require.NoError(t, q.Push(ctx, testJob("a")))
	require.NoError(t, q.Push(ctx, testJob("b")))
	require.True(t, server.Exists("zkagg-test:tasks"))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, testJob("a"), job)
	job, err = q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", job.ID)

	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = q.Pop(timeoutCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisQueueInvalidPayload(t *testing.T) {
	ctx := context.Background()
	q, server := newTestRedisQueue(t)
	defer q.Close()

	_, err := server.Push("zkagg-test:tasks", "not json")
	require.NoError(t, err)
	_, err = q.Pop(ctx)
	require.ErrorContains(t, err, "failed to unmarshal job")
}

func TestNewQueue(t *testing.T) {
	ctx := context.Background()
	logger := log.GetDefaultLogger()

	q, err := NewQueue(ctx, logger, QueueConfig{Type: QueueMemory, Size: 4})
	require.NoError(t, err)
	require.IsType(t, &MemoryQueue{}, q)

	server := miniredis.RunT(t)
	q, err = NewQueue(ctx, logger, QueueConfig{Type: QueueRedis, RedisAddr: server.Addr(), RedisPrefix: "p"})
	require.NoError(t, err)
	require.IsType(t, &RedisQueue{}, q)
	require.NoError(t, q.Close())

	_, err = NewQueue(ctx, logger, QueueConfig{Type: "kafka"})
	require.ErrorIs(t, err, ErrUnknownQueue)
}
