package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
)

const (
	redisPopTimeout  = time.Second
	redisPingTimeout = 10 * time.Second
)

var (
	// ErrQueueFull is returned when pushing to a queue at capacity
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned when using a closed queue
	ErrQueueClosed = errors.New("queue is closed")
	// ErrUnknownQueue is returned for a queue type that doesn't exist
	ErrUnknownQueue = errors.New("unknown queue type")
)

// Job is a task waiting to be proven
type Job struct {
	ID         string           `json:"id"`
	Task       types.ProverTask `json:"task"`
	ForceProve bool             `json:"force_prove"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Queue hands the pending jobs to the workers in FIFO order
type Queue interface {
	Push(ctx context.Context, job Job) error
	// Pop blocks until a job is available or ctx is done
	Pop(ctx context.Context) (Job, error)
	Close() error
}

// NewQueue returns the queue selected by cfg.Type
func NewQueue(ctx context.Context, logger *log.Logger, cfg QueueConfig) (Queue, error) {
	switch cfg.Type {
	case "", QueueMemory:
		return NewMemoryQueue(cfg.Size), nil
	case QueueRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Infof("redis queue connected to %s", cfg.RedisAddr)

		return NewRedisQueue(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, cfg.Type)
	}
}

// MemoryQueue is a bounded in-process Queue
type MemoryQueue struct {
	jobs chan Job

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewMemoryQueue returns a MemoryQueue holding up to size jobs
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}

	return &MemoryQueue{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) Push(_ context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-q.done:
		return Job{}, ErrQueueClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}

	return nil
}

// RedisQueue keeps the jobs JSON encoded in a redis list, so they survive a
// worker restart
type RedisQueue struct {
	client *redis.Client
	prefix string
	key    string
}

// NewRedisQueue returns a RedisQueue over the list {prefix}:tasks
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	return &RedisQueue{
		client: client,
		prefix: prefix,
		key:    prefix + ":tasks",
	}
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}

	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (Job, error) {
	for {
		result, err := q.client.BLPop(ctx, redisPopTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return Job{}, ErrQueueClosed
			}
			return Job{}, fmt.Errorf("failed to dequeue job: %w", err)
		}
		if len(result) < 2 { //nolint:mnd
			return Job{}, fmt.Errorf("invalid BLPOP result from redis: %v", result)
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			return Job{}, fmt.Errorf("failed to unmarshal job: %w", err)
		}

		return job, nil
	}
}

// TaskStore returns the store sharing the redis client and prefix of the queue
func (q *RedisQueue) TaskStore() *RedisTaskStore {
	return NewRedisTaskStore(q.client, q.prefix)
}

// Len returns the number of pending jobs
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
