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
)

// taskStateTTL bounds how long a finished task can be polled from redis
const taskStateTTL = time.Hour

// TaskState is the status of a task, with its proof once DONE
type TaskState struct {
	Status types.TaskStatus   `json:"status"`
	Proof  *types.ProverProof `json:"proof,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// TaskStore keeps the state of the tasks. Every worker process sharing a
// queue must share its TaskStore too, since any of them may answer the polls.
type TaskStore interface {
	Put(ctx context.Context, id string, state TaskState) error
	// Get returns ErrTaskNotFound for an unknown id
	Get(ctx context.Context, id string) (TaskState, error)
	Remove(ctx context.Context, id string) error
}

// MemoryTaskStore is a TaskStore private to this process
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]TaskState
}

// NewMemoryTaskStore returns an empty MemoryTaskStore
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]TaskState)}
}

func (s *MemoryTaskStore) Put(_ context.Context, id string, state TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = state

	return nil
}

func (s *MemoryTaskStore) Get(_ context.Context, id string) (TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return TaskState{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	return t, nil
}

func (s *MemoryTaskStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)

	return nil
}

// RedisTaskStore keeps every task JSON encoded under {prefix}:task:{id}
type RedisTaskStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTaskStore returns a RedisTaskStore using the keys under prefix
func NewRedisTaskStore(client *redis.Client, prefix string) *RedisTaskStore {
	return &RedisTaskStore{client: client, prefix: prefix}
}

func (s *RedisTaskStore) key(id string) string {
	return s.prefix + ":task:" + id
}

func (s *RedisTaskStore) Put(ctx context.Context, id string, state TaskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", id, err)
	}
	if err := s.client.Set(ctx, s.key(id), data, taskStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to store task %s: %w", id, err)
	}

	return nil
}

func (s *RedisTaskStore) Get(ctx context.Context, id string) (TaskState, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return TaskState{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return TaskState{}, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	var state TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return TaskState{}, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}

	return state, nil
}

func (s *RedisTaskStore) Remove(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}
