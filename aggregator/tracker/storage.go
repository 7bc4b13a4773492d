package tracker

import (
	"context"
	"slices"
	"sync"

	"github.com/zkgrants/aggregator/aggregator/types"
)

// JobStorage persists jobs and their execution summaries
type JobStorage interface {
	// InsertJob stores a new job, failing if one with the same id exists
	InsertJob(ctx context.Context, job Job) error
	// UpdateJob overwrites an existing job
	UpdateJob(ctx context.Context, job Job) error
	// GetJob returns types.ErrNotFound if there's no job with that id
	GetJob(ctx context.Context, requestID string) (Job, error)
	// SaveTaskRecords stores the execution summary of a job
	SaveTaskRecords(ctx context.Context, requestID string, records []types.TaskRecord) error
	// GetTaskRecords returns types.ErrNotFound if there's no job with that id
	GetTaskRecords(ctx context.Context, requestID string) ([]types.TaskRecord, error)
}

// MemoryStorage is a JobStorage that lives in memory
type MemoryStorage struct {
	mu      sync.RWMutex
	jobs    map[string]Job
	records map[string][]types.TaskRecord
}

// NewMemoryStorage returns an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs:    make(map[string]Job),
		records: make(map[string][]types.TaskRecord),
	}
}

func (m *MemoryStorage) InsertJob(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.RequestID]; ok {
		return ErrJobExists
	}
	m.jobs[job.RequestID] = job

	return nil
}

func (m *MemoryStorage) UpdateJob(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.RequestID]; !ok {
		return types.ErrNotFound
	}
	m.jobs[job.RequestID] = job

	return nil
}

func (m *MemoryStorage) GetJob(_ context.Context, requestID string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[requestID]
	if !ok {
		return Job{}, types.ErrNotFound
	}

	return job, nil
}

func (m *MemoryStorage) SaveTaskRecords(_ context.Context, requestID string, records []types.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[requestID]; !ok {
		return types.ErrNotFound
	}
	m.records[requestID] = append(m.records[requestID], records...)

	return nil
}

func (m *MemoryStorage) GetTaskRecords(_ context.Context, requestID string) ([]types.TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[requestID]; !ok {
		return nil, types.ErrNotFound
	}
	records := slices.Clone(m.records[requestID])
	if records == nil {
		return []types.TaskRecord{}, nil
	}

	return records, nil
}
