package tracker

import (
	"errors"
	"slices"
	"sync"

	"github.com/zkgrants/aggregator/aggregator/types"
)

var (
	// ErrEmptyRequestID is returned when recording a task without request id
	ErrEmptyRequestID = errors.New("empty request id")
	// ErrEmptyTaskID is returned when recording a task without task id
	ErrEmptyTaskID = errors.New("empty task id")
)

// TaskTracker records which executor tasks were run for each top level request.
// Records of one request are appended by concurrent branches of its tree, in
// no particular order.
type TaskTracker struct {
	mu    sync.Mutex
	tasks map[string][]types.TaskRecord
}

// NewTaskTracker returns an empty TaskTracker
func NewTaskTracker() *TaskTracker {
	return &TaskTracker{tasks: make(map[string][]types.TaskRecord)}
}

// RecordTask appends a record under requestID
func (t *TaskTracker) RecordTask(requestID, taskID string, params types.NodeParams) error {
	if requestID == "" {
		return ErrEmptyRequestID
	}
	if taskID == "" {
		return ErrEmptyTaskID
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[requestID] = append(t.tasks[requestID], types.TaskRecord{TaskID: taskID, Params: params})

	return nil
}

// Tasks returns a copy of the records of requestID
func (t *TaskTracker) Tasks(requestID string) []types.TaskRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	records := slices.Clone(t.tasks[requestID])
	if records == nil {
		return []types.TaskRecord{}
	}

	return records
}

// Forget drops the records of requestID
func (t *TaskTracker) Forget(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, requestID)
}
