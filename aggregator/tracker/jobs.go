package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/zkgrants/aggregator/aggregator/types"
)

var (
	// ErrJobExists is returned when creating a job with an id already in use
	ErrJobExists = errors.New("job already exists")
	// ErrInvalidTransition is returned when a job can't move to the requested status
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobStatus is the status of an aggregation job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is the externally visible state of an aggregation request
type Job struct {
	RequestID string    `json:"request_id" meddler:"request_id"`
	Status    JobStatus `json:"status" meddler:"status"`
	// Proof is the hex encoded final proof, set once DONE
	Proof string `json:"proof,omitempty" meddler:"proof"`
	// TxHash of the on-chain submission, if it succeeded
	TxHash       string `json:"tx_hash,omitempty" meddler:"tx_hash"`
	Error        string `json:"error,omitempty" meddler:"error"`
	CreatedAtSec uint64 `json:"created_at_sec" meddler:"created_at_sec"`
	UpdatedAtSec uint64 `json:"updated_at_sec" meddler:"updated_at_sec"`
}

// JobTracker enforces the lifecycle PENDING -> RUNNING -> DONE|FAILED of jobs
// kept in a JobStorage
type JobTracker struct {
	mu      sync.Mutex
	storage JobStorage
	now     func() time.Time
}

// NewJobTracker returns a JobTracker over storage
func NewJobTracker(storage JobStorage) *JobTracker {
	return &JobTracker{storage: storage, now: time.Now}
}

// CreateJob registers a PENDING job
func (t *JobTracker) CreateJob(ctx context.Context, requestID string) (Job, error) {
	if requestID == "" {
		return Job{}, ErrEmptyRequestID
	}
	now := uint64(t.now().Unix())
	job := Job{
		RequestID:    requestID,
		Status:       JobStatusPending,
		CreatedAtSec: now,
		UpdatedAtSec: now,
	}
	if err := t.storage.InsertJob(ctx, job); err != nil {
		return Job{}, fmt.Errorf("failed to insert job %s: %w", requestID, err)
	}

	return job, nil
}

// StartJob moves a PENDING job to RUNNING
func (t *JobTracker) StartJob(ctx context.Context, requestID string) error {
	return t.transition(ctx, requestID, func(job *Job) error {
		if job.Status != JobStatusPending {
			return fmt.Errorf("%w: start job in status %s", ErrInvalidTransition, job.Status)
		}
		job.Status = JobStatusRunning

		return nil
	})
}

// FinishJob moves a RUNNING job to DONE storing its final proof
func (t *JobTracker) FinishJob(ctx context.Context, requestID string, proof []byte) error {
	return t.transition(ctx, requestID, func(job *Job) error {
		if job.Status != JobStatusRunning {
			return fmt.Errorf("%w: finish job in status %s", ErrInvalidTransition, job.Status)
		}
		job.Status = JobStatusDone
		job.Proof = hexutil.Encode(proof)

		return nil
	})
}

// FailJob moves a PENDING or RUNNING job to FAILED
func (t *JobTracker) FailJob(ctx context.Context, requestID string, cause error) error {
	return t.transition(ctx, requestID, func(job *Job) error {
		if job.Status != JobStatusPending && job.Status != JobStatusRunning {
			return fmt.Errorf("%w: fail job in status %s", ErrInvalidTransition, job.Status)
		}
		job.Status = JobStatusFailed
		if cause != nil {
			job.Error = cause.Error()
		}

		return nil
	})
}

// SetTxHash stores the hash of the transaction settling a DONE job
func (t *JobTracker) SetTxHash(ctx context.Context, requestID string, txHash common.Hash) error {
	return t.transition(ctx, requestID, func(job *Job) error {
		if job.Status != JobStatusDone {
			return fmt.Errorf("%w: set tx hash of job in status %s", ErrInvalidTransition, job.Status)
		}
		job.TxHash = txHash.Hex()

		return nil
	})
}

// GetJob returns the job requestID
func (t *JobTracker) GetJob(ctx context.Context, requestID string) (Job, error) {
	return t.storage.GetJob(ctx, requestID)
}

// SaveSummary stores the execution summary of a job
func (t *JobTracker) SaveSummary(ctx context.Context, requestID string, records []types.TaskRecord) error {
	return t.storage.SaveTaskRecords(ctx, requestID, records)
}

// Summary returns the execution summary of a job
func (t *JobTracker) Summary(ctx context.Context, requestID string) ([]types.TaskRecord, error) {
	return t.storage.GetTaskRecords(ctx, requestID)
}

func (t *JobTracker) transition(ctx context.Context, requestID string, apply func(job *Job) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.storage.GetJob(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to get job %s: %w", requestID, err)
	}
	if err := apply(&job); err != nil {
		return err
	}
	job.UpdatedAtSec = uint64(t.now().Unix())

	return t.storage.UpdateJob(ctx, job)
}
