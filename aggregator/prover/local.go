package prover

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
	"github.com/zkgrants/aggregator/proving"
	"golang.org/x/sync/semaphore"
)

// Local runs tasks in-process on a proving backend
type Local struct {
	logger  *log.Logger
	backend proving.Backend
	sem     *semaphore.Weighted
}

var _ Runner = (*Local)(nil)

// NewLocal returns a Local runner proving at most concurrency tasks at once,
// 0 means unlimited
func NewLocal(logger *log.Logger, backend proving.Backend, concurrency int) (*Local, error) {
	if concurrency < 0 {
		return nil, fmt.Errorf("concurrency must not be negative, got %d", concurrency)
	}
	l := &Local{
		logger:  logger,
		backend: backend,
	}
	if concurrency > 0 {
		l.sem = semaphore.NewWeighted(int64(concurrency))
	}

	return l, nil
}

// NewLocalFromConfig returns a Local runner over a DigestBackend
func NewLocalFromConfig(logger *log.Logger, cfg LocalConfig) (*Local, error) {
	backend, err := proving.NewDigestBackend(logger, cfg.Proving)
	if err != nil {
		return nil, err
	}

	return NewLocal(logger, backend, cfg.Concurrency)
}

// Run proves task with a fresh task id
func (l *Local) Run(ctx context.Context, task types.ProverTask) (string, types.ProverProof, error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return "", types.ProverProof{}, err
		}
		defer l.sem.Release(1)
	}

	taskID := uuid.NewString()
	proof, err := proving.Prove(ctx, l.backend, task)
	if err != nil {
		return taskID, types.ProverProof{}, fmt.Errorf("task %s: %w", taskID, err)
	}

	return taskID, proof, nil
}
