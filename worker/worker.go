package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zkgrants/aggregator/aggregator/circuits"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
	"github.com/zkgrants/aggregator/metrics"
	"github.com/zkgrants/aggregator/proving"
)

const popErrorBackoff = time.Second

var (
	// ErrTaskNotFound is returned for an unknown task id
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotDone is returned when asking for the proof of an unfinished task
	ErrTaskNotDone = errors.New("task is not done")
	// ErrUnknownCircuit is returned for a circuit id out of the accepted set
	ErrUnknownCircuit = errors.New("unknown circuit")
)

// Service accepts prover tasks, queues them and proves them with a pool of
// workers. Every task goes PENDING -> PREPARING -> PROVING -> DONE|FAILED.
type Service struct {
	cfg      Config
	logger   *log.Logger
	backend  proving.Backend
	queue    Queue
	circuits *circuits.Repository
	tasks    TaskStore
	// cache is nil when disabled
	cache *lru.Cache[string, types.ProverProof]

	wg    sync.WaitGroup
	newID func() string
}

// New creates a Service. repo restricts the accepted circuits and may be nil.
func New(
	logger *log.Logger, cfg Config, backend proving.Backend, queue Queue, repo *circuits.Repository,
) (*Service, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("at least one worker is required, got %d", cfg.Workers)
	}

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		backend:  backend,
		queue:    queue,
		circuits: repo,
		tasks:    taskStoreFor(queue),
		newID:    uuid.NewString,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, types.ProverProof](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// taskStoreFor shares the task states through redis when the queue is shared
func taskStoreFor(queue Queue) TaskStore {
	if q, ok := queue.(*RedisQueue); ok {
		return q.TaskStore()
	}

	return NewMemoryTaskStore()
}

// Start runs the workers until ctx is done
func (s *Service) Start(ctx context.Context) {
	s.logger.Infof("starting %d workers", s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func(worker int) {
			defer s.wg.Done()
			s.work(ctx, s.logger.WithFields("worker", worker))
		}(i)
	}
	s.wg.Wait()
}

func (s *Service) work(ctx context.Context, logger *log.Logger) {
	for {
		job, err := s.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				logger.Debug("worker stopped")
				return
			}
			logger.Errorf("failed to get a job: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(popErrorBackoff):
			}
			continue
		}

		s.process(ctx, logger, job)
	}
}

// Submit validates task and queues it, returning the id of the new task. A
// task whose proof is cached is created DONE unless forceProve is set.
func (s *Service) Submit(ctx context.Context, task types.ProverTask, forceProve bool) (string, error) {
	if _, err := task.Input.Request.Kind(); err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrInvalidInput, err)
	}
	if err := s.checkCircuit(task.CircuitID); err != nil {
		return "", err
	}

	id := s.newID()
	if !forceProve {
		if proof, ok := s.cached(task); ok {
			s.logger.Debugf("task %s of circuit %s answered from cache", id, task.CircuitID)
			metrics.WorkerCacheHitsTotal.Inc()
			if err := s.tasks.Put(ctx, id, TaskState{Status: types.TaskStatusDone, Proof: &proof}); err != nil {
				return "", err
			}
			return id, nil
		}
	}

	if err := s.tasks.Put(ctx, id, TaskState{Status: types.TaskStatusPending}); err != nil {
		return "", err
	}
	job := Job{ID: id, Task: task, ForceProve: forceProve, CreatedAt: time.Now()}
	if err := s.queue.Push(ctx, job); err != nil {
		if rmErr := s.tasks.Remove(ctx, id); rmErr != nil {
			s.logger.Warnf("failed to remove task %s: %v", id, rmErr)
		}
		return "", fmt.Errorf("failed to queue task: %w", err)
	}
	s.logger.Debugf("task %s of circuit %s queued", id, task.CircuitID)

	return id, nil
}

// Status returns the status of task id
func (s *Service) Status(ctx context.Context, id string) (types.TaskStatus, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return "", err
	}

	return t.Status, nil
}

// Proof returns the proof of the DONE task id
func (s *Service) Proof(ctx context.Context, id string) (types.ProverProof, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return types.ProverProof{}, err
	}
	if t.Status != types.TaskStatusDone || t.Proof == nil {
		return types.ProverProof{}, fmt.Errorf("%w: task %s is %s", ErrTaskNotDone, id, t.Status)
	}

	return *t.Proof, nil
}

// BuildCircuit builds the circuit of task without proving it
func (s *Service) BuildCircuit(ctx context.Context, task types.ProverTask) error {
	if err := s.checkCircuit(task.CircuitID); err != nil {
		return err
	}

	return s.backend.BuildCircuit(ctx, task.CircuitID, task.Input.Request)
}

// Reset drops the built circuits and every cached proof
func (s *Service) Reset() {
	s.backend.Reset()
	if s.cache != nil {
		s.cache.Purge()
	}
	s.logger.Info("prover state reset")
}

func (s *Service) process(ctx context.Context, logger *log.Logger, job Job) {
	tmpLogger := logger.WithFields("taskId", job.ID, "circuitId", job.Task.CircuitID)
	s.setState(ctx, tmpLogger, job.ID, TaskState{Status: types.TaskStatusPreparing})
	if err := s.backend.BuildCircuit(ctx, job.Task.CircuitID, job.Task.Input.Request); err != nil {
		s.failJob(ctx, tmpLogger, job, fmt.Errorf("failed to build circuit: %w", err))
		return
	}

	s.setState(ctx, tmpLogger, job.ID, TaskState{Status: types.TaskStatusProving})
	start := time.Now()
	proof, err := proving.Prove(ctx, s.backend, job.Task)
	if err != nil {
		s.failJob(ctx, tmpLogger, job, fmt.Errorf("failed to prove: %w", err))
		return
	}

	s.store(job.Task, proof)
	s.setState(ctx, tmpLogger, job.ID, TaskState{Status: types.TaskStatusDone, Proof: &proof})
	metrics.WorkerJobsTotal.WithLabelValues(string(types.TaskStatusDone)).Inc()
	tmpLogger.Infof("task proven in %s", time.Since(start))
}

func (s *Service) failJob(ctx context.Context, tmpLogger *log.Logger, job Job, err error) {
	tmpLogger.Errorf("task failed: %v", err)
	s.setState(context.WithoutCancel(ctx), tmpLogger, job.ID, TaskState{Status: types.TaskStatusFailed, Error: err.Error()})
	metrics.WorkerJobsTotal.WithLabelValues(string(types.TaskStatusFailed)).Inc()
}

func (s *Service) setState(ctx context.Context, tmpLogger *log.Logger, id string, state TaskState) {
	if err := s.tasks.Put(ctx, id, state); err != nil {
		tmpLogger.Errorf("failed to set task %s: %v", state.Status, err)
	}
}

func (s *Service) checkCircuit(circuitID string) error {
	if circuitID == "" {
		return fmt.Errorf("%w: empty circuit id", types.ErrInvalidInput)
	}
	if s.circuits == nil {
		return nil
	}
	if _, err := s.circuits.Params(circuitID); err != nil {
		return fmt.Errorf("%w: %w: %s", types.ErrInvalidInput, ErrUnknownCircuit, circuitID)
	}

	return nil
}

func (s *Service) cached(task types.ProverTask) (types.ProverProof, bool) {
	if s.cache == nil {
		return types.ProverProof{}, false
	}
	key, err := cacheKey(task)
	if err != nil {
		return types.ProverProof{}, false
	}

	return s.cache.Get(key)
}

func (s *Service) store(task types.ProverTask, proof types.ProverProof) {
	if s.cache == nil {
		return
	}
	key, err := cacheKey(task)
	if err != nil {
		s.logger.Warnf("failed to cache proof: %v", err)
		return
	}
	s.cache.Add(key, proof)
}

// cacheKey is the input hash of the request, distinguishing snarks from final proofs
func cacheKey(task types.ProverTask) (string, error) {
	inputHash, err := proving.InputHash(task.CircuitID, task.Input.Request)
	if err != nil {
		return "", err
	}

	return inputHash + ":" + strconv.FormatBool(task.Input.IsEvmProof), nil
}
