package prover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
	"github.com/zkgrants/aggregator/metrics"
	"github.com/zkgrants/aggregator/proving"
)

const (
	// ExecutorDispatcher sends tasks to remote prover workers
	ExecutorDispatcher = "dispatcher"
	// ExecutorLocal proves tasks in-process
	ExecutorLocal = "local"
)

var (
	ErrUnknownExecutor = errors.New("unknown executor type")            //nolint:revive
	ErrInvalidProof    = errors.New("prover returned an invalid proof") //nolint:revive
)

// Runner runs a ProverTask to completion and returns the id the task was
// known by together with its proof.
type Runner interface {
	Run(ctx context.Context, task types.ProverTask) (string, types.ProverProof, error)
}

// Config is the configuration of the proof executor
type Config struct {
	// Type is the executor to use: "dispatcher" or "local"
	Type string `mapstructure:"Type"`
	// Dispatcher configures the remote executor
	Dispatcher DispatcherConfig `mapstructure:"Dispatcher"`
	// Local configures the in-process executor
	Local LocalConfig `mapstructure:"Local"`
}

// Executor runs tasks through a Runner, adding timing metadata and metrics
type Executor struct {
	runner Runner
	logger *log.Logger
	now    func() time.Time
}

// NewExecutor returns an Executor over runner
func NewExecutor(logger *log.Logger, runner Runner) *Executor {
	return &Executor{
		runner: runner,
		logger: logger,
		now:    time.Now,
	}
}

// New builds the Executor selected by cfg.Type
func New(logger *log.Logger, cfg Config) (*Executor, error) {
	var (
		runner Runner
		err    error
	)
	switch cfg.Type {
	case ExecutorDispatcher, "":
		runner, err = NewDispatcher(logger, cfg.Dispatcher)
	case ExecutorLocal:
		runner, err = NewLocalFromConfig(logger, cfg.Local)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExecutor, cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	logger.Infof("using %s executor", cfg.Type)

	return NewExecutor(logger, runner), nil
}

// Execute runs task and wraps every failure in types.ErrExecutorFailure
func (e *Executor) Execute(ctx context.Context, task types.ProverTask) (types.ExecutionResult, error) {
	kind, err := task.Input.Request.Kind()
	if err != nil {
		return types.ExecutionResult{}, fmt.Errorf("%w: %w", types.ErrExecutorFailure, err)
	}
	start, end := task.Input.Request.Range()
	nodeKind := kind.String()

	metrics.ExecutorInFlight.Inc()
	defer metrics.ExecutorInFlight.Dec()

	startedAt := e.now()
	e.logger.Debugf("executing %s task [%d, %d) on circuit %s", nodeKind, start, end, task.CircuitID)
	taskID, proof, err := e.runner.Run(ctx, task)
	finishedAt := e.now()

	metrics.ExecutorTaskDuration.WithLabelValues(nodeKind).Observe(finishedAt.Sub(startedAt).Seconds())
	if err == nil {
		err = proof.Validate()
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidProof, err)
		}
	}
	if err == nil && task.Input.IsEvmProof && !proof.IsFinal() {
		err = fmt.Errorf("%w: final proof requested, got a snark", ErrInvalidProof)
	}
	metrics.RecordResult(metrics.ExecutorTasksTotal, err, nodeKind)
	if err != nil {
		e.logger.Warnf("%s task [%d, %d) on circuit %s failed: %v", nodeKind, start, end, task.CircuitID, err)
		return types.ExecutionResult{}, fmt.Errorf("%w: circuit %s: %w", types.ErrExecutorFailure, task.CircuitID, err)
	}

	summary := types.ExecutionSummary{
		TaskID:     taskID,
		CircuitID:  task.CircuitID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	e.logger.Infof("%s task %s [%d, %d) done in %s", nodeKind, taskID, start, end, summary.Duration())

	return types.ExecutionResult{
		TaskID:  taskID,
		Proof:   proof,
		Summary: summary,
	}, nil
}

// LocalConfig is the configuration of the in-process executor
type LocalConfig struct {
	// Concurrency caps parallel proofs, 0 means unlimited
	Concurrency int `mapstructure:"Concurrency"`
	// Proving configures the proving backend
	Proving proving.Config `mapstructure:"Proving"`
}
