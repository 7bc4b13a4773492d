package finalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	zkcommon "github.com/zkgrants/aggregator/common"
	"github.com/zkgrants/aggregator/log"
	"github.com/zkgrants/aggregator/metrics"
)

const (
	summaryFilePermissions = os.FileMode(0600)
	summaryDirPermissions  = os.FileMode(0750)
)

// ErrNoFinalProof is returned when the scheduler ends a job without a final proof
var ErrNoFinalProof = errors.New("scheduler returned no final proof")

// Request is an inbound aggregation request over NumProofs claims, in a tree
// sized for MaxProofs
type Request struct {
	NumProofs uint          `json:"num_proofs"`
	MaxProofs uint          `json:"max_proofs"`
	Root      string        `json:"root"`
	GrantID   string        `json:"grant_id"`
	Claims    []types.Claim `json:"claims"`
	// InitialDepth overrides the configured leaf layer depth
	InitialDepth *uint `json:"initial_depth,omitempty"`
}

// Prover proves a whole aggregation tree
type Prover interface {
	RecursiveGenProof(ctx context.Context, requestID string, req types.RecursiveRequest, wantFinal bool) (types.ProverProof, error)
}

// TaskSource gives the tasks run for a request
type TaskSource interface {
	Tasks(requestID string) []types.TaskRecord
	Forget(requestID string)
}

// Submitter settles a final proof on-chain
type Submitter interface {
	SubmitGrants(ctx context.Context, root, grantID string, claims []types.Claim, proof []byte) (common.Hash, error)
}

// Finalizer turns inbound requests into background aggregation jobs and
// settles their final proofs
type Finalizer struct {
	cfg       Config
	logger    *log.Logger
	prover    Prover
	tasks     TaskSource
	jobs      *tracker.JobTracker
	submitter Submitter

	wg    sync.WaitGroup
	newID func() string
}

// New creates a new Finalizer. submitter may be nil, in which case final
// proofs are not settled.
func New(
	logger *log.Logger,
	cfg Config,
	prover Prover,
	tasks TaskSource,
	jobs *tracker.JobTracker,
	submitter Submitter,
) (*Finalizer, error) {
	if cfg.ExecutionSummaryPath != "" {
		if err := os.MkdirAll(cfg.ExecutionSummaryPath, summaryDirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create execution summary dir %s: %w", cfg.ExecutionSummaryPath, err)
		}
	}
	if submitter == nil {
		logger.Warn("no submitter configured, final proofs won't be settled on-chain")
	}

	return &Finalizer{
		cfg:       cfg,
		logger:    logger,
		prover:    prover,
		tasks:     tasks,
		jobs:      jobs,
		submitter: submitter,
		newID:     uuid.NewString,
	}, nil
}

// Validate checks req and returns the request of the top node of its tree
func (f *Finalizer) Validate(req Request) (types.RecursiveRequest, error) {
	if req.NumProofs == 0 {
		return types.RecursiveRequest{}, fmt.Errorf("%w: no proofs to aggregate", types.ErrInvalidInput)
	}
	if req.NumProofs > req.MaxProofs {
		return types.RecursiveRequest{}, fmt.Errorf("%w: too many proofs, %d is greater than max proofs %d",
			types.ErrInvalidInput, req.NumProofs, req.MaxProofs)
	}
	if !zkcommon.IsPowerOfTwo(uint64(req.MaxProofs)) {
		return types.RecursiveRequest{}, fmt.Errorf("%w: max proofs %d must be a power of two",
			types.ErrInvalidInput, req.MaxProofs)
	}
	if req.NumProofs != uint(len(req.Claims)) {
		return types.RecursiveRequest{}, fmt.Errorf("%w: num proofs %d and claims %d must have the same length",
			types.ErrInvalidInput, req.NumProofs, len(req.Claims))
	}
	if _, err := types.ParseDecimal("root", req.Root); err != nil {
		return types.RecursiveRequest{}, err
	}
	if _, err := types.ParseDecimal("grant_id", req.GrantID); err != nil {
		return types.RecursiveRequest{}, err
	}
	for i, claim := range req.Claims {
		if _, err := types.ParseDecimal("nullifier_hash", claim.NullifierHash); err != nil {
			return types.RecursiveRequest{}, fmt.Errorf("claim %d: %w", i, err)
		}
	}

	initialDepth := f.cfg.InitialDepth
	if req.InitialDepth != nil {
		initialDepth = *req.InitialDepth
	}
	depth := zkcommon.Log2(uint64(req.MaxProofs))
	params, err := types.NewNodeParams(types.Evm(f.cfg.ExtraRounds), depth, initialDepth)
	if err != nil {
		return types.RecursiveRequest{}, err
	}

	root := types.RecursiveRequest{
		Start:   0,
		End:     req.NumProofs,
		Root:    req.Root,
		GrantID: req.GrantID,
		Claims:  req.Claims,
		Params:  params,
	}
	if err := root.Validate(); err != nil {
		return types.RecursiveRequest{}, err
	}

	return root, nil
}

// Submit validates req, registers a job for it and proves it in the
// background. It returns the request id of the job.
func (f *Finalizer) Submit(ctx context.Context, req Request) (string, error) {
	root, err := f.Validate(req)
	if err != nil {
		return "", err
	}

	requestID := f.newID()
	if _, err := f.jobs.CreateJob(ctx, requestID); err != nil {
		return "", err
	}
	f.logger.Infof("running request %s: %d proofs at %s", requestID, req.NumProofs, root.Params)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.run(requestID, root)
	}()

	return requestID, nil
}

// Wait blocks until every running job is over
func (f *Finalizer) Wait() {
	f.wg.Wait()
}

// GetJob returns the status of the job requestID
func (f *Finalizer) GetJob(ctx context.Context, requestID string) (tracker.Job, error) {
	return f.jobs.GetJob(ctx, requestID)
}

// Summary returns the tasks run for the job requestID
func (f *Finalizer) Summary(ctx context.Context, requestID string) ([]types.TaskRecord, error) {
	return f.jobs.Summary(ctx, requestID)
}

// run proves root and settles the proof. Jobs aren't cancellable.
func (f *Finalizer) run(requestID string, root types.RecursiveRequest) {
	ctx := context.Background()
	tmpLogger := f.logger.WithFields("requestId", requestID)

	if err := f.jobs.StartJob(ctx, requestID); err != nil {
		tmpLogger.Errorf("failed to start job: %v", err)
		return
	}

	proof, err := f.prover.RecursiveGenProof(ctx, requestID, root, true)
	if err == nil && !proof.IsFinal() {
		err = ErrNoFinalProof
	}
	if err != nil {
		tmpLogger.Errorf("failed to generate proof: %v", err)
		f.tasks.Forget(requestID)
		if err := f.jobs.FailJob(ctx, requestID, err); err != nil {
			tmpLogger.Errorf("failed to mark job as failed: %v", err)
		}
		metrics.FinalizerJobsTotal.WithLabelValues(string(tracker.JobStatusFailed)).Inc()
		return
	}
	tmpLogger.Infof("successfully generated proof: %s", proof.EvmProof)

	records := f.tasks.Tasks(requestID)
	if err := f.writeSummary(requestID, records); err != nil {
		tmpLogger.Errorf("failed to write execution summary: %v", err)
	}
	if err := f.jobs.SaveSummary(ctx, requestID, records); err != nil {
		tmpLogger.Errorf("failed to save execution summary: %v", err)
	}
	f.tasks.Forget(requestID)

	if err := f.jobs.FinishJob(ctx, requestID, proof.EvmProof); err != nil {
		tmpLogger.Errorf("failed to mark job as done: %v", err)
	}
	metrics.FinalizerJobsTotal.WithLabelValues(string(tracker.JobStatusDone)).Inc()

	f.settle(ctx, tmpLogger, requestID, root, proof.EvmProof)
}

func (f *Finalizer) settle(
	ctx context.Context, tmpLogger *log.Logger, requestID string, root types.RecursiveRequest, proof []byte,
) {
	if f.submitter == nil {
		tmpLogger.Info("submission disabled, skipping settlement")
		return
	}

	var txHash common.Hash
	retry := zkcommon.RetryHandler{
		MaxAttempts: f.cfg.SubmitMaxAttempts,
		Delay:       f.cfg.SubmitRetryDelay.Duration,
		Logger:      tmpLogger,
	}
	err := retry.Do(ctx, "submit grants", func(ctx context.Context, attempt int) error {
		hash, err := f.submitter.SubmitGrants(ctx, root.Root, root.GrantID, root.Claims, proof)
		metrics.RecordResult(metrics.SubmissionAttemptsTotal, err)
		if err != nil {
			return err
		}
		txHash = hash

		return nil
	})
	if err != nil {
		tmpLogger.Errorf("failed to fulfill request: %v", fmt.Errorf("%w: %w", types.ErrSubmissionFailure, err))
		return
	}

	tmpLogger.Infof("fulfilled request, tx hash %s", txHash.Hex())
	if err := f.jobs.SetTxHash(ctx, requestID, txHash); err != nil {
		tmpLogger.Errorf("failed to store tx hash: %v", err)
	}
}

// writeSummary dumps the records as a pretty JSON array to {ExecutionSummaryPath}/{requestID}.json
func (f *Finalizer) writeSummary(requestID string, records []types.TaskRecord) error {
	if f.cfg.ExecutionSummaryPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(f.cfg.ExecutionSummaryPath, requestID+".json")

	return os.WriteFile(path, data, summaryFilePermissions)
}
