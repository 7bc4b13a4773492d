package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
	"github.com/zkgrants/aggregator/metrics"
	"golang.org/x/sync/errgroup"
)

// aggregationArity is the number of snarks an Intermediate or Root node proves
const aggregationArity = 2

var (
	// ErrUnexpectedProof is returned when a proof has not the form the tree expects
	ErrUnexpectedProof = errors.New("unexpected proof form")
	// ErrSnarkCount is returned when a node gets a number of child snarks it can't prove
	ErrSnarkCount = errors.New("wrong number of child snarks")
)

type nodeState string

const (
	nodeDecomposing      nodeState = "decomposing"
	nodeAwaitingChildren nodeState = "awaiting_children"
	nodeDispatched       nodeState = "dispatched"
	nodeCompleted        nodeState = "completed"
	nodeFailed           nodeState = "failed"
)

// Scheduler proves recursive requests by walking the aggregation tree
// bottom-up: the dependencies of a node are proven concurrently and their
// snarks fed to the node's own proof task.
type Scheduler struct {
	logger   *log.Logger
	circuits CircuitRepository
	executor Executor
	tasks    TaskRecorder
}

// New creates a new Scheduler
func New(logger *log.Logger, circuits CircuitRepository, executor Executor, tasks TaskRecorder) *Scheduler {
	return &Scheduler{
		logger:   logger,
		circuits: circuits,
		executor: executor,
		tasks:    tasks,
	}
}

// RecursiveGenProof proves req and every node below it. When wantFinal is
// set the executor is asked for the final on-chain form of the proof. The
// first failing dependency fails the whole subtree and no task is sent for
// req in that case.
func (s *Scheduler) RecursiveGenProof(
	ctx context.Context, requestID string, req types.RecursiveRequest, wantFinal bool,
) (types.ProverProof, error) {
	tmpLogger := s.logger.WithFields(
		"requestId", requestID,
		"node", req.Params.String(),
		"range", fmt.Sprintf("[%d, %d)", req.Start, req.End),
	)

	proof, err := s.genProof(ctx, tmpLogger, requestID, req, wantFinal)
	if err != nil {
		s.transition(tmpLogger, nodeFailed)
		return types.ProverProof{}, err
	}
	s.transition(tmpLogger, nodeCompleted)

	return proof, nil
}

func (s *Scheduler) genProof(
	ctx context.Context, tmpLogger *log.Logger, requestID string, req types.RecursiveRequest, wantFinal bool,
) (types.ProverProof, error) {
	s.transition(tmpLogger, nodeDecomposing)
	if err := req.Validate(); err != nil {
		return types.ProverProof{}, err
	}
	deps := req.Dependencies()

	var snarks []types.Snark
	if len(deps) > 0 {
		s.transition(tmpLogger, nodeAwaitingChildren)
		var err error
		snarks, err = s.proveDependencies(ctx, requestID, deps)
		if err != nil {
			return types.ProverProof{}, err
		}
	}

	taskRequest, err := buildTaskRequest(req, snarks)
	if err != nil {
		return types.ProverProof{}, err
	}

	circuitID, err := s.circuits.CircuitID(req.Params)
	if err != nil {
		return types.ProverProof{}, fmt.Errorf("failed to get circuit of %s: %w", req.Params, err)
	}

	s.transition(tmpLogger, nodeDispatched)
	result, err := s.executor.Execute(ctx, types.ProverTask{
		CircuitID: circuitID,
		Input: types.TaskInput{
			IsEvmProof: wantFinal,
			Request:    taskRequest,
		},
	})
	if err != nil {
		return types.ProverProof{}, err
	}

	if err := s.tasks.RecordTask(requestID, result.TaskID, req.Params); err != nil {
		return types.ProverProof{}, fmt.Errorf("failed to record task %s: %w", result.TaskID, err)
	}

	if wantFinal && !result.Proof.IsFinal() {
		return types.ProverProof{}, fmt.Errorf("%w: final proof requested for %s, got a snark", ErrUnexpectedProof, req.Params)
	}

	return result.Proof, nil
}

// proveDependencies proves deps concurrently, returning their snarks in
// the order of deps. Nothing is returned unless every dependency succeeds.
func (s *Scheduler) proveDependencies(
	ctx context.Context, requestID string, deps []types.RecursiveRequest,
) ([]types.Snark, error) {
	snarks := make([]types.Snark, len(deps))

	var g errgroup.Group
	for i, dep := range deps {
		g.Go(func() error {
			proof, err := s.RecursiveGenProof(ctx, requestID, dep, false)
			if err != nil {
				return err
			}
			if proof.Snark == nil {
				return fmt.Errorf("%w: dependency %s returned a final proof", ErrUnexpectedProof, dep.Params)
			}
			snarks[i] = *proof.Snark

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return snarks, nil
}

func (s *Scheduler) transition(tmpLogger *log.Logger, state nodeState) {
	tmpLogger.Debugf("node %s", state)
	metrics.SchedulerNodesTotal.WithLabelValues(string(state)).Inc()
}

// buildTaskRequest shapes the task of req from the snarks of its dependencies
func buildTaskRequest(req types.RecursiveRequest, snarks []types.Snark) (types.TaskRequest, error) {
	p := req.Params

	if p.IsLeafDepth() {
		return types.TaskRequest{Leaf: &types.LeafRequest{
			Start:   req.Start,
			End:     req.End,
			Depth:   p.Depth,
			Root:    req.Root,
			GrantID: req.GrantID,
			Claims:  req.Claims,
		}}, nil
	}

	switch p.NodeType.Kind {
	case types.NodeKindIntermediate, types.NodeKindRoot:
		padded, err := padSnarks(snarks)
		if err != nil {
			return types.TaskRequest{}, fmt.Errorf("%s: %w", p, err)
		}
		agg := &types.AggregationRequest{
			Start:        req.Start,
			End:          req.End,
			Depth:        p.Depth,
			InitialDepth: p.InitialDepth,
			Snarks:       padded,
		}
		if p.NodeType.Kind == types.NodeKindRoot {
			return types.TaskRequest{Root: agg}, nil
		}

		return types.TaskRequest{Intermediate: agg}, nil

	case types.NodeKindEvm:
		if len(snarks) != 1 {
			return types.TaskRequest{}, fmt.Errorf("%w: %s takes 1 snark, got %d", ErrSnarkCount, p, len(snarks))
		}

		return types.TaskRequest{Evm: &types.EvmRequest{
			Start:        req.Start,
			End:          req.End,
			Depth:        p.Depth,
			InitialDepth: p.InitialDepth,
			Round:        p.NodeType.Round,
			Snark:        snarks[0],
		}}, nil

	default:
		return types.TaskRequest{}, fmt.Errorf("%w: no task for %s", types.ErrInvalidInput, p)
	}
}

// padSnarks returns exactly two snarks, duplicating the first one when the
// node only has one dependency
func padSnarks(snarks []types.Snark) ([]types.Snark, error) {
	switch len(snarks) {
	case 0:
		return nil, fmt.Errorf("%w: aggregation without snarks", ErrSnarkCount)
	case 1:
		return []types.Snark{snarks[0], snarks[0]}, nil
	case aggregationArity:
		return snarks, nil
	default:
		return nil, fmt.Errorf("%w: aggregation takes %d snarks, got %d", ErrSnarkCount, aggregationArity, len(snarks))
	}
}
