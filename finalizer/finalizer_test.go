package finalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	cfgTypes "github.com/zkgrants/aggregator/config/types"
	"github.com/zkgrants/aggregator/log"
)

type proverFunc func(ctx context.Context, requestID string, req types.RecursiveRequest, wantFinal bool) (types.ProverProof, error)

func (f proverFunc) RecursiveGenProof(
	ctx context.Context, requestID string, req types.RecursiveRequest, wantFinal bool,
) (types.ProverProof, error) {
	return f(ctx, requestID, req, wantFinal)
}

type fakeSubmitter struct {
	mu       sync.Mutex
	failures int
	calls    int
	proofs   [][]byte
}

func (s *fakeSubmitter) SubmitGrants(
	_ context.Context, root, grantID string, claims []types.Claim, proof []byte,
) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return common.Hash{}, errors.New("nonce too low")
	}
	s.proofs = append(s.proofs, proof)

	return common.HexToHash("0xabc"), nil
}

func (s *fakeSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func testClaims(n int) []types.Claim {
	claims := make([]types.Claim, n)
	for i := range claims {
		claims[i] = types.Claim{
			Receiver:      common.BigToAddress(common.Big1),
			NullifierHash: fmt.Sprintf("%d", 1000+i),
			Proof:         []string{"1"},
		}
	}

	return claims
}

func testRequest(numProofs, maxProofs uint) Request {
	return Request{
		NumProofs: numProofs,
		MaxProofs: maxProofs,
		Root:      "12345",
		GrantID:   "30",
		Claims:    testClaims(int(numProofs)),
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()

	return Config{
		InitialDepth:         3,
		ExtraRounds:          1,
		ExecutionSummaryPath: filepath.Join(t.TempDir(), "summaries"),
		SubmitMaxAttempts:    3,
		SubmitRetryDelay:     cfgTypes.NewDuration(time.Millisecond),
	}
}

type finalizerWithFakes struct {
	finalizer *Finalizer
	tasks     *tracker.TaskTracker
	jobs      *tracker.JobTracker
}

func newFinalizer(t *testing.T, cfg Config, prover Prover, submitter Submitter) finalizerWithFakes {
	t.Helper()
	f := finalizerWithFakes{
		tasks: tracker.NewTaskTracker(),
		jobs:  tracker.NewJobTracker(tracker.NewMemoryStorage()),
	}
	var err error
	f.finalizer, err = New(log.GetDefaultLogger(), cfg, prover, f.tasks, f.jobs, submitter)
	require.NoError(t, err)
	f.finalizer.newID = func() string { return "req-1" }

	return f
}

// provingTasks returns a prover recording a leaf task, then failing with
// proveErr or recording the top task and returning proof
func provingTasks(tasks *tracker.TaskTracker, proof types.ProverProof, proveErr error) Prover {
	return proverFunc(func(_ context.Context, requestID string, req types.RecursiveRequest, _ bool) (types.ProverProof, error) {
		leaf := types.NodeParams{NodeType: types.Leaf(), Depth: req.Params.InitialDepth, InitialDepth: req.Params.InitialDepth}
		if err := tasks.RecordTask(requestID, "t-leaf", leaf); err != nil {
			return types.ProverProof{}, err
		}
		if proveErr != nil {
			return types.ProverProof{}, proveErr
		}
		if err := tasks.RecordTask(requestID, "t-evm", req.Params); err != nil {
			return types.ProverProof{}, err
		}

		return proof, nil
	})
}

func TestValidate(t *testing.T) {
	f := newFinalizer(t, testConfig(t), nil, nil).finalizer

	invalid := map[string]Request{
		"too many proofs":       testRequest(5, 4),
		"not a power of two":    testRequest(5, 6),
		"no proofs":             testRequest(0, 4),
		"depth below initial":   testRequest(4, 4),
		"claims length differs": {NumProofs: 3, MaxProofs: 4, Claims: testClaims(2)},
	}
	badRoot := testRequest(4, 8)
	badRoot.Root = "0xabc"
	invalid["root not decimal"] = badRoot
	badGrant := testRequest(4, 8)
	badGrant.GrantID = "-1"
	invalid["negative grant id"] = badGrant
	badNullifier := testRequest(4, 8)
	badNullifier.Claims[2].NullifierHash = "nope"
	invalid["nullifier hash not decimal"] = badNullifier
	for name, req := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := f.Validate(req)
			require.ErrorIs(t, err, types.ErrInvalidInput)
		})
	}

	root, err := f.Validate(testRequest(9, 16))
	require.NoError(t, err)
	require.Equal(t, types.NodeParams{NodeType: types.Evm(1), Depth: 4, InitialDepth: 3}, root.Params)
	require.Equal(t, uint(0), root.Start)
	require.Equal(t, uint(9), root.End)
	require.Equal(t, "12345", root.Root)
	require.Equal(t, "30", root.GrantID)

	initialDepth := uint(1)
	req := testRequest(4, 4)
	req.InitialDepth = &initialDepth
	root, err = f.Validate(req)
	require.NoError(t, err)
	require.Equal(t, types.NodeParams{NodeType: types.Evm(1), Depth: 2, InitialDepth: 1}, root.Params)
}

func TestSubmitInvalidRequest(t *testing.T) {
	f := newFinalizer(t, testConfig(t), nil, nil)

	_, err := f.finalizer.Submit(context.Background(), testRequest(5, 4))
	require.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = f.jobs.GetJob(context.Background(), "req-1")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestSubmitSettlesFinalProof(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	submitter := &fakeSubmitter{failures: 1}
	f := newFinalizer(t, cfg, nil, submitter)
	f.finalizer.prover = provingTasks(f.tasks, types.FinalProof([]byte{0xde, 0xad}), nil)

	requestID, err := f.finalizer.Submit(ctx, testRequest(16, 16))
	require.NoError(t, err)
	require.Equal(t, "req-1", requestID)
	f.finalizer.Wait()

	job, err := f.finalizer.GetJob(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, tracker.JobStatusDone, job.Status)
	require.Equal(t, "0xdead", job.Proof)
	require.Equal(t, common.HexToHash("0xabc").Hex(), job.TxHash)
	require.Equal(t, 2, submitter.callCount())
	require.Equal(t, [][]byte{{0xde, 0xad}}, submitter.proofs)

	summary, err := f.finalizer.Summary(ctx, requestID)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	require.Equal(t, "t-leaf", summary[0].TaskID)

	data, err := os.ReadFile(filepath.Join(cfg.ExecutionSummaryPath, requestID+".json"))
	require.NoError(t, err)
	var written []types.TaskRecord
	require.NoError(t, json.Unmarshal(data, &written))
	require.Equal(t, summary, written)

	require.Empty(t, f.tasks.Tasks(requestID))
}

func TestSubmitFailedProofIsNotSettled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	submitter := &fakeSubmitter{}
	cause := fmt.Errorf("%w: task t-leaf failed", types.ErrExecutorFailure)
	f := newFinalizer(t, cfg, nil, submitter)
	f.finalizer.prover = provingTasks(f.tasks, types.ProverProof{}, cause)

	requestID, err := f.finalizer.Submit(ctx, testRequest(16, 16))
	require.NoError(t, err)
	f.finalizer.Wait()

	job, err := f.finalizer.GetJob(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, tracker.JobStatusFailed, job.Status)
	require.Contains(t, job.Error, "task t-leaf failed")
	require.Empty(t, job.TxHash)
	require.Zero(t, submitter.callCount())

	_, err = os.Stat(filepath.Join(cfg.ExecutionSummaryPath, requestID+".json"))
	require.True(t, os.IsNotExist(err))
	require.Empty(t, f.tasks.Tasks(requestID))
}

func TestSubmitNonFinalProofFails(t *testing.T) {
	ctx := context.Background()
	snark := types.SnarkProof(types.Snark{CircuitID: "c", Snark: []byte{1}})
	f := newFinalizer(t, testConfig(t), nil, &fakeSubmitter{})
	f.finalizer.prover = provingTasks(f.tasks, snark, nil)

	requestID, err := f.finalizer.Submit(ctx, testRequest(8, 8))
	require.NoError(t, err)
	f.finalizer.Wait()

	job, err := f.finalizer.GetJob(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, tracker.JobStatusFailed, job.Status)
	require.Equal(t, ErrNoFinalProof.Error(), job.Error)
}

func TestSubmitGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	submitter := &fakeSubmitter{failures: 100}
	f := newFinalizer(t, testConfig(t), nil, submitter)
	f.finalizer.prover = provingTasks(f.tasks, types.FinalProof([]byte{1}), nil)

	requestID, err := f.finalizer.Submit(ctx, testRequest(8, 8))
	require.NoError(t, err)
	f.finalizer.Wait()

	job, err := f.finalizer.GetJob(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, tracker.JobStatusDone, job.Status)
	require.Empty(t, job.TxHash)
	require.Equal(t, 3, submitter.callCount())
}

func TestSubmitWithoutSubmitter(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.ExecutionSummaryPath = ""
	f := newFinalizer(t, cfg, nil, nil)
	f.finalizer.prover = provingTasks(f.tasks, types.FinalProof([]byte{1}), nil)

	requestID, err := f.finalizer.Submit(ctx, testRequest(8, 8))
	require.NoError(t, err)
	f.finalizer.Wait()

	job, err := f.finalizer.GetJob(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, tracker.JobStatusDone, job.Status)
	require.Empty(t, job.TxHash)

	summary, err := f.finalizer.Summary(ctx, requestID)
	require.NoError(t, err)
	require.Len(t, summary, 2)
}
