package prover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
	"github.com/zkgrants/aggregator/proving"
)

type runnerFunc func(ctx context.Context, task types.ProverTask) (string, types.ProverProof, error)

func (f runnerFunc) Run(ctx context.Context, task types.ProverTask) (string, types.ProverProof, error) {
	return f(ctx, task)
}

func newTestExecutor(runner Runner) *Executor {
	e := NewExecutor(log.GetDefaultLogger(), runner)
	clock := time.Unix(1_700_000_000, 0)
	e.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	return e
}

func TestExecutorExecute(t *testing.T) {
	snark := types.SnarkProof(types.Snark{CircuitID: "c1", Snark: []byte{0xaa}})
	e := newTestExecutor(runnerFunc(func(_ context.Context, task types.ProverTask) (string, types.ProverProof, error) {
		require.Equal(t, "c1", task.CircuitID)
		return "task-1", snark, nil
	}))

	res, err := e.Execute(context.Background(), testTask())
	require.NoError(t, err)
	require.Equal(t, "task-1", res.TaskID)
	require.Equal(t, snark, res.Proof)
	require.Equal(t, "task-1", res.Summary.TaskID)
	require.Equal(t, "c1", res.Summary.CircuitID)
	require.Equal(t, time.Second, res.Summary.Duration())
}

func TestExecutorWrapsRunnerErrors(t *testing.T) {
	cause := &TaskFailedError{TaskID: "t-9"}
	e := newTestExecutor(runnerFunc(func(context.Context, types.ProverTask) (string, types.ProverProof, error) {
		return "t-9", types.ProverProof{}, cause
	}))

	_, err := e.Execute(context.Background(), testTask())
	require.ErrorIs(t, err, types.ErrExecutorFailure)
	require.ErrorIs(t, err, ErrTaskFailed)
	require.ErrorContains(t, err, "circuit c1")
}

func TestExecutorRejectsMalformedTask(t *testing.T) {
	called := false
	e := newTestExecutor(runnerFunc(func(context.Context, types.ProverTask) (string, types.ProverProof, error) {
		called = true
		return "", types.ProverProof{}, nil
	}))

	_, err := e.Execute(context.Background(), types.ProverTask{CircuitID: "c1"})
	require.ErrorIs(t, err, types.ErrExecutorFailure)
	require.ErrorIs(t, err, types.ErrMalformedTaskRequest)
	require.False(t, called)
}

func TestExecutorChecksProofForm(t *testing.T) {
	tests := []struct {
		name  string
		final bool
		proof types.ProverProof
	}{
		{"empty proof", false, types.ProverProof{}},
		{"both forms", false, types.ProverProof{Snark: &types.Snark{}, EvmProof: []byte{1}}},
		{"snark when final requested", true, types.SnarkProof(types.Snark{CircuitID: "c1", Snark: []byte{1}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(runnerFunc(func(context.Context, types.ProverTask) (string, types.ProverProof, error) {
				return "t", tt.proof, nil
			}))
			task := testTask()
			task.Input.IsEvmProof = tt.final

			_, err := e.Execute(context.Background(), task)
			require.ErrorIs(t, err, types.ErrExecutorFailure)
			require.ErrorIs(t, err, ErrInvalidProof)
		})
	}
}

func TestNewExecutor(t *testing.T) {
	_, err := New(log.GetDefaultLogger(), Config{Type: "carrier-pigeon"})
	require.ErrorIs(t, err, ErrUnknownExecutor)

	_, err = New(log.GetDefaultLogger(), Config{Type: ExecutorDispatcher})
	require.Error(t, err)

	e, err := New(log.GetDefaultLogger(), Config{Type: ExecutorLocal})
	require.NoError(t, err)
	require.IsType(t, &Local{}, e.runner)
}

func TestLocalRun(t *testing.T) {
	backend, err := proving.NewDigestBackend(log.GetDefaultLogger(), proving.Config{})
	require.NoError(t, err)
	l, err := NewLocal(log.GetDefaultLogger(), backend, 2)
	require.NoError(t, err)
	e := NewExecutor(log.GetDefaultLogger(), l)

	res, err := e.Execute(context.Background(), testTask())
	require.NoError(t, err)
	require.NotEmpty(t, res.TaskID)
	require.False(t, res.Proof.IsFinal())
	require.Equal(t, "c1", res.Proof.Snark.CircuitID)

	task := testTask()
	task.Input.IsEvmProof = true
	final, err := e.Execute(context.Background(), task)
	require.NoError(t, err)
	require.True(t, final.Proof.IsFinal())
	require.NotEqual(t, res.TaskID, final.TaskID)
	require.Len(t, final.Proof.EvmProof, len(res.Proof.Snark.Snark)+common.HashLength)
}

func TestLocalRunErrors(t *testing.T) {
	_, err := NewLocal(log.GetDefaultLogger(), nil, -1)
	require.Error(t, err)

	backend, err := proving.NewDigestBackend(log.GetDefaultLogger(), proving.Config{})
	require.NoError(t, err)
	l, err := NewLocal(log.GetDefaultLogger(), backend, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = l.Run(ctx, testTask())
	require.True(t, errors.Is(err, context.Canceled))
}
