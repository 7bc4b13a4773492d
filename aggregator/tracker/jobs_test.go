package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/zkgrants/aggregator/aggregator/types"
)

func newTestJobTracker() *JobTracker {
	tracker := NewJobTracker(NewMemoryStorage())
	tracker.now = func() time.Time { return time.Unix(1700000000, 0) }

	return tracker
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	tracker := newTestJobTracker()

	job, err := tracker.CreateJob(ctx, "req")
	require.NoError(t, err)
	require.Equal(t, JobStatusPending, job.Status)
	require.Equal(t, uint64(1700000000), job.CreatedAtSec)

	_, err = tracker.CreateJob(ctx, "req")
	require.ErrorIs(t, err, ErrJobExists)

	require.ErrorIs(t, tracker.FinishJob(ctx, "req", []byte{1}), ErrInvalidTransition)
	require.NoError(t, tracker.StartJob(ctx, "req"))
	require.ErrorIs(t, tracker.StartJob(ctx, "req"), ErrInvalidTransition)
	require.NoError(t, tracker.FinishJob(ctx, "req", []byte{0xca, 0xfe}))

	txHash := common.HexToHash("0x01")
	require.NoError(t, tracker.SetTxHash(ctx, "req", txHash))

	job, err = tracker.GetJob(ctx, "req")
	require.NoError(t, err)
	require.Equal(t, JobStatusDone, job.Status)
	require.Equal(t, "0xcafe", job.Proof)
	require.Equal(t, txHash.Hex(), job.TxHash)

	require.ErrorIs(t, tracker.FailJob(ctx, "req", errors.New("late")), ErrInvalidTransition)
}

func TestJobFailure(t *testing.T) {
	ctx := context.Background()
	tracker := newTestJobTracker()

	_, err := tracker.CreateJob(ctx, "req")
	require.NoError(t, err)
	require.NoError(t, tracker.StartJob(ctx, "req"))
	require.NoError(t, tracker.FailJob(ctx, "req", errors.New("task abc failed")))

	job, err := tracker.GetJob(ctx, "req")
	require.NoError(t, err)
	require.Equal(t, JobStatusFailed, job.Status)
	require.Equal(t, "task abc failed", job.Error)
	require.ErrorIs(t, tracker.SetTxHash(ctx, "req", common.Hash{}), ErrInvalidTransition)
}

func TestJobNotFound(t *testing.T) {
	ctx := context.Background()
	tracker := newTestJobTracker()

	_, err := tracker.GetJob(ctx, "missing")
	require.ErrorIs(t, err, types.ErrNotFound)
	require.ErrorIs(t, tracker.StartJob(ctx, "missing"), types.ErrNotFound)
	_, err = tracker.Summary(ctx, "missing")
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = tracker.CreateJob(ctx, "")
	require.ErrorIs(t, err, ErrEmptyRequestID)
}

func TestJobSummary(t *testing.T) {
	ctx := context.Background()
	tracker := newTestJobTracker()
	_, err := tracker.CreateJob(ctx, "req")
	require.NoError(t, err)

	records, err := tracker.Summary(ctx, "req")
	require.NoError(t, err)
	require.Empty(t, records)

	expected := []types.TaskRecord{
		{TaskID: "a", Params: types.NodeParams{NodeType: types.Leaf(), Depth: 3, InitialDepth: 3}},
		{TaskID: "b", Params: types.NodeParams{NodeType: types.Evm(1), Depth: 3, InitialDepth: 3}},
	}
	require.NoError(t, tracker.SaveSummary(ctx, "req", expected))
	records, err = tracker.Summary(ctx, "req")
	require.NoError(t, err)
	require.Equal(t, expected, records)
}
