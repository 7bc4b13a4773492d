package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
)

func newTestStorage(t *testing.T) *SQLStorage {
	t.Helper()

	storage, err := NewSQLStorage(log.GetDefaultLogger(), filepath.Join(t.TempDir(), "jobs.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	return storage
}

func TestSQLStorageJobs(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	job := tracker.Job{
		RequestID:    "req",
		Status:       tracker.JobStatusPending,
		CreatedAtSec: uint64(time.Now().Unix()),
		UpdatedAtSec: uint64(time.Now().Unix()),
	}
	require.NoError(t, storage.InsertJob(ctx, job))
	require.ErrorIs(t, storage.InsertJob(ctx, job), tracker.ErrJobExists)

	got, err := storage.GetJob(ctx, "req")
	require.NoError(t, err)
	require.Equal(t, job, got)

	job.Status = tracker.JobStatusFailed
	job.Error = "task x failed"
	require.NoError(t, storage.UpdateJob(ctx, job))
	got, err = storage.GetJob(ctx, "req")
	require.NoError(t, err)
	require.Equal(t, job, got)

	_, err = storage.GetJob(ctx, "missing")
	require.ErrorIs(t, err, types.ErrNotFound)
	require.ErrorIs(t, storage.UpdateJob(ctx, tracker.Job{RequestID: "missing"}), types.ErrNotFound)
}

func TestSQLStorageTaskRecords(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	require.ErrorIs(t, storage.SaveTaskRecords(ctx, "req", nil), types.ErrNotFound)
	_, err := storage.GetTaskRecords(ctx, "req")
	require.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, storage.InsertJob(ctx, tracker.Job{RequestID: "req", Status: tracker.JobStatusRunning}))
	records, err := storage.GetTaskRecords(ctx, "req")
	require.NoError(t, err)
	require.Empty(t, records)

	expected := []types.TaskRecord{
		{TaskID: "leaf-0", Params: types.NodeParams{NodeType: types.Leaf(), Depth: 3, InitialDepth: 3}},
		{TaskID: "leaf-1", Params: types.NodeParams{NodeType: types.Leaf(), Depth: 3, InitialDepth: 3}},
		{TaskID: "root", Params: types.NodeParams{NodeType: types.Root(), Depth: 4, InitialDepth: 3}},
		{TaskID: "evm", Params: types.NodeParams{NodeType: types.Evm(1), Depth: 4, InitialDepth: 3}},
	}
	require.NoError(t, storage.SaveTaskRecords(ctx, "req", expected))

	records, err = storage.GetTaskRecords(ctx, "req")
	require.NoError(t, err)
	require.Equal(t, expected, records)
}

func TestSQLStorageWithJobTracker(t *testing.T) {
	ctx := context.Background()
	jobs := tracker.NewJobTracker(newTestStorage(t))

	_, err := jobs.CreateJob(ctx, "req")
	require.NoError(t, err)
	require.NoError(t, jobs.StartJob(ctx, "req"))
	require.NoError(t, jobs.FinishJob(ctx, "req", []byte{0x01}))

	job, err := jobs.GetJob(ctx, "req")
	require.NoError(t, err)
	require.Equal(t, tracker.JobStatusDone, job.Status)
	require.Equal(t, "0x01", job.Proof)
}
