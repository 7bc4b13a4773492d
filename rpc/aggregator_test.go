package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/stretchr/testify/require"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/finalizer"
	"github.com/zkgrants/aggregator/log"
)

type fakeJobs struct {
	jobs      map[string]tracker.Job
	summaries map[string][]types.TaskRecord
	submitErr error
	submitted []finalizer.Request
}

func (f *fakeJobs) Submit(_ context.Context, req finalizer.Request) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return "r-new", nil
}

func (f *fakeJobs) GetJob(_ context.Context, requestID string) (tracker.Job, error) {
	job, ok := f.jobs[requestID]
	if !ok {
		return tracker.Job{}, types.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobs) Summary(_ context.Context, requestID string) ([]types.TaskRecord, error) {
	records, ok := f.summaries[requestID]
	if !ok {
		return nil, errors.New("database is closed")
	}
	return records, nil
}

func newTestEndpoints(jobs JobService) *AggregatorEndpoints {
	return NewAggregatorEndpoints(log.GetDefaultLogger(), time.Second, time.Second, jobs)
}

func TestGetJob(t *testing.T) {
	jobs := &fakeJobs{jobs: map[string]tracker.Job{"r1": {RequestID: "r1", Status: tracker.JobStatusRunning}}}
	sut := newTestEndpoints(jobs)

	res, err := sut.GetJob("r1")
	require.Nil(t, err)
	require.Equal(t, jobs.jobs["r1"], res)

	res, err = sut.GetJob("r2")
	require.NotNil(t, err)
	require.Nil(t, res)
	require.Equal(t, rpc.NotFoundErrorCode, err.ErrorCode())
	require.Contains(t, err.Error(), "r2 not found")
}

func TestGetExecutionSummary(t *testing.T) {
	records := []types.TaskRecord{
		{TaskID: "t1", Params: types.NodeParams{NodeType: types.Leaf(), Depth: 3, InitialDepth: 3}},
	}
	sut := newTestEndpoints(&fakeJobs{summaries: map[string][]types.TaskRecord{"r1": records}})

	res, err := sut.GetExecutionSummary("r1")
	require.Nil(t, err)
	require.Equal(t, records, res)

	_, err = sut.GetExecutionSummary("r2")
	require.NotNil(t, err)
	require.Equal(t, rpc.DefaultErrorCode, err.ErrorCode())
	require.Contains(t, err.Error(), "database is closed")
}

func TestSubmitJob(t *testing.T) {
	jobs := &fakeJobs{}
	sut := newTestEndpoints(jobs)
	req := finalizer.Request{NumProofs: 1, MaxProofs: 8}

	res, err := sut.SubmitJob(req)
	require.Nil(t, err)
	require.Equal(t, "r-new", res)
	require.Equal(t, []finalizer.Request{req}, jobs.submitted)

	jobs.submitErr = types.ErrInvalidInput
	_, err = sut.SubmitJob(req)
	require.NotNil(t, err)
	require.Equal(t, rpc.InvalidParamsErrorCode, err.ErrorCode())

	jobs.submitErr = errors.New("disk full")
	_, err = sut.SubmitJob(req)
	require.NotNil(t, err)
	require.Equal(t, rpc.DefaultErrorCode, err.ErrorCode())
}
