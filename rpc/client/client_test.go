package client

import (
	"encoding/json"
	"testing"

	"github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/stretchr/testify/require"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/finalizer"
)

type call struct {
	method string
	params []interface{}
}

func fakeCall(t *testing.T, result interface{}, rpcErr *rpc.ErrorObject) *[]call {
	t.Helper()

	calls := &[]call{}
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	previous := jSONRPCCall
	jSONRPCCall = func(_, method string, params ...interface{}) (rpc.Response, error) {
		*calls = append(*calls, call{method: method, params: params})
		return rpc.Response{Result: raw, Error: rpcErr}, nil
	}
	t.Cleanup(func() { jSONRPCCall = previous })

	return calls
}

func TestGetJob(t *testing.T) {
	sut := NewClient("url")
	expected := tracker.Job{RequestID: "r1", Status: tracker.JobStatusDone, Proof: "0x01"}
	calls := fakeCall(t, expected, nil)

	job, err := sut.GetJob("r1")
	require.NoError(t, err)
	require.Equal(t, expected, *job)
	require.Equal(t, []call{{method: "aggregator_getJob", params: []interface{}{"r1"}}}, *calls)
}

func TestGetJobError(t *testing.T) {
	sut := NewClient("url")
	fakeCall(t, nil, &rpc.ErrorObject{Code: rpc.NotFoundErrorCode, Message: "job r1 not found"})

	_, err := sut.GetJob("r1")
	require.Error(t, err)
}

func TestGetExecutionSummary(t *testing.T) {
	sut := NewClient("url")
	expected := []types.TaskRecord{
		{TaskID: "t1", Params: types.NodeParams{NodeType: types.Leaf(), Depth: 3, InitialDepth: 3}},
		{TaskID: "t2", Params: types.NodeParams{NodeType: types.Evm(0), Depth: 3, InitialDepth: 3}},
	}
	calls := fakeCall(t, expected, nil)

	records, err := sut.GetExecutionSummary("r1")
	require.NoError(t, err)
	require.Equal(t, expected, records)
	require.Equal(t, "aggregator_getExecutionSummary", (*calls)[0].method)
}

func TestSubmitJob(t *testing.T) {
	sut := NewClient("url")
	req := finalizer.Request{NumProofs: 1, MaxProofs: 8, Root: "1", GrantID: "2"}
	calls := fakeCall(t, "r1", nil)

	requestID, err := sut.SubmitJob(req)
	require.NoError(t, err)
	require.Equal(t, "r1", requestID)
	require.Equal(t, []call{{method: "aggregator_submitJob", params: []interface{}{req}}}, *calls)
}
