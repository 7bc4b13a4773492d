package client

import (
	"encoding/json"
	"fmt"

	"github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/finalizer"
)

var jSONRPCCall = rpc.JSONRPCCall

// ClientInterface is the interface that defines the implementation of all the endpoints
type ClientInterface interface {
	GetJob(requestID string) (*tracker.Job, error)
	GetExecutionSummary(requestID string) ([]types.TaskRecord, error)
	SubmitJob(req finalizer.Request) (string, error)
}

// Client wraps all the available endpoints of the aggregator JSON-RPC server
type Client struct {
	url string
}

// NewClient returns a client ready to be used
func NewClient(url string) *Client {
	return &Client{
		url: url,
	}
}

// GetJob returns the job of a request
func (c *Client) GetJob(requestID string) (*tracker.Job, error) {
	response, err := jSONRPCCall(c.url, "aggregator_getJob", requestID)
	if err != nil {
		return nil, err
	}

	// Check if the response is an error
	if response.Error != nil {
		return nil, fmt.Errorf("error in the response calling aggregator_getJob: %v", response.Error)
	}
	job := tracker.Job{}
	if err := json.Unmarshal(response.Result, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetExecutionSummary returns the tasks run to prove a request
func (c *Client) GetExecutionSummary(requestID string) ([]types.TaskRecord, error) {
	response, err := jSONRPCCall(c.url, "aggregator_getExecutionSummary", requestID)
	if err != nil {
		return nil, err
	}

	if response.Error != nil {
		return nil, fmt.Errorf("error in the response calling aggregator_getExecutionSummary: %v", response.Error)
	}
	var records []types.TaskRecord
	if err := json.Unmarshal(response.Result, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SubmitJob sends an aggregation request and returns its request id
func (c *Client) SubmitJob(req finalizer.Request) (string, error) {
	response, err := jSONRPCCall(c.url, "aggregator_submitJob", req)
	if err != nil {
		return "", err
	}

	if response.Error != nil {
		return "", fmt.Errorf("error in the response calling aggregator_submitJob: %v", response.Error)
	}
	var requestID string
	return requestID, json.Unmarshal(response.Result, &requestID)
}
