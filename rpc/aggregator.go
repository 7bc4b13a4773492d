package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/finalizer"
	"github.com/zkgrants/aggregator/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	// AGGREGATOR is the namespace of the aggregator service
	AGGREGATOR = "aggregator"
	meterName  = "github.com/zkgrants/aggregator/rpc"
)

// AggregatorEndpoints contains implementations for the "aggregator" RPC endpoints
type AggregatorEndpoints struct {
	logger       *log.Logger
	meter        metric.Meter
	readTimeout  time.Duration
	writeTimeout time.Duration
	jobs         JobService
}

// NewAggregatorEndpoints returns AggregatorEndpoints
func NewAggregatorEndpoints(
	logger *log.Logger,
	writeTimeout time.Duration,
	readTimeout time.Duration,
	jobs JobService,
) *AggregatorEndpoints {
	meter := otel.Meter(meterName)
	return &AggregatorEndpoints{
		logger:       logger,
		meter:        meter,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		jobs:         jobs,
	}
}

// GetJob returns the status of the aggregation job of a request
func (a *AggregatorEndpoints) GetJob(requestID string) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.readTimeout)
	defer cancel()

	a.count(ctx, "get_job")

	job, err := a.jobs.GetJob(ctx, requestID)
	if err != nil {
		return nil, lookupError(requestID, err)
	}
	return job, nil
}

// GetExecutionSummary returns the tasks run to prove a request, as
// [task id, node params] pairs
func (a *AggregatorEndpoints) GetExecutionSummary(requestID string) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.readTimeout)
	defer cancel()

	a.count(ctx, "get_execution_summary")

	records, err := a.jobs.Summary(ctx, requestID)
	if err != nil {
		return nil, lookupError(requestID, err)
	}
	return records, nil
}

// SubmitJob starts the aggregation of a request and returns its request id.
// The proof runs in the background, its progress is reported by GetJob.
func (a *AggregatorEndpoints) SubmitJob(req finalizer.Request) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()

	a.count(ctx, "submit_job")

	requestID, err := a.jobs.Submit(ctx, req)
	if err != nil {
		if errors.Is(err, types.ErrInvalidInput) {
			return nil, rpc.NewRPCError(rpc.InvalidParamsErrorCode, err.Error())
		}
		return nil, rpc.NewRPCError(rpc.DefaultErrorCode, fmt.Sprintf("failed to submit job, error: %s", err))
	}
	a.logger.Infof("job %s submitted over rpc", requestID)

	return requestID, nil
}

func (a *AggregatorEndpoints) count(ctx context.Context, name string) {
	c, merr := a.meter.Int64Counter(name)
	if merr != nil {
		a.logger.Warnf("failed to create %s counter: %s", name, merr)
	}
	c.Add(ctx, 1)
}

func lookupError(requestID string, err error) rpc.Error {
	if errors.Is(err, types.ErrNotFound) {
		return rpc.NewRPCError(rpc.NotFoundErrorCode, fmt.Sprintf("job %s not found", requestID))
	}
	return rpc.NewRPCError(rpc.DefaultErrorCode, fmt.Sprintf("failed to get job %s, error: %s", requestID, err))
}
