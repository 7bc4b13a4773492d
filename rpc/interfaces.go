package rpc

import (
	"context"

	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/finalizer"
)

type JobService interface {
	Submit(ctx context.Context, req finalizer.Request) (string, error)
	GetJob(ctx context.Context, requestID string) (tracker.Job, error)
	Summary(ctx context.Context, requestID string) ([]types.TaskRecord, error)
}
