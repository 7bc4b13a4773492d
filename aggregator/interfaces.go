package aggregator

import (
	"context"

	"github.com/zkgrants/aggregator/aggregator/types"
)

// Consumer interfaces required by the package.

// CircuitRepository resolves the circuit proving a tree position
type CircuitRepository interface {
	CircuitID(params types.NodeParams) (string, error)
}

// Executor runs a single proof task
type Executor interface {
	Execute(ctx context.Context, task types.ProverTask) (types.ExecutionResult, error)
}

// TaskRecorder records the executor tasks run for a request
type TaskRecorder interface {
	RecordTask(requestID, taskID string, params types.NodeParams) error
}
