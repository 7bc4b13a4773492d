package proving

import (
	"context"
	"errors"

	"github.com/zkgrants/aggregator/aggregator/types"
)

var (
	// ErrUnsupportedRequest is returned for requests the circuit can't prove
	ErrUnsupportedRequest = errors.New("unsupported request")
)

// Backend is the proving capability: it builds circuits and proves shaped
// requests with them
type Backend interface {
	// BuildCircuit prepares the keys of circuitID. Concurrent builds of the
	// same circuit are done once.
	BuildCircuit(ctx context.Context, circuitID string, req types.TaskRequest) error
	// GetSnark proves req with circuitID
	GetSnark(ctx context.Context, circuitID string, req types.TaskRequest) (types.Snark, error)
	// GetEvmProof proves req with circuitID in the form verified on-chain
	GetEvmProof(ctx context.Context, circuitID string, req types.TaskRequest) ([]byte, error)
	// Reset drops every built circuit and cached proof
	Reset()
}

// Config is the configuration of the proving backend
type Config struct {
	// OutDir caches snarks on disk when not empty
	OutDir string `mapstructure:"OutDir"`
}

// Prove runs task on backend, returning the final form when asked to
func Prove(ctx context.Context, backend Backend, task types.ProverTask) (types.ProverProof, error) {
	if task.Input.IsEvmProof {
		proof, err := backend.GetEvmProof(ctx, task.CircuitID, task.Input.Request)
		if err != nil {
			return types.ProverProof{}, err
		}

		return types.FinalProof(proof), nil
	}

	snark, err := backend.GetSnark(ctx, task.CircuitID, task.Input.Request)
	if err != nil {
		return types.ProverProof{}, err
	}

	return types.SnarkProof(snark), nil
}
