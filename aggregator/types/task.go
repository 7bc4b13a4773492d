package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LeafRequest proves a range of claims directly
type LeafRequest struct {
	Start   uint    `json:"start"`
	End     uint    `json:"end"`
	Depth   uint    `json:"depth"`
	Root    string  `json:"root"`
	GrantID string  `json:"grant_id"`
	Claims  []Claim `json:"claims"`
}

// AggregationRequest combines two child snarks. It is the shape of both
// Intermediate and Root tasks.
type AggregationRequest struct {
	Start        uint    `json:"start"`
	End          uint    `json:"end"`
	Depth        uint    `json:"depth"`
	InitialDepth uint    `json:"initial_depth"`
	Snarks       []Snark `json:"snarks"`
}

// EvmRequest wraps one snark into the next verification round
type EvmRequest struct {
	Start        uint  `json:"start"`
	End          uint  `json:"end"`
	Depth        uint  `json:"depth"`
	InitialDepth uint  `json:"initial_depth"`
	Round        uint  `json:"round"`
	Snark        Snark `json:"snark"`
}

// TaskRequest is the shaped request sent to a prover. Exactly one field is
// set; the JSON form is externally tagged, e.g. {"Leaf": {...}}.
type TaskRequest struct {
	Leaf         *LeafRequest        `json:"Leaf,omitempty"`
	Intermediate *AggregationRequest `json:"Intermediate,omitempty"`
	Root         *AggregationRequest `json:"Root,omitempty"`
	Evm          *EvmRequest         `json:"Evm,omitempty"`
}

// ErrMalformedTaskRequest is returned when a TaskRequest does not have exactly one shape set
var ErrMalformedTaskRequest = errors.New("task request must carry exactly one shape")

// Kind returns the node kind of the request shape
func (r TaskRequest) Kind() (NodeKind, error) {
	var (
		kind NodeKind
		set  int
	)
	if r.Leaf != nil {
		kind, set = NodeKindLeaf, set+1
	}
	if r.Intermediate != nil {
		kind, set = NodeKindIntermediate, set+1
	}
	if r.Root != nil {
		kind, set = NodeKindRoot, set+1
	}
	if r.Evm != nil {
		kind, set = NodeKindEvm, set+1
	}
	if set != 1 {
		return 0, ErrMalformedTaskRequest
	}

	return kind, nil
}

// Range returns the claim range covered by the request
func (r TaskRequest) Range() (uint, uint) {
	switch {
	case r.Leaf != nil:
		return r.Leaf.Start, r.Leaf.End
	case r.Intermediate != nil:
		return r.Intermediate.Start, r.Intermediate.End
	case r.Root != nil:
		return r.Root.Start, r.Root.End
	case r.Evm != nil:
		return r.Evm.Start, r.Evm.End
	default:
		return 0, 0
	}
}

// TaskInput is the payload of a prover task
type TaskInput struct {
	// IsEvmProof asks the prover for the final on-chain form
	IsEvmProof bool        `json:"isEvmProof"`
	Request    TaskRequest `json:"request"`
}

// ProverTask is the unit of work handed to an executor
type ProverTask struct {
	CircuitID string    `json:"circuitId"`
	Input     TaskInput `json:"input"`
}

// Snark is an intermediate proof produced by the circuit CircuitID
type Snark struct {
	CircuitID string `json:"circuit_id"`
	Snark     []byte `json:"snark"`
}

// ProverProof is either a Snark or the final EVM-verifiable proof
type ProverProof struct {
	Snark    *Snark        `json:"Snark,omitempty"`
	EvmProof hexutil.Bytes `json:"EvmProof,omitempty"`
}

// SnarkProof returns a ProverProof holding s
func SnarkProof(s Snark) ProverProof {
	return ProverProof{Snark: &s}
}

// FinalProof returns a ProverProof holding the EVM proof bytes
func FinalProof(proof []byte) ProverProof {
	return ProverProof{EvmProof: proof}
}

// IsFinal reports whether the proof is in the final on-chain form
func (p ProverProof) IsFinal() bool {
	return p.Snark == nil && len(p.EvmProof) > 0
}

// Validate checks that exactly one form is set
func (p ProverProof) Validate() error {
	if (p.Snark == nil) == (len(p.EvmProof) == 0) {
		return errors.New("prover proof must carry either a snark or an evm proof")
	}

	return nil
}

// ExecutionSummary holds timing metadata of an executed task
type ExecutionSummary struct {
	TaskID     string    `json:"task_id"`
	CircuitID  string    `json:"circuit_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the task took
func (s ExecutionSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// ExecutionResult is the outcome of running a ProverTask
type ExecutionResult struct {
	TaskID  string           `json:"task_id"`
	Proof   ProverProof      `json:"proof"`
	Summary ExecutionSummary `json:"summary"`
}

// TaskRecord links an executor task id to the tree position it proved.
// It is serialized as a [task_id, params] pair.
type TaskRecord struct {
	TaskID string
	Params NodeParams
}

// MarshalJSON encodes the record as a two element array
func (r TaskRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.TaskID, r.Params})
}

// UnmarshalJSON decodes a two element array
func (r *TaskRecord) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 { //nolint:mnd
		return fmt.Errorf("task record must have 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &r.TaskID); err != nil {
		return fmt.Errorf("failed to decode task id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &r.Params); err != nil {
		return fmt.Errorf("failed to decode node params: %w", err)
	}

	return nil
}

// TaskStatus is the status of a task on a prover worker
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusPreparing TaskStatus = "PREPARING"
	TaskStatusProving   TaskStatus = "PROVING"
	TaskStatusDone      TaskStatus = "DONE"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// IsValid reports whether s is a known status
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusPreparing, TaskStatusProving, TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions happen after s
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}
