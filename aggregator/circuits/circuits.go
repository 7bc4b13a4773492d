package circuits

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
)

const filePermissions = os.FileMode(0600)

// Entry maps a tree position to the circuit proving it
type Entry struct {
	Params    types.NodeParams
	CircuitID string
}

type snapshot struct {
	byParams map[types.NodeParams]string
	byID     map[string]types.NodeParams
	entries  []Entry
}

func newSnapshot(entries []Entry) (*snapshot, error) {
	s := &snapshot{
		byParams: make(map[types.NodeParams]string, len(entries)),
		byID:     make(map[string]types.NodeParams, len(entries)),
		entries:  make([]Entry, 0, len(entries)),
	}
	for _, e := range entries {
		if e.CircuitID == "" {
			return nil, fmt.Errorf("empty circuit id for %s", e.Params)
		}
		if e.Params.Depth < e.Params.InitialDepth {
			return nil, fmt.Errorf("invalid params %s for circuit %s", e.Params, e.CircuitID)
		}
		if _, ok := s.byParams[e.Params]; ok {
			return nil, fmt.Errorf("duplicated params %s", e.Params)
		}
		if _, ok := s.byID[e.CircuitID]; ok {
			return nil, fmt.Errorf("duplicated circuit id %s", e.CircuitID)
		}
		s.byParams[e.Params] = e.CircuitID
		s.byID[e.CircuitID] = e.Params
		s.entries = append(s.entries, e)
	}
	slices.SortFunc(s.entries, func(a, b Entry) int { return a.Params.Compare(b.Params) })

	return s, nil
}

// Repository resolves node params to circuit ids. Lookups read an immutable
// snapshot, reloads swap it as a whole.
type Repository struct {
	current atomic.Pointer[snapshot]
	logger  *log.Logger
}

// New returns a repository holding entries
func New(logger *log.Logger, entries []Entry) (*Repository, error) {
	s, err := newSnapshot(entries)
	if err != nil {
		return nil, err
	}
	r := &Repository{logger: logger}
	r.current.Store(s)

	return r, nil
}

// Load returns a repository with the entries of the artifact at path
func Load(logger *log.Logger, path string) (*Repository, error) {
	entries, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := New(logger, entries)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit ids file %s: %w", path, err)
	}
	logger.Infof("loaded %d circuit ids from %s", len(entries), path)

	return r, nil
}

// Reload replaces the whole mapping with the one at path. On error the
// current mapping is kept.
func (r *Repository) Reload(path string) error {
	entries, err := ReadFile(path)
	if err != nil {
		return err
	}
	s, err := newSnapshot(entries)
	if err != nil {
		return fmt.Errorf("invalid circuit ids file %s: %w", path, err)
	}
	r.current.Store(s)
	r.logger.Infof("reloaded %d circuit ids from %s", len(entries), path)

	return nil
}

// CircuitID returns the circuit proving params
func (r *Repository) CircuitID(params types.NodeParams) (string, error) {
	id, ok := r.current.Load().byParams[params]
	if !ok {
		return "", fmt.Errorf("circuit id for %s: %w", params, types.ErrNotFound)
	}

	return id, nil
}

// Params returns the tree position proven by circuitID
func (r *Repository) Params(circuitID string) (types.NodeParams, error) {
	p, ok := r.current.Load().byID[circuitID]
	if !ok {
		return types.NodeParams{}, fmt.Errorf("circuit %s: %w", circuitID, types.ErrNotFound)
	}

	return p, nil
}

// Entries returns every entry sorted by params
func (r *Repository) Entries() []Entry {
	return slices.Clone(r.current.Load().entries)
}

// ReadFile decodes an artifact: a JSON list of [paramsJSON, circuitID]
// pairs where paramsJSON is itself a JSON encoded string
func ReadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read circuit ids file: %w", err)
	}
	var raw [][2]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode circuit ids file %s: %w", path, err)
	}
	entries := make([]Entry, 0, len(raw))
	for i, pair := range raw {
		var params types.NodeParams
		if err := json.Unmarshal([]byte(pair[0]), &params); err != nil {
			return nil, fmt.Errorf("failed to decode params of entry %d: %w", i, err)
		}
		entries = append(entries, Entry{Params: params, CircuitID: pair[1]})
	}

	return entries, nil
}

// WriteFile encodes entries in the format read by ReadFile
func WriteFile(path string, entries []Entry) error {
	raw := make([][2]string, 0, len(entries))
	for _, e := range entries {
		params, err := json.Marshal(e.Params)
		if err != nil {
			return err
		}
		raw = append(raw, [2]string{string(params), e.CircuitID})
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, filePermissions)
}

// DeterministicID derives a circuit id from the params it proves
func DeterministicID(params types.NodeParams) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	return common.Bytes2Hex(crypto.Keccak256(data)), nil
}

// Generate returns the entries of every circuit needed for trees of depth
// initialDepth..maxDepth, with deterministic ids
func Generate(maxDepth, initialDepth, extraRounds uint) ([]Entry, error) {
	params, err := types.TreeParams(maxDepth, initialDepth, extraRounds)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(params))
	for _, p := range params {
		id, err := DeterministicID(p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Params: p, CircuitID: id})
	}

	return entries, nil
}
