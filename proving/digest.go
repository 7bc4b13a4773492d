package proving

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zkgrants/aggregator/aggregator/types"
	zkcommon "github.com/zkgrants/aggregator/common"
	"github.com/zkgrants/aggregator/log"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/singleflight"
)

const (
	snarkFilePermissions = os.FileMode(0600)
	dirPermissions       = os.FileMode(0750)
	// aggregation nodes take exactly two snarks
	aggregationArity = 2
	maxLeafDepth     = 20
)

// DigestBackend is a deterministic Backend whose proofs are keccak
// commitments: a leaf commits to the merkle root of its claims, an
// aggregation to its children. It only proves one request at a time.
type DigestBackend struct {
	logger *log.Logger
	outDir string

	builds singleflight.Group
	mu     sync.RWMutex
	built  map[string]struct{}

	proofMu sync.Mutex
}

var _ Backend = (*DigestBackend)(nil)

// NewDigestBackend returns a DigestBackend, creating cfg.OutDir if needed
func NewDigestBackend(logger *log.Logger, cfg Config) (*DigestBackend, error) {
	if cfg.OutDir != "" {
		if err := os.MkdirAll(cfg.OutDir, dirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create snark dir %s: %w", cfg.OutDir, err)
		}
	}

	return &DigestBackend{
		logger: logger,
		outDir: cfg.OutDir,
		built:  make(map[string]struct{}),
	}, nil
}

// BuildCircuit marks circuitID as built
func (b *DigestBackend) BuildCircuit(ctx context.Context, circuitID string, req types.TaskRequest) error {
	if _, err := req.Kind(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedRequest, err)
	}
	if b.isBuilt(circuitID) {
		return nil
	}

	_, err, shared := b.builds.Do(circuitID, func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.built[circuitID] = struct{}{}
		b.mu.Unlock()
		b.logger.Infof("built circuit %s", circuitID)

		return nil, nil
	})
	if shared {
		b.logger.Debugf("circuit %s build shared with a concurrent request", circuitID)
	}

	return err
}

func (b *DigestBackend) isBuilt(circuitID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.built[circuitID]

	return ok
}

// GetSnark proves req, reading and writing the disk cache when enabled
func (b *DigestBackend) GetSnark(ctx context.Context, circuitID string, req types.TaskRequest) (types.Snark, error) {
	if err := b.BuildCircuit(ctx, circuitID, req); err != nil {
		return types.Snark{}, err
	}

	cachePath, err := b.cachePath(circuitID, req)
	if err != nil {
		return types.Snark{}, err
	}
	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			b.logger.Debugf("snark of circuit %s read from %s", circuitID, cachePath)
			return types.Snark{CircuitID: circuitID, Snark: data}, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			b.logger.Warnf("failed to read cached snark %s: %v", cachePath, err)
		}
	}

	digest, err := b.prove(ctx, circuitID, req)
	if err != nil {
		return types.Snark{}, err
	}

	if cachePath != "" {
		if err := os.WriteFile(cachePath, digest, snarkFilePermissions); err != nil {
			b.logger.Warnf("failed to cache snark %s: %v", cachePath, err)
		}
	}

	return types.Snark{CircuitID: circuitID, Snark: digest}, nil
}

// GetEvmProof proves req and returns digest || keccak(digest)
func (b *DigestBackend) GetEvmProof(ctx context.Context, circuitID string, req types.TaskRequest) ([]byte, error) {
	snark, err := b.GetSnark(ctx, circuitID, req)
	if err != nil {
		return nil, err
	}

	proof := make([]byte, 0, len(snark.Snark)+common.HashLength)
	proof = append(proof, snark.Snark...)

	return append(proof, keccak(snark.Snark)...), nil
}

// Reset drops the built circuits and the disk cache
func (b *DigestBackend) Reset() {
	b.mu.Lock()
	b.built = make(map[string]struct{})
	b.mu.Unlock()

	if b.outDir == "" {
		return
	}
	files, err := filepath.Glob(filepath.Join(b.outDir, "*.snark"))
	if err != nil {
		b.logger.Warnf("failed to list cached snarks: %v", err)
		return
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			b.logger.Warnf("failed to remove cached snark %s: %v", f, err)
		}
	}
}

func (b *DigestBackend) cachePath(circuitID string, req types.TaskRequest) (string, error) {
	if b.outDir == "" {
		return "", nil
	}
	inputHash, err := InputHash(circuitID, req)
	if err != nil {
		return "", err
	}

	return filepath.Join(b.outDir, inputHash+".snark"), nil
}

func (b *DigestBackend) prove(ctx context.Context, circuitID string, req types.TaskRequest) ([]byte, error) {
	b.proofMu.Lock()
	defer b.proofMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind, err := req.Kind()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedRequest, err)
	}
	start, end := req.Range()
	header := append([]byte(circuitID), zkcommon.Uint64ToBytes(uint64(start))...)
	header = append(header, zkcommon.Uint64ToBytes(uint64(end))...)

	switch kind {
	case types.NodeKindLeaf:
		root, err := claimsRoot(req.Leaf)
		if err != nil {
			return nil, err
		}
		return keccak(header, []byte(req.Leaf.Root), []byte(req.Leaf.GrantID), root.Bytes()), nil
	case types.NodeKindIntermediate, types.NodeKindRoot:
		agg := req.Intermediate
		if agg == nil {
			agg = req.Root
		}
		if len(agg.Snarks) != aggregationArity {
			return nil, fmt.Errorf("%w: aggregation takes %d snarks, got %d",
				ErrUnsupportedRequest, aggregationArity, len(agg.Snarks))
		}
		return keccak(header, agg.Snarks[0].Snark, agg.Snarks[1].Snark), nil
	case types.NodeKindEvm:
		return keccak(header, zkcommon.Uint64ToBytes(uint64(req.Evm.Round)), req.Evm.Snark.Snark), nil
	default:
		return nil, fmt.Errorf("%w: node kind %s", ErrUnsupportedRequest, kind)
	}
}

// claimsRoot is the root of the keccak merkle tree of 2^depth leaves, the
// claim leaf hashes followed by zero leaves
func claimsRoot(req *types.LeafRequest) (common.Hash, error) {
	if req.End <= req.Start || uint(len(req.Claims)) != req.End-req.Start {
		return common.Hash{}, fmt.Errorf("%w: %d claims for range [%d, %d)",
			ErrUnsupportedRequest, len(req.Claims), req.Start, req.End)
	}
	if req.Depth > maxLeafDepth || len(req.Claims) > 1<<req.Depth {
		return common.Hash{}, fmt.Errorf("%w: %d claims don't fit depth %d",
			ErrUnsupportedRequest, len(req.Claims), req.Depth)
	}

	layer := make([]common.Hash, 1<<req.Depth)
	for i, claim := range req.Claims {
		leaf, err := claim.LeafHash(req.GrantID)
		if err != nil {
			return common.Hash{}, err
		}
		layer[i] = leaf
	}
	for len(layer) > 1 {
		next := make([]common.Hash, len(layer)/2) //nolint:mnd
		for i := range next {
			next[i] = common.BytesToHash(keccak(layer[2*i].Bytes(), layer[2*i+1].Bytes()))
		}
		layer = next
	}

	return layer[0], nil
}

// InputHash identifies a request proven by circuitID
func InputHash(circuitID string, req types.TaskRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	return common.Bytes2Hex(keccak([]byte(circuitID), data)), nil
}

func keccak(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}

	return h.Sum(nil)
}
