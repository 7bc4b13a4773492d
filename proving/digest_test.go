package proving

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
)

func leafRequest(n int) types.TaskRequest {
	claims := make([]types.Claim, n)
	for i := range claims {
		claims[i] = types.Claim{
			Receiver:      common.HexToAddress(fmt.Sprintf("0x%040x", i+1)),
			NullifierHash: fmt.Sprintf("%d", 100+i),
			Proof:         []string{"0"},
		}
	}

	return types.TaskRequest{Leaf: &types.LeafRequest{
		Start: 0, End: uint(n), Depth: 3, Root: "1", GrantID: "30", Claims: claims,
	}}
}

func newBackend(t *testing.T, outDir string) *DigestBackend {
	t.Helper()
	b, err := NewDigestBackend(log.GetDefaultLogger(), Config{OutDir: outDir})
	require.NoError(t, err)

	return b
}

func TestDigestBackendDeterministic(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, "")

	s1, err := b.GetSnark(ctx, "leaf", leafRequest(8))
	require.NoError(t, err)
	s2, err := b.GetSnark(ctx, "leaf", leafRequest(8))
	require.NoError(t, err)
	require.Equal(t, s1, s2)
	require.Equal(t, "leaf", s1.CircuitID)
	require.Len(t, s1.Snark, common.HashLength)

	s3, err := b.GetSnark(ctx, "leaf", leafRequest(7))
	require.NoError(t, err)
	require.NotEqual(t, s1.Snark, s3.Snark)
}

func TestDigestBackendAggregation(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, "")

	child, err := b.GetSnark(ctx, "leaf", leafRequest(8))
	require.NoError(t, err)

	agg := types.TaskRequest{Root: &types.AggregationRequest{
		Start: 0, End: 9, Depth: 4, InitialDepth: 3, Snarks: []types.Snark{child, child},
	}}
	root, err := b.GetSnark(ctx, "root", agg)
	require.NoError(t, err)

	evm := types.TaskRequest{Evm: &types.EvmRequest{Start: 0, End: 9, Depth: 4, InitialDepth: 3, Round: 0, Snark: root}}
	proof, err := Prove(ctx, b, types.ProverTask{CircuitID: "evm", Input: types.TaskInput{IsEvmProof: true, Request: evm}})
	require.NoError(t, err)
	require.True(t, proof.IsFinal())
	require.Len(t, proof.EvmProof, 2*common.HashLength)

	agg.Root.Snarks = agg.Root.Snarks[:1]
	_, err = b.GetSnark(ctx, "root", agg)
	require.ErrorIs(t, err, ErrUnsupportedRequest)
}

func TestDigestBackendRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, "")

	_, err := b.GetSnark(ctx, "x", types.TaskRequest{})
	require.ErrorIs(t, err, ErrUnsupportedRequest)

	req := leafRequest(8)
	req.Leaf.End = 9
	_, err = b.GetSnark(ctx, "leaf", req)
	require.ErrorIs(t, err, ErrUnsupportedRequest)
}

func TestDigestBackendDiskCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := newBackend(t, dir)

	s1, err := b.GetSnark(ctx, "leaf", leafRequest(8))
	require.NoError(t, err)
	files, err := filepath.Glob(filepath.Join(dir, "*.snark"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	// a cached snark is returned as is
	require.NoError(t, os.WriteFile(files[0], []byte("cached"), 0600))
	s2, err := b.GetSnark(ctx, "leaf", leafRequest(8))
	require.NoError(t, err)
	require.Equal(t, []byte("cached"), s2.Snark)

	b.Reset()
	files, err = filepath.Glob(filepath.Join(dir, "*.snark"))
	require.NoError(t, err)
	require.Empty(t, files)
	s3, err := b.GetSnark(ctx, "leaf", leafRequest(8))
	require.NoError(t, err)
	require.Equal(t, s1, s3)
}

func TestDigestBackendConcurrentBuilds(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, "")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.BuildCircuit(ctx, "leaf", leafRequest(1))
		}()
	}
	wg.Wait()
	require.True(t, b.isBuilt("leaf"))

	b.Reset()
	require.False(t, b.isBuilt("leaf"))
}

func TestProveSnark(t *testing.T) {
	b := newBackend(t, "")
	proof, err := Prove(context.Background(), b, types.ProverTask{CircuitID: "leaf", Input: types.TaskInput{Request: leafRequest(2)}})
	require.NoError(t, err)
	require.False(t, proof.IsFinal())
	require.NotNil(t, proof.Snark)
}
