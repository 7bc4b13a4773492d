package etherman

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zkgrants/aggregator/aggregator/types"
)

// DistributeGrantsParams are the arguments of the distributeGrants call
type DistributeGrantsParams struct {
	VKeyHash        [32]byte
	NumClaims       *big.Int
	Root            *big.Int
	GrantIDs        []*big.Int
	Receivers       []common.Address
	NullifierHashes []*big.Int
	Proof           []byte
}

// NewDistributeGrantsParams builds the call arguments settling claims with
// proof. The grant id is repeated once per claim.
func NewDistributeGrantsParams(
	vkHash common.Hash, root, grantID string, claims []types.Claim, proof []byte,
) (DistributeGrantsParams, error) {
	if len(claims) == 0 {
		return DistributeGrantsParams{}, fmt.Errorf("%w: no claims to distribute", types.ErrInvalidInput)
	}
	if len(proof) == 0 {
		return DistributeGrantsParams{}, fmt.Errorf("%w: empty proof", types.ErrInvalidInput)
	}

	rootValue, err := types.ParseDecimal("root", root)
	if err != nil {
		return DistributeGrantsParams{}, err
	}
	grant, err := types.ParseDecimal("grant_id", grantID)
	if err != nil {
		return DistributeGrantsParams{}, err
	}

	params := DistributeGrantsParams{
		VKeyHash:        vkHash,
		NumClaims:       big.NewInt(int64(len(claims))),
		Root:            rootValue,
		GrantIDs:        make([]*big.Int, len(claims)),
		Receivers:       make([]common.Address, len(claims)),
		NullifierHashes: make([]*big.Int, len(claims)),
		Proof:           proof,
	}
	for i, claim := range claims {
		nullifier, err := types.ParseDecimal("nullifier_hash", claim.NullifierHash)
		if err != nil {
			return DistributeGrantsParams{}, fmt.Errorf("claim %d: %w", i, err)
		}
		params.GrantIDs[i] = new(big.Int).Set(grant)
		params.Receivers[i] = claim.Receiver
		params.NullifierHashes[i] = nullifier
	}

	return params, nil
}
