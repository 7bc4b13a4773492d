package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/keccak256"
)

// Claim is a single grant claim: a receiver, the nullifier hash preventing
// double claims and the semaphore proof elements as decimal strings.
type Claim struct {
	Receiver      common.Address `json:"receiver"`
	NullifierHash string         `json:"nullifier_hash"`
	Proof         []string       `json:"proof"`
}

// ParseDecimal parses a base-10 field element that must fit in 256 bits
func ParseDecimal(name, value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 10) //nolint:mnd
	if !ok {
		return nil, fmt.Errorf("%w: %s %q is not a decimal number", ErrInvalidInput, name, value)
	}
	if n.Sign() < 0 || n.BitLen() > 256 { //nolint:mnd
		return nil, fmt.Errorf("%w: %s %q is out of range", ErrInvalidInput, name, value)
	}

	return n, nil
}

// LeafHash returns keccak256(grantID || receiver || nullifierHash), the
// commitment to this claim used as leaf of the claims tree.
func (c Claim) LeafHash(grantID string) (common.Hash, error) {
	grant, err := ParseDecimal("grant_id", grantID)
	if err != nil {
		return common.Hash{}, err
	}
	nullifier, err := ParseDecimal("nullifier_hash", c.NullifierHash)
	if err != nil {
		return common.Hash{}, err
	}

	return common.BytesToHash(keccak256.Hash(
		common.BigToHash(grant).Bytes(),
		c.Receiver.Bytes(),
		common.BigToHash(nullifier).Bytes(),
	)), nil
}
