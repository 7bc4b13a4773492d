package etherman

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/zkgrants/aggregator/config/types"
)

// Config represents the configuration of the L1 client settling final proofs
type Config struct {
	// URL is the URL of the L1 node. Submission is disabled when empty.
	URL string `mapstructure:"URL"`

	// ContractAddress is the address of the grants contract
	ContractAddress common.Address `mapstructure:"ContractAddress"`

	// VKeyHash is the hash of the verifying key the contract checks the proof against
	VKeyHash common.Hash `mapstructure:"VKeyHash"`

	// GasLimit is the gas limit of the submission tx. The limit is estimated when 0.
	GasLimit uint64 `mapstructure:"GasLimit"`

	// WaitTxTimeout is the maximum time waiting for the tx to be mined, 0 waits forever
	WaitTxTimeout types.Duration `mapstructure:"WaitTxTimeout"`

	// PrivateKey is the keystore of the account sending the txs
	PrivateKey types.KeystoreFileConfig `mapstructure:"PrivateKey"`
}

// Enabled reports whether on-chain submission is configured
func (c Config) Enabled() bool {
	return c.URL != ""
}
