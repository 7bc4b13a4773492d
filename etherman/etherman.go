package etherman

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/log"
)

//go:embed abi/distributegrants.json
var grantsABI string

var (
	// ErrTxReverted is returned when a submitted tx is mined with a failed status
	ErrTxReverted = errors.New("transaction reverted")
	// ErrPrivateKeyNotFound is returned when no keystore is configured
	ErrPrivateKeyNotFound = errors.New("can't find sender private key to sign tx")
)

type ethereumClient interface {
	ethereum.ChainIDReader

	bind.ContractBackend
	bind.DeployBackend
}

// Client sends the final proofs to the grants contract
type Client struct {
	EthClient ethereumClient

	cfg      Config
	logger   *log.Logger
	contract *bind.BoundContract
	auth     bind.TransactOpts
}

// NewClient connects to cfg.URL and loads the sender key from its keystore
func NewClient(ctx context.Context, logger *log.Logger, cfg Config) (*Client, error) {
	ethClient, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		logger.Errorf("error connecting to %s: %+v", cfg.URL, err)
		return nil, err
	}

	return newClient(ctx, logger, cfg, ethClient)
}

func newClient(ctx context.Context, logger *log.Logger, cfg Config, ethClient ethereumClient) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(grantsABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse grants abi: %w", err)
	}

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	auth, _, err := newAuthFromKeystore(logger, cfg.PrivateKey.Path, cfg.PrivateKey.Password, chainID)
	if err != nil {
		return nil, err
	}
	logger.Infof("loaded authorization for address: %v", auth.From.String())

	return &Client{
		EthClient: ethClient,
		cfg:       cfg,
		logger:    logger,
		contract:  bind.NewBoundContract(cfg.ContractAddress, parsed, ethClient, ethClient, ethClient),
		auth:      auth,
	}, nil
}

// From returns the address sending the txs
func (c *Client) From() common.Address {
	return c.auth.From
}

// SubmitGrants settles the final proof of the claims of a request and returns
// the hash of the mined tx
func (c *Client) SubmitGrants(
	ctx context.Context, root, grantID string, claims []types.Claim, proof []byte,
) (common.Hash, error) {
	params, err := NewDistributeGrantsParams(c.cfg.VKeyHash, root, grantID, claims, proof)
	if err != nil {
		return common.Hash{}, err
	}

	return c.DistributeGrants(ctx, params)
}

// DistributeGrants sends a distributeGrants tx and waits for it to be mined
func (c *Client) DistributeGrants(ctx context.Context, params DistributeGrantsParams) (common.Hash, error) {
	opts := c.auth
	opts.Context = ctx
	opts.GasLimit = c.cfg.GasLimit

	tx, err := c.contract.Transact(&opts, "distributeGrants",
		params.VKeyHash,
		params.NumClaims,
		params.Root,
		params.GrantIDs,
		params.Receivers,
		params.NullifierHashes,
		params.Proof,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send distributeGrants tx: %w", err)
	}
	c.logger.Infof("distributeGrants tx %s sent, waiting for it to be mined", tx.Hash().Hex())

	waitCtx := ctx
	if c.cfg.WaitTxTimeout.Duration > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.WaitTxTimeout.Duration)
		defer cancel()
	}
	receipt, err := bind.WaitMined(waitCtx, c.EthClient, tx)
	if err != nil {
		return tx.Hash(), fmt.Errorf("failed waiting for tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return tx.Hash(), fmt.Errorf("%w: tx %s in block %d", ErrTxReverted, tx.Hash().Hex(), receipt.BlockNumber)
	}

	return tx.Hash(), nil
}

// newKeyFromKeystore creates an instance of a keystore key from a keystore file
func newKeyFromKeystore(logger *log.Logger, path, password string) (*keystore.Key, error) {
	if path == "" && password == "" {
		return nil, nil
	}
	keystoreEncrypted, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	logger.Infof("decrypting key from: %v", path)
	key, err := keystore.DecryptKey(keystoreEncrypted, password)
	if err != nil {
		return nil, err
	}

	return key, nil
}

// newAuthFromKeystore an authorization instance from a keystore file
func newAuthFromKeystore(
	logger *log.Logger, path, password string, chainID *big.Int,
) (bind.TransactOpts, *ecdsa.PrivateKey, error) {
	logger.Infof("reading key from: %v", path)
	key, err := newKeyFromKeystore(logger, path, password)
	if err != nil {
		return bind.TransactOpts{}, nil, err
	}
	if key == nil {
		return bind.TransactOpts{}, nil, ErrPrivateKeyNotFound
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key.PrivateKey, chainID)
	if err != nil {
		return bind.TransactOpts{}, nil, err
	}

	return *auth, key.PrivateKey, nil
}
