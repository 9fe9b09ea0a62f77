package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/beethovenx/vegov/internal/logger"
)

var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrKeyInvalid          = errors.New("signing key is invalid")
	ErrNoSigner            = errors.New("client has no signing key")
	ErrRPCConnectionFailed = errors.New("RPC connection failed")
	ErrChainIDMismatch     = errors.New("RPC endpoint serves a different chain")
	ErrAccountMismatch     = errors.New("signing key does not control the configured account")
)

// Backend is what the contract bindings and receipt waiting need from a node.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// SigningClient is an RPC connection to one chain, optionally holding a key
// that signs for the governance account.
type SigningClient struct {
	backend Backend
	closer  func()
	chainID *big.Int
	key     *ecdsa.PrivateKey
	address common.Address
	logger  zerolog.Logger
}

// NewSigningClient dials rpcURL, checks it serves expectedChainID and loads
// privateKeyHex. The derived address must equal account unless account is zero.
func NewSigningClient(ctx context.Context, rpcURL string, expectedChainID uint64, privateKeyHex string, account common.Address) (*SigningClient, error) {
	if privateKeyHex == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("private key cannot be empty"))
	}
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, errors.Join(ErrKeyInvalid, err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	if account != (common.Address{}) && account != address {
		return nil, fmt.Errorf("%w: key controls %s, configured %s", ErrAccountMismatch, address.Hex(), account.Hex())
	}

	client, err := dial(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	sc, err := newClient(ctx, client, client.Close, expectedChainID)
	if err != nil {
		client.Close()
		return nil, err
	}
	sc.key = key
	sc.address = address

	sc.logger.Info().
		Str("address", address.Hex()).
		Str("chainID", sc.chainID.String()).
		Msg("Signing client initialized")
	return sc, nil
}

// NewReadOnlyClient dials rpcURL for calls only. account is used as the
// call sender so view functions that read msg.sender behave as for the user.
func NewReadOnlyClient(ctx context.Context, rpcURL string, expectedChainID uint64, account common.Address) (*SigningClient, error) {
	client, err := dial(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	sc, err := newClient(ctx, client, client.Close, expectedChainID)
	if err != nil {
		client.Close()
		return nil, err
	}
	sc.address = account
	return sc, nil
}

// NewClientWithBackend wraps an existing backend, e.g. a simulated chain in tests.
func NewClientWithBackend(ctx context.Context, backend Backend, expectedChainID uint64, privateKeyHex string) (*SigningClient, error) {
	sc, err := newClient(ctx, backend, func() {}, expectedChainID)
	if err != nil {
		return nil, err
	}
	if privateKeyHex != "" {
		key, err := parsePrivateKey(privateKeyHex)
		if err != nil {
			return nil, errors.Join(ErrKeyInvalid, err)
		}
		sc.key = key
		sc.address = crypto.PubkeyToAddress(key.PublicKey)
	}
	return sc, nil
}

func dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("RPC endpoint cannot be empty"))
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Join(ErrRPCConnectionFailed, err)
	}
	return client, nil
}

func newClient(ctx context.Context, backend Backend, closer func(), expectedChainID uint64) (*SigningClient, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, errors.Join(ErrRPCConnectionFailed, fmt.Errorf("failed to get chain ID: %w", err))
	}
	if expectedChainID != 0 && chainID.Uint64() != expectedChainID {
		return nil, fmt.Errorf("%w: expected %d, got %s", ErrChainIDMismatch, expectedChainID, chainID)
	}
	return &SigningClient{
		backend: backend,
		closer:  closer,
		chainID: chainID,
		logger:  logger.GetForComponent("wallet_client").With().Uint64("chainId", chainID.Uint64()).Logger(),
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// Backend returns the node connection for contract bindings.
func (c *SigningClient) Backend() Backend { return c.backend }

// Address is the signer, or the read-only caller account.
func (c *SigningClient) Address() common.Address { return c.address }

func (c *SigningClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// CanSign reports whether the client holds a key.
func (c *SigningClient) CanSign() bool { return c.key != nil }

// TransactOpts returns fresh signer options bound to ctx.
func (c *SigningClient) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.key == nil {
		return nil, ErrNoSigner
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// NativeBalance returns the account's balance in wei.
func (c *SigningClient) NativeBalance(ctx context.Context) (*big.Int, error) {
	return c.backend.BalanceAt(ctx, c.address, nil)
}

// Close releases the RPC connection.
func (c *SigningClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}
