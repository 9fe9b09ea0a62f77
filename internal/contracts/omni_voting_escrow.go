package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// OmniVotingEscrow wraps the LayerZero veBAL bridge on mainnet.
type OmniVotingEscrow struct {
	*bound
}

// NewOmniVotingEscrow binds the omni voting escrow at address.
func NewOmniVotingEscrow(address common.Address, backend bind.ContractBackend) (*OmniVotingEscrow, error) {
	b, err := newBound(address, OmniVotingEscrowABI, backend)
	if err != nil {
		return nil, fmt.Errorf("omni voting escrow: %w", err)
	}
	return &OmniVotingEscrow{bound: b}, nil
}

// EstimateSendUserBalance returns the native messaging fee for bridging the
// signer's balance to the LayerZero chain id.
func (o *OmniVotingEscrow) EstimateSendUserBalance(ctx context.Context, signer common.Address, layerZeroChainID uint16) (*big.Int, error) {
	out, err := o.call(ctx, signer, "estimateSendUserBalance", layerZeroChainID)
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}

// SendUserBalance bridges user's lock to layerZeroChainID, paying nativeFee.
// Refunds go back to the user.
func (o *OmniVotingEscrow) SendUserBalance(ctx context.Context, opts *bind.TransactOpts, user common.Address, layerZeroChainID uint16, nativeFee *big.Int) (*types.Transaction, error) {
	txOpts, err := withContext(ctx, opts)
	if err != nil {
		return nil, err
	}
	txOpts.Value = nativeFee
	return o.contract.Transact(txOpts, "sendUserBalance", user, layerZeroChainID, user)
}
