package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrNilTransaction = errors.New("transaction is nil")
	ErrTxReverted     = errors.New("transaction reverted")
	ErrWaitFailed     = errors.New("failed waiting for transaction receipt")
)

// WaitMined blocks until tx is mined and fails if its receipt reports a revert.
func (c *SigningClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	c.logger.Debug().Str("txHash", tx.Hash().Hex()).Msg("Waiting for transaction to be mined")

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, errors.Join(ErrWaitFailed, err)
	}
	if err := validateReceipt(receipt); err != nil {
		c.logger.Error().Err(err).Str("txHash", tx.Hash().Hex()).Msg("Transaction failed on chain")
		return receipt, err
	}

	c.logger.Info().
		Str("txHash", tx.Hash().Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Uint64("gasUsed", receipt.GasUsed).
		Msg("Transaction confirmed")
	return receipt, nil
}

func validateReceipt(receipt *types.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("%w: receipt is nil", ErrWaitFailed)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrTxReverted, receipt.TxHash.Hex())
	}
	return nil
}
