package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// GaugeWorkingBalanceHelper wraps the boost ratio helper.
type GaugeWorkingBalanceHelper struct {
	*bound
}

// NewGaugeWorkingBalanceHelper binds the helper at address.
func NewGaugeWorkingBalanceHelper(address common.Address, backend bind.ContractBackend) (*GaugeWorkingBalanceHelper, error) {
	b, err := newBound(address, GaugeWorkingBalanceHelperABI, backend)
	if err != nil {
		return nil, fmt.Errorf("gauge working balance helper: %w", err)
	}
	return &GaugeWorkingBalanceHelper{bound: b}, nil
}

// GetWorkingBalanceToSupplyRatios returns the current and projected
// working-balance/working-supply ratios (18 decimals) of user on gauge.
func (h *GaugeWorkingBalanceHelper) GetWorkingBalanceToSupplyRatios(ctx context.Context, user, gauge common.Address) (current, projected *big.Int, err error) {
	out, err := h.call(ctx, user, "getWorkingBalanceToSupplyRatios", gauge, user)
	if err != nil {
		return nil, nil, err
	}
	if current, err = bigAt(out, 0); err != nil {
		return nil, nil, err
	}
	if projected, err = bigAt(out, 1); err != nil {
		return nil, nil, err
	}
	return current, projected, nil
}

// LiquidityGauge wraps a single staking gauge.
type LiquidityGauge struct {
	*bound
}

// NewLiquidityGauge binds a gauge at address.
func NewLiquidityGauge(address common.Address, backend bind.ContractBackend) (*LiquidityGauge, error) {
	b, err := newBound(address, LiquidityGaugeABI, backend)
	if err != nil {
		return nil, fmt.Errorf("liquidity gauge: %w", err)
	}
	return &LiquidityGauge{bound: b}, nil
}

// UserCheckpoint pokes the gauge so it recomputes user's working balance.
func (l *LiquidityGauge) UserCheckpoint(ctx context.Context, opts *bind.TransactOpts, user common.Address) (*types.Transaction, error) {
	txOpts, err := withContext(ctx, opts)
	if err != nil {
		return nil, err
	}
	return l.contract.Transact(txOpts, "user_checkpoint", user)
}

// BalanceOf returns user's staked LP balance.
func (l *LiquidityGauge) BalanceOf(ctx context.Context, user common.Address) (*big.Int, error) {
	out, err := l.call(ctx, user, "balanceOf", user)
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}
