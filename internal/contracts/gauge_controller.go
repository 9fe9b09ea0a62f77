package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Slots is the fixed array width of vote_for_many_gauge_weights.
const Slots = 8

// GaugeController wraps the veBAL gauge controller.
type GaugeController struct {
	*bound
}

// UserVote is an account's current vote on one gauge.
type UserVote struct {
	Slope    *big.Int
	Power    *big.Int // bps
	End      *big.Int
	LastVote *big.Int // unix seconds
}

// NewGaugeController binds the gauge controller at address.
func NewGaugeController(address common.Address, backend bind.ContractBackend) (*GaugeController, error) {
	b, err := newBound(address, GaugeControllerABI, backend)
	if err != nil {
		return nil, fmt.Errorf("gauge controller: %w", err)
	}
	return &GaugeController{bound: b}, nil
}

// VoteForManyGaugeWeights submits up to eight gauge votes. Unused slots must hold
// the zero address and zero weight.
func (g *GaugeController) VoteForManyGaugeWeights(ctx context.Context, opts *bind.TransactOpts, gauges [Slots]common.Address, weights [Slots]*big.Int) (*types.Transaction, error) {
	txOpts, err := withContext(ctx, opts)
	if err != nil {
		return nil, err
	}
	for i := range weights {
		if weights[i] == nil {
			weights[i] = new(big.Int)
		}
	}
	return g.contract.Transact(txOpts, "vote_for_many_gauge_weights", gauges, weights)
}

// UserVote reads the account's vote slope/power and last vote time for a gauge.
func (g *GaugeController) UserVote(ctx context.Context, user, gauge common.Address) (UserVote, error) {
	out, err := g.call(ctx, user, "vote_user_slopes", user, gauge)
	if err != nil {
		return UserVote{}, err
	}
	var v UserVote
	if v.Slope, err = bigAt(out, 0); err != nil {
		return UserVote{}, err
	}
	if v.Power, err = bigAt(out, 1); err != nil {
		return UserVote{}, err
	}
	if v.End, err = bigAt(out, 2); err != nil {
		return UserVote{}, err
	}

	out, err = g.call(ctx, user, "last_user_vote", user, gauge)
	if err != nil {
		return UserVote{}, err
	}
	if v.LastVote, err = bigAt(out, 0); err != nil {
		return UserVote{}, err
	}
	return v, nil
}

// VoteUserPower returns the bps of voting power the account has allocated.
func (g *GaugeController) VoteUserPower(ctx context.Context, user common.Address) (*big.Int, error) {
	out, err := g.call(ctx, user, "vote_user_power", user)
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}

// GaugeRelativeWeight returns the 18-decimal relative weight of a gauge at a time.
func (g *GaugeController) GaugeRelativeWeight(ctx context.Context, gauge common.Address, at int64) (*big.Int, error) {
	out, err := g.call(ctx, common.Address{}, "gauge_relative_weight", gauge, big.NewInt(at))
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}
