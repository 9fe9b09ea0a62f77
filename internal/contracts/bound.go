package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrZeroAddress    = errors.New("contract address is the zero address")
	ErrNilTransactor  = errors.New("transact opts are required")
	ErrUnexpectedType = errors.New("unexpected contract return type")
)

// bound is a parsed ABI bound to one deployed address.
type bound struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

func newBound(address common.Address, abiJSON string, backend bind.ContractBackend) (*bound, error) {
	if address == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &bound{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

func (b *bound) call(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: from}
	if err := b.contract.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	return out, nil
}

// withContext copies opts so the caller's value is not mutated.
func withContext(ctx context.Context, opts *bind.TransactOpts) (*bind.TransactOpts, error) {
	if opts == nil {
		return nil, ErrNilTransactor
	}
	cp := *opts
	cp.Context = ctx
	return &cp, nil
}

func bigAt(out []interface{}, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("%w: want %d results, got %d", ErrUnexpectedType, i+1, len(out))
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: result %d is %T", ErrUnexpectedType, i, out[i])
	}
	return v, nil
}

// Address returns the deployed contract address.
func (b *bound) Address() common.Address {
	return b.address
}
