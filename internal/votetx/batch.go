/*

Batching of a confirmed voting request into fixed-width gauge controller calls.

The gauge controller's vote_for_many_gauge_weights takes exactly eight
gauge/weight slots. Requests of up to eight votes go out in one batch, nine to
sixteen in two. Larger requests are rejected.

*/

package votetx

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/contracts"
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/utils"
)

var (
	ErrEmptyRequest  = errors.New("voting request is empty")
	ErrTooManyVotes  = errors.New("voting request exceeds the maximum number of votes")
	ErrBatchTooLarge = errors.New("batch exceeds the gauge controller slot count")
	ErrInvalidWeight = errors.New("vote weight is invalid")
)

// Batches splits request into at most two slices of up to eight entries, preserving order.
func Batches(request []types.VoteEntry) ([][]types.VoteEntry, error) {
	if len(request) == 0 {
		return nil, ErrEmptyRequest
	}
	if len(request) > config.MaxVotesPerRequest {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyVotes, len(request), config.MaxVotesPerRequest)
	}
	if len(request) <= contracts.Slots {
		return [][]types.VoteEntry{request}, nil
	}
	return [][]types.VoteEntry{request[:contracts.Slots], request[contracts.Slots:]}, nil
}

// PadBatch converts a batch into the contract's fixed arrays. Weights go from
// shares to bps; unused slots hold the zero address and zero weight.
func PadBatch(batch []types.VoteEntry) ([contracts.Slots]common.Address, [contracts.Slots]*big.Int, error) {
	var gauges [contracts.Slots]common.Address
	var weights [contracts.Slots]*big.Int

	if len(batch) > contracts.Slots {
		return gauges, weights, fmt.Errorf("%w: %d entries", ErrBatchTooLarge, len(batch))
	}
	for i := range weights {
		weights[i] = new(big.Int)
	}
	for i, entry := range batch {
		bps, err := utils.SharesToBps(entry.Weight)
		if err != nil {
			return gauges, weights, fmt.Errorf("%w: gauge %s: %w", ErrInvalidWeight, entry.GaugeAddress.Hex(), err)
		}
		gauges[i] = entry.GaugeAddress
		weights[i] = big.NewInt(bps)
	}
	return gauges, weights, nil
}

// isRemovingExpiredVotes is true when every entry drops the weight of a killed gauge.
func isRemovingExpiredVotes(batch []types.VoteEntry, isExpired func(common.Address) bool) bool {
	if len(batch) == 0 || isExpired == nil {
		return false
	}
	for _, entry := range batch {
		if !isExpired(entry.GaugeAddress) {
			return false
		}
		bps, err := utils.SharesToBps(entry.Weight)
		if err != nil || bps != 0 {
			return false
		}
	}
	return true
}

func stepLabel(batch []types.VoteEntry, isExpired func(common.Address) bool) string {
	plural := len(batch) > 1
	switch {
	case isRemovingExpiredVotes(batch, isExpired) && plural:
		return "Remove votes"
	case isRemovingExpiredVotes(batch, isExpired):
		return "Remove vote"
	case plural:
		return "Confirm votes"
	default:
		return "Confirm vote"
	}
}

func stepTooltip(index, total int) string {
	if total != 2 {
		return ""
	}
	if index == 0 {
		return "Confirm first batch of votes"
	}
	return "Confirm second batch of votes"
}
