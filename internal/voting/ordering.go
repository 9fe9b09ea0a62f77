package voting

import (
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/utils"
)

// requestedShares is the user-entered weight; unparsable or empty input counts as zero.
func (s *Session) requestedShares(pool types.VotingPool) sdkmath.LegacyDec {
	dec, err := utils.ParseShares(s.request[pool.Gauge.Address])
	if err != nil {
		return sdkmath.LegacyZeroDec()
	}
	return dec
}

// existingShares is the pool's on-chain vote converted from bps.
func existingShares(pool types.VotingPool) sdkmath.LegacyDec {
	dec, err := utils.BpsToSharesDec(pool.UserVotes)
	if err != nil {
		return sdkmath.LegacyZeroDec()
	}
	return dec
}

// WeightIncrement is the requested weight minus the existing weight, in shares.
func (s *Session) WeightIncrement(pool types.VotingPool) sdkmath.LegacyDec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weightIncrement(pool)
}

func (s *Session) weightIncrement(pool types.VotingPool) sdkmath.LegacyDec {
	return s.requestedShares(pool).Sub(existingShares(pool))
}

// UnlockedSelectedPoolsOrderedByWeight sorts unlocked selected pools ascending by
// weight increment. The gauge controller caps voting power in use after every
// single vote, so the largest decreases go first and the largest increases last.
func (s *Session) UnlockedSelectedPoolsOrderedByWeight() []types.VotingPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlockedSelectedPoolsOrderedByWeight()
}

func (s *Session) unlockedSelectedPoolsOrderedByWeight() []types.VotingPool {
	pools := s.unlockedSelectedPools()
	increments := make(map[int]sdkmath.LegacyDec, len(pools))
	for i, p := range pools {
		increments[i] = s.weightIncrement(p)
	}

	idx := make([]int, len(pools))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return increments[idx[a]].LT(increments[idx[b]])
	})

	out := make([]types.VotingPool, len(pools))
	for i, j := range idx {
		out[i] = pools[j]
	}
	return out
}

// ConfirmedVotingRequest is the ordered gauge/weight list handed to the vote actions.
func (s *Session) ConfirmedVotingRequest() []types.VoteEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := s.unlockedSelectedPoolsOrderedByWeight()
	out := make([]types.VoteEntry, 0, len(ordered))
	for _, p := range ordered {
		weight := s.request[p.Gauge.Address]
		if weight == "" {
			weight = "0"
		}
		out = append(out, types.VoteEntry{GaugeAddress: p.Gauge.Address, Weight: weight})
	}
	return out
}
