package voting

import (
	sdkmath "cosmossdk.io/math"

	"github.com/beethovenx/vegov/internal/config"
)

var maxShares = sdkmath.LegacyNewDec(config.MaxVoteShares)

// TotalAllocatedWeight is the voting power in use once the request lands, in shares.
// Unlocked selected pools count their requested weight; every other pool keeps its
// existing on-chain vote.
func (s *Session) TotalAllocatedWeight() sdkmath.LegacyDec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalAllocatedWeight()
}

func (s *Session) totalAllocatedWeight() sdkmath.LegacyDec {
	now := s.now()
	total := sdkmath.LegacyZeroDec()
	for _, p := range s.pools {
		_, selected := s.request[p.Gauge.Address]
		if selected && !isVotingTimeLocked(p.LastUserVoteTime, now) {
			total = total.Add(s.requestedShares(p))
			continue
		}
		total = total.Add(existingShares(p))
	}
	return total
}

// IsRequestingTooMuchWeight is true when the request allocates more than 100%.
func (s *Session) IsRequestingTooMuchWeight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalAllocatedWeight().GT(maxShares)
}

// HasExpiredPoolsWithUserVotesSelected is true when a selected pool has an expired
// gauge that still carries an existing vote, i.e. the user is removing a dead vote.
func (s *Session) HasExpiredPoolsWithUserVotesSelected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasExpiredPoolsWithUserVotesSelected()
}

func (s *Session) hasExpiredPoolsWithUserVotesSelected() bool {
	for _, p := range s.selectedPools() {
		if s.isPoolExpired(p) && existingShares(p).IsPositive() {
			return true
		}
	}
	return false
}

// HasUserEnteredVotes is true when some unlocked, non-expired selected pool has a
// nonzero requested weight.
func (s *Session) HasUserEnteredVotes() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasUserEnteredVotes()
}

func (s *Session) hasUserEnteredVotes() bool {
	for _, p := range s.unlockedSelectedPools() {
		if s.isPoolExpired(p) {
			continue
		}
		if s.requestedShares(p).IsPositive() {
			return true
		}
	}
	return false
}

// IsVotingRequestValid: not over 100% AND (removing an expired vote OR casting a vote).
func (s *Session) IsVotingRequestValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isVotingRequestValid()
}

func (s *Session) isVotingRequestValid() bool {
	if s.totalAllocatedWeight().GT(maxShares) {
		return false
	}
	return s.hasExpiredPoolsWithUserVotesSelected() || s.hasUserEnteredVotes()
}

// HasAllVotingPowerTimeLocked is true when every selected pool is time-locked and
// their existing votes add up to exactly 100%.
func (s *Session) HasAllVotingPowerTimeLocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	total := sdkmath.LegacyZeroDec()
	for _, p := range s.selectedPools() {
		if !isVotingTimeLocked(p.LastUserVoteTime, now) {
			return false
		}
		total = total.Add(existingShares(p))
	}
	return total.Equal(maxShares)
}
