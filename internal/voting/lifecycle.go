package voting

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/utils"
)

// LoadRequestWithExistingVotes seeds the request from every pool with an existing
// vote. It runs once per load/reset cycle so an in-progress edit is not clobbered;
// after SetVotingCompleted the next call starts from a cleared request.
// Every vote is converted before anything is seeded, so a bad value leaves the
// request untouched. Seeding stops at MaxVotesPerRequest; pools left out keep
// their on-chain vote.
func (s *Session) LoadRequestWithExistingVotes(pools []types.VotingPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isVotingRequestLoaded {
		return nil
	}

	type seed struct {
		gauge  common.Address
		shares string
	}
	var seeds []seed
	for _, p := range pools {
		shares, err := utils.BpsToShares(p.UserVotes)
		if err != nil {
			return fmt.Errorf("invalid existing vote for gauge %s: %w", p.Gauge.Address.Hex(), err)
		}
		if shares != "" {
			seeds = append(seeds, seed{gauge: p.Gauge.Address, shares: shares})
		}
	}

	if s.isVotingCompleted {
		s.clearRequest()
	}
	seeded, skipped := 0, 0
	for _, sd := range seeds {
		if _, ok := s.request[sd.gauge]; !ok && len(s.request) >= config.MaxVotesPerRequest {
			skipped++
			continue
		}
		s.set(sd.gauge, sd.shares)
		seeded++
	}
	if skipped > 0 {
		s.logger.Warn().
			Int("skipped", skipped).
			Int("max", config.MaxVotesPerRequest).
			Msg("Existing votes exceed the request limit, extra gauges left unselected")
	}

	s.isVotingRequestLoaded = true
	s.isVotingCompleted = false
	s.logger.Info().Int("seeded", seeded).Msg("Voting request loaded from existing votes")
	return nil
}

// GoToSubmissionStep freezes the request for submission. It fails when the request is invalid.
func (s *Session) GoToSubmissionStep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isVotingRequestValid() {
		return ErrInvalidRequest
	}
	s.isSubmissionStep = true
	return nil
}

// BackToEditing leaves the submission step without submitting.
func (s *Session) BackToEditing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isSubmissionStep = false
}

// IsSubmissionStep reports whether the request is frozen for submission.
func (s *Session) IsSubmissionStep() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSubmissionStep
}

// SetVotingCompleted marks the submission flow finished. The next
// LoadRequestWithExistingVotes call starts over from on-chain votes.
func (s *Session) SetVotingCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isVotingCompleted = true
	s.isSubmissionStep = false
	s.isVotingRequestLoaded = false
	s.logger.Info().Msg("Voting completed")
}

// IsVotingCompleted reports whether the last submission flow completed.
func (s *Session) IsVotingCompleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isVotingCompleted
}

// Reset clears the request and every lifecycle flag.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearRequest()
	s.isSubmissionStep = false
	s.isVotingCompleted = false
	s.isVotingRequestLoaded = false
}

func (s *Session) clearRequest() {
	s.request = make(map[common.Address]string)
	s.order = nil
}

// Phase returns the lifecycle position of the session.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.isVotingCompleted:
		return PhaseCompleted
	case s.isSubmissionStep:
		return PhaseSubmissionStep
	case len(s.request) > 0:
		return PhaseEditing
	default:
		return PhaseEmpty
	}
}
