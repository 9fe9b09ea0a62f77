/*

The voting session holds the account's in-progress gauge vote edits.

One Session is shared by reference between every surface that edits or reads the
pending request (HTTP API, CLI, governor loop). All derived values are computed on
read from the current pools, expired gauges and request, so they change exactly when
one of those inputs changes.

*/

package voting

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/logger"
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/utils"
)

var (
	ErrSubmissionInProgress = errors.New("voting request is in the submission step")
	ErrNotSelected          = errors.New("gauge is not selected")
	ErrInputDisabled        = errors.New("gauge is expired or time-locked")
	ErrTooManySelections    = errors.New("too many gauges selected")
	ErrUnknownGauge         = errors.New("gauge is not a voting pool")
	ErrInvalidRequest       = errors.New("voting request is not valid")
	ErrWeightOutOfRange     = errors.New("vote weight must be between 0 and 100")
)

// Phase is the lifecycle position of a voting session.
type Phase string

const (
	PhaseEmpty          Phase = "empty"
	PhaseEditing        Phase = "editing"
	PhaseSubmissionStep Phase = "submission_step"
	PhaseCompleted      Phase = "completed"
)

// Session is the explicit, shared voting request store.
type Session struct {
	mu     sync.RWMutex
	now    func() time.Time
	logger zerolog.Logger

	pools         []types.VotingPool
	expiredGauges []string

	// request maps gauge address to user-entered shares; order keeps insertion order.
	request map[common.Address]string
	order   []common.Address

	isSubmissionStep      bool
	isVotingCompleted     bool
	isVotingRequestLoaded bool
}

// NewSession creates an empty session. A nil clock means time.Now.
func NewSession(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		now:     now,
		logger:  logger.GetForComponent("voting_session"),
		request: make(map[common.Address]string),
	}
}

// SetPools replaces the voting pools the session derives from.
func (s *Session) SetPools(pools []types.VotingPool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools = append([]types.VotingPool(nil), pools...)
}

// SetExpiredGauges replaces the list of permanently killed gauge addresses.
func (s *Session) SetExpiredGauges(expired []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiredGauges = append([]string(nil), expired...)
}

// Pools returns a copy of the current voting pools.
func (s *Session) Pools() []types.VotingPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.VotingPool(nil), s.pools...)
}

// PoolByGauge looks a voting pool up by gauge address.
func (s *Session) PoolByGauge(gauge common.Address) (types.VotingPool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poolByGauge(gauge)
}

func (s *Session) poolByGauge(gauge common.Address) (types.VotingPool, bool) {
	for _, p := range s.pools {
		if p.Gauge.Address == gauge {
			return p, true
		}
	}
	return types.VotingPool{}, false
}

// --- Pool predicates ---

// IsVotingTimeLocked reports whether a vote cast at lastVoteTime (unix seconds)
// is still inside the gauge controller's vote delay.
func (s *Session) IsVotingTimeLocked(lastVoteTime int64) bool {
	return isVotingTimeLocked(lastVoteTime, s.now())
}

func isVotingTimeLocked(lastVoteTime int64, now time.Time) bool {
	if lastVoteTime <= 0 {
		return false
	}
	return now.Sub(time.Unix(lastVoteTime, 0)) < config.VoteDelay
}

// IsGaugeExpired reports whether the gauge is in the expired gauge list or
// belongs to a pool whose gauge is killed.
func (s *Session) IsGaugeExpired(gauge common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pool, ok := s.poolByGauge(gauge); ok {
		return s.isPoolExpired(pool)
	}
	return utils.IsGaugeExpired(s.expiredGauges, gauge.Hex())
}

// IsPoolExpired reports whether the pool's gauge is killed or listed as expired.
func (s *Session) IsPoolExpired(pool types.VotingPool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isPoolExpired(pool)
}

func (s *Session) isPoolExpired(pool types.VotingPool) bool {
	return pool.Gauge.IsKilled || utils.IsGaugeExpired(s.expiredGauges, pool.Gauge.Address.Hex())
}

// IsInputDisabled is true when the pool's gauge is expired or the pool is time-locked.
func (s *Session) IsInputDisabled(pool types.VotingPool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isInputDisabled(pool)
}

func (s *Session) isInputDisabled(pool types.VotingPool) bool {
	return s.isPoolExpired(pool) || isVotingTimeLocked(pool.LastUserVoteTime, s.now())
}

// --- Selection ---

// IsSelected reports whether the pool's gauge is in the request.
func (s *Session) IsSelected(pool types.VotingPool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.request[pool.Gauge.Address]
	return ok
}

// ToggleSelection unselects a selected pool, or selects it with its existing vote
// converted to shares. Expired gauges start at zero.
func (s *Session) ToggleSelection(pool types.VotingPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isSubmissionStep {
		return ErrSubmissionInProgress
	}

	gauge := pool.Gauge.Address
	if _, ok := s.request[gauge]; ok {
		s.remove(gauge)
		s.logger.Debug().Str("gauge", gauge.Hex()).Msg("Gauge unselected")
		return nil
	}

	if len(s.request) >= config.MaxVotesPerRequest {
		return fmt.Errorf("%w: at most %d", ErrTooManySelections, config.MaxVotesPerRequest)
	}

	existing := pool.UserVotes
	if s.isPoolExpired(pool) {
		existing = "0"
	}
	shares, err := utils.BpsToShares(existing)
	if err != nil {
		return fmt.Errorf("invalid existing vote for gauge %s: %w", gauge.Hex(), err)
	}
	s.set(gauge, shares)
	s.logger.Debug().Str("gauge", gauge.Hex()).Str("shares", shares).Msg("Gauge selected")
	return nil
}

// SetWeight records a user-entered weight (shares, 0-100) for a selected gauge.
func (s *Session) SetWeight(gauge common.Address, shares string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isSubmissionStep {
		return ErrSubmissionInProgress
	}
	if _, ok := s.request[gauge]; !ok {
		return fmt.Errorf("%w: %s", ErrNotSelected, gauge.Hex())
	}
	pool, ok := s.poolByGauge(gauge)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGauge, gauge.Hex())
	}
	if s.isInputDisabled(pool) {
		return fmt.Errorf("%w: %s", ErrInputDisabled, gauge.Hex())
	}

	shares = strings.TrimSpace(shares)
	dec, err := utils.ParseShares(shares)
	if err != nil {
		return err
	}
	if dec.GT(sdkmath.LegacyNewDec(config.MaxVoteShares)) {
		return fmt.Errorf("%w: %s", ErrWeightOutOfRange, shares)
	}
	s.request[gauge] = shares
	return nil
}

func (s *Session) set(gauge common.Address, shares string) {
	if _, ok := s.request[gauge]; !ok {
		s.order = append(s.order, gauge)
	}
	s.request[gauge] = shares
}

func (s *Session) remove(gauge common.Address) {
	delete(s.request, gauge)
	for i, addr := range s.order {
		if addr == gauge {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Request returns a copy of the gauge -> shares map.
func (s *Session) Request() map[common.Address]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.Address]string, len(s.request))
	for k, v := range s.request {
		out[k] = v
	}
	return out
}

// SelectedGaugeAddresses returns the request keys in insertion order.
func (s *Session) SelectedGaugeAddresses() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]common.Address(nil), s.order...)
}

// SelectedPools returns the voting pools whose gauge is selected, in pool order.
func (s *Session) SelectedPools() []types.VotingPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedPools()
}

func (s *Session) selectedPools() []types.VotingPool {
	out := make([]types.VotingPool, 0, len(s.request))
	for _, p := range s.pools {
		if _, ok := s.request[p.Gauge.Address]; ok {
			out = append(out, p)
		}
	}
	return out
}

// UnlockedSelectedPools returns selected pools that are not time-locked.
func (s *Session) UnlockedSelectedPools() []types.VotingPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlockedSelectedPools()
}

func (s *Session) unlockedSelectedPools() []types.VotingPool {
	now := s.now()
	selected := s.selectedPools()
	out := make([]types.VotingPool, 0, len(selected))
	for _, p := range selected {
		if !isVotingTimeLocked(p.LastUserVoteTime, now) {
			out = append(out, p)
		}
	}
	return out
}
