package voting

import (
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/utils"
)

// PoolView is a voting pool plus its per-session flags.
type PoolView struct {
	types.VotingPool
	Selected       bool   `json:"selected"`
	Expired        bool   `json:"expired"`
	TimeLocked     bool   `json:"time_locked"`
	InputDisabled  bool   `json:"input_disabled"`
	RequestedVotes string `json:"requested_votes,omitempty"`
}

// Snapshot is an immutable view of the session for reporting.
type Snapshot struct {
	Phase                       Phase             `json:"phase"`
	Request                     map[string]string `json:"request"`
	SelectedGaugeAddresses      []string          `json:"selected_gauge_addresses"`
	ConfirmedVotingRequest      []types.VoteEntry `json:"confirmed_voting_request"`
	TotalAllocatedWeight        string            `json:"total_allocated_weight"`
	IsRequestingTooMuchWeight   bool              `json:"is_requesting_too_much_weight"`
	IsVotingRequestValid        bool              `json:"is_voting_request_valid"`
	HasAllVotingPowerTimeLocked bool              `json:"has_all_voting_power_time_locked"`
	Pools                       []PoolView        `json:"pools"`
}

// Snapshot collects the derived session values. Each accessor takes its own read
// lock, so concurrent writers may interleave between fields.
func (s *Session) Snapshot() Snapshot {
	request := s.Request()
	reqOut := make(map[string]string, len(request))
	for k, v := range request {
		reqOut[k.Hex()] = v
	}

	selected := s.SelectedGaugeAddresses()
	selectedOut := make([]string, len(selected))
	for i, a := range selected {
		selectedOut[i] = a.Hex()
	}

	pools := s.Pools()
	views := make([]PoolView, 0, len(pools))
	for _, p := range pools {
		requested, isSelected := request[p.Gauge.Address]
		views = append(views, PoolView{
			VotingPool:     p,
			Selected:       isSelected,
			Expired:        s.IsPoolExpired(p),
			TimeLocked:     s.IsVotingTimeLocked(p.LastUserVoteTime),
			InputDisabled:  s.IsInputDisabled(p),
			RequestedVotes: requested,
		})
	}

	return Snapshot{
		Phase:                       s.Phase(),
		Request:                     reqOut,
		SelectedGaugeAddresses:      selectedOut,
		ConfirmedVotingRequest:      s.ConfirmedVotingRequest(),
		TotalAllocatedWeight:        utils.TrimDec(s.TotalAllocatedWeight()),
		IsRequestingTooMuchWeight:   s.IsRequestingTooMuchWeight(),
		IsVotingRequestValid:        s.IsVotingRequestValid(),
		HasAllVotingPowerTimeLocked: s.HasAllVotingPowerTimeLocked(),
		Pools:                       views,
	}
}
