/*

Voting pools as seen by the gauge voting flow.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Gauge is the liquidity gauge attached to a voting pool.
type Gauge struct {
	Address           common.Address `json:"address"`
	IsKilled          bool           `json:"is_killed"`           // Permanently retired by governance
	AddedTimestamp    int64          `json:"added_timestamp"`     // Unix seconds
	RelativeWeightCap string         `json:"relative_weight_cap"` // Decimal fraction, empty when uncapped
}

// VotingPool is one gauge-eligible pool together with the account's vote on it.
type VotingPool struct {
	ID               string         `json:"id"`
	Address          common.Address `json:"address"`
	Chain            string         `json:"chain"`   // e.g. "MAINNET", "ARBITRUM"
	Network          uint64         `json:"network"` // Chain id the pool lives on
	Symbol           string         `json:"symbol"`
	Gauge            Gauge          `json:"gauge"`
	UserVotes        string         `json:"user_votes"`          // Current on-chain vote in bps, non-negative integer string
	LastUserVoteTime int64          `json:"last_user_vote_time"` // Unix seconds, 0 when never voted
	VotesNextPeriod  string         `json:"votes_next_period"`   // Relative weight next epoch, 18-decimal fraction
}

// VoteEntry is one element of a confirmed voting request.
type VoteEntry struct {
	GaugeAddress common.Address `json:"gauge_address"`
	Weight       string         `json:"weight"` // Shares, 0-100
}
