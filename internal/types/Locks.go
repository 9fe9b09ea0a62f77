/*

Voting-escrow lock records. Both decay linearly: balance(t) = max(0, bias - slope*(t - timestamp)).

*/

package types

import "github.com/ethereum/go-ethereum/common"

// VotingEscrowLock is the canonical mainnet veBAL lock of an account.
type VotingEscrowLock struct {
	Bias          string `json:"bias"`
	Slope         string `json:"slope"`
	Timestamp     int64  `json:"timestamp"`
	UnlockTime    int64  `json:"unlock_time"`
	LockedBalance string `json:"locked_balance"`
}

// OmniEscrowLock is the bridge-mirrored copy of a lock sent to one destination chain.
type OmniEscrowLock struct {
	ID         string         `json:"id"`
	Bias       string         `json:"bias"`
	Slope      string         `json:"slope"`
	Timestamp  int64          `json:"timestamp"`
	DstChainID uint16         `json:"dst_chain_id"` // LayerZero chain id
	LocalUser  common.Address `json:"local_user"`
	RemoteUser common.Address `json:"remote_user"`
}
