package datafetcher

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/beethovenx/vegov/internal/types"
)

const omniLocksQuery = `query OmniVotingEscrowLocks($user: String!) {
  omniVotingEscrowLocks(where: { localUser: $user }) {
    id
    bias
    slope
    timestamp
    dstChainId
    localUser { id }
    remoteUser
  }
}`

const votingEscrowLockQuery = `query VotingEscrowLocks($user: String!) {
  votingEscrowLocks(where: { user: $user }) {
    id
    bias
    slope
    timestamp
    unlockTime
    lockedBalance
  }
}`

// GetOmniEscrowLocks returns the account's bridge-mirrored locks, one per
// destination chain it was ever synced to.
func (f *Fetcher) GetOmniEscrowLocks(ctx context.Context, account common.Address) ([]types.OmniEscrowLock, error) {
	var resp struct {
		Locks []struct {
			ID         string  `json:"id"`
			Bias       string  `json:"bias"`
			Slope      string  `json:"slope"`
			Timestamp  flexInt `json:"timestamp"`
			DstChainID flexInt `json:"dstChainId"`
			LocalUser  struct {
				ID string `json:"id"`
			} `json:"localUser"`
			RemoteUser string `json:"remoteUser"`
		} `json:"omniVotingEscrowLocks"`
	}
	vars := map[string]interface{}{"user": strings.ToLower(account.Hex())}
	if err := f.subgraph.Query(ctx, "omniVotingEscrowLocks", omniLocksQuery, vars, &resp); err != nil {
		return nil, err
	}

	out := make([]types.OmniEscrowLock, 0, len(resp.Locks))
	for _, l := range resp.Locks {
		out = append(out, types.OmniEscrowLock{
			ID:         l.ID,
			Bias:       l.Bias,
			Slope:      l.Slope,
			Timestamp:  int64(l.Timestamp),
			DstChainID: uint16(l.DstChainID),
			LocalUser:  common.HexToAddress(l.LocalUser.ID),
			RemoteUser: common.HexToAddress(l.RemoteUser),
		})
	}
	return out, nil
}

// GetVotingEscrowLock returns the account's mainnet lock, or nil without one.
func (f *Fetcher) GetVotingEscrowLock(ctx context.Context, account common.Address) (*types.VotingEscrowLock, error) {
	var resp struct {
		Locks []struct {
			ID            string  `json:"id"`
			Bias          string  `json:"bias"`
			Slope         string  `json:"slope"`
			Timestamp     flexInt `json:"timestamp"`
			UnlockTime    flexInt `json:"unlockTime"`
			LockedBalance string  `json:"lockedBalance"`
		} `json:"votingEscrowLocks"`
	}
	vars := map[string]interface{}{"user": strings.ToLower(account.Hex())}
	if err := f.subgraph.Query(ctx, "votingEscrowLocks", votingEscrowLockQuery, vars, &resp); err != nil {
		return nil, err
	}
	if len(resp.Locks) == 0 {
		return nil, nil
	}
	l := resp.Locks[0]
	return &types.VotingEscrowLock{
		Bias:          l.Bias,
		Slope:         l.Slope,
		Timestamp:     int64(l.Timestamp),
		UnlockTime:    int64(l.UnlockTime),
		LockedBalance: l.LockedBalance,
	}, nil
}
