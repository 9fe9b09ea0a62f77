/*

Classification of each L2 network's bridged veBAL lock against the canonical
mainnet lock.

A network without an omni lock has never received the user's balance and is
unsynced. Matching bias and slope means synced. Anything else means a sync was
sent and the indexer has not caught up yet, so the network is syncing.

*/

package crosschain

import (
	"time"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/utils"
)

const zeroBalance = "0.0000"

// GetNetworkSyncState compares one network's omni lock with the mainnet lock.
func GetNetworkSyncState(omni *types.OmniEscrowLock, mainnet *types.VotingEscrowLock) types.NetworkSyncState {
	if omni == nil {
		return types.NetworkSyncStateUnsynced
	}
	if mainnet == nil {
		return types.NetworkSyncStateUnknown
	}
	if sameAmount(omni.Bias, mainnet.Bias) && sameAmount(omni.Slope, mainnet.Slope) {
		return types.NetworkSyncStateSynced
	}
	return types.NetworkSyncStateSyncing
}

// sameAmount compares numerically so "1.0" equals "1"; unparsable values
// fall back to exact string equality.
func sameAmount(a, b string) bool {
	da, errA := utils.ParseDec(a)
	db, errB := utils.ParseDec(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return da.Equal(db)
}

// L2VeBalBalance projects the omni lock to now, with four decimals.
func L2VeBalBalance(omni *types.OmniEscrowLock, now time.Time) string {
	if omni == nil {
		return zeroBalance
	}
	balance, err := utils.DecayedBalance(omni.Bias, omni.Slope, omni.Timestamp, now.Unix())
	if err != nil {
		return zeroBalance
	}
	return utils.FormatDec(balance, config.BalanceDecimals)
}

// VeBalSyncSupportedNetworks filters the table to networks supporting sync.
func VeBalSyncSupportedNetworks(networks []config.Network) []config.Network {
	return config.VeBalSyncNetworks(networks)
}

// Input is everything Classify needs. OmniLocks are matched to networks by
// LayerZero chain id.
type Input struct {
	Networks    []config.Network
	OmniLocks   []types.OmniEscrowLock
	MainnetLock *types.VotingEscrowLock
	HasError    bool
	TempSyncing []uint64
	Now         time.Time
}

// NetworkStatus is one row of a Snapshot.
type NetworkStatus struct {
	ChainID   uint64                 `json:"chainId"`
	Key       string                 `json:"key"`
	Name      string                 `json:"name"`
	State     types.NetworkSyncState `json:"state"`
	L2Balance string                 `json:"l2VeBalBalance"`
	TxHash    string                 `json:"txHash,omitempty"`
}

// Snapshot is the result of one classification.
type Snapshot struct {
	Networks     []NetworkStatus                   `json:"networks"`
	States       map[uint64]types.NetworkSyncState `json:"states"`
	L2Balances   map[uint64]string                 `json:"l2VeBalBalances"`
	BySyncState  types.NetworksBySyncState         `json:"networksBySyncState"`
	MainnetVeBal string                            `json:"mainnetVeBalBalance"`
	HasError     bool                              `json:"hasError"`
	UpdatedAt    time.Time                         `json:"updatedAt"`
}

// Classify derives per-network states, L2 balances and the partition.
// A query error makes every network Unknown. Temp-syncing networks that are
// not yet Synced are reported as syncing; Unknown networks are in no bucket.
func Classify(in Input) Snapshot {
	networks := VeBalSyncSupportedNetworks(in.Networks)
	byLzID := make(map[uint16]*types.OmniEscrowLock, len(in.OmniLocks))
	for i := range in.OmniLocks {
		byLzID[in.OmniLocks[i].DstChainID] = &in.OmniLocks[i]
	}
	temp := make(map[uint64]bool, len(in.TempSyncing))
	for _, id := range in.TempSyncing {
		temp[id] = true
	}

	snap := Snapshot{
		Networks:     make([]NetworkStatus, 0, len(networks)),
		States:       make(map[uint64]types.NetworkSyncState, len(networks)),
		L2Balances:   make(map[uint64]string, len(networks)),
		BySyncState:  types.NetworksBySyncState{Synced: []uint64{}, Unsynced: []uint64{}, Syncing: []uint64{}},
		MainnetVeBal: zeroBalance,
		HasError:     in.HasError,
		UpdatedAt:    in.Now,
	}
	if in.MainnetLock != nil && !in.HasError {
		if b, err := utils.DecayedBalance(in.MainnetLock.Bias, in.MainnetLock.Slope, in.MainnetLock.Timestamp, in.Now.Unix()); err == nil {
			snap.MainnetVeBal = utils.FormatDec(b, config.BalanceDecimals)
		}
	}

	for _, n := range networks {
		omni := byLzID[n.LayerZeroChainID]
		state := types.NetworkSyncStateUnknown
		if !in.HasError {
			state = GetNetworkSyncState(omni, in.MainnetLock)
		}
		balance := L2VeBalBalance(omni, in.Now)
		snap.States[n.ChainID] = state
		snap.L2Balances[n.ChainID] = balance
		snap.Networks = append(snap.Networks, NetworkStatus{
			ChainID:   n.ChainID,
			Key:       n.Key,
			Name:      n.Name,
			State:     state,
			L2Balance: balance,
		})

		switch {
		case state == types.NetworkSyncStateSynced:
			snap.BySyncState.Synced = append(snap.BySyncState.Synced, n.ChainID)
		case state == types.NetworkSyncStateUnknown:
		case temp[n.ChainID] || state == types.NetworkSyncStateSyncing:
			snap.BySyncState.Syncing = append(snap.BySyncState.Syncing, n.ChainID)
		default:
			snap.BySyncState.Unsynced = append(snap.BySyncState.Unsynced, n.ChainID)
		}
	}
	return snap
}

// IsSyncing reports whether any network is in the syncing bucket.
func (s Snapshot) IsSyncing() bool {
	return len(s.BySyncState.Syncing) > 0
}

// Synced returns the synced chain ids in ascending order.
func (s Snapshot) Synced() []uint64 {
	return sortedIDs(s.BySyncState.Synced)
}
