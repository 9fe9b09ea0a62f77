package types

// NetworkSyncState classifies a network's veBAL mirror against mainnet.
type NetworkSyncState string

const (
	NetworkSyncStateUnsynced NetworkSyncState = "unsynced"
	NetworkSyncStateSyncing  NetworkSyncState = "syncing"
	NetworkSyncStateSynced   NetworkSyncState = "synced"
	NetworkSyncStateUnknown  NetworkSyncState = "unknown"
)

// NetworksBySyncState partitions sync-supporting networks by chain id.
// Networks in the Unknown state appear in no bucket.
type NetworksBySyncState struct {
	Synced   []uint64 `json:"synced"`
	Unsynced []uint64 `json:"unsynced"`
	Syncing  []uint64 `json:"syncing"`
}
