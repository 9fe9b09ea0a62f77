package crosschain

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/beethovenx/vegov/internal/state"
)

// tempSyncingEntry is one account's row under tempSyncingNetworks.
type tempSyncingEntry struct {
	Networks      []uint64 `json:"networks"`
	SyncTimestamp int64    `json:"syncTimestamp"` // unix ms of the last sync submission
}

// TempSyncing persists networks that must be shown as syncing until the
// classifier itself reports them synced. It masks subgraph indexing lag.
type TempSyncing struct {
	mu  sync.Mutex
	kv  state.KV
	now func() time.Time
}

func NewTempSyncing(kv state.KV, now func() time.Time) *TempSyncing {
	if now == nil {
		now = time.Now
	}
	return &TempSyncing{kv: kv, now: now}
}

func (t *TempSyncing) load(ctx context.Context) (map[string]tempSyncingEntry, error) {
	all := map[string]tempSyncingEntry{}
	if _, err := state.GetJSON(ctx, t.kv, state.KeyTempSyncingNetworks, &all); err != nil {
		return nil, err
	}
	if all == nil {
		all = map[string]tempSyncingEntry{}
	}
	return all, nil
}

// Add marks network as temporarily syncing for account.
func (t *TempSyncing) Add(ctx context.Context, account string, network uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	all, err := t.load(ctx)
	if err != nil {
		return err
	}
	key := state.AccountKey(account)
	entry := all[key]
	if !containsID(entry.Networks, network) {
		entry.Networks = append(entry.Networks, network)
	}
	entry.SyncTimestamp = t.now().UnixMilli()
	all[key] = entry
	return state.SetJSON(ctx, t.kv, state.KeyTempSyncingNetworks, all)
}

// Networks returns account's temporarily syncing networks.
func (t *TempSyncing) Networks(ctx context.Context, account string) ([]uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	all, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]uint64(nil), all[state.AccountKey(account)].Networks...), nil
}

// Prune drops the networks in synced from account's override and returns
// the ones actually removed.
func (t *TempSyncing) Prune(ctx context.Context, account string, synced []uint64) ([]uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	all, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	key := state.AccountKey(account)
	entry, ok := all[key]
	if !ok {
		return nil, nil
	}

	var kept, removed []uint64
	for _, n := range entry.Networks {
		if containsID(synced, n) {
			removed = append(removed, n)
		} else {
			kept = append(kept, n)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if len(kept) == 0 {
		delete(all, key)
	} else {
		entry.Networks = kept
		all[key] = entry
	}
	return removed, state.SetJSON(ctx, t.kv, state.KeyTempSyncingNetworks, all)
}

// TxHashes persists the last bridge transaction hash per account and network.
type TxHashes struct {
	mu sync.Mutex
	kv state.KV
}

func NewTxHashes(kv state.KV) *TxHashes {
	return &TxHashes{kv: kv}
}

func (h *TxHashes) load(ctx context.Context) (map[string]map[string]string, error) {
	all := map[string]map[string]string{}
	if _, err := state.GetJSON(ctx, h.kv, state.KeySyncTxHashes, &all); err != nil {
		return nil, err
	}
	if all == nil {
		all = map[string]map[string]string{}
	}
	return all, nil
}

func (h *TxHashes) Set(ctx context.Context, account string, network uint64, txHash string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	all, err := h.load(ctx)
	if err != nil {
		return err
	}
	key := state.AccountKey(account)
	if all[key] == nil {
		all[key] = map[string]string{}
	}
	all[key][strconv.FormatUint(network, 10)] = txHash
	return state.SetJSON(ctx, h.kv, state.KeySyncTxHashes, all)
}

// Get returns the hash for network, or "" when none was recorded.
func (h *TxHashes) Get(ctx context.Context, account string, network uint64) (string, error) {
	all, err := h.All(ctx, account)
	if err != nil {
		return "", err
	}
	return all[network], nil
}

// All returns every recorded hash of account by chain id.
func (h *TxHashes) All(ctx context.Context, account string) (map[uint64]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	all, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]string, len(all[state.AccountKey(account)]))
	for k, v := range all[state.AccountKey(account)] {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out, nil
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sortedIDs(ids []uint64) []uint64 {
	out := append([]uint64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
