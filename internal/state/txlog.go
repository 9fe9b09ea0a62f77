package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/beethovenx/vegov/internal/types"
)

// Shared persisted keys. The two sync maps are keyed by account inside the value.
const (
	KeyTempSyncingNetworks = "tempSyncingNetworks"
	KeySyncTxHashes        = "syncTxHashes"
	txLogPrefix            = "txLog:"
)

// MaxTxLogEntries bounds the per-account log; the oldest entries are dropped.
const MaxTxLogEntries = 200

var ErrInvalidEntry = errors.New("transaction log entry is invalid")

// AccountKey normalizes an account for use inside keys and maps.
func AccountKey(account string) string {
	return strings.ToLower(account)
}

func txLogKey(account string) string {
	return txLogPrefix + AccountKey(account)
}

// TxLog is the per-account local transaction log.
type TxLog struct {
	mu sync.Mutex
	kv KV
}

func NewTxLog(kv KV) *TxLog {
	return &TxLog{kv: kv}
}

// Record appends entry to its account's log.
func (l *TxLog) Record(ctx context.Context, entry types.TxLogEntry) error {
	if entry.Account == "" || entry.TxHash == "" {
		return ErrInvalidEntry
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := txLogKey(entry.Account)
	var entries []types.TxLogEntry
	if _, err := GetJSON(ctx, l.kv, key, &entries); err != nil {
		return err
	}
	entries = append(entries, entry)
	if len(entries) > MaxTxLogEntries {
		entries = entries[len(entries)-MaxTxLogEntries:]
	}
	return SetJSON(ctx, l.kv, key, entries)
}

// List returns the account's entries, newest first.
func (l *TxLog) List(ctx context.Context, account string) ([]types.TxLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []types.TxLogEntry
	if _, err := GetJSON(ctx, l.kv, txLogKey(account), &entries); err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// ResetAccount wipes everything persisted for account: its transaction log
// and its rows in the sync maps.
func ResetAccount(ctx context.Context, kv KV, account string) error {
	if err := kv.Delete(ctx, txLogKey(account)); err != nil {
		return fmt.Errorf("failed to delete transaction log: %w", err)
	}
	for _, key := range []string{KeyTempSyncingNetworks, KeySyncTxHashes} {
		var byAccount map[string]json.RawMessage
		found, err := GetJSON(ctx, kv, key, &byAccount)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		delete(byAccount, AccountKey(account))
		if err := SetJSON(ctx, kv, key, byAccount); err != nil {
			return err
		}
	}
	return nil
}
