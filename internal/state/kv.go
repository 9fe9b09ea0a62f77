/*

Persisted key-value state.

Small pieces of account state survive restarts here: networks temporarily
treated as syncing, bridge transaction hashes, the transaction log and the
refresh cycle counter. Values are JSON documents.

*/

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrStoreClosed = errors.New("store is closed")
)

// KV is the storage collaborator. Get returns ErrKeyNotFound for missing keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// GetJSON decodes key into v. It reports false when the key is missing.
func GetJSON(ctx context.Context, kv KV, key string, v interface{}) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, kv KV, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
