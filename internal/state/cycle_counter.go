/*

This file manages the persistent refresh cycle counter.
The counter is stored in the KV store to ensure continuity across restarts.

*/

package state

import (
	"context"
	"fmt"
	"sync"
)

const keyRefreshCycle = "refreshCycle"

// CycleCounter numbers governor refresh cycles.
type CycleCounter struct {
	mu sync.Mutex
	kv KV
}

func NewCycleCounter(kv KV) *CycleCounter {
	return &CycleCounter{kv: kv}
}

// Current returns the last cycle number, 0 before the first cycle.
func (c *CycleCounter) Current(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current(ctx)
}

func (c *CycleCounter) current(ctx context.Context) (int, error) {
	var n int
	if _, err := GetJSON(ctx, c.kv, keyRefreshCycle, &n); err != nil {
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}
	return n, nil
}

// Increment bumps the counter and returns the new value.
func (c *CycleCounter) Increment(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.current(ctx)
	if err != nil {
		return 0, err
	}
	n++
	if err := SetJSON(ctx, c.kv, keyRefreshCycle, n); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}
	return n, nil
}

// Reset sets the counter to a specific value (for maintenance).
func (c *CycleCounter) Reset(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return SetJSON(ctx, c.kv, keyRefreshCycle, n)
}
