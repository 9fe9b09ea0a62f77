package crosschain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/state"
	"github.com/beethovenx/vegov/internal/types"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type fakeLocks struct {
	mu      sync.Mutex
	omni    []types.OmniEscrowLock
	mainnet *types.VotingEscrowLock
	err     error
	calls   int
}

func (f *fakeLocks) GetOmniEscrowLocks(context.Context, common.Address) ([]types.OmniEscrowLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.omni, nil
}

func (f *fakeLocks) GetVotingEscrowLock(context.Context, common.Address) (*types.VotingEscrowLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mainnet, nil
}

func (f *fakeLocks) set(omni []types.OmniEscrowLock) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.omni = omni
}

type fakeEscrow struct {
	fee         *big.Int
	estimateErr error
	sentLz      uint16
	sentValue   *big.Int
	sentUser    common.Address
}

func (f *fakeEscrow) EstimateSendUserBalance(_ context.Context, _ common.Address, lz uint16) (*big.Int, error) {
	if f.estimateErr != nil {
		return nil, f.estimateErr
	}
	return f.fee, nil
}

func (f *fakeEscrow) SendUserBalance(_ context.Context, _ *bind.TransactOpts, user common.Address, lz uint16, fee *big.Int) (*ethtypes.Transaction, error) {
	f.sentLz, f.sentValue, f.sentUser = lz, fee, user
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, Value: fee}), nil
}

type fakeSigner struct{}

func (fakeSigner) Address() common.Address { return testAccount }
func (fakeSigner) TransactOpts(context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: testAccount}, nil
}

type fakeHelper struct{ current, projected int64 }

func (f fakeHelper) GetWorkingBalanceToSupplyRatios(context.Context, common.Address, common.Address) (*big.Int, *big.Int, error) {
	return big.NewInt(f.current), big.NewInt(f.projected), nil
}

type recordedLog struct{ entries []types.TxLogEntry }

func (r *recordedLog) Record(_ context.Context, e types.TxLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func newKV(t *testing.T) state.KV {
	t.Helper()
	kv, err := state.NewBadgerStore(state.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func newTestService(t *testing.T, locks *fakeLocks, mutate func(*ServiceConfig)) *Service {
	t.Helper()
	cfg := ServiceConfig{
		Account:         testAccount,
		Networks:        testNetworks(),
		Locks:           locks,
		KV:              newKV(t),
		Now:             func() time.Time { return testNow },
		RefetchInterval: 5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewService(cfg)
	require.NoError(t, err)
	return s
}

func TestTempSyncingPersistence(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	temp := NewTempSyncing(kv, func() time.Time { return testNow })

	require.NoError(t, temp.Add(ctx, testAccount.Hex(), arbitrum))
	require.NoError(t, temp.Add(ctx, testAccount.Hex(), arbitrum))
	require.NoError(t, temp.Add(ctx, testAccount.Hex(), optimism))

	// A second instance over the same store sees the same data.
	reloaded := NewTempSyncing(kv, nil)
	networks, err := reloaded.Networks(ctx, testAccount.Hex())
	require.NoError(t, err)
	assert.Equal(t, []uint64{arbitrum, optimism}, networks)

	removed, err := reloaded.Prune(ctx, testAccount.Hex(), []uint64{arbitrum, polygon})
	require.NoError(t, err)
	assert.Equal(t, []uint64{arbitrum}, removed)

	networks, err = reloaded.Networks(ctx, testAccount.Hex())
	require.NoError(t, err)
	assert.Equal(t, []uint64{optimism}, networks)

	var raw map[string]tempSyncingEntry
	_, err = state.GetJSON(ctx, kv, state.KeyTempSyncingNetworks, &raw)
	require.NoError(t, err)
	assert.Equal(t, testNow.UnixMilli(), raw[state.AccountKey(testAccount.Hex())].SyncTimestamp)
}

func TestTxHashes(t *testing.T) {
	ctx := context.Background()
	h := NewTxHashes(newKV(t))

	require.NoError(t, h.Set(ctx, testAccount.Hex(), arbitrum, "0xabc"))
	require.NoError(t, h.Set(ctx, testAccount.Hex(), arbitrum, "0xdef"))
	require.NoError(t, h.Set(ctx, testAccount.Hex(), polygon, "0x123"))

	got, err := h.Get(ctx, testAccount.Hex(), arbitrum)
	require.NoError(t, err)
	assert.Equal(t, "0xdef", got)

	all, err := h.All(ctx, testAccount.Hex())
	require.NoError(t, err)
	assert.Equal(t, map[uint64]string{arbitrum: "0xdef", polygon: "0x123"}, all)

	none, err := h.Get(ctx, "0xother", arbitrum)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRefreshQueryErrorDegradesToUnknown(t *testing.T) {
	locks := &fakeLocks{err: errors.New("subgraph unreachable"), mainnet: mainnetLock}
	s := newTestService(t, locks, nil)

	snap := s.Refresh(context.Background())
	assert.True(t, snap.HasError)
	for _, n := range snap.Networks {
		assert.Equal(t, types.NetworkSyncStateUnknown, n.State)
	}
	last, ok := s.Last()
	require.True(t, ok)
	assert.True(t, last.HasError)
}

func TestSyncRecordsOverrideUntilSynced(t *testing.T) {
	ctx := context.Background()
	locks := &fakeLocks{mainnet: mainnetLock}
	escrow := &fakeEscrow{fee: big.NewInt(42)}
	txLog := &recordedLog{}
	s := newTestService(t, locks, func(c *ServiceConfig) {
		c.Escrow = escrow
		c.Signer = fakeSigner{}
		c.TxLog = txLog
	})

	tx, err := s.Sync(ctx, arbitrum)
	require.NoError(t, err)
	assert.Equal(t, uint16(110), escrow.sentLz)
	assert.Equal(t, int64(42), escrow.sentValue.Int64())
	assert.Equal(t, testAccount, escrow.sentUser)

	hash, err := s.TxHash(ctx, arbitrum)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), hash)
	require.Len(t, txLog.entries, 1)
	assert.Equal(t, "Sync veBAL to Arbitrum", txLog.entries[0].Summary)

	// Indexer has not seen the bridge yet: arbitrum still has no omni lock.
	snap := s.Refresh(ctx)
	assert.Equal(t, types.NetworkSyncStateUnsynced, snap.States[arbitrum])
	assert.Contains(t, snap.BySyncState.Syncing, arbitrum)
	for _, n := range snap.Networks {
		if n.ChainID == arbitrum {
			assert.Equal(t, hash, n.TxHash)
		}
	}

	// Once synced, the override is pruned.
	locks.set([]types.OmniEscrowLock{omniLock(110, "1000", "0.0001")})
	snap = s.Refresh(ctx)
	assert.Equal(t, []uint64{arbitrum}, snap.BySyncState.Synced)

	locks.set(nil)
	snap = s.Refresh(ctx)
	assert.NotContains(t, snap.BySyncState.Syncing, arbitrum, "override was cleared")
}

func TestSyncValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, &fakeLocks{}, func(c *ServiceConfig) {
		c.Escrow = &fakeEscrow{fee: big.NewInt(1)}
		c.Signer = fakeSigner{}
	})

	_, err := s.Sync(ctx, fantom)
	assert.ErrorIs(t, err, ErrSyncNotSupported)

	_, err = s.Sync(ctx, 999)
	assert.ErrorIs(t, err, config.ErrUnknownNetwork)

	noContract := newTestService(t, &fakeLocks{}, func(c *ServiceConfig) {
		c.Networks[0].Contracts.OmniVotingEscrow = ""
		c.Escrow = &fakeEscrow{fee: big.NewInt(1)}
		c.Signer = fakeSigner{}
	})
	_, err = noContract.Sync(ctx, arbitrum)
	assert.ErrorIs(t, err, config.ErrMissingContract)

	readOnly := newTestService(t, &fakeLocks{}, func(c *ServiceConfig) {
		c.Escrow = &fakeEscrow{fee: big.NewInt(1)}
	})
	_, err = readOnly.Sync(ctx, arbitrum)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestSyncPropagatesEstimateError(t *testing.T) {
	cause := errors.New("estimate reverted")
	s := newTestService(t, &fakeLocks{}, func(c *ServiceConfig) {
		c.Escrow = &fakeEscrow{estimateErr: cause}
		c.Signer = fakeSigner{}
	})
	_, err := s.Sync(context.Background(), polygon)
	assert.ErrorIs(t, err, cause)
}

func TestShouldPokeGauge(t *testing.T) {
	withHelper := func(h fakeHelper) func(*ServiceConfig) {
		return func(c *ServiceConfig) {
			c.Networks[0].Contracts.GaugeWorkingBalanceHelper = "0x00000000000000000000000000000000000000cc"
			c.Helper = h
		}
	}
	gauge := common.HexToAddress("0x01")
	ctx := context.Background()

	poke, err := newTestService(t, &fakeLocks{}, withHelper(fakeHelper{current: 10, projected: 20})).ShouldPokeGauge(ctx, gauge)
	require.NoError(t, err)
	assert.True(t, poke)

	poke, err = newTestService(t, &fakeLocks{}, withHelper(fakeHelper{current: 20, projected: 20})).ShouldPokeGauge(ctx, gauge)
	require.NoError(t, err)
	assert.False(t, poke)

	_, err = newTestService(t, &fakeLocks{}, nil).ShouldPokeGauge(ctx, gauge)
	assert.ErrorIs(t, err, config.ErrMissingContract)
}

func TestWatchSyncingStopsWhenNothingSyncs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	locks := &fakeLocks{mainnet: mainnetLock, omni: []types.OmniEscrowLock{omniLock(110, "900", "0.0001")}}
	s := newTestService(t, locks, nil)
	require.True(t, s.Refresh(ctx).IsSyncing())

	done := make(chan error, 1)
	go func() { done <- s.WatchSyncing(ctx) }()

	locks.set([]types.OmniEscrowLock{omniLock(110, "1000", "0.0001")})
	require.NoError(t, <-done)
	last, _ := s.Last()
	assert.False(t, last.IsSyncing())
}

func TestWatchSyncingReturnsImmediatelyWhenIdle(t *testing.T) {
	locks := &fakeLocks{mainnet: mainnetLock}
	s := newTestService(t, locks, nil)
	require.NoError(t, s.WatchSyncing(context.Background()))
	assert.Equal(t, 1, locks.calls)
}

func (f *fakeLocks) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSyncRefetchesUntilSynced(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	locks := &fakeLocks{mainnet: mainnetLock}
	s := newTestService(t, locks, func(c *ServiceConfig) {
		c.Escrow = &fakeEscrow{fee: big.NewInt(1)}
		c.Signer = fakeSigner{}
	})
	require.Contains(t, s.Refresh(ctx).BySyncState.Unsynced, arbitrum)

	_, err := s.Sync(ctx, arbitrum)
	require.NoError(t, err)
	last, ok := s.Last()
	require.True(t, ok)
	assert.Contains(t, last.BySyncState.Syncing, arbitrum, "sync is visible without waiting for the next refresh")

	before := locks.callCount()
	done := make(chan error, 1)
	go func() { done <- s.WatchSyncing(ctx) }()

	require.Eventually(t, func() bool { return locks.callCount() >= before+2 }, time.Second, time.Millisecond)
	locks.set([]types.OmniEscrowLock{omniLock(110, "1000", "0.0001")})
	require.NoError(t, <-done)

	last, _ = s.Last()
	assert.Equal(t, []uint64{arbitrum}, last.BySyncState.Synced)
	assert.False(t, last.IsSyncing())
}

func TestStartWatcherRunsOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	locks := &fakeLocks{mainnet: mainnetLock, omni: []types.OmniEscrowLock{omniLock(110, "900", "0.0001")}}
	s := newTestService(t, locks, nil)

	require.True(t, s.StartWatcher(ctx))
	assert.False(t, s.StartWatcher(ctx), "a watcher is already running")
	assert.True(t, s.Watching())

	locks.set([]types.OmniEscrowLock{omniLock(110, "1000", "0.0001")})
	require.Eventually(t, func() bool { return !s.Watching() }, time.Second, time.Millisecond)
	assert.True(t, s.StartWatcher(ctx), "a finished watcher can be restarted")
}

func TestExplorerResolveLink(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tx/0xabc", r.URL.Path)
		if hits.Add(1) < 3 {
			fmt.Fprint(w, `{"messages":[]}`)
			return
		}
		fmt.Fprint(w, `{"messages":[{"srcUaAddress":"0xsrc","dstUaAddress":"0xdst","srcChainId":101,"dstChainId":110,"srcUaNonce":7,"status":"INFLIGHT"}]}`)
	}))
	defer srv.Close()

	link, err := NewExplorer(srv.URL).WithPolling(time.Millisecond, 10).ResolveLink(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "https://layerzeroscan.com/101/address/0xsrc/message/110/address/0xdst/nonce/7", link)
	assert.Equal(t, int32(3), hits.Load())
}

func TestExplorerGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"messages":[]}`)
	}))
	defer srv.Close()

	_, err := NewExplorer(srv.URL).WithPolling(time.Millisecond, 4).ResolveLink(context.Background(), "0xabc")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Equal(t, int32(4), hits.Load())
}
