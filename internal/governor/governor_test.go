package governor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beethovenx/vegov/internal/contracts"
	"github.com/beethovenx/vegov/internal/crosschain"
	"github.com/beethovenx/vegov/internal/metrics"
	"github.com/beethovenx/vegov/internal/state"
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/voting"
	"github.com/beethovenx/vegov/internal/votetx"
)

var (
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testNow     = time.Unix(1_700_000_000, 0)
)

func clock() time.Time { return testNow }

func gaugeAddr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n*1_000 + 3))
}

func pool(n int64, userVotes string) types.VotingPool {
	return types.VotingPool{
		ID:        "pool",
		Network:   1,
		Gauge:     types.Gauge{Address: gaugeAddr(n)},
		UserVotes: userVotes,
	}
}

type fakePools struct {
	pools      []types.VotingPool
	expired    []string
	poolsErr   error
	expiredErr error
}

func (f *fakePools) GetVotingPools(context.Context, common.Address) ([]types.VotingPool, error) {
	return f.pools, f.poolsErr
}

func (f *fakePools) GetExpiredGauges(context.Context) ([]string, error) {
	return f.expired, f.expiredErr
}

type fakeSync struct {
	mu        sync.Mutex
	refreshes int
	due       bool
	snap      crosschain.Snapshot
}

func (f *fakeSync) Refresh(context.Context) crosschain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.snap
}

func (f *fakeSync) ShouldPokeGauge(context.Context, common.Address) (bool, error) {
	return f.due, nil
}

type fakeVoter struct {
	calls  int
	failOn int
	first  []common.Address
}

func (f *fakeVoter) VoteForManyGaugeWeights(_ context.Context, _ *bind.TransactOpts, gauges [contracts.Slots]common.Address, _ [contracts.Slots]*big.Int) (*ethtypes.Transaction, error) {
	f.calls++
	f.first = append(f.first, gauges[0])
	if f.calls == f.failOn {
		return nil, errors.New("nonce too low")
	}
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: uint64(f.calls)}), nil
}

type fakeSigner struct{}

func (fakeSigner) Address() common.Address { return testAccount }
func (fakeSigner) ChainID() *big.Int        { return big.NewInt(1) }
func (fakeSigner) TransactOpts(context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: testAccount}, nil
}
func (fakeSigner) WaitMined(_ context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(1)}, nil
}

type fakeTxLog struct {
	entries []types.TxLogEntry
}

func (f *fakeTxLog) Record(_ context.Context, e types.TxLogEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

type fakeGauge struct {
	user common.Address
}

func (f *fakeGauge) UserCheckpoint(_ context.Context, _ *bind.TransactOpts, user common.Address) (*ethtypes.Transaction, error) {
	f.user = user
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 42}), nil
}

func newGovernor(t *testing.T, pools *fakePools, mutate func(*Config)) *Governor {
	t.Helper()
	cfg := Config{
		Account: testAccount,
		Pools:   pools,
		Session: voting.NewSession(clock),
		Metrics: metrics.New(),
		Now:     clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := New(cfg)
	require.NoError(t, err)
	return g
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Pools: &fakePools{}, Session: voting.NewSession(clock)})
	assert.Error(t, err)

	_, err = New(Config{Account: testAccount, Session: voting.NewSession(clock)})
	assert.Error(t, err)

	_, err = New(Config{Account: testAccount, Pools: &fakePools{}})
	assert.Error(t, err)
}

func TestRefreshLoadsSession(t *testing.T) {
	voted := pool(1, "1500")
	killed := pool(2, "0")
	src := &fakePools{
		pools:   []types.VotingPool{voted, killed},
		expired: []string{killed.Gauge.Address.Hex()},
	}
	syncer := &fakeSync{}
	g := newGovernor(t, src, func(c *Config) { c.Sync = syncer })

	require.NoError(t, g.Refresh(context.Background()))

	s := g.Session()
	assert.Len(t, s.Pools(), 2)
	assert.True(t, s.IsGaugeExpired(killed.Gauge.Address))
	assert.Equal(t, map[common.Address]string{voted.Gauge.Address: "15"}, s.Request())
	assert.Equal(t, 1, syncer.refreshes)
}

func TestRefreshKeepsPreviousPoolsOnError(t *testing.T) {
	src := &fakePools{pools: []types.VotingPool{pool(1, "0")}}
	g := newGovernor(t, src, nil)
	require.NoError(t, g.Refresh(context.Background()))

	src.poolsErr = errors.New("api down")
	src.expired = []string{gaugeAddr(1).Hex()}
	err := g.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, src.poolsErr)

	assert.Len(t, g.Session().Pools(), 1)
	assert.True(t, g.Session().IsGaugeExpired(gaugeAddr(1)), "expired gauges still apply")
}

func TestRunLoopPersistsCycleCounter(t *testing.T) {
	kv, err := state.NewBadgerStore(state.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	counter := state.NewCycleCounter(kv)

	syncer := &fakeSync{}
	g := newGovernor(t, &fakePools{}, func(c *Config) {
		c.Counter = counter
		c.Sync = syncer
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g.RunLoop(ctx, time.Hour)

	n, err := counter.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, syncer.refreshes)
}

func TestSubmitVotesCompletesSession(t *testing.T) {
	p := pool(1, "0")
	voter := &fakeVoter{}
	txLog := &fakeTxLog{}
	g := newGovernor(t, &fakePools{pools: []types.VotingPool{p}}, func(c *Config) {
		c.VoteDeps = &votetx.Deps{Voter: voter, Signer: fakeSigner{}, TxLog: txLog, Now: clock}
	})
	require.NoError(t, g.Refresh(context.Background()))

	s := g.Session()
	require.NoError(t, s.ToggleSelection(p))
	require.NoError(t, s.SetWeight(p.Gauge.Address, "50"))

	plan, receipts, err := g.SubmitVotes(context.Background())
	require.NoError(t, err)
	assert.True(t, plan.IsComplete())
	assert.Len(t, receipts, 1)
	assert.Equal(t, 1, voter.calls)
	assert.Equal(t, voting.PhaseCompleted, s.Phase())
	require.Len(t, txLog.entries, 1)
}

func TestBuildVotePlanRequiresValidRequest(t *testing.T) {
	g := newGovernor(t, &fakePools{}, func(c *Config) {
		c.VoteDeps = &votetx.Deps{Voter: &fakeVoter{}, Signer: fakeSigner{}}
	})
	_, err := g.BuildVotePlan()
	assert.ErrorIs(t, err, voting.ErrInvalidRequest)

	readOnly := newGovernor(t, &fakePools{}, nil)
	_, err = readOnly.BuildVotePlan()
	assert.ErrorIs(t, err, ErrNoVoteDeps)
}

func TestPoke(t *testing.T) {
	lg := &fakeGauge{}
	syncer := &fakeSync{}
	txLog := &fakeTxLog{}
	g := newGovernor(t, &fakePools{}, func(c *Config) {
		c.Sync = syncer
		c.TxLog = txLog
		c.VoteDeps = &votetx.Deps{Voter: &fakeVoter{}, Signer: fakeSigner{}}
		c.BindGauge = func(common.Address) (Checkpointer, error) { return lg, nil }
	})

	_, err := g.Poke(context.Background(), gaugeAddr(1), false)
	assert.ErrorIs(t, err, ErrPokeNotDue)
	assert.Empty(t, txLog.entries)

	syncer.due = true
	tx, err := g.Poke(context.Background(), gaugeAddr(1), false)
	require.NoError(t, err)
	assert.Equal(t, testAccount, lg.user)
	require.Len(t, txLog.entries, 1)
	assert.Equal(t, types.TxActionPoke, txLog.entries[0].Action)
	assert.Equal(t, tx.Hash().Hex(), txLog.entries[0].TxHash)

	syncer.due = false
	_, err = g.Poke(context.Background(), gaugeAddr(1), true)
	require.NoError(t, err)
	assert.Len(t, txLog.entries, 2)
}

func TestPokeWithoutSigner(t *testing.T) {
	g := newGovernor(t, &fakePools{}, nil)
	_, err := g.Poke(context.Background(), gaugeAddr(1), true)
	assert.ErrorIs(t, err, ErrNoPoker)
}

func TestPreviewPlanDoesNotFreezeSession(t *testing.T) {
	p := pool(1, "0")
	g := newGovernor(t, &fakePools{pools: []types.VotingPool{p}}, nil)
	require.NoError(t, g.Refresh(context.Background()))

	s := g.Session()
	require.NoError(t, s.ToggleSelection(p))
	require.NoError(t, s.SetWeight(p.Gauge.Address, "20"))

	steps, err := g.PreviewPlan()
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, votetx.TxStateInit, steps[0].State)
	assert.Equal(t, voting.PhaseEditing, s.Phase())
}

func selectNinePools(t *testing.T, g *Governor, pools []types.VotingPool) {
	t.Helper()
	s := g.Session()
	for _, p := range pools {
		require.NoError(t, s.ToggleSelection(p))
		require.NoError(t, s.SetWeight(p.Gauge.Address, "10"))
	}
}

func ninePools() []types.VotingPool {
	pools := make([]types.VotingPool, 0, 9)
	for i := int64(1); i <= 9; i++ {
		pools = append(pools, pool(i, "0"))
	}
	return pools
}

func TestSubmitVotesResumesAfterFailedBatch(t *testing.T) {
	pools := ninePools()
	voter := &fakeVoter{failOn: 2}
	g := newGovernor(t, &fakePools{pools: pools}, func(c *Config) {
		c.VoteDeps = &votetx.Deps{Voter: voter, Signer: fakeSigner{}, Now: clock}
	})
	require.NoError(t, g.Refresh(context.Background()))
	selectNinePools(t, g, pools)

	plan, receipts, err := g.SubmitVotes(context.Background())
	var submitErr *votetx.SubmitError
	require.ErrorAs(t, err, &submitErr)
	require.Len(t, receipts, 1)
	assert.Equal(t, voting.PhaseSubmissionStep, g.Session().Phase())
	assert.Same(t, plan, g.PendingPlan())

	retried, receipts, err := g.SubmitVotes(context.Background())
	require.NoError(t, err)
	assert.Same(t, plan, retried)
	assert.Len(t, receipts, 2)
	assert.True(t, plan.IsComplete())

	require.Equal(t, 3, voter.calls, "the confirmed first batch is not sent again")
	assert.Equal(t, voter.first[1], voter.first[2])
	assert.NotEqual(t, voter.first[0], voter.first[2])
	assert.Equal(t, voting.PhaseCompleted, g.Session().Phase())
	assert.Nil(t, g.PendingPlan())
}

func TestCancelSubmissionDropsPendingPlan(t *testing.T) {
	pools := ninePools()
	voter := &fakeVoter{failOn: 2}
	g := newGovernor(t, &fakePools{pools: pools}, func(c *Config) {
		c.VoteDeps = &votetx.Deps{Voter: voter, Signer: fakeSigner{}, Now: clock}
	})
	require.NoError(t, g.Refresh(context.Background()))
	selectNinePools(t, g, pools)

	failed, _, err := g.SubmitVotes(context.Background())
	require.Error(t, err)

	g.CancelSubmission()
	assert.Nil(t, g.PendingPlan())
	assert.Equal(t, voting.PhaseEditing, g.Session().Phase())

	fresh, _, err := g.SubmitVotes(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, failed, fresh)
	assert.Equal(t, 4, voter.calls)
}

func TestResetSessionDropsPendingPlan(t *testing.T) {
	pools := ninePools()
	g := newGovernor(t, &fakePools{pools: pools}, func(c *Config) {
		c.VoteDeps = &votetx.Deps{Voter: &fakeVoter{failOn: 1}, Signer: fakeSigner{}, Now: clock}
	})
	require.NoError(t, g.Refresh(context.Background()))
	selectNinePools(t, g, pools)

	_, _, err := g.SubmitVotes(context.Background())
	require.Error(t, err)
	require.NotNil(t, g.PendingPlan())

	g.ResetSession()
	assert.Nil(t, g.PendingPlan())
	assert.Equal(t, voting.PhaseEmpty, g.Session().Phase())
}
