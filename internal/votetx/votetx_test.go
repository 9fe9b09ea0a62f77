package votetx

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/beethovenx/vegov/internal/types"
)

var account = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func gauge(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(n) * 1_000))
}

func entries(n int, weight string) []types.VoteEntry {
	out := make([]types.VoteEntry, n)
	for i := range out {
		out[i] = types.VoteEntry{GaugeAddress: gauge(i + 1), Weight: weight}
	}
	return out
}

type voteCall struct {
	gauges  [contracts.Slots]common.Address
	weights [contracts.Slots]*big.Int
}

type fakeVoter struct {
	mu    sync.Mutex
	calls []voteCall
	err   error
	block chan struct{}
}

func (f *fakeVoter) VoteForManyGaugeWeights(_ context.Context, _ *bind.TransactOpts, gauges [contracts.Slots]common.Address, weights [contracts.Slots]*big.Int) (*ethtypes.Transaction, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, voteCall{gauges: gauges, weights: weights})
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: uint64(len(f.calls))}), nil
}

type fakeSigner struct {
	waitErr error
}

func (f *fakeSigner) Address() common.Address { return account }
func (f *fakeSigner) ChainID() *big.Int        { return big.NewInt(1) }
func (f *fakeSigner) TransactOpts(context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: account}, nil
}
func (f *fakeSigner) WaitMined(_ context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(100)}, nil
}

type fakeTxLog struct {
	entries []types.TxLogEntry
}

func (f *fakeTxLog) Record(_ context.Context, e types.TxLogEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func testDeps(voter *fakeVoter, signer *fakeSigner, log *fakeTxLog) Deps {
	deps := Deps{
		Voter:  voter,
		Signer: signer,
		Now:    func() time.Time { return time.Unix(1_700_000_000, 0) },
	}
	if log != nil {
		deps.TxLog = log
	}
	return deps
}

func TestBatches(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		sizes   []int
		wantErr error
	}{
		{"empty", 0, nil, ErrEmptyRequest},
		{"single", 1, []int{1}, nil},
		{"full single batch", 8, []int{8}, nil},
		{"two batches", 9, []int{8, 1}, nil},
		{"two full batches", 16, []int{8, 8}, nil},
		{"too many", 17, nil, ErrTooManyVotes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches, err := Batches(entries(tt.n, "1"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, batches, len(tt.sizes))
			for i, size := range tt.sizes {
				assert.Len(t, batches[i], size)
			}
		})
	}
}

func TestBatchesPreserveOrder(t *testing.T) {
	request := entries(12, "5")
	batches, err := Batches(request)
	require.NoError(t, err)
	assert.Equal(t, request[:8], batches[0])
	assert.Equal(t, request[8:], batches[1])
}

func TestPadBatch(t *testing.T) {
	batch := []types.VoteEntry{
		{GaugeAddress: gauge(1), Weight: "10"},
		{GaugeAddress: gauge(2), Weight: "3.1"},
		{GaugeAddress: gauge(3), Weight: "0"},
	}
	gauges, weights, err := PadBatch(batch)
	require.NoError(t, err)

	assert.Equal(t, gauge(1), gauges[0])
	assert.Equal(t, int64(1000), weights[0].Int64())
	assert.Equal(t, int64(310), weights[1].Int64())
	assert.Equal(t, int64(0), weights[2].Int64())
	for i := 3; i < contracts.Slots; i++ {
		assert.Equal(t, common.Address{}, gauges[i])
		assert.Equal(t, int64(0), weights[i].Int64())
	}

	_, _, err = PadBatch(entries(9, "1"))
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, _, err = PadBatch([]types.VoteEntry{{GaugeAddress: gauge(1), Weight: "abc"}})
	assert.ErrorIs(t, err, ErrInvalidWeight)
}

func TestBuildPlanLabels(t *testing.T) {
	expired := map[common.Address]bool{gauge(1): true, gauge(2): true}
	isExpired := func(a common.Address) bool { return expired[a] }

	tests := []struct {
		name    string
		request []types.VoteEntry
		label   string
	}{
		{"single new vote", entries(1, "10"), "Confirm vote"},
		{"several new votes", entries(3, "10"), "Confirm votes"},
		{"single removal", []types.VoteEntry{{GaugeAddress: gauge(1), Weight: "0"}}, "Remove vote"},
		{"all removals", []types.VoteEntry{{GaugeAddress: gauge(1), Weight: "0"}, {GaugeAddress: gauge(2), Weight: "0"}}, "Remove votes"},
		{"mixed", []types.VoteEntry{{GaugeAddress: gauge(1), Weight: "0"}, {GaugeAddress: gauge(5), Weight: "4"}}, "Confirm votes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildPlan(tt.request, isExpired, Deps{})
			require.NoError(t, err)
			require.Len(t, plan.Steps(), 1)
			assert.Equal(t, tt.label, plan.Steps()[0].Label)
			assert.Empty(t, plan.Steps()[0].StepTooltip)
		})
	}
}

func TestBuildPlanRejectsInvalidRequests(t *testing.T) {
	_, err := BuildPlan(entries(17, "1"), nil, Deps{})
	assert.ErrorIs(t, err, ErrTooManyVotes)

	_, err = BuildPlan([]types.VoteEntry{{GaugeAddress: gauge(1), Weight: "-1"}}, nil, Deps{})
	assert.ErrorIs(t, err, ErrInvalidWeight)
}

func TestNineVotesProduceTwoOrderedSteps(t *testing.T) {
	voter := &fakeVoter{}
	txLog := &fakeTxLog{}
	plan, err := BuildPlan(entries(9, "10"), nil, testDeps(voter, &fakeSigner{}, txLog))
	require.NoError(t, err)

	steps := plan.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "Confirm first batch of votes", steps[0].StepTooltip)
	assert.Equal(t, "Confirm second batch of votes", steps[1].StepTooltip)
	assert.Equal(t, "Confirm votes", steps[0].Label)
	assert.Equal(t, "Confirm vote", steps[1].Label)

	receipts, err := plan.ExecuteAll(context.Background())
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.True(t, plan.IsComplete())

	require.Len(t, voter.calls, 2)
	second := voter.calls[1]
	assert.Equal(t, gauge(9), second.gauges[0])
	assert.Equal(t, int64(1000), second.weights[0].Int64())
	for i := 1; i < contracts.Slots; i++ {
		assert.Equal(t, common.Address{}, second.gauges[i])
		assert.Equal(t, int64(0), second.weights[i].Int64())
	}

	require.Len(t, txLog.entries, 2)
	assert.Equal(t, "Voting on 8 pools", txLog.entries[0].Summary)
	assert.Equal(t, "Voting on 1 pools", txLog.entries[1].Summary)
	assert.Equal(t, []string{gauge(9).Hex()}, txLog.entries[1].Details["gaugeAddresses"])
	assert.Equal(t, []string{"10"}, txLog.entries[1].Details["votes"])
	assert.Equal(t, types.TxActionVote, txLog.entries[1].Action)
}

func TestStepRequiresPreviousReceipt(t *testing.T) {
	plan, err := BuildPlan(entries(10, "5"), nil, testDeps(&fakeVoter{}, &fakeSigner{}, nil))
	require.NoError(t, err)
	first, second := plan.Steps()[0], plan.Steps()[1]
	ctx := context.Background()

	_, err = second.Execute(ctx, nil)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	_, err = second.Execute(ctx, &StepReceipt{})
	assert.ErrorIs(t, err, ErrOutOfOrder, "hand-made receipts are rejected")

	other, err := BuildPlan(entries(10, "5"), nil, testDeps(&fakeVoter{}, &fakeSigner{}, nil))
	require.NoError(t, err)
	foreign, err := other.Steps()[0].Execute(ctx, nil)
	require.NoError(t, err)
	_, err = second.Execute(ctx, foreign)
	assert.ErrorIs(t, err, ErrOutOfOrder, "receipts from another plan are rejected")

	receipt, err := first.Execute(ctx, nil)
	require.NoError(t, err)
	_, err = first.Execute(ctx, nil)
	assert.ErrorIs(t, err, ErrStepAlreadyExecuted)

	_, err = first.Execute(ctx, receipt)
	assert.ErrorIs(t, err, ErrStepAlreadyExecuted)

	_, err = second.Execute(ctx, receipt)
	require.NoError(t, err)
	assert.Equal(t, TxStateConfirmed, second.State())
}

func TestStepRejectsConcurrentExecution(t *testing.T) {
	voter := &fakeVoter{block: make(chan struct{})}
	plan, err := BuildPlan(entries(2, "5"), nil, testDeps(voter, &fakeSigner{}, nil))
	require.NoError(t, err)
	step := plan.Steps()[0]

	done := make(chan error, 1)
	go func() {
		_, err := step.Execute(context.Background(), nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return step.State() == TxStateConfirming }, time.Second, time.Millisecond)

	_, err = step.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStepInFlight)

	close(voter.block)
	require.NoError(t, <-done)
}

func TestSubmitErrorWrapsCause(t *testing.T) {
	cause := errors.New("execution reverted")
	voter := &fakeVoter{err: cause}
	txLog := &fakeTxLog{}
	plan, err := BuildPlan(entries(3, "5"), nil, testDeps(voter, &fakeSigner{}, txLog))
	require.NoError(t, err)
	step := plan.Steps()[0]

	_, err = step.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "Failed to submit votes.", err.Error())
	assert.ErrorIs(t, err, cause)
	var submitErr *SubmitError
	assert.ErrorAs(t, err, &submitErr)
	assert.Equal(t, TxStateErr, step.State())
	assert.Empty(t, txLog.entries)
	assert.Equal(t, cause.Error(), plan.View()[0].Error)

	// No automatic retry, but the caller may trigger the step again.
	voter.err = nil
	_, err = step.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, txLog.entries, 1)
}

func TestWaitMinedFailureIsSubmitError(t *testing.T) {
	plan, err := BuildPlan(entries(1, "5"), nil, testDeps(&fakeVoter{}, &fakeSigner{waitErr: fmt.Errorf("reverted")}, nil))
	require.NoError(t, err)
	_, err = plan.ExecuteAll(context.Background())
	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.False(t, plan.IsComplete())
}
