package votetx

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/beethovenx/vegov/internal/contracts"
	"github.com/beethovenx/vegov/internal/logger"
	"github.com/beethovenx/vegov/internal/metrics"
	"github.com/beethovenx/vegov/internal/types"
)

var (
	ErrOutOfOrder          = errors.New("step requires the receipt of the previous step")
	ErrStepInFlight        = errors.New("step is already being submitted")
	ErrStepAlreadyExecuted = errors.New("step has already been confirmed")
	ErrMissingDependency   = errors.New("vote plan dependency is missing")
)

// submitVotesMessage is the stable message of every failed vote submission.
const submitVotesMessage = "Failed to submit votes."

// SubmitError wraps any failure while submitting or confirming a vote batch.
type SubmitError struct {
	Cause error
}

func (e *SubmitError) Error() string { return submitVotesMessage }

func (e *SubmitError) Unwrap() error { return e.Cause }

// TxState tracks a step's transaction.
type TxState string

const (
	TxStateInit       TxState = "init"
	TxStateConfirming TxState = "confirming"
	TxStateConfirmed  TxState = "confirmed"
	TxStateErr        TxState = "error"
)

// Voter submits one padded batch to the gauge controller.
type Voter interface {
	VoteForManyGaugeWeights(ctx context.Context, opts *bind.TransactOpts, gauges [contracts.Slots]common.Address, weights [contracts.Slots]*big.Int) (*ethtypes.Transaction, error)
}

// Signer provides transact options and confirmation for the voting account.
type Signer interface {
	Address() common.Address
	ChainID() *big.Int
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
	WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)
}

// TxRecorder persists local transaction-log entries.
type TxRecorder interface {
	Record(ctx context.Context, entry types.TxLogEntry) error
}

// Deps are the collaborators of a Plan. TxLog and Metrics are optional.
type Deps struct {
	Voter   Voter
	Signer  Signer
	TxLog   TxRecorder
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// StepReceipt proves a step was confirmed on chain. Only Execute mints them,
// so step N+1 can require the receipt of step N of the same plan.
type StepReceipt struct {
	plan        *Plan
	index       int
	TxHash      common.Hash
	BlockNumber uint64
}

// Plan is the ordered list of vote transactions for one confirmed request.
type Plan struct {
	mu     sync.Mutex
	steps  []*Step
	deps   Deps
	logger zerolog.Logger
}

// Step is one vote_for_many_gauge_weights transaction of a plan.
type Step struct {
	plan        *Plan
	index       int
	Label       string
	StepTooltip string
	Entries     []types.VoteEntry

	state   TxState
	receipt *StepReceipt
	lastErr error
}

// StepView is a read-only copy of a step for the API.
type StepView struct {
	Index       int               `json:"index"`
	Label       string            `json:"label"`
	StepTooltip string            `json:"stepTooltip,omitempty"`
	Entries     []types.VoteEntry `json:"entries"`
	State       TxState           `json:"state"`
	TxHash      string            `json:"txHash,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// BuildPlan batches request and labels each batch. isExpired reports killed
// gauges and decides between "Remove" and "Confirm" labels.
func BuildPlan(request []types.VoteEntry, isExpired func(common.Address) bool, deps Deps) (*Plan, error) {
	batches, err := Batches(request)
	if err != nil {
		return nil, err
	}
	for i, batch := range batches {
		if _, _, err := PadBatch(batch); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	p := &Plan{
		deps:   deps,
		logger: logger.GetForComponent("vote_actions"),
	}
	for i, batch := range batches {
		entries := make([]types.VoteEntry, len(batch))
		copy(entries, batch)
		p.steps = append(p.steps, &Step{
			plan:        p,
			index:       i,
			Label:       stepLabel(batch, isExpired),
			StepTooltip: stepTooltip(i, len(batches)),
			Entries:     entries,
			state:       TxStateInit,
		})
	}
	return p, nil
}

// Steps returns the plan's steps in submission order.
func (p *Plan) Steps() []*Step {
	return p.steps
}

// View snapshots every step.
func (p *Plan) View() []StepView {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]StepView, 0, len(p.steps))
	for _, s := range p.steps {
		v := StepView{
			Index:       s.index,
			Label:       s.Label,
			StepTooltip: s.StepTooltip,
			Entries:     s.Entries,
			State:       s.state,
		}
		if s.receipt != nil {
			v.TxHash = s.receipt.TxHash.Hex()
		}
		if s.lastErr != nil {
			v.Error = s.lastErr.Error()
		}
		out = append(out, v)
	}
	return out
}

// IsComplete reports whether every step is confirmed.
func (p *Plan) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.steps {
		if s.state != TxStateConfirmed {
			return false
		}
	}
	return true
}

// ExecuteAll runs the steps in order, threading each receipt into the next
// step. It stops at the first failure.
func (p *Plan) ExecuteAll(ctx context.Context) ([]*StepReceipt, error) {
	receipts := make([]*StepReceipt, 0, len(p.steps))
	var prev *StepReceipt
	for _, s := range p.steps {
		if s.State() == TxStateConfirmed {
			prev = s.Receipt()
			receipts = append(receipts, prev)
			continue
		}
		r, err := s.Execute(ctx, prev)
		if err != nil {
			return receipts, err
		}
		receipts = append(receipts, r)
		prev = r
	}
	return receipts, nil
}

func (s *Step) Index() int { return s.index }

func (s *Step) State() TxState {
	s.plan.mu.Lock()
	defer s.plan.mu.Unlock()
	return s.state
}

// Receipt is the step's receipt once confirmed, nil before.
func (s *Step) Receipt() *StepReceipt {
	s.plan.mu.Lock()
	defer s.plan.mu.Unlock()
	return s.receipt
}

// Execute submits the step. prev must be nil for the first step and the
// receipt of the previous step otherwise. A failed step may be executed again.
func (s *Step) Execute(ctx context.Context, prev *StepReceipt) (*StepReceipt, error) {
	p := s.plan
	p.mu.Lock()
	if err := s.checkExecutable(prev); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	s.state = TxStateConfirming
	s.lastErr = nil
	p.mu.Unlock()

	receipt, err := s.submit(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		s.state = TxStateErr
		s.lastErr = err
		p.deps.Metrics.ObserveVoteBatch(len(s.Entries), err)
		p.logger.Error().Err(err).Int("batch", s.index).Msg("Vote batch failed")
		return nil, &SubmitError{Cause: err}
	}
	s.state = TxStateConfirmed
	s.receipt = receipt
	p.deps.Metrics.ObserveVoteBatch(len(s.Entries), nil)
	return receipt, nil
}

// checkExecutable must be called with the plan lock held.
func (s *Step) checkExecutable(prev *StepReceipt) error {
	switch s.state {
	case TxStateConfirming:
		return ErrStepInFlight
	case TxStateConfirmed:
		return ErrStepAlreadyExecuted
	}
	if s.index == 0 {
		if prev != nil {
			return fmt.Errorf("%w: first step takes no receipt", ErrOutOfOrder)
		}
		return nil
	}
	before := s.plan.steps[s.index-1]
	if prev == nil || prev.plan != s.plan || prev.index != s.index-1 || before.receipt != prev {
		return fmt.Errorf("%w: step %d", ErrOutOfOrder, s.index)
	}
	return nil
}

func (s *Step) submit(ctx context.Context) (*StepReceipt, error) {
	deps := s.plan.deps
	if deps.Voter == nil || deps.Signer == nil {
		return nil, ErrMissingDependency
	}

	gauges, weights, err := PadBatch(s.Entries)
	if err != nil {
		return nil, err
	}
	opts, err := deps.Signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}

	s.plan.logger.Info().
		Int("batch", s.index).
		Int("votes", len(s.Entries)).
		Msg("Submitting vote batch")

	tx, err := deps.Voter.VoteForManyGaugeWeights(ctx, opts, gauges, weights)
	if err != nil {
		return nil, err
	}
	mined, err := deps.Signer.WaitMined(ctx, tx)
	if err != nil {
		return nil, err
	}

	s.record(ctx, tx.Hash())
	receipt := &StepReceipt{plan: s.plan, index: s.index, TxHash: tx.Hash()}
	if mined != nil && mined.BlockNumber != nil {
		receipt.BlockNumber = mined.BlockNumber.Uint64()
	}
	return receipt, nil
}

// record appends the tx-log entry. The vote is already on chain, so a log
// failure is only reported.
func (s *Step) record(ctx context.Context, hash common.Hash) {
	deps := s.plan.deps
	if deps.TxLog == nil {
		return
	}

	gaugeAddresses := make([]string, len(s.Entries))
	votes := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		gaugeAddresses[i] = e.GaugeAddress.Hex()
		votes[i] = e.Weight
	}
	entry := types.TxLogEntry{
		ID:      uuid.New(),
		Account: deps.Signer.Address().Hex(),
		Network: deps.Signer.ChainID().Uint64(),
		Action:  types.TxActionVote,
		Summary: fmt.Sprintf("Voting on %d pools", len(s.Entries)),
		TxHash:  hash.Hex(),
		Details: map[string]interface{}{
			"gaugeAddresses": gaugeAddresses,
			"votes":          votes,
		},
		CreatedAt: deps.Now(),
	}
	if err := deps.TxLog.Record(ctx, entry); err != nil {
		s.plan.logger.Warn().Err(err).Str("txHash", hash.Hex()).Msg("Failed to record vote in transaction log")
	}
}
