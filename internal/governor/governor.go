package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/crosschain"
	"github.com/beethovenx/vegov/internal/logger"
	"github.com/beethovenx/vegov/internal/metrics"
	"github.com/beethovenx/vegov/internal/state"
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/voting"
	"github.com/beethovenx/vegov/internal/votetx"
)

var (
	ErrNoVoteDeps   = errors.New("governor has no vote submission dependencies")
	ErrNoSyncSource = errors.New("governor has no sync service")
	ErrNoPoker      = errors.New("governor has no gauge checkpoint dependencies")
	ErrPokeNotDue   = errors.New("gauge checkpoint would not raise the working balance")
)

// PoolSource loads the voting list and the killed gauges.
type PoolSource interface {
	GetVotingPools(ctx context.Context, account common.Address) ([]types.VotingPool, error)
	GetExpiredGauges(ctx context.Context) ([]string, error)
}

// SyncSource is the cross-chain sync service as the governor uses it.
type SyncSource interface {
	Refresh(ctx context.Context) crosschain.Snapshot
	ShouldPokeGauge(ctx context.Context, gauge common.Address) (bool, error)
}

// Checkpointer pokes a liquidity gauge for a user.
type Checkpointer interface {
	UserCheckpoint(ctx context.Context, opts *bind.TransactOpts, user common.Address) (*ethtypes.Transaction, error)
}

// GaugeBinder binds a liquidity gauge by address.
type GaugeBinder func(gauge common.Address) (Checkpointer, error)

// Governor ties the fetchers, the voting session and the sync service together.
type Governor struct {
	logger  zerolog.Logger
	account common.Address
	pools   PoolSource
	session *voting.Session
	sync    SyncSource
	counter *state.CycleCounter
	metrics *metrics.Metrics

	voteDeps   *votetx.Deps
	bindGauge  GaugeBinder
	txLog      votetx.TxRecorder
	now        func() time.Time
	cycleCount int

	// plan is the in-flight submission; it lives while the session is in
	// the submission step so a retry resumes after the confirmed batches.
	planMu sync.Mutex
	plan   *votetx.Plan
}

// Config holds the configuration for creating a new Governor.
// Sync, Counter, Metrics, VoteDeps, BindGauge and TxLog are optional.
type Config struct {
	Account   common.Address
	Pools     PoolSource
	Session   *voting.Session
	Sync      SyncSource
	Counter   *state.CycleCounter
	Metrics   *metrics.Metrics
	VoteDeps  *votetx.Deps
	BindGauge GaugeBinder
	TxLog     votetx.TxRecorder
	Now       func() time.Time
}

// New creates a Governor with dependency injection.
func New(cfg Config) (*Governor, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("governor configuration validation failed: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Governor{
		logger:    logger.GetForComponent("governor"),
		account:   cfg.Account,
		pools:     cfg.Pools,
		session:   cfg.Session,
		sync:      cfg.Sync,
		counter:   cfg.Counter,
		metrics:   cfg.Metrics,
		voteDeps:  cfg.VoteDeps,
		bindGauge: cfg.BindGauge,
		txLog:     cfg.TxLog,
		now:       cfg.Now,
	}

	g.logger.Info().
		Str("account", g.account.Hex()).
		Bool("canVote", g.voteDeps != nil).
		Bool("syncEnabled", g.sync != nil).
		Msg("Governor created")

	return g, nil
}

func validateConfig(cfg Config) error {
	if cfg.Account == (common.Address{}) {
		return fmt.Errorf("account cannot be the zero address")
	}
	if cfg.Pools == nil {
		return fmt.Errorf("pool source cannot be nil")
	}
	if cfg.Session == nil {
		return fmt.Errorf("voting session cannot be nil")
	}
	return nil
}

// Session returns the shared voting session.
func (g *Governor) Session() *voting.Session { return g.session }

// RunLoop refreshes immediately and then on every tick until ctx is cancelled.
func (g *Governor) RunLoop(ctx context.Context, interval time.Duration) {
	g.logger.Info().Dur("interval", interval).Msg("Starting governor loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			g.logger.Info().Msg("Governor loop stopped due to context cancellation")
			return
		case <-ticker.C:
			g.runCycle(ctx)
		}
	}
}

func (g *Governor) runCycle(ctx context.Context) {
	g.cycleCount++
	if g.counter != nil {
		n, err := g.counter.Increment(ctx)
		if err != nil {
			g.logger.Warn().Err(err).Msg("Failed to persist refresh cycle counter")
		} else {
			g.cycleCount = n
		}
	}
	g.logger.Info().Int("cycle", g.cycleCount).Msg("Initiating refresh cycle")
	if err := g.Refresh(ctx); err != nil {
		g.logger.Error().Err(err).Int("cycle", g.cycleCount).Msg("Refresh cycle finished with errors")
		return
	}
	g.logger.Info().Int("cycle", g.cycleCount).Msg("Refresh cycle completed")
}

// Refresh reloads the voting pools and killed gauges into the session and
// refreshes the sync snapshot. A failed source leaves the session's previous
// value in place; the errors are joined and returned.
func (g *Governor) Refresh(ctx context.Context) error {
	start := g.now()
	cycleLogger := g.logger.With().Str("cycle_id", uuid.New().String()).Logger()
	cycleLogger.Debug().Msg("Refreshing voting pools and sync state")

	var (
		pools    []types.VotingPool
		expired  []string
		poolsErr error
		killErr  error
	)
	// Each source reports its own error so one failure does not cancel the other.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		pools, poolsErr = g.pools.GetVotingPools(egCtx, g.account)
		return nil
	})
	eg.Go(func() error {
		expired, killErr = g.pools.GetExpiredGauges(egCtx)
		return nil
	})
	_ = eg.Wait()

	var errs []error
	if poolsErr != nil {
		g.metrics.RefreshError("voting_pools")
		cycleLogger.Error().Err(poolsErr).Msg("Failed to fetch voting pools")
		errs = append(errs, fmt.Errorf("voting pools: %w", poolsErr))
	} else {
		g.session.SetPools(pools)
		if err := g.session.LoadRequestWithExistingVotes(pools); err != nil {
			errs = append(errs, fmt.Errorf("load existing votes: %w", err))
		}
	}
	if killErr != nil {
		g.metrics.RefreshError("expired_gauges")
		cycleLogger.Error().Err(killErr).Msg("Failed to fetch expired gauges")
		errs = append(errs, fmt.Errorf("expired gauges: %w", killErr))
	} else {
		g.session.SetExpiredGauges(expired)
	}

	if g.sync != nil {
		snap := g.sync.Refresh(ctx)
		cycleLogger.Info().
			Uints64("synced", snap.BySyncState.Synced).
			Uints64("unsynced", snap.BySyncState.Unsynced).
			Uints64("syncing", snap.BySyncState.Syncing).
			Bool("hasError", snap.HasError).
			Msg("Sync state refreshed")
	}

	g.metrics.SetSelectedGauges(len(g.session.SelectedGaugeAddresses()))
	g.metrics.ObserveRefresh(g.now().Sub(start))

	cycleLogger.Info().
		Int("pools", len(pools)).
		Int("expiredGauges", len(expired)).
		Dur("duration", g.now().Sub(start)).
		Msg("Refresh complete")

	return errors.Join(errs...)
}

// BuildVotePlan freezes the session's request and splits it into vote steps.
// The plan replaces any in-flight one. On failure the session returns to editing.
func (g *Governor) BuildVotePlan() (*votetx.Plan, error) {
	if g.voteDeps == nil {
		return nil, ErrNoVoteDeps
	}
	g.planMu.Lock()
	defer g.planMu.Unlock()
	return g.buildPlan()
}

// buildPlan must be called with planMu held.
func (g *Governor) buildPlan() (*votetx.Plan, error) {
	if err := g.session.GoToSubmissionStep(); err != nil {
		return nil, err
	}
	plan, err := votetx.BuildPlan(g.session.ConfirmedVotingRequest(), g.session.IsGaugeExpired, *g.voteDeps)
	if err != nil {
		g.plan = nil
		g.session.BackToEditing()
		return nil, err
	}
	g.plan = plan
	return plan, nil
}

// PreviewPlan shows how the current request would be split without freezing it.
func (g *Governor) PreviewPlan() ([]votetx.StepView, error) {
	plan, err := votetx.BuildPlan(g.session.ConfirmedVotingRequest(), g.session.IsGaugeExpired, votetx.Deps{})
	if err != nil {
		return nil, err
	}
	return plan.View(), nil
}

// PendingPlan returns the in-flight plan, or nil outside the submission step.
func (g *Governor) PendingPlan() *votetx.Plan {
	g.planMu.Lock()
	defer g.planMu.Unlock()
	return g.pendingPlan()
}

func (g *Governor) pendingPlan() *votetx.Plan {
	if g.plan != nil && !g.session.IsSubmissionStep() {
		g.plan = nil
	}
	return g.plan
}

// SubmitVotes executes the in-flight plan, building one first when there is
// none. Confirmed steps are never sent again: after a failed batch the next
// call resumes at that batch. The session is marked completed only when all
// steps confirm.
func (g *Governor) SubmitVotes(ctx context.Context) (*votetx.Plan, []*votetx.StepReceipt, error) {
	if g.voteDeps == nil {
		return nil, nil, ErrNoVoteDeps
	}
	g.planMu.Lock()
	plan := g.pendingPlan()
	if plan == nil {
		var err error
		if plan, err = g.buildPlan(); err != nil {
			g.planMu.Unlock()
			return nil, nil, err
		}
	} else {
		g.logger.Info().Msg("Resuming in-flight vote plan")
	}
	g.planMu.Unlock()

	receipts, err := g.ExecutePlan(ctx, plan)
	return plan, receipts, err
}

// ExecutePlan runs the remaining steps of plan and completes the session on success.
func (g *Governor) ExecutePlan(ctx context.Context, plan *votetx.Plan) ([]*votetx.StepReceipt, error) {
	receipts, err := plan.ExecuteAll(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("Vote submission failed")
		return receipts, err
	}
	g.planMu.Lock()
	if g.plan == plan {
		g.plan = nil
	}
	g.planMu.Unlock()
	g.session.SetVotingCompleted()
	g.logger.Info().Int("transactions", len(receipts)).Msg("Votes submitted")
	return receipts, nil
}

// CancelSubmission drops the in-flight plan and returns the session to editing.
func (g *Governor) CancelSubmission() {
	g.planMu.Lock()
	defer g.planMu.Unlock()
	g.plan = nil
	g.session.BackToEditing()
}

// ResetSession drops the in-flight plan and clears the session.
func (g *Governor) ResetSession() {
	g.planMu.Lock()
	defer g.planMu.Unlock()
	g.plan = nil
	g.session.Reset()
}

// Poke checkpoints gauge for the account when the working balance helper
// reports a higher projected ratio. force skips that check.
func (g *Governor) Poke(ctx context.Context, gauge common.Address, force bool) (*ethtypes.Transaction, error) {
	if g.bindGauge == nil || g.voteDeps == nil || g.voteDeps.Signer == nil {
		return nil, ErrNoPoker
	}
	if !force {
		if g.sync == nil {
			return nil, ErrNoSyncSource
		}
		due, err := g.sync.ShouldPokeGauge(ctx, gauge)
		if err != nil {
			return nil, err
		}
		if !due {
			return nil, ErrPokeNotDue
		}
	}

	lg, err := g.bindGauge(gauge)
	if err != nil {
		return nil, fmt.Errorf("bind gauge %s: %w", gauge.Hex(), err)
	}
	signer := g.voteDeps.Signer
	opts, err := signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := lg.UserCheckpoint(ctx, opts, g.account)
	if err != nil {
		return nil, fmt.Errorf("user checkpoint: %w", err)
	}
	g.logger.Info().Str("gauge", gauge.Hex()).Str("txHash", tx.Hash().Hex()).Msg("Gauge checkpoint submitted")

	if _, err := signer.WaitMined(ctx, tx); err != nil {
		return tx, err
	}

	if g.txLog != nil {
		entry := types.TxLogEntry{
			ID:        uuid.New(),
			Account:   g.account.Hex(),
			Network:   config.MainnetChainID,
			Action:    types.TxActionPoke,
			Summary:   "Poke gauge " + gauge.Hex(),
			TxHash:    tx.Hash().Hex(),
			Details:   map[string]interface{}{"gauge": gauge.Hex()},
			CreatedAt: g.now(),
		}
		if err := g.txLog.Record(ctx, entry); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to record gauge checkpoint")
		}
	}
	return tx, nil
}
