package crosschain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/logger"
	"github.com/beethovenx/vegov/internal/metrics"
	"github.com/beethovenx/vegov/internal/state"
	"github.com/beethovenx/vegov/internal/types"
)

var (
	ErrSyncNotSupported = errors.New("network does not support veBAL sync")
	ErrReadOnly         = errors.New("sync service has no signer")
)

// LockSource queries the indexers for the account's locks.
type LockSource interface {
	GetOmniEscrowLocks(ctx context.Context, account common.Address) ([]types.OmniEscrowLock, error)
	GetVotingEscrowLock(ctx context.Context, account common.Address) (*types.VotingEscrowLock, error)
}

// OmniEscrow is the mainnet bridge contract.
type OmniEscrow interface {
	EstimateSendUserBalance(ctx context.Context, signer common.Address, layerZeroChainID uint16) (*big.Int, error)
	SendUserBalance(ctx context.Context, opts *bind.TransactOpts, user common.Address, layerZeroChainID uint16, nativeFee *big.Int) (*ethtypes.Transaction, error)
}

// WorkingBalanceHelper reports boost ratios for a gauge.
type WorkingBalanceHelper interface {
	GetWorkingBalanceToSupplyRatios(ctx context.Context, user, gauge common.Address) (current, projected *big.Int, err error)
}

// Signer provides transact options on mainnet.
type Signer interface {
	Address() common.Address
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// TxRecorder persists local transaction-log entries.
type TxRecorder interface {
	Record(ctx context.Context, entry types.TxLogEntry) error
}

// ServiceConfig wires a Service. Escrow, Helper, Signer, TxLog and Metrics
// may be nil; the operations needing them then fail with a validation error.
type ServiceConfig struct {
	Account         common.Address
	Networks        []config.Network
	Locks           LockSource
	Escrow          OmniEscrow
	Helper          WorkingBalanceHelper
	Signer          Signer
	KV              state.KV
	TxLog           TxRecorder
	Metrics         *metrics.Metrics
	Now             func() time.Time
	RefetchInterval time.Duration
}

// Service keeps the account's cross-chain sync state current and submits
// bridge transactions.
type Service struct {
	cfg      ServiceConfig
	temp     *TempSyncing
	txHashes *TxHashes
	logger   zerolog.Logger

	mu   sync.RWMutex
	last *Snapshot

	watching atomic.Bool
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Locks == nil || cfg.KV == nil {
		return nil, errors.New("sync service requires a lock source and a KV store")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RefetchInterval <= 0 {
		cfg.RefetchInterval = config.SyncRefetchInterval
	}
	return &Service{
		cfg:      cfg,
		temp:     NewTempSyncing(cfg.KV, cfg.Now),
		txHashes: NewTxHashes(cfg.KV),
		logger:   logger.GetForComponent("crosschain_sync").With().Str("account", cfg.Account.Hex()).Logger(),
	}, nil
}

// Refresh queries both lock sources, classifies and prunes temp-syncing
// overrides for networks now synced. Query failures never propagate: they
// mark the snapshot HasError and every network Unknown.
func (s *Service) Refresh(ctx context.Context) Snapshot {
	var (
		omni    []types.OmniEscrowLock
		mainnet *types.VotingEscrowLock
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		locks, err := s.cfg.Locks.GetOmniEscrowLocks(gctx, s.cfg.Account)
		if err != nil {
			return fmt.Errorf("omni escrow locks: %w", err)
		}
		omni = locks
		return nil
	})
	g.Go(func() error {
		lock, err := s.cfg.Locks.GetVotingEscrowLock(gctx, s.cfg.Account)
		if err != nil {
			return fmt.Errorf("voting escrow lock: %w", err)
		}
		mainnet = lock
		return nil
	})
	queryErr := g.Wait()
	if queryErr != nil {
		s.logger.Warn().Err(queryErr).Msg("Sync state query failed, reporting unknown")
		s.cfg.Metrics.RefreshError("sync")
	}

	account := s.cfg.Account.Hex()
	temp, err := s.temp.Networks(ctx, account)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read temp syncing networks")
	}

	snap := Classify(Input{
		Networks:    s.cfg.Networks,
		OmniLocks:   omni,
		MainnetLock: mainnet,
		HasError:    queryErr != nil,
		TempSyncing: temp,
		Now:         s.cfg.Now(),
	})

	if len(snap.BySyncState.Synced) > 0 {
		removed, err := s.temp.Prune(ctx, account, snap.BySyncState.Synced)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to prune temp syncing networks")
		} else if len(removed) > 0 {
			s.logger.Info().Interface("networks", removed).Msg("Networks finished syncing")
		}
	}

	if hashes, err := s.txHashes.All(ctx, account); err == nil {
		for i := range snap.Networks {
			snap.Networks[i].TxHash = hashes[snap.Networks[i].ChainID]
		}
	}

	for _, n := range snap.Networks {
		s.cfg.Metrics.SetNetworkState(n.Key, n.State)
		if f, err := strconv.ParseFloat(n.L2Balance, 64); err == nil {
			s.cfg.Metrics.SetL2Balance(n.Key, f)
		}
	}

	s.mu.Lock()
	s.last = &snap
	s.mu.Unlock()
	return snap
}

// Last returns the most recent snapshot, if any.
func (s *Service) Last() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Snapshot{}, false
	}
	return *s.last, true
}

// Sync bridges the account's veBAL to network. It estimates the LayerZero
// fee and sends it as value. Confirmation is left to the caller.
func (s *Service) Sync(ctx context.Context, chainID uint64) (*ethtypes.Transaction, error) {
	network, err := config.NetworkByID(s.cfg.Networks, chainID)
	if err != nil {
		return nil, err
	}
	if !network.SupportsVeBalSync {
		return nil, fmt.Errorf("%w: %s", ErrSyncNotSupported, network.Key)
	}
	mainnet, err := config.Mainnet(s.cfg.Networks)
	if err != nil {
		return nil, err
	}
	if _, err := config.RequireContract(mainnet, "omniVotingEscrow", mainnet.Contracts.OmniVotingEscrow); err != nil {
		return nil, err
	}
	if s.cfg.Escrow == nil {
		return nil, fmt.Errorf("%w: omniVotingEscrow binding", config.ErrMissingContract)
	}
	if s.cfg.Signer == nil {
		return nil, ErrReadOnly
	}

	signer := s.cfg.Signer.Address()
	fee, err := s.cfg.Escrow.EstimateSendUserBalance(ctx, signer, network.LayerZeroChainID)
	if err != nil {
		s.cfg.Metrics.ObserveSyncTx(network.Key, err)
		return nil, fmt.Errorf("failed to estimate bridge fee for %s: %w", network.Key, err)
	}
	opts, err := s.cfg.Signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.cfg.Escrow.SendUserBalance(ctx, opts, s.cfg.Account, network.LayerZeroChainID, fee)
	s.cfg.Metrics.ObserveSyncTx(network.Key, err)
	if err != nil {
		return nil, fmt.Errorf("failed to send veBAL to %s: %w", network.Key, err)
	}

	hash := tx.Hash().Hex()
	s.logger.Info().
		Str("network", network.Key).
		Str("fee", fee.String()).
		Str("txHash", hash).
		Msg("veBAL sync submitted")

	account := s.cfg.Account.Hex()
	if err := s.txHashes.Set(ctx, account, chainID, hash); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist sync tx hash")
	}
	if err := s.temp.Add(ctx, account, chainID); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist temp syncing network")
	}
	if s.cfg.TxLog != nil {
		entry := types.TxLogEntry{
			ID:      uuid.New(),
			Account: account,
			Network: config.MainnetChainID,
			Action:  types.TxActionSync,
			Summary: "Sync veBAL to " + network.Name,
			TxHash:  hash,
			Details: map[string]interface{}{
				"network":          chainID,
				"layerZeroChainId": network.LayerZeroChainID,
				"nativeFee":        fee.String(),
			},
			CreatedAt: s.cfg.Now(),
		}
		if err := s.cfg.TxLog.Record(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record sync in transaction log")
		}
	}

	// Publish the override so readers see the network syncing right away.
	s.Refresh(ctx)
	return tx, nil
}

// ShouldPokeGauge reports whether checkpointing gauge would raise the
// account's boost: the projected ratio is strictly above the current one.
func (s *Service) ShouldPokeGauge(ctx context.Context, gauge common.Address) (bool, error) {
	mainnet, err := config.Mainnet(s.cfg.Networks)
	if err != nil {
		return false, err
	}
	if _, err := config.RequireContract(mainnet, "gaugeWorkingBalanceHelper", mainnet.Contracts.GaugeWorkingBalanceHelper); err != nil {
		return false, err
	}
	if s.cfg.Helper == nil {
		return false, fmt.Errorf("%w: gaugeWorkingBalanceHelper binding", config.ErrMissingContract)
	}
	current, projected, err := s.cfg.Helper.GetWorkingBalanceToSupplyRatios(ctx, s.cfg.Account, gauge)
	if err != nil {
		return false, fmt.Errorf("failed to read working balance ratios: %w", err)
	}
	return projected.Cmp(current) > 0, nil
}

// WatchSyncing refetches every RefetchInterval while any network is syncing
// and returns once none is. It starts from a fresh snapshot.
func (s *Service) WatchSyncing(ctx context.Context) error {
	snap := s.Refresh(ctx)
	if !snap.IsSyncing() {
		return nil
	}

	ticker := time.NewTicker(s.cfg.RefetchInterval)
	defer ticker.Stop()
	s.logger.Info().Interface("syncing", snap.BySyncState.Syncing).Msg("Watching syncing networks")
	for snap.IsSyncing() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap = s.Refresh(ctx)
		}
	}
	s.logger.Info().Msg("No network is syncing anymore")
	return nil
}

// StartWatcher runs WatchSyncing in the background unless a watcher is
// already running. It reports whether a new watcher was started.
func (s *Service) StartWatcher(ctx context.Context) bool {
	if !s.watching.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.watching.Store(false)
		if err := s.WatchSyncing(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Msg("Sync watcher stopped")
		}
	}()
	return true
}

// Watching reports whether a background watcher is running.
func (s *Service) Watching() bool {
	return s.watching.Load()
}

// TxHash returns the last sync transaction hash for network.
func (s *Service) TxHash(ctx context.Context, chainID uint64) (string, error) {
	return s.txHashes.Get(ctx, s.cfg.Account.Hex(), chainID)
}
