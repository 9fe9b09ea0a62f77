package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/contracts"
	"github.com/beethovenx/vegov/internal/crosschain"
	"github.com/beethovenx/vegov/internal/datafetcher"
	"github.com/beethovenx/vegov/internal/governor"
	"github.com/beethovenx/vegov/internal/metrics"
	"github.com/beethovenx/vegov/internal/state"
	"github.com/beethovenx/vegov/internal/voting"
	"github.com/beethovenx/vegov/internal/votetx"
	"github.com/beethovenx/vegov/internal/wallet"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	kv       state.KV
	client   *wallet.SigningClient
	metrics  *metrics.Metrics
	txLog    *state.TxLog
	sync     *crosschain.Service
	explorer *crosschain.Explorer
	governor *governor.Governor
}

// newApp opens the store, dials mainnet and binds the contracts.
func newApp(ctx context.Context) (*app, error) {
	mainnet, err := config.Mainnet(config.Networks)
	if err != nil {
		return nil, err
	}

	kv, err := state.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var client *wallet.SigningClient
	if config.PrivateKey != "" {
		client, err = wallet.NewSigningClient(ctx, mainnet.RPC, mainnet.ChainID, config.PrivateKey, config.AccountAddress)
	} else {
		log.Warn().Msg("PRIVATE_KEY not set; running read-only")
		client, err = wallet.NewReadOnlyClient(ctx, mainnet.RPC, mainnet.ChainID, config.AccountAddress)
	}
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	a := &app{
		kv:       kv,
		client:   client,
		metrics:  metrics.New(),
		txLog:    state.NewTxLog(kv),
		explorer: crosschain.NewExplorer(config.LayerZeroScanAPI),
	}
	if err := a.wire(mainnet); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(mainnet config.Network) error {
	backend := a.client.Backend()

	controllerAddr, err := config.RequireContract(mainnet, "gaugeController", mainnet.Contracts.GaugeController)
	if err != nil {
		return err
	}
	controller, err := contracts.NewGaugeController(common.HexToAddress(controllerAddr), backend)
	if err != nil {
		return err
	}

	fetcher := datafetcher.NewFetcher(config.APIURL, mainnet.Subgraph, controller, config.Networks)

	syncCfg := crosschain.ServiceConfig{
		Account:  config.AccountAddress,
		Networks: config.Networks,
		Locks:    fetcher,
		KV:       a.kv,
		TxLog:    a.txLog,
		Metrics:  a.metrics,
	}
	if addr := mainnet.Contracts.OmniVotingEscrow; addr != "" {
		escrow, err := contracts.NewOmniVotingEscrow(common.HexToAddress(addr), backend)
		if err != nil {
			return err
		}
		syncCfg.Escrow = escrow
	}
	if addr := mainnet.Contracts.GaugeWorkingBalanceHelper; addr != "" {
		helper, err := contracts.NewGaugeWorkingBalanceHelper(common.HexToAddress(addr), backend)
		if err != nil {
			return err
		}
		syncCfg.Helper = helper
	}
	if a.client.CanSign() {
		syncCfg.Signer = a.client
	}
	a.sync, err = crosschain.NewService(syncCfg)
	if err != nil {
		return err
	}

	govCfg := governor.Config{
		Account: config.AccountAddress,
		Pools:   fetcher,
		Session: voting.NewSession(nil),
		Sync:    a.sync,
		Counter: state.NewCycleCounter(a.kv),
		Metrics: a.metrics,
		TxLog:   a.txLog,
	}
	if a.client.CanSign() {
		govCfg.VoteDeps = &votetx.Deps{
			Voter:   controller,
			Signer:  a.client,
			TxLog:   a.txLog,
			Metrics: a.metrics,
		}
		govCfg.BindGauge = func(gauge common.Address) (governor.Checkpointer, error) {
			lg, err := contracts.NewLiquidityGauge(gauge, backend)
			if err != nil {
				return nil, err
			}
			return lg, nil
		}
	}
	a.governor, err = governor.New(govCfg)
	return err
}

// Close releases the RPC connection and the store.
func (a *app) Close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}
}
