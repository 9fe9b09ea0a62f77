package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/crosschain"
	"github.com/beethovenx/vegov/internal/state"
	"github.com/beethovenx/vegov/internal/utils"
	"github.com/beethovenx/vegov/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the refresh loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var store web.Pinger
			if p, ok := a.kv.(web.Pinger); ok {
				store = p
			}
			server := web.NewWebServer(web.Options{
				Port:     config.WebPort,
				Account:  config.AccountAddress,
				Networks: config.Networks,
				Governor: a.governor,
				Sync:     &watchingSync{Service: a.sync, ctx: ctx},
				TxLog:    a.txLog,
				Metrics:  a.metrics,
				Store:    store,
			})

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vegov API")
				return server.Start(egCtx)
			})
			eg.Go(func() error {
				a.governor.RunLoop(egCtx, config.RefreshInterval)
				return nil
			})
			return eg.Wait()
		},
	}
}

// watchingSync follows every submitted sync until no network is Syncing.
// One watcher serves all syncs.
type watchingSync struct {
	*crosschain.Service
	ctx context.Context
}

func (w *watchingSync) Sync(ctx context.Context, chainID uint64) (*ethtypes.Transaction, error) {
	tx, err := w.Service.Sync(ctx, chainID)
	if err != nil {
		return nil, err
	}
	w.Service.StartWatcher(w.ctx)
	return tx, nil
}

func newPoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List voting pools with the account's current votes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.governor.Refresh(cmd.Context()); err != nil {
				return err
			}
			snap := a.governor.Session().Snapshot()
			if printJSON {
				return writeJSON(snap.Pools)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "GAUGE\tSYMBOL\tCHAIN\tMY VOTE\tNEXT PERIOD\tFLAGS")
			for _, p := range snap.Pools {
				myVote, err := utils.BpsToShares(p.UserVotes)
				if err != nil || myVote == "" {
					myVote = "0"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s%%\t%s\t%s\n",
					p.Gauge.Address.Hex(), p.Symbol, p.Chain, myVote, p.VotesNextPeriod, poolFlags(p.Expired, p.TimeLocked))
			}
			return w.Flush()
		},
	}
}

func poolFlags(expired, locked bool) string {
	var flags []string
	if expired {
		flags = append(flags, "expired")
	}
	if locked {
		flags = append(flags, "locked")
	}
	return strings.Join(flags, ",")
}

func newVoteCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "vote gauge=shares...",
		Short: "Set gauge weights and submit the votes",
		Long: `Set the vote weight (percent, up to two decimals) of one or more gauges
on top of the account's existing votes, then submit them in batches of
eight. A weight of 0 removes the vote.`,
		Example: "  vegov vote 0xabc...=40 0xdef...=0",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.governor.Refresh(ctx); err != nil {
				return err
			}
			session := a.governor.Session()
			for _, arg := range args {
				gauge, shares, err := parseVoteArg(arg)
				if err != nil {
					return err
				}
				pool, ok := session.PoolByGauge(gauge)
				if !ok {
					return fmt.Errorf("%s is not a voting gauge", gauge.Hex())
				}
				if !session.IsSelected(pool) {
					if err := session.ToggleSelection(pool); err != nil {
						return err
					}
				}
				if err := session.SetWeight(gauge, shares); err != nil {
					return err
				}
			}

			steps, err := a.governor.PreviewPlan()
			if err != nil {
				return err
			}
			if dryRun {
				return writeJSON(steps)
			}

			plan, receipts, err := a.governor.SubmitVotes(ctx)
			if plan != nil {
				for _, v := range plan.View() {
					fmt.Printf("%d. %s (%d votes): %s %s\n", v.Index+1, v.Label, len(v.Entries), v.State, v.TxHash)
				}
			}
			if err != nil {
				return err
			}
			fmt.Printf("Submitted %d transaction(s)\n", len(receipts))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the vote batches without submitting")
	return cmd
}

func parseVoteArg(arg string) (common.Address, string, error) {
	addr, shares, ok := strings.Cut(arg, "=")
	if !ok || !common.IsHexAddress(addr) {
		return common.Address{}, "", fmt.Errorf("invalid vote %q, expected gauge=shares", arg)
	}
	return common.HexToAddress(addr), shares, nil
}

func newSyncCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "sync <network>",
		Short: "Bridge the account's veBAL balance to an L2 network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			network, err := resolveNetwork(args[0])
			if err != nil {
				return err
			}
			a.sync.Refresh(ctx)
			tx, err := a.sync.Sync(ctx, network.ChainID)
			if err != nil {
				return err
			}
			fmt.Printf("Sync to %s submitted: %s\n", network.Name, tx.Hash().Hex())
			if !wait {
				return nil
			}

			link, err := a.explorer.ResolveLink(ctx, tx.Hash().Hex())
			if err != nil {
				log.Warn().Err(err).Msg("Bridge message not found yet")
			} else {
				fmt.Println("Bridge message:", link)
			}
			if err := a.sync.WatchSyncing(ctx); err != nil {
				return err
			}
			fmt.Printf("%s is synced\n", network.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the bridge message and the L2 balance to update")
	return cmd
}

func resolveNetwork(v string) (config.Network, error) {
	if id, err := strconv.ParseUint(v, 10, 64); err == nil {
		return config.NetworkByID(config.Networks, id)
	}
	return config.NetworkByKey(config.Networks, v)
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-status",
		Short: "Show the veBAL sync state of every L2 network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.sync.Refresh(cmd.Context())
			if printJSON {
				return writeJSON(snap)
			}
			if snap.HasError {
				fmt.Println("Warning: lock queries failed, states are unknown")
			}
			fmt.Printf("Mainnet veBAL: %s\n\n", snap.MainnetVeBal)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NETWORK\tCHAIN ID\tSTATE\tL2 veBAL\tLAST SYNC TX")
			for _, n := range snap.Networks {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", n.Name, n.ChainID, n.State, n.L2Balance, n.TxHash)
			}
			return w.Flush()
		},
	}
}

func newPokeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "poke <gauge>",
		Short: "Checkpoint a gauge so it picks up the synced veBAL balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid gauge address %q", args[0])
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tx, err := a.governor.Poke(cmd.Context(), common.HexToAddress(args[0]), force)
			if err != nil {
				return err
			}
			fmt.Println("Gauge checkpoint confirmed:", tx.Hash().Hex())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "checkpoint even when the working balance would not rise")
	return cmd
}

func newTxLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "txlog",
		Short: "List transactions submitted from this account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			kv, err := state.Open(ctx)
			if err != nil {
				return err
			}
			defer kv.Close()

			entries, err := state.NewTxLog(kv).List(ctx, config.AccountAddress.Hex())
			if err != nil {
				return err
			}
			if printJSON {
				return writeJSON(entries)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tSUMMARY\tTX")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Summary, e.TxHash)
			}
			return w.Flush()
		},
	}
}

func writeJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
