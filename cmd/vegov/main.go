package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/logger"
)

var printJSON bool

// main is the entry point for the vegov CLI.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vegov",
		Short: "Gauge voting and veBAL cross-chain sync for one governance account",
		Long: `vegov manages the gauge votes of a veBAL holder and keeps its veBAL
balance mirrored on the L2 networks that support cross-chain sync.

Run "vegov serve" for the HTTP API and refresh loop, or use the
subcommands for one-off reads and transactions.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}
			if err := config.LoadConfig(); err != nil {
				log.Error().Err(err).Msg("Failed to load configuration")
				return err
			}
			logger.Initialize(os.Getenv("LOG_LEVEL"))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&printJSON, "json", false, "print results as JSON")

	cmd.AddCommand(
		newServeCmd(),
		newPoolsCmd(),
		newVoteCmd(),
		newSyncCmd(),
		newSyncStatusCmd(),
		newPokeCmd(),
		newTxLogCmd(),
	)
	return cmd
}
