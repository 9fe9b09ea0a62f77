package main

import (
	"context"
	"flag"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/logger"
	"github.com/beethovenx/vegov/internal/state"
)

// Wipes the persisted transaction log, temp-syncing overrides and sync tx
// hashes of one account. With -cycles the refresh cycle counter is reset too.
func main() {
	account := flag.String("account", "", "account to reset (defaults to ACCOUNT_ADDRESS)")
	resetCycles := flag.Bool("cycles", false, "also reset the refresh cycle counter")
	flag.Parse()

	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting store reset script...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	target := config.AccountAddress
	if *account != "" {
		if !common.IsHexAddress(*account) {
			log.Fatal().Str("account", *account).Msg("Invalid account address")
		}
		target = common.HexToAddress(*account)
	}

	ctx := context.Background()
	kv, err := state.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer kv.Close()

	log.Info().
		Str("backend", config.StoreBackend).
		Str("account", target.Hex()).
		Msg("Connected to store. Deleting account rows...")

	if err := state.ResetAccount(ctx, kv, target.Hex()); err != nil {
		log.Fatal().Err(err).Msg("Failed to reset account")
	}

	if *resetCycles {
		if err := state.NewCycleCounter(kv).Reset(ctx, 0); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset refresh cycle counter")
		}
		log.Info().Msg("Refresh cycle counter reset")
	}

	log.Info().Msg("Store reset complete!")
}
