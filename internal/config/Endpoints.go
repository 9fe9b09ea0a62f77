package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// MainnetRPC is the JSON-RPC endpoint used for gauge controller and bridge calls.
	MainnetRPC string
	// GaugesSubgraph is the mainnet gauges subgraph (omni locks, escrow locks, killed gauges).
	GaugesSubgraph string
	// APIURL is the protocol GraphQL API serving the voting list.
	APIURL string
	// LayerZeroScanAPI resolves bridge messages for a source transaction hash.
	LayerZeroScanAPI string
)

const defaultLayerZeroScanAPI = "https://api-mainnet.layerzero-scan.com"

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	MainnetRPC, err = getEnv("MAINNET_RPC")
	if err != nil {
		return err
	}

	GaugesSubgraph, err = getEnv("GAUGES_SUBGRAPH")
	if err != nil {
		return err
	}

	APIURL, err = getEnv("API_URL")
	if err != nil {
		return err
	}

	LayerZeroScanAPI = getEnvOrDefault("LAYERZERO_SCAN_API", defaultLayerZeroScanAPI)

	log.Debug().
		Str("MainnetRPC", MainnetRPC).
		Str("GaugesSubgraph", GaugesSubgraph).
		Str("APIURL", APIURL).
		Str("LayerZeroScanAPI", LayerZeroScanAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
