package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreBackendBadger   = "badger"
	StoreBackendPostgres = "postgres"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// AccountAddress is the governance account whose votes and locks are managed.
	AccountAddress common.Address

	// PrivateKey is the hex signing key for AccountAddress. Only transaction
	// commands need it.
	PrivateKey string

	// StoreBackend selects the persisted key-value store ("badger" or "postgres").
	StoreBackend string
	// BadgerDir is the Badger data directory.
	BadgerDir string

	// DBHost, DBPort, DBUser, DBPassword, DBName and DBSSLMode configure Postgres.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// WebPort is the HTTP API port.
	WebPort string

	// RefreshInterval is the governor loop interval.
	RefreshInterval time.Duration
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	account, err := getEnv("ACCOUNT_ADDRESS")
	if err != nil {
		return err
	}
	if !common.IsHexAddress(account) {
		return errors.New("environment variable ACCOUNT_ADDRESS must be a hex address, got: " + account)
	}
	AccountAddress = common.HexToAddress(account)

	PrivateKey = strings.TrimPrefix(os.Getenv("PRIVATE_KEY"), "0x")

	StoreBackend = getEnvOrDefault("STORE_BACKEND", StoreBackendBadger)
	if StoreBackend != StoreBackendBadger && StoreBackend != StoreBackendPostgres {
		return errors.New("environment variable STORE_BACKEND must be badger or postgres, got: " + StoreBackend)
	}
	BadgerDir = getEnvOrDefault("BADGER_DIR", "~/.vegov/badger")

	DBHost = getEnvOrDefault("DB_HOST", "localhost")
	DBPort, err = getEnvAsIntOrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DBUser = os.Getenv("DB_USER")
	DBPassword = os.Getenv("DB_PASSWORD")
	DBName = os.Getenv("DB_NAME")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	if StoreBackend == StoreBackendPostgres && (DBUser == "" || DBName == "") {
		return errors.New("DB_USER and DB_NAME are required when STORE_BACKEND=postgres")
	}

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	RefreshInterval, err = getEnvAsDurationOrDefault("REFRESH_INTERVAL", DefaultRefreshInterval)
	if err != nil {
		return err
	}

	if err := loadNetworks(); err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}
	applyMainnetOverrides()

	// Expand the tilde (~) in the badger directory path to the user's home directory.
	if strings.HasPrefix(BadgerDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		BadgerDir = filepath.Join(home, BadgerDir[2:])
	}

	log.Debug().
		Str("Account", AccountAddress.Hex()).
		Str("StoreBackend", StoreBackend).
		Int("Networks", len(Networks)).
		Msg("Configuration loaded successfully.")

	return nil
}

// applyMainnetOverrides lets env vars win over the mainnet row of the table.
func applyMainnetOverrides() {
	for i := range Networks {
		if Networks[i].ChainID != MainnetChainID {
			continue
		}
		if MainnetRPC != "" {
			Networks[i].RPC = MainnetRPC
		}
		if GaugesSubgraph != "" {
			Networks[i].Subgraph = GaugesSubgraph
		}
		if helper := os.Getenv("GAUGE_WORKING_BALANCE_HELPER"); helper != "" {
			Networks[i].Contracts.GaugeWorkingBalanceHelper = helper
		}
	}
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsIntOrDefault retrieves an optional int environment variable.
func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOrDefault retrieves an optional duration environment variable (e.g. "5m").
func getEnvAsDurationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}
