package config

import "time"

const (
	// VoteDelay is the gauge controller cooldown between two votes on the same gauge.
	VoteDelay = 10 * 24 * time.Hour

	// GaugeControllerSlots is the fixed width of vote_for_many_gauge_weights arrays.
	GaugeControllerSlots = 8

	// MaxVotesPerRequest caps a request at two transactions.
	MaxVotesPerRequest = 2 * GaugeControllerSlots

	// MaxVoteShares is 100% expressed in shares.
	MaxVoteShares = 100

	// SyncRefetchInterval is how often sync state is refetched while a network is syncing.
	SyncRefetchInterval = 30 * time.Second

	// ExplorerPollInterval and ExplorerMaxRetries bound the bridge message lookup.
	ExplorerPollInterval = 5 * time.Second
	ExplorerMaxRetries   = 10

	// BalanceDecimals is the precision of projected L2 veBAL balances.
	BalanceDecimals = 4

	// DefaultRefreshInterval is the governor loop interval when REFRESH_INTERVAL is unset.
	DefaultRefreshInterval = 5 * time.Minute
)
