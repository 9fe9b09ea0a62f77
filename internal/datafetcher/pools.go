package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/contracts"
	"github.com/beethovenx/vegov/internal/logger"
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/utils"
)

const (
	week = int64(7 * 24 * 60 * 60)
	// enrichConcurrency bounds parallel RPC calls per refresh.
	enrichConcurrency = 8
)

var ErrInvalidPoolData = errors.New("invalid pool data")

// VoteReader reads the account's votes and gauge weights from the gauge controller.
type VoteReader interface {
	UserVote(ctx context.Context, user, gauge common.Address) (contracts.UserVote, error)
	GaugeRelativeWeight(ctx context.Context, gauge common.Address, at int64) (*big.Int, error)
}

// Fetcher runs the voting and lock queries for one deployment.
type Fetcher struct {
	api      *GraphQLClient
	subgraph *GraphQLClient
	votes    VoteReader
	networks []config.Network
	now      func() time.Time
	logger   zerolog.Logger
}

// NewFetcher queries apiURL for the voting list and subgraphURL for gauges and
// locks. votes may be nil, in which case pools carry no on-chain vote data.
func NewFetcher(apiURL, subgraphURL string, votes VoteReader, networks []config.Network) *Fetcher {
	return &Fetcher{
		api:      NewGraphQLClient(apiURL),
		subgraph: NewGraphQLClient(subgraphURL),
		votes:    votes,
		networks: networks,
		now:      time.Now,
		logger:   logger.GetForComponent("subgraph"),
	}
}

const votingListQuery = `query VeBalGetVotingList {
  veBalGetVotingList {
    id
    address
    chain
    symbol
    gauge {
      address
      isKilled
      addedTimestamp
      relativeWeightCap
    }
  }
}`

type votingListItem struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Chain   string `json:"chain"`
	Symbol  string `json:"symbol"`
	Gauge   struct {
		Address           string  `json:"address"`
		IsKilled          bool    `json:"isKilled"`
		AddedTimestamp    flexInt `json:"addedTimestamp"`
		RelativeWeightCap *string `json:"relativeWeightCap"`
	} `json:"gauge"`
}

// GetVotingPools returns every gauge-eligible pool with the account's current
// vote, last vote time and the gauge's weight for the next period.
func (f *Fetcher) GetVotingPools(ctx context.Context, account common.Address) ([]types.VotingPool, error) {
	var resp struct {
		List []votingListItem `json:"veBalGetVotingList"`
	}
	if err := f.api.Query(ctx, "veBalGetVotingList", votingListQuery, nil, &resp); err != nil {
		return nil, err
	}

	pools := make([]types.VotingPool, 0, len(resp.List))
	seen := make(map[common.Address]bool, len(resp.List))
	for _, item := range resp.List {
		pool, err := f.toVotingPool(item)
		if err != nil {
			return nil, err
		}
		if seen[pool.Gauge.Address] {
			f.logger.Warn().Str("gauge", pool.Gauge.Address.Hex()).Msg("Duplicate gauge in voting list, skipping")
			continue
		}
		seen[pool.Gauge.Address] = true
		pools = append(pools, pool)
	}

	if err := f.enrich(ctx, account, pools); err != nil {
		return nil, err
	}
	f.logger.Info().Int("pools", len(pools)).Msg("Fetched voting pools")
	return pools, nil
}

func (f *Fetcher) toVotingPool(item votingListItem) (types.VotingPool, error) {
	if !common.IsHexAddress(item.Gauge.Address) {
		return types.VotingPool{}, fmt.Errorf("%w: pool %s has gauge address %q", ErrInvalidPoolData, item.ID, item.Gauge.Address)
	}
	pool := types.VotingPool{
		ID:      item.ID,
		Address: common.HexToAddress(item.Address),
		Chain:   item.Chain,
		Symbol:  item.Symbol,
		Gauge: types.Gauge{
			Address:        common.HexToAddress(item.Gauge.Address),
			IsKilled:       item.Gauge.IsKilled,
			AddedTimestamp: int64(item.Gauge.AddedTimestamp),
		},
		UserVotes:       "0",
		VotesNextPeriod: "0",
	}
	if item.Gauge.RelativeWeightCap != nil {
		pool.Gauge.RelativeWeightCap = *item.Gauge.RelativeWeightCap
	}
	if n, err := config.NetworkByKey(f.networks, strings.ToLower(item.Chain)); err == nil {
		pool.Network = n.ChainID
	} else {
		f.logger.Debug().Str("chain", item.Chain).Msg("Voting pool on a chain missing from the network table")
	}
	return pool, nil
}

// enrich fills the on-chain fields in place, in parallel.
func (f *Fetcher) enrich(ctx context.Context, account common.Address, pools []types.VotingPool) error {
	if f.votes == nil {
		return nil
	}
	nextEpoch := (f.now().Unix()/week + 1) * week

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range pools {
		pool := &pools[i]
		g.Go(func() error {
			gauge := pool.Gauge.Address
			if account != (common.Address{}) {
				vote, err := f.votes.UserVote(gctx, account, gauge)
				if err != nil {
					return fmt.Errorf("gauge %s: %w", gauge.Hex(), err)
				}
				pool.UserVotes = vote.Power.String()
				pool.LastUserVoteTime = vote.LastVote.Int64()
			}
			weight, err := f.votes.GaugeRelativeWeight(gctx, gauge, nextEpoch)
			if err != nil {
				return fmt.Errorf("gauge %s: %w", gauge.Hex(), err)
			}
			pool.VotesNextPeriod = utils.TrimDec(sdkmath.LegacyNewDecFromBigIntWithPrec(weight, sdkmath.LegacyPrecision))
			return nil
		})
	}
	return g.Wait()
}

const expiredGaugesQuery = `query ExpiredGauges {
  liquidityGauges(first: 1000, where: { isKilled: true }) {
    id
  }
}`

// GetExpiredGauges returns the addresses of killed gauges.
func (f *Fetcher) GetExpiredGauges(ctx context.Context) ([]string, error) {
	var resp struct {
		Gauges []struct {
			ID string `json:"id"`
		} `json:"liquidityGauges"`
	}
	if err := f.subgraph.Query(ctx, "liquidityGauges", expiredGaugesQuery, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Gauges))
	for _, g := range resp.Gauges {
		out = append(out, g.ID)
	}
	return out, nil
}
