/*

Package positions tracks the connected wallet's positions in the pools on
screen, with the pending reward total per position and per pool.

The tracker is keyed by (connection, address, pool set). When that key changes
a new fetch starts, and any fetch still in flight for an older key is not
allowed to write its result.

*/

package positions

import (
	"context"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/metrics"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/poolboard/poolboard/internal/wallet"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Source lists a wallet's positions in one pool. clmm.SDK satisfies it.
type Source interface {
	ListPositions(ctx context.Context, owner, poolID string) ([]types.PositionRecord, error)
}

// Snapshot is the tracker output. Pools in which the wallet holds no position
// are absent from Positions.
type Snapshot struct {
	Loading   bool               `json:"loading"`
	Error     string             `json:"error,omitempty"`
	Owner     string             `json:"owner,omitempty"`
	Positions types.PositionsMap `json:"positions"`

	Err error `json:"-"`
}

type Tracker struct {
	source  Source
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu         sync.Mutex
	generation uint64
	key        string
	snapshot   Snapshot
}

func NewTracker(source Source, m *metrics.Metrics) *Tracker {
	return &Tracker{
		source:   source,
		metrics:  m,
		log:      logger.GetForComponent("position_tracker"),
		snapshot: Snapshot{Positions: types.PositionsMap{}},
	}
}

func inputKey(conn wallet.Connection, poolIDs []string) string {
	if !conn.Connected {
		return "disconnected"
	}
	return conn.Address + "|" + strings.Join(poolIDs, ",")
}

// Snapshot returns the last applied result.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// Sync brings the tracker up to date with conn and poolIDs. It fetches only
// when the key differs from the last one seen; otherwise it returns the
// current snapshot.
func (t *Tracker) Sync(ctx context.Context, conn wallet.Connection, poolIDs []string) Snapshot {
	t.mu.Lock()
	unchanged := t.key == inputKey(conn, poolIDs) && t.generation > 0
	snap := t.snapshot
	t.mu.Unlock()

	if unchanged && snap.Err == nil {
		return snap
	}
	return t.Refresh(ctx, conn, poolIDs)
}

// Refresh fetches positions for conn and poolIDs unconditionally. The result
// is returned to the caller and applied only if no newer Refresh started
// meanwhile. A disconnected wallet yields an empty result without any fetch.
func (t *Tracker) Refresh(ctx context.Context, conn wallet.Connection, poolIDs []string) Snapshot {
	key := inputKey(conn, poolIDs)

	t.mu.Lock()
	t.generation++
	gen := t.generation
	t.key = key
	if !conn.Connected || conn.Address == "" {
		t.snapshot = Snapshot{Positions: types.PositionsMap{}}
		t.mu.Unlock()
		t.log.Debug().Msg("Wallet disconnected, clearing positions")
		return Snapshot{Positions: types.PositionsMap{}}
	}
	t.snapshot.Loading = true
	t.mu.Unlock()

	start := time.Now()
	result := t.fetch(ctx, conn.Address, poolIDs)
	t.metrics.ObserveFetch(metrics.SourcePositions, start, result.Err)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation {
		t.metrics.StaleDiscarded("positions")
		t.log.Debug().
			Uint64("generation", gen).
			Uint64("current", t.generation).
			Str("owner", conn.Address).
			Msg("Discarding superseded position result")
		return result
	}
	if ctx.Err() != nil {
		// Keep the last applied snapshot and force the next Sync to refetch.
		t.key = ""
		t.snapshot.Loading = false
		t.log.Debug().Uint64("generation", gen).Err(ctx.Err()).Msg("Position fetch cancelled; keeping previous snapshot")
		return result
	}
	t.snapshot = result
	return result
}

func (t *Tracker) fetch(ctx context.Context, owner string, poolIDs []string) Snapshot {
	perPool := make([][]types.PositionRecord, len(poolIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, poolID := range poolIDs {
		g.Go(func() error {
			list, err := t.source.ListPositions(gctx, owner, poolID)
			if err != nil {
				return types.NewNetworkError("list positions", poolID, err)
			}
			perPool[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.log.Error().Err(err).Str("owner", owner).Msg("Failed to fetch positions")
		return Snapshot{Owner: owner, Positions: types.PositionsMap{}, Error: err.Error(), Err: err}
	}

	out := make(types.PositionsMap)
	for i, poolID := range poolIDs {
		if len(perPool[i]) == 0 {
			continue
		}
		out[poolID] = t.summarize(poolID, perPool[i])
	}

	t.log.Info().
		Str("owner", owner).
		Int("pools", len(poolIDs)).
		Int("poolsWithPositions", len(out)).
		Msg("Fetched positions")

	return Snapshot{Owner: owner, Positions: out}
}

func (t *Tracker) summarize(poolID string, list []types.PositionRecord) types.PoolPositions {
	pool := types.PoolPositions{
		PoolID:         poolID,
		Positions:      make([]types.PositionSummary, 0, len(list)),
		PendingRewards: sdkmath.ZeroInt(),
	}
	for _, pos := range list {
		pending, malformed := PendingRewards(pos.Rewards)
		if malformed > 0 {
			t.log.Warn().
				Str("positionId", pos.PositionID).
				Int("malformedLines", malformed).
				Msg("Reward lines could not be parsed and count as zero")
		}
		liquidity := pos.Liquidity
		if liquidity.IsNil() {
			liquidity = sdkmath.ZeroInt()
		}
		pool.Positions = append(pool.Positions, types.PositionSummary{
			PositionID:     pos.PositionID,
			Liquidity:      liquidity,
			PendingRewards: pending,
		})
		pool.PendingRewards = pool.PendingRewards.Add(pending)
	}
	return pool
}

// PendingRewards sums the owed amounts of a position's reward lines. A line
// that does not parse counts as zero; malformed is the number of such lines.
func PendingRewards(rewards []types.RewardOwed) (total sdkmath.Int, malformed int) {
	total = sdkmath.ZeroInt()
	for _, r := range rewards {
		amount, ok := r.Amount()
		if !ok {
			malformed++
			continue
		}
		total = total.Add(amount)
	}
	return total, malformed
}
