/*

Package dashboard owns the pool view. Each Refresh is one fetch cycle: pools
and statistics are fetched concurrently, reconciled, and the result replaces
the previous view wholesale. A cycle that has been superseded by a newer one
does not write its result.

*/

package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/metrics"
	"github.com/poolboard/poolboard/internal/reconcile"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PoolSource is the pool fetcher.
type PoolSource interface {
	FetchAllPools(ctx context.Context) ([]types.PoolRecord, error)
	FetchPoolsByIds(ctx context.Context, ids []string) ([]types.PoolRecord, error)
}

// StatsSource is the statistics fetcher.
type StatsSource interface {
	FetchAllStats(ctx context.Context) (types.StatsMap, error)
}

// State is what a view layer renders: either loading, an error, or pools.
type State struct {
	Loading   bool                    `json:"loading"`
	Error     string                  `json:"error,omitempty"`
	Pools     []types.UnifiedPoolView `json:"pools"`
	FilterIDs []string                `json:"filter_ids,omitempty"`
	UpdatedAt time.Time               `json:"updated_at"`

	Err error `json:"-"`
}

type PoolBoard struct {
	pools   PoolSource
	stats   StatsSource
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu         sync.Mutex
	generation uint64
	state      State
}

func NewPoolBoard(pools PoolSource, stats StatsSource, m *metrics.Metrics) *PoolBoard {
	return &PoolBoard{
		pools:   pools,
		stats:   stats,
		metrics: m,
		log:     logger.GetForComponent("dashboard"),
		state:   State{Pools: []types.UnifiedPoolView{}},
	}
}

// Snapshot returns the current view state.
func (b *PoolBoard) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Refresh runs one fetch cycle. With filterIDs only those pools are fetched,
// otherwise all pools are listed. The returned state is this cycle's own
// result; it is applied to the shared view only if no newer cycle started in
// the meantime and ctx was not cancelled. A fetch error yields a state with
// Error set and no pools.
func (b *PoolBoard) Refresh(ctx context.Context, filterIDs []string) State {
	b.mu.Lock()
	b.generation++
	gen := b.generation
	b.state.Loading = true
	b.mu.Unlock()

	b.log.Info().Uint64("generation", gen).Int("filterIds", len(filterIDs)).Msg("Starting pool fetch cycle")

	result := b.fetch(ctx, filterIDs)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.generation {
		b.metrics.StaleDiscarded("dashboard")
		b.log.Debug().
			Uint64("generation", gen).
			Uint64("current", b.generation).
			Msg("Discarding superseded pool fetch result")
		return result
	}
	if ctx.Err() != nil {
		// A cancelled cycle keeps the last applied view.
		b.state.Loading = false
		b.log.Debug().Uint64("generation", gen).Err(ctx.Err()).Msg("Pool fetch cycle cancelled; keeping previous view")
		return result
	}
	b.state = result
	if result.Err == nil {
		b.metrics.SetPoolView(len(result.Pools), reconcile.Unmatched(result.Pools))
	}
	return result
}

func (b *PoolBoard) fetch(ctx context.Context, filterIDs []string) State {
	var (
		pools []types.PoolRecord
		stats types.StatsMap
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		var err error
		if len(filterIDs) > 0 {
			pools, err = b.pools.FetchPoolsByIds(gctx, filterIDs)
		} else {
			pools, err = b.pools.FetchAllPools(gctx)
		}
		b.metrics.ObserveFetch(metrics.SourcePools, start, err)
		return err
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		stats, err = b.stats.FetchAllStats(gctx)
		b.metrics.ObserveFetch(metrics.SourceStats, start, err)
		return err
	})

	if err := g.Wait(); err != nil {
		b.log.Error().Err(err).Msg("Pool fetch cycle failed")
		return State{
			Error:     err.Error(),
			Err:       err,
			Pools:     []types.UnifiedPoolView{},
			FilterIDs: filterIDs,
			UpdatedAt: time.Now(),
		}
	}

	views := reconcile.Reconcile(pools, stats)
	if unmatched := reconcile.Unmatched(views); unmatched > 0 {
		b.log.Warn().Int("unmatched", unmatched).Int("pools", len(views)).Msg("Pools without statistics shown with zero figures")
	}

	b.log.Info().Int("pools", len(views)).Int("statsEntries", len(stats)).Msg("Pool fetch cycle completed")

	return State{
		Pools:     views,
		FilterIDs: filterIDs,
		UpdatedAt: time.Now(),
	}
}

// PoolIDs returns the addresses of the pools in the current view, in order.
func (b *PoolBoard) PoolIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, len(b.state.Pools))
	for i, p := range b.state.Pools {
		ids[i] = p.PoolAddress
	}
	return ids
}
