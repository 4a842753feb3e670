package datafetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/poolboard/poolboard/internal/clmm"
	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrPaginationStalled = errors.New("pool listing reported more pages without a new cursor")

// PoolFetcher retrieves on-chain pool records through the protocol SDK.
type PoolFetcher struct {
	sdk       clmm.SDK
	pageLimit int
	log       zerolog.Logger
}

func NewPoolFetcher(sdk clmm.SDK, pageLimit int) *PoolFetcher {
	return &PoolFetcher{
		sdk:       sdk,
		pageLimit: pageLimit,
		log:       logger.GetForComponent("pool_retriever"),
	}
}

// FetchAllPools pages through the full pool listing. Any failing page fails
// the whole call; a partial list is never returned.
func (f *PoolFetcher) FetchAllPools(ctx context.Context) ([]types.PoolRecord, error) {
	f.log.Info().Int("pageLimit", f.pageLimit).Msg("Starting pool retrieval")

	var (
		all    []types.PoolRecord
		cursor string
		pages  int
	)
	for {
		page, err := f.sdk.ListPools(ctx, cursor, f.pageLimit)
		if err != nil {
			f.log.Error().Err(err).Int("page", pages).Msg("Failed to fetch page of pools")
			return nil, fmt.Errorf("pool listing page %d failed: %w", pages, err)
		}
		pages++
		all = append(all, page.Pools...)

		if !page.HasNextPage {
			break
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil, fmt.Errorf("%w: page %d", ErrPaginationStalled, pages)
		}
		cursor = page.NextCursor

		f.log.Debug().
			Int("fetchedPools", len(page.Pools)).
			Int("totalPoolsSoFar", len(all)).
			Msg("Fetched page of pools, continuing pagination")
	}

	if all == nil {
		all = []types.PoolRecord{}
	}

	f.log.Info().Int("poolCount", len(all)).Int("pages", pages).Msg("Successfully fetched all pools")
	return all, nil
}

// FetchPoolsByIds fetches each id concurrently. The result follows the order
// of ids. If any fetch fails the call fails with a *types.NetworkError naming
// that id; there is no partial result.
func (f *PoolFetcher) FetchPoolsByIds(ctx context.Context, ids []string) ([]types.PoolRecord, error) {
	pools := make([]types.PoolRecord, len(ids))
	if len(ids) == 0 {
		return pools, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			pool, err := f.sdk.GetPool(gctx, id)
			if err != nil {
				return types.NewNetworkError("fetch pool", id, err)
			}
			pools[i] = pool
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.log.Error().Err(err).Int("requested", len(ids)).Msg("Failed to fetch pools by id")
		return nil, err
	}

	f.log.Info().Int("poolCount", len(pools)).Msg("Successfully fetched pools by id")
	return pools, nil
}

// FetchPoolByID returns a single pool or an error wrapping types.ErrPoolNotFound.
func (f *PoolFetcher) FetchPoolByID(ctx context.Context, id string) (types.PoolRecord, error) {
	pool, err := f.sdk.GetPool(ctx, id)
	if err != nil {
		return types.PoolRecord{}, err
	}
	return pool, nil
}
