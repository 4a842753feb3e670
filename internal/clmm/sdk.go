/*

Package clmm is the boundary to the concentrated-liquidity protocol. The rest of
the module depends only on the SDK interface; Client implements it for a
Cetus-style CLMM deployment on Sui.

*/

package clmm

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/poolboard/poolboard/internal/types"
)

// Global tick bounds of the protocol.
const (
	MinTick int32 = -443636
	MaxTick int32 = 443636
)

// SDK is the set of protocol capabilities the dashboard needs.
type SDK interface {
	ListPools(ctx context.Context, cursor string, limit int) (types.PoolPage, error)
	GetPool(ctx context.Context, id string) (types.PoolRecord, error)
	ListPositions(ctx context.Context, owner, poolID string) ([]types.PositionRecord, error)
	GetPosition(ctx context.Context, id string) (types.PositionRecord, error)
	PositionRewards(ctx context.Context, poolID, positionID string) ([]types.RewardOwed, error)

	BuildAddLiquidity(p AddLiquidityParams) (types.TxPayload, error)
	BuildRemoveLiquidity(p RemoveLiquidityParams) (types.TxPayload, error)
	BuildCollectRewards(p CollectRewardsParams) (types.TxPayload, error)
}

// AddLiquidityParams describes a deposit. An empty PositionID opens a new
// position over [TickLower, TickUpper]; otherwise liquidity is added to the
// existing position and the ticks are ignored.
type AddLiquidityParams struct {
	Pool       types.PoolRecord
	PositionID string
	TickLower  int32
	TickUpper  int32
	AmountA    sdkmath.Int
	AmountB    sdkmath.Int
}

// RemoveLiquidityParams describes a withdrawal of Liquidity from a position.
type RemoveLiquidityParams struct {
	Pool       types.PoolRecord
	PositionID string
	Liquidity  sdkmath.Int
	MinAmountA sdkmath.Int
	MinAmountB sdkmath.Int
	CollectFee bool
}

// CollectRewardsParams describes a reward claim for the listed coin types.
type CollectRewardsParams struct {
	Pool              types.PoolRecord
	PositionID        string
	RewarderCoinTypes []string
	CollectFee        bool
}

// FullRangeTicks returns the widest tick range valid for the given spacing:
// MinTick and MaxTick snapped to a multiple of spacing. Division truncates
// toward zero rather than flooring: floor(MinTick/spacing)*spacing lands below
// MinTick for most spacings (-443640 for 60), which the pool rejects.
func FullRangeTicks(spacing uint32) (lower, upper int32) {
	if spacing == 0 {
		return MinTick, MaxTick
	}
	s := int32(spacing)
	return (MinTick / s) * s, (MaxTick / s) * s
}
