package clmm

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPool = types.PoolRecord{
	PoolAddress: "0xaa",
	CoinTypeA:   "0x2::sui::SUI",
	CoinTypeB:   "0x3::usdc::USDC",
	FeeRate:     2500,
	TickSpacing: 60,
}

func TestBuildAddLiquidity(t *testing.T) {
	c := NewClient(newFakeNode(), testProtocol())

	t.Run("OpensNewPosition", func(t *testing.T) {
		lower, upper := FullRangeTicks(testPool.TickSpacing)
		payload, err := c.BuildAddLiquidity(AddLiquidityParams{
			Pool:      testPool,
			TickLower: lower,
			TickUpper: upper,
			AmountA:   sdkmath.NewInt(1000),
			AmountB:   sdkmath.NewInt(2000),
		})
		require.NoError(t, err)
		require.Len(t, payload.Calls, 1)

		call := payload.Calls[0]
		assert.Equal(t, types.ActionDeposit, payload.Kind)
		assert.Equal(t, "0x996c::pool_script::open_position_with_liquidity_by_fix_coin", call.Target)
		assert.Equal(t, []string{"0x2::sui::SUI", "0x3::usdc::USDC"}, call.TypeArguments)
		assert.Equal(t, types.ObjectArg("0xdaa4"), call.Arguments[0])
		assert.Equal(t, types.ObjectArg("0xaa"), call.Arguments[1])
		assert.Equal(t, types.PureArg(uint32(4294523716)), call.Arguments[2]) // -443580 as u32
		assert.Equal(t, types.PureArg(uint32(443580)), call.Arguments[3])
		assert.Equal(t, types.PureArg(true), call.Arguments[8])
	})

	t.Run("AddsToExistingPosition", func(t *testing.T) {
		payload, err := c.BuildAddLiquidity(AddLiquidityParams{
			Pool:       testPool,
			PositionID: "0xp1",
			AmountA:    sdkmath.ZeroInt(),
			AmountB:    sdkmath.NewInt(5),
		})
		require.NoError(t, err)

		call := payload.Calls[0]
		assert.Equal(t, "0x996c::pool_script_v2::add_liquidity_by_fix_coin", call.Target)
		assert.Equal(t, types.ObjectArg("0xp1"), call.Arguments[2])
		assert.Equal(t, types.PureArg(false), call.Arguments[7], "B is fixed when A is zero")
	})

	t.Run("RejectsEmptyAmounts", func(t *testing.T) {
		_, err := c.BuildAddLiquidity(AddLiquidityParams{Pool: testPool, TickLower: -60, TickUpper: 60, AmountA: sdkmath.ZeroInt(), AmountB: sdkmath.ZeroInt()})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("RejectsNegativeAmount", func(t *testing.T) {
		_, err := c.BuildAddLiquidity(AddLiquidityParams{Pool: testPool, TickLower: -60, TickUpper: 60, AmountA: sdkmath.NewInt(-1), AmountB: sdkmath.NewInt(1)})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("RejectsEmptyTickRange", func(t *testing.T) {
		_, err := c.BuildAddLiquidity(AddLiquidityParams{Pool: testPool, TickLower: 60, TickUpper: 60, AmountA: sdkmath.NewInt(1), AmountB: sdkmath.NewInt(1)})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})
}

func TestBuildRemoveLiquidity(t *testing.T) {
	c := NewClient(newFakeNode(), testProtocol())

	payload, err := c.BuildRemoveLiquidity(RemoveLiquidityParams{
		Pool:       testPool,
		PositionID: "0xp1",
		Liquidity:  sdkmath.NewInt(777),
		MinAmountA: sdkmath.ZeroInt(),
		MinAmountB: sdkmath.ZeroInt(),
		CollectFee: true,
	})
	require.NoError(t, err)
	require.Len(t, payload.Calls, 2)

	assert.Equal(t, types.ActionWithdraw, payload.Kind)
	assert.Equal(t, "0x996c::pool_script::collect_fee", payload.Calls[0].Target)
	remove := payload.Calls[1]
	assert.Equal(t, "0x996c::pool_script::remove_liquidity", remove.Target)
	assert.Equal(t, types.PureArg("777"), remove.Arguments[3])
	assert.Equal(t, types.PureArg("0"), remove.Arguments[4])
	assert.Equal(t, types.PureArg("0"), remove.Arguments[5])

	_, err = c.BuildRemoveLiquidity(RemoveLiquidityParams{Pool: testPool, PositionID: "0xp1", Liquidity: sdkmath.ZeroInt(), MinAmountA: sdkmath.ZeroInt(), MinAmountB: sdkmath.ZeroInt()})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestBuildCollectRewards(t *testing.T) {
	c := NewClient(newFakeNode(), testProtocol())

	payload, err := c.BuildCollectRewards(CollectRewardsParams{
		Pool:              testPool,
		PositionID:        "0xp1",
		RewarderCoinTypes: []string{"0xce::cetus::CETUS", "0x2::sui::SUI"},
	})
	require.NoError(t, err)
	require.Len(t, payload.Calls, 2, "no fee collection call")

	for i, coinType := range []string{"0xce::cetus::CETUS", "0x2::sui::SUI"} {
		call := payload.Calls[i]
		assert.Equal(t, "0x996c::pool_script_v2::collect_reward", call.Target)
		assert.Equal(t, []string{"0x2::sui::SUI", "0x3::usdc::USDC", coinType}, call.TypeArguments)
		assert.Equal(t, types.ObjectArg("0xce7b"), call.Arguments[3])
	}

	_, err = c.BuildCollectRewards(CollectRewardsParams{Pool: testPool, PositionID: "0xp1"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}
