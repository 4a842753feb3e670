package clmm

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/poolboard/poolboard/internal/types"
)

// ClockObjectID is the shared system clock every time-dependent entry takes.
const ClockObjectID = "0x6"

var ErrInvalidParams = errors.New("invalid payload parameters")

func (c *Client) target(module, function string) string {
	return c.protocol.IntegratePackageID + "::" + module + "::" + function
}

func poolTypeArgs(p types.PoolRecord) []string {
	return []string{p.CoinTypeA, p.CoinTypeB}
}

func validatePool(p types.PoolRecord) error {
	if p.PoolAddress == "" || p.CoinTypeA == "" || p.CoinTypeB == "" {
		return errors.Join(ErrInvalidParams, errors.New("pool address and coin types are required"))
	}
	return nil
}

func nonNegative(name string, v sdkmath.Int) error {
	if v.IsNil() || v.IsNegative() {
		return errors.Join(ErrInvalidParams, fmt.Errorf("%s must be a non-negative integer", name))
	}
	return nil
}

// tickArg encodes a signed tick as the u32 two's-complement the protocol takes.
func tickArg(tick int32) uint32 {
	return uint32(tick)
}

// BuildAddLiquidity builds a fix-coin deposit. The side with a positive amount
// is fixed (A when both are positive); the protocol derives the other side.
func (c *Client) BuildAddLiquidity(p AddLiquidityParams) (types.TxPayload, error) {
	if err := validatePool(p.Pool); err != nil {
		return types.TxPayload{}, err
	}
	if err := errors.Join(nonNegative("amount a", p.AmountA), nonNegative("amount b", p.AmountB)); err != nil {
		return types.TxPayload{}, err
	}
	if p.AmountA.IsZero() && p.AmountB.IsZero() {
		return types.TxPayload{}, errors.Join(ErrInvalidParams, errors.New("at least one amount must be positive"))
	}
	fixA := p.AmountA.IsPositive()

	coins := []types.CallArg{
		types.CoinArg(p.Pool.CoinTypeA, p.AmountA),
		types.CoinArg(p.Pool.CoinTypeB, p.AmountB),
		types.PureArg(p.AmountA.String()),
		types.PureArg(p.AmountB.String()),
		types.PureArg(fixA),
		types.ObjectArg(ClockObjectID),
	}

	var call types.MoveCall
	if p.PositionID == "" {
		if p.TickLower >= p.TickUpper {
			return types.TxPayload{}, errors.Join(ErrInvalidParams, fmt.Errorf("tick range [%d, %d] is empty", p.TickLower, p.TickUpper))
		}
		call = types.MoveCall{
			Target:        c.target("pool_script", "open_position_with_liquidity_by_fix_coin"),
			TypeArguments: poolTypeArgs(p.Pool),
			Arguments: append([]types.CallArg{
				types.ObjectArg(c.protocol.GlobalConfigID),
				types.ObjectArg(p.Pool.PoolAddress),
				types.PureArg(tickArg(p.TickLower)),
				types.PureArg(tickArg(p.TickUpper)),
			}, coins...),
		}
	} else {
		call = types.MoveCall{
			Target:        c.target("pool_script_v2", "add_liquidity_by_fix_coin"),
			TypeArguments: poolTypeArgs(p.Pool),
			Arguments: append([]types.CallArg{
				types.ObjectArg(c.protocol.GlobalConfigID),
				types.ObjectArg(p.Pool.PoolAddress),
				types.ObjectArg(p.PositionID),
			}, coins...),
		}
	}

	return types.TxPayload{Kind: types.ActionDeposit, Calls: []types.MoveCall{call}}, nil
}

// BuildRemoveLiquidity builds a withdrawal. With CollectFee the accrued trading
// fees are claimed in the same transaction, ahead of the removal.
func (c *Client) BuildRemoveLiquidity(p RemoveLiquidityParams) (types.TxPayload, error) {
	if err := validatePool(p.Pool); err != nil {
		return types.TxPayload{}, err
	}
	if p.PositionID == "" {
		return types.TxPayload{}, errors.Join(ErrInvalidParams, errors.New("position id is required"))
	}
	if p.Liquidity.IsNil() || !p.Liquidity.IsPositive() {
		return types.TxPayload{}, errors.Join(ErrInvalidParams, errors.New("liquidity to remove must be positive"))
	}
	if err := errors.Join(nonNegative("min amount a", p.MinAmountA), nonNegative("min amount b", p.MinAmountB)); err != nil {
		return types.TxPayload{}, err
	}

	var calls []types.MoveCall
	if p.CollectFee {
		calls = append(calls, types.MoveCall{
			Target:        c.target("pool_script", "collect_fee"),
			TypeArguments: poolTypeArgs(p.Pool),
			Arguments: []types.CallArg{
				types.ObjectArg(c.protocol.GlobalConfigID),
				types.ObjectArg(p.Pool.PoolAddress),
				types.ObjectArg(p.PositionID),
				types.PureArg(true),
			},
		})
	}
	calls = append(calls, types.MoveCall{
		Target:        c.target("pool_script", "remove_liquidity"),
		TypeArguments: poolTypeArgs(p.Pool),
		Arguments: []types.CallArg{
			types.ObjectArg(c.protocol.GlobalConfigID),
			types.ObjectArg(p.Pool.PoolAddress),
			types.ObjectArg(p.PositionID),
			types.PureArg(p.Liquidity.String()),
			types.PureArg(p.MinAmountA.String()),
			types.PureArg(p.MinAmountB.String()),
			types.ObjectArg(ClockObjectID),
		},
	})

	return types.TxPayload{Kind: types.ActionWithdraw, Calls: calls}, nil
}

// BuildCollectRewards builds one collect_reward call per rewarder coin type,
// optionally preceded by a fee collection.
func (c *Client) BuildCollectRewards(p CollectRewardsParams) (types.TxPayload, error) {
	if err := validatePool(p.Pool); err != nil {
		return types.TxPayload{}, err
	}
	if p.PositionID == "" {
		return types.TxPayload{}, errors.Join(ErrInvalidParams, errors.New("position id is required"))
	}
	if len(p.RewarderCoinTypes) == 0 {
		return types.TxPayload{}, errors.Join(ErrInvalidParams, errors.New("no rewarder coin types to collect"))
	}

	calls := make([]types.MoveCall, 0, len(p.RewarderCoinTypes)+1)
	if p.CollectFee {
		calls = append(calls, types.MoveCall{
			Target:        c.target("pool_script", "collect_fee"),
			TypeArguments: poolTypeArgs(p.Pool),
			Arguments: []types.CallArg{
				types.ObjectArg(c.protocol.GlobalConfigID),
				types.ObjectArg(p.Pool.PoolAddress),
				types.ObjectArg(p.PositionID),
				types.PureArg(true),
			},
		})
	}
	for _, coinType := range p.RewarderCoinTypes {
		calls = append(calls, types.MoveCall{
			Target:        c.target("pool_script_v2", "collect_reward"),
			TypeArguments: []string{p.Pool.CoinTypeA, p.Pool.CoinTypeB, coinType},
			Arguments: []types.CallArg{
				types.ObjectArg(c.protocol.GlobalConfigID),
				types.ObjectArg(p.Pool.PoolAddress),
				types.ObjectArg(p.PositionID),
				types.ObjectArg(c.protocol.RewarderVaultID),
				types.PureArg(true),
				types.ObjectArg(ClockObjectID),
			},
		})
	}

	return types.TxPayload{Kind: types.ActionCollectRewards, Calls: calls}, nil
}
