/*

This file contains the types for wallet positions and their pending rewards.

*/

package types

import (
	"strings"

	sdkmath "cosmossdk.io/math"
)

// RewardOwed is one reward line of a position. AmountOwed is kept as the raw
// string from the node so that a malformed line can be handled by the caller.
type RewardOwed struct {
	CoinType   string `json:"coin_type"`
	AmountOwed string `json:"amount_owed"`
}

// Amount parses AmountOwed. ok is false when the line is not a non-negative
// integer.
func (r RewardOwed) Amount() (amount sdkmath.Int, ok bool) {
	v, ok := sdkmath.NewIntFromString(strings.TrimSpace(r.AmountOwed))
	if !ok || v.IsNegative() {
		return sdkmath.ZeroInt(), false
	}
	return v, true
}

// PositionRecord is a liquidity position owned by a wallet.
type PositionRecord struct {
	PositionID string       `json:"position_id"`
	Owner      string       `json:"owner"`
	PoolID     string       `json:"pool_id"`
	Liquidity  sdkmath.Int  `json:"liquidity"`
	Rewards    []RewardOwed `json:"rewards,omitempty"`
}

// PositionSummary is what the view layer shows per position.
type PositionSummary struct {
	PositionID     string      `json:"position_id"`
	Liquidity      sdkmath.Int `json:"liquidity"`
	PendingRewards sdkmath.Int `json:"pending_rewards"`
}

// PoolPositions groups a wallet's positions in one pool with the pool total.
type PoolPositions struct {
	PoolID         string            `json:"pool_id"`
	Positions      []PositionSummary `json:"positions"`
	PendingRewards sdkmath.Int       `json:"pending_rewards"`
}

// PositionsMap is keyed by the pool id as the caller supplied it.
type PositionsMap map[string]PoolPositions
