/*

Package reconcile joins on-chain pool records with off-chain statistics. The
join never fails: a pool without statistics is kept with zeroed figures.

*/

package reconcile

import (
	"strings"

	"github.com/poolboard/poolboard/internal/address"
	"github.com/poolboard/poolboard/internal/types"
)

// CoinTypeSeparator separates the address, module and name of a coin type.
const CoinTypeSeparator = "::"

// Reconcile returns one view per pool, in pool order. Stats are matched on the
// normalized pool address.
func Reconcile(pools []types.PoolRecord, stats types.StatsMap) []types.UnifiedPoolView {
	views := make([]types.UnifiedPoolView, len(pools))
	for i, p := range pools {
		key := address.Normalize(p.PoolAddress)
		s, ok := stats[key]

		views[i] = types.UnifiedPoolView{
			PoolAddress:  p.PoolAddress,
			Key:          key,
			CoinTypeA:    p.CoinTypeA,
			CoinTypeB:    p.CoinTypeB,
			SymbolA:      TokenSymbol(p.CoinTypeA),
			SymbolB:      TokenSymbol(p.CoinTypeB),
			FeeRate:      FeeRatePercent(p.FeeRate),
			TickSpacing:  p.TickSpacing,
			LiquidityUSD: s.LiquidityUSD,
			Volume24hUSD: s.Volume24hUSD,
			Fees24hUSD:   s.Fees24hUSD,
			APR24h:       s.APR24h,
			HasStats:     ok,
		}
	}
	return views
}

// Unmatched counts views that fell back to zero statistics.
func Unmatched(views []types.UnifiedPoolView) int {
	n := 0
	for _, v := range views {
		if !v.HasStats {
			n++
		}
	}
	return n
}

// TokenSymbol is the segment after the last separator of a coin type, or the
// whole coin type when it has none.
func TokenSymbol(coinType string) string {
	if i := strings.LastIndex(coinType, CoinTypeSeparator); i >= 0 {
		return coinType[i+len(CoinTypeSeparator):]
	}
	return coinType
}

// FeeRatePercent converts the raw fee rate (hundredths of a percent) to percent.
func FeeRatePercent(raw uint64) float64 {
	return float64(raw) / 100
}
