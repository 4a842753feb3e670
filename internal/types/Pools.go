/*

Pool types: the on-chain record, the off-chain statistics record, and the
merged view the dashboard renders.

*/

package types

// PoolRecord is the authoritative on-chain pool snapshot as of fetch time.
type PoolRecord struct {
	PoolAddress string `json:"pool_address"` // chain-native id, casing and prefix vary by source
	CoinTypeA   string `json:"coin_type_a"`  // e.g. "0x2::sui::SUI"
	CoinTypeB   string `json:"coin_type_b"`
	FeeRate     uint64 `json:"fee_rate"` // raw integer, hundredths of a percent
	TickSpacing uint32 `json:"tick_spacing"`
}

// PoolPage is one page of a paginated pool listing.
type PoolPage struct {
	Pools       []PoolRecord
	NextCursor  string
	HasNextPage bool
}

// StatsRecord is the best-effort off-chain statistics for one pool.
type StatsRecord struct {
	LiquidityUSD float64 `json:"liquidity_usd"`
	Volume24hUSD float64 `json:"volume_24h_usd"`
	Fees24hUSD   float64 `json:"fees_24h_usd"`
	APR24h       float64 `json:"apr_24h"`
}

// StatsMap is keyed by normalized pool address.
type StatsMap map[string]StatsRecord

// UnifiedPoolView is one row of the merged pool list. Built fresh every fetch
// cycle and never modified after construction.
type UnifiedPoolView struct {
	PoolAddress string  `json:"pool_address"`
	Key         string  `json:"key"` // normalized address used for the join
	CoinTypeA   string  `json:"coin_type_a"`
	CoinTypeB   string  `json:"coin_type_b"`
	SymbolA     string  `json:"symbol_a"`
	SymbolB     string  `json:"symbol_b"`
	FeeRate     float64 `json:"fee_rate"` // percent, e.g. 25.0
	TickSpacing uint32  `json:"tick_spacing"`

	LiquidityUSD float64 `json:"liquidity_usd"`
	Volume24hUSD float64 `json:"volume_24h_usd"`
	Fees24hUSD   float64 `json:"fees_24h_usd"`
	APR24h       float64 `json:"apr_24h"`

	// HasStats is false when no statistics matched and the zero fallback was used.
	HasStats bool `json:"has_stats"`
}
