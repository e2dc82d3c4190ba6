package model

import "time"

// SwapType selects which side of the trade is fixed; the quote service
// solves for the other one.
type SwapType string

const (
	SwapTypeExactIn  SwapType = "ExactIn"
	SwapTypeExactOut SwapType = "ExactOut"
)

// EditedSide identifies the amount field the user last edited.
type EditedSide string

const (
	EditedSideFrom EditedSide = "from"
	EditedSideTo   EditedSide = "to"
)

// TradeState is derived from quote, route and fee freshness plus the two
// amount fields. It is never set directly.
type TradeState string

const (
	TradeStateIdle    TradeState = "idle"
	TradeStateLoading TradeState = "loading"
	TradeStateNoRoute TradeState = "no_route"
	TradeStateError   TradeState = "error"
	TradeStateReady   TradeState = "ready"
)

// Token describes one tradable asset. Instances are replaced wholesale when
// the user picks a different token, never mutated in place.
type Token struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Balance  string `json:"balance,omitempty"`
	PriceUSD string `json:"price_usd,omitempty"`
}

// IsNative reports whether the token is the chain's native asset rather than
// an ERC-20 contract. Native inputs need no allowance and no permit.
func (t Token) IsNative() bool {
	return t.Address == "" || t.Address == NativeAssetAddress
}

// NativeAssetAddress is the conventional placeholder address used by the
// backend services for the chain's native asset.
const NativeAssetAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// RouteHop is one pool traversed on the path from the input token to the
// output token.
type RouteHop struct {
	Token0  string `json:"token0"`
	Token1  string `json:"token1"`
	PoolID  string `json:"pool_id"`
	FeeTier int64  `json:"fee_tier"`
}

// SwapRoute is the resolved multi-hop path for a token pair. Owned by the
// routing aggregator; read-only to downstream consumers.
type SwapRoute struct {
	Hops []RouteHop `json:"hops"`
}

func (r *SwapRoute) HopCount() int {
	if r == nil {
		return 0
	}
	return len(r.Hops)
}

func (r *SwapRoute) IsDirectRoute() bool {
	return r.HopCount() == 1
}

// PoolIDs returns the identifiers of every pool the route touches, in order.
func (r *SwapRoute) PoolIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Hops))
	for _, hop := range r.Hops {
		ids = append(ids, hop.PoolID)
	}
	return ids
}

// SwapQuote is a priced quote for one direction of a trade.
type SwapQuote struct {
	SwapType       SwapType   `json:"swap_type"`
	FromSymbol     string     `json:"from_symbol"`
	ToSymbol       string     `json:"to_symbol"`
	FromAmount     string     `json:"from_amount"`
	ToAmount       string     `json:"to_amount"`
	Route          *SwapRoute `json:"route,omitempty"`
	PriceImpactPct float64    `json:"price_impact_pct"`
	DynamicFeeBps  int64      `json:"dynamic_fee_bps"`
	Binding        bool       `json:"binding"`
	FetchedAt      time.Time  `json:"fetched_at"`
}

// ExecutionTradeParams is the ready-to-execute parameter bundle handed to the
// execution state machine. Never mutated after the machine reads it.
type ExecutionTradeParams struct {
	SwapType               SwapType   `json:"swap_type"`
	AmountDecimalsStr      string     `json:"amount"`
	LimitAmountDecimalsStr string     `json:"limit_amount"`
	DynamicSwapFee         *int64     `json:"dynamic_swap_fee,omitempty"`
	Route                  *SwapRoute `json:"route,omitempty"`
}

// SwapTxInfo is the immutable record of a submitted swap transaction, used
// for success rendering and post-confirmation cache invalidation.
type SwapTxInfo struct {
	TxHash       string    `json:"tx_hash"`
	ChainID      int64     `json:"chain_id"`
	FromSymbol   string    `json:"from_symbol"`
	ToSymbol     string    `json:"to_symbol"`
	FromAmount   string    `json:"from_amount"`
	ToAmount     string    `json:"to_amount"`
	VolumeUSD    string    `json:"volume_usd,omitempty"`
	ExplorerURL  string    `json:"explorer_url,omitempty"`
	TouchedPools []string  `json:"touched_pools,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
