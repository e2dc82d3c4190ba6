package registry

import (
	"fmt"
	"strings"

	"github.com/ggonzalez94/swap-cli/internal/model"
)

// Built-in token metadata for the common mainnet assets. Anything else must
// be supplied via flags or config.
var tokensByChainID = map[int64]map[string]model.Token{
	1: {
		"ETH":  {Symbol: "ETH", Address: model.NativeAssetAddress, Decimals: 18},
		"WETH": {Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		"USDC": {Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		"WBTC": {Symbol: "WBTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
	},
	8453: {
		"ETH":  {Symbol: "ETH", Address: model.NativeAssetAddress, Decimals: 18},
		"WETH": {Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		"USDC": {Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
	},
	42161: {
		"ETH":  {Symbol: "ETH", Address: model.NativeAssetAddress, Decimals: 18},
		"WETH": {Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
		"USDC": {Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
	},
}

// LookupToken resolves a token symbol on a chain.
func LookupToken(chainID int64, symbol string) (model.Token, error) {
	chain, ok := tokensByChainID[chainID]
	if !ok {
		return model.Token{}, fmt.Errorf("no token registry for chain id %d", chainID)
	}
	token, ok := chain[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return model.Token{}, fmt.Errorf("unknown token %q on chain %d", symbol, chainID)
	}
	return token, nil
}
