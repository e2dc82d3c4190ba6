package registry

// Permit2 is deployed at the same address on every supported chain.
const Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// Canonical universal router deployments by chain ID.
var universalRouterByChainID = map[int64]string{
	1:       "0x66a9893cC07D91D95644AEDD05D03f95e1dBA8Af",
	10:      "0x851116D9223fabED8E56C0E6b8Ad0c31d98B3507",
	130:     "0xEf740bf23aCaE26f6492B10de645D6B98dC8Eaf3",
	137:     "0x1095692A6237d83C6a72F3F5eFEdb9A670C49223",
	8453:    "0x6fF5693b99212Da76ad316178A184AB56D299b43",
	42161:   "0xA51afAFe0263b40EdaEf0Df8781eA9aa03E381a3",
	43114:   "0x94b75331AE8d42C1b61065089B7d48FE14aA73b7",
	81457:   "0x643770E279d5D0733F21d6DC03A8efbABf3255B4",
	7777777: "0x2986d9721A49838ab4297b695858aF7F17f38014",
}

func UniversalRouter(chainID int64) (string, bool) {
	value, ok := universalRouterByChainID[chainID]
	return value, ok
}

// Block explorer transaction URL prefixes by chain ID.
var explorerTxPrefixByChainID = map[int64]string{
	1:     "https://etherscan.io/tx/",
	10:    "https://optimistic.etherscan.io/tx/",
	137:   "https://polygonscan.com/tx/",
	8453:  "https://basescan.org/tx/",
	42161: "https://arbiscan.io/tx/",
	43114: "https://snowtrace.io/tx/",
}

// ExplorerTxURL renders a block explorer link for a transaction hash, or an
// empty string when the chain has no configured explorer.
func ExplorerTxURL(chainID int64, txHash string) string {
	prefix, ok := explorerTxPrefixByChainID[chainID]
	if !ok {
		return ""
	}
	return prefix + txHash
}
