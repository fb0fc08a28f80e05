package registry

// Uniswap V3-compatible deployments quoted on-chain by the Taiko swap
// provider. Keyed by chain id.
var uniswapV3ContractsByChainID = map[int64]struct {
	QuoterV2 string
	Router   string
}{
	167000: {
		QuoterV2: "0xcBa70D57be34aA26557B8E80135a9B7754680aDb",
		Router:   "0x1A0c3a0Cfd1791FAC7798FA2b05208B66aaadfeD",
	},
}

func UniswapV3Contracts(chainID int64) (quoterV2 string, router string, ok bool) {
	contracts, ok := uniswapV3ContractsByChainID[chainID]
	if !ok {
		return "", "", false
	}
	return contracts.QuoterV2, contracts.Router, true
}
