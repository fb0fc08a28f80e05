package registry

import (
	"fmt"
	"strings"
)

// Canonical default EVM RPC endpoints by chain ID.
// These values are used whenever config does not override a chain.
var defaultRPCByChainID = map[int64]string{
	1:      "https://eth.llamarpc.com",
	10:     "https://mainnet.optimism.io",
	56:     "https://bsc-dataseed.binance.org",
	100:    "https://rpc.gnosischain.com",
	137:    "https://polygon-rpc.com",
	324:    "https://mainnet.era.zksync.io",
	5000:   "https://rpc.mantle.xyz",
	8453:   "https://mainnet.base.org",
	42161:  "https://arb1.arbitrum.io/rpc",
	43114:  "https://api.avax.network/ext/bc/C/rpc",
	59144:  "https://rpc.linea.build",
	81457:  "https://rpc.blast.io",
	167000: "https://rpc.mainnet.taiko.xyz",
	534352: "https://rpc.scroll.io",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

// ResolveRPCURL prefers a per-chain override, then the built-in default.
func ResolveRPCURL(overrides map[int64]string, chainID int64) (string, error) {
	if value := strings.TrimSpace(overrides[chainID]); value != "" {
		return value, nil
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; set rpc.%d in config", chainID, chainID)
}
