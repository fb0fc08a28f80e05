package id

import (
	"strings"
)

type Token struct {
	Symbol   string
	Name     string
	Address  string
	Decimals int
}

// TokenTable holds the curated lookup data the resolvers consult before any
// network call. Instances are independent so callers can inject their own.
type TokenTable struct {
	predefined  map[int64][]Token
	aliases     map[string]string
	pinned      map[string]map[int64]Token
	stablecoins map[string]int
}

func NewTokenTable(predefined map[int64][]Token, aliases map[string]string, pinned map[string]map[int64]Token, stablecoins map[string]int) *TokenTable {
	t := &TokenTable{
		predefined:  map[int64][]Token{},
		aliases:     map[string]string{},
		pinned:      map[string]map[int64]Token{},
		stablecoins: map[string]int{},
	}
	for chainID, tokens := range predefined {
		t.predefined[chainID] = append([]Token(nil), tokens...)
	}
	for k, v := range aliases {
		t.aliases[strings.ToUpper(k)] = strings.ToUpper(v)
	}
	for symbol, byChain := range pinned {
		cp := make(map[int64]Token, len(byChain))
		for chainID, tok := range byChain {
			cp[chainID] = tok
		}
		t.pinned[strings.ToUpper(symbol)] = cp
	}
	for k, v := range stablecoins {
		t.stablecoins[strings.ToUpper(k)] = v
	}
	return t
}

// DefaultTokenTable returns a fresh copy of the built-in tables.
func DefaultTokenTable() *TokenTable {
	return NewTokenTable(defaultPredefined(), defaultAliases, defaultPinned, defaultStablecoins)
}

// Canonical strips a leading "$", upper-cases and applies the alias table.
func (t *TokenTable) Canonical(symbol string) string {
	clean := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(symbol), "$"))
	if canonical, ok := t.aliases[clean]; ok {
		return canonical
	}
	return clean
}

func (t *TokenTable) Predefined(symbol string, chainID int64) (Token, bool) {
	for _, tok := range t.predefined[chainID] {
		if strings.EqualFold(tok.Symbol, symbol) {
			return tok, true
		}
	}
	return Token{}, false
}

func (t *TokenTable) ByAddress(chainID int64, address string) (Token, bool) {
	for _, tok := range t.predefined[chainID] {
		if strings.EqualFold(tok.Address, address) {
			return tok, true
		}
	}
	for _, byChain := range t.pinned {
		if tok, ok := byChain[chainID]; ok && strings.EqualFold(tok.Address, address) {
			return tok, true
		}
	}
	return Token{}, false
}

// Pinned returns an alias-pinned community token address for a chain.
func (t *TokenTable) Pinned(symbol string, chainID int64) (Token, bool) {
	byChain, ok := t.pinned[strings.ToUpper(symbol)]
	if !ok {
		return Token{}, false
	}
	tok, ok := byChain[chainID]
	return tok, ok
}

func (t *TokenTable) Stablecoin(symbol string, chainID int64) (int, bool) {
	canonical := t.Canonical(symbol)
	decimals, ok := t.stablecoins[canonical]
	if !ok {
		return 0, false
	}
	if tok, found := t.Predefined(canonical, chainID); found {
		return tok.Decimals, true
	}
	return decimals, true
}

func (t *TokenTable) DefaultDecimals(symbol string, chainID int64) int {
	canonical := t.Canonical(symbol)
	if tok, ok := t.Predefined(canonical, chainID); ok {
		return tok.Decimals
	}
	if decimals, ok := t.stablecoins[canonical]; ok {
		return decimals
	}
	switch canonical {
	case "WBTC", "CBBTC":
		return 8
	}
	return 18
}

// Known reports whether symbol appears in any table on any chain.
func (t *TokenTable) Known(symbol string) bool {
	canonical := t.Canonical(symbol)
	if _, ok := t.stablecoins[canonical]; ok {
		return true
	}
	if _, ok := t.pinned[canonical]; ok {
		return true
	}
	for _, tokens := range t.predefined {
		for _, tok := range tokens {
			if tok.Symbol == canonical {
				return true
			}
		}
	}
	return false
}

var defaultAliases = map[string]string{
	"ETHER":    "ETH",
	"ETHEREUM": "ETH",
	"BTC":      "WBTC",
	"BITCOIN":  "WBTC",
	"TETHER":   "USDT",
	"USDC.E":   "USDC",
	"USDBC":    "USDC",
	"MATIC":    "POL",
	"SCROLL":   "SCR",
}

var defaultStablecoins = map[string]int{
	"USDC":  6,
	"USDT":  6,
	"DAI":   18,
	"USDE":  18,
	"FRAX":  18,
	"LUSD":  18,
	"PYUSD": 6,
}

var defaultPinned = map[string]map[int64]Token{
	"SCR": {
		534352: {Symbol: "SCR", Name: "Scroll", Address: "0xd29687c813D741E2F938F4aC377128810E217b1b", Decimals: 18},
	},
}

func defaultPredefined() map[int64][]Token {
	out := map[int64][]Token{
		1: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
			{Symbol: "USDT", Name: "Tether USD", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
			{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
			{Symbol: "WBTC", Name: "Wrapped BTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
		},
		8453: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
			{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Decimals: 18},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		},
		42161: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
			{Symbol: "USDT", Name: "Tether USD", Address: "0xFd086bC7CD5C481DCC9C85ebe478A1C0b69FCbb9", Decimals: 6},
			{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
		},
		10: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
			{Symbol: "USDT", Name: "Tether USD", Address: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", Decimals: 6},
			{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		},
		137: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
			{Symbol: "USDT", Name: "Tether USD", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
			{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", Decimals: 18},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
		},
		56: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18},
			{Symbol: "USDT", Name: "Tether USD", Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
			{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3", Decimals: 18},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0x2170Ed0880ac9A755fd29B2688956BD959F933F8", Decimals: 18},
		},
		43114: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6},
			{Symbol: "USDT", Name: "Tether USD", Address: "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", Decimals: 6},
			{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0xd586E7F844cEa2F87f50152665BCbc2C279D8d70", Decimals: 18},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0x49D5c2BdFfac6CE2BFdB6640F4F80f226bc10bAB", Decimals: 18},
		},
		534352: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0x06eFdBFf2a14a7c8E15944D1F4A48F9F95F663A4", Decimals: 6},
			{Symbol: "USDT", Name: "Tether USD", Address: "0xf55BEC9cafDbE8730f096Aa55dad6D22d44099Df", Decimals: 6},
			{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0xcA77eB3fEFe3725Dc33bccB54eDEFc3D9f764f97", Decimals: 18},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0x5300000000000000000000000000000000000004", Decimals: 18},
			{Symbol: "WBTC", Name: "Wrapped BTC", Address: "0x3C1BCa5a656e69edCD0D4E36BEbb3FcDAcA60Cf1", Decimals: 8},
		},
		167000: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0x07d83526730c7438048D55A4fc0b850e2aaB6f0b", Decimals: 6},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0xA51894664A773981C6C112C43ce576f315d5b1B6", Decimals: 18},
		},
		59144: {
			{Symbol: "USDC", Name: "USD Coin", Address: "0x176211869cA2b568f2A7D4EE941E073a821EE1ff", Decimals: 6},
			{Symbol: "WETH", Name: "Wrapped Ether", Address: "0xe5D7C2a44FfDDf6b295A15c148167daaAf5Cf34f", Decimals: 18},
		},
	}
	// Every chain's gas token resolves to the aggregator native sentinel.
	for _, chain := range chainBySlug {
		out[chain.ID] = append(out[chain.ID], Token{
			Symbol:   chain.NativeSymbol,
			Name:     chain.NativeSymbol,
			Address:  NativeTokenAddress,
			Decimals: 18,
		})
	}
	return out
}
