package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// NativeTokenAddress is the sentinel address aggregators use for a chain's gas token.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

type Chain struct {
	Name         string
	Slug         string
	ID           int64
	NativeSymbol string
}

func (c Chain) CAIP2() string {
	return fmt.Sprintf("eip155:%d", c.ID)
}

var chainBySlug = map[string]Chain{
	"ethereum":  {Name: "Ethereum", Slug: "ethereum", ID: 1, NativeSymbol: "ETH"},
	"optimism":  {Name: "Optimism", Slug: "optimism", ID: 10, NativeSymbol: "ETH"},
	"bsc":       {Name: "BSC", Slug: "bsc", ID: 56, NativeSymbol: "BNB"},
	"gnosis":    {Name: "Gnosis", Slug: "gnosis", ID: 100, NativeSymbol: "XDAI"},
	"polygon":   {Name: "Polygon", Slug: "polygon", ID: 137, NativeSymbol: "POL"},
	"zksync":    {Name: "zkSync Era", Slug: "zksync", ID: 324, NativeSymbol: "ETH"},
	"mantle":    {Name: "Mantle", Slug: "mantle", ID: 5000, NativeSymbol: "MNT"},
	"base":      {Name: "Base", Slug: "base", ID: 8453, NativeSymbol: "ETH"},
	"arbitrum":  {Name: "Arbitrum", Slug: "arbitrum", ID: 42161, NativeSymbol: "ETH"},
	"avalanche": {Name: "Avalanche", Slug: "avalanche", ID: 43114, NativeSymbol: "AVAX"},
	"linea":     {Name: "Linea", Slug: "linea", ID: 59144, NativeSymbol: "ETH"},
	"blast":     {Name: "Blast", Slug: "blast", ID: 81457, NativeSymbol: "ETH"},
	"taiko":     {Name: "Taiko", Slug: "taiko", ID: 167000, NativeSymbol: "ETH"},
	"scroll":    {Name: "Scroll", Slug: "scroll", ID: 534352, NativeSymbol: "ETH"},
}

// chainAliases maps the words users type to a canonical slug.
var chainAliases = map[string]string{
	"eth":     "ethereum",
	"mainnet": "ethereum",
	"op":      "optimism",
	"bnb":     "bsc",
	"binance": "bsc",
	"xdai":    "gnosis",
	"matic":   "polygon",
	"era":     "zksync",
	"arb":     "arbitrum",
	"avax":    "avalanche",
}

var chainByID = func() map[int64]Chain {
	out := make(map[int64]Chain, len(chainBySlug))
	for _, chain := range chainBySlug {
		out[chain.ID] = chain
	}
	return out
}()

// ChainBySlug resolves a chain name or alias ("scroll", "arb", "mainnet").
func ChainBySlug(name string) (Chain, bool) {
	norm := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := chainAliases[norm]; ok {
		norm = alias
	}
	chain, ok := chainBySlug[norm]
	return chain, ok
}

func ChainByID(chainID int64) (Chain, bool) {
	chain, ok := chainByID[chainID]
	return chain, ok
}

// ChainName returns a display name, falling back to "chain <id>" for unknown ids.
func ChainName(chainID int64) string {
	if chain, ok := chainByID[chainID]; ok {
		return chain.Name
	}
	return fmt.Sprintf("chain %d", chainID)
}

// NativeSymbol returns the gas token symbol of a chain, ETH when unknown.
func NativeSymbol(chainID int64) string {
	if chain, ok := chainByID[chainID]; ok {
		return chain.NativeSymbol
	}
	return "ETH"
}

func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := ChainBySlug(norm); ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		norm = parts[1]
	}

	if chainID, err := strconv.ParseInt(norm, 10, 64); err == nil && chainID > 0 {
		if chain, ok := chainByID[chainID]; ok {
			return chain, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", chainID), Slug: fmt.Sprintf("evm-%d", chainID), ID: chainID, NativeSymbol: "ETH"}, nil
	}

	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// IsAddress reports whether s is a syntactically valid 20-byte hex address.
func IsAddress(s string) bool {
	return evmAddressPattern.MatchString(strings.TrimSpace(s))
}

func IsNativeAddress(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), NativeTokenAddress)
}
