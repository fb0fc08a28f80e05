package dexscreener

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/registry"
)

var chainSlugByID = map[int64]string{
	1:      "ethereum",
	10:     "optimism",
	56:     "bsc",
	100:    "gnosischain",
	137:    "polygon",
	324:    "zksync",
	5000:   "mantle",
	8453:   "base",
	42161:  "arbitrum",
	43114:  "avalanche",
	59144:  "linea",
	81457:  "blast",
	167000: "taiko",
	534352: "scroll",
}

type Client struct {
	http    *httpx.Client
	baseURL string
	now     func() time.Time
}

var (
	_ providers.TokenProvider = (*Client)(nil)
	_ providers.PriceProvider = (*Client)(nil)
)

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: registry.DexScreenerBaseURL, now: time.Now}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "dexscreener",
		Type:         "token+price",
		RequiresKey:  false,
		Capabilities: []string{"token.symbol", "token.address", "price.address"},
	}
}

func (c *Client) RequiresAddress() bool { return true }

type pairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type pair struct {
	ChainID   string    `json:"chainId"`
	DexID     string    `json:"dexId"`
	BaseToken pairToken `json:"baseToken"`
	PriceUSD  string    `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

// LookupBySymbol picks the deepest-liquidity pair whose base token symbol
// matches exactly on the requested chain.
func (c *Client) LookupBySymbol(ctx context.Context, symbol string, chainID int64) (model.TokenIdentity, error) {
	slug, err := slugFor(chainID)
	if err != nil {
		return model.TokenIdentity{}, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var resp pairsResponse
	if err := c.get(ctx, "/latest/dex/search?q="+url.QueryEscape(symbol), &resp); err != nil {
		return model.TokenIdentity{}, err
	}
	best, ok := bestPair(resp.Pairs, slug, func(p pair) bool {
		return strings.EqualFold(p.BaseToken.Symbol, symbol)
	})
	if !ok {
		return model.TokenIdentity{}, clierr.New(clierr.CodeResolutionMiss, fmt.Sprintf("dexscreener has no %s pair on chain %d", symbol, chainID))
	}
	return identityFromPair(best, chainID), nil
}

func (c *Client) LookupByAddress(ctx context.Context, address string, chainID int64) (model.TokenIdentity, error) {
	best, err := c.pairForAddress(ctx, address, chainID)
	if err != nil {
		return model.TokenIdentity{}, err
	}
	return identityFromPair(best, chainID), nil
}

func (c *Client) Price(ctx context.Context, token providers.TokenRef, chainID int64) (float64, error) {
	if strings.TrimSpace(token.Address) == "" {
		return 0, clierr.New(clierr.CodeUsage, "dexscreener price lookup requires a contract address")
	}
	best, err := c.pairForAddress(ctx, token.Address, chainID)
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(best.PriceUSD), 64)
	if err != nil || price <= 0 {
		return 0, clierr.New(clierr.CodeResolutionMiss, "dexscreener pair has no usd price")
	}
	return price, nil
}

func (c *Client) pairForAddress(ctx context.Context, address string, chainID int64) (pair, error) {
	slug, err := slugFor(chainID)
	if err != nil {
		return pair{}, err
	}
	address = strings.TrimSpace(address)
	var resp pairsResponse
	if err := c.get(ctx, "/latest/dex/tokens/"+url.PathEscape(address), &resp); err != nil {
		return pair{}, err
	}
	best, ok := bestPair(resp.Pairs, slug, func(p pair) bool {
		return strings.EqualFold(p.BaseToken.Address, address)
	})
	if !ok {
		return pair{}, clierr.New(clierr.CodeResolutionMiss, fmt.Sprintf("dexscreener has no pair for %s on chain %d", address, chainID))
	}
	return best, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build dexscreener request", err)
	}
	_, err = c.http.DoJSON(ctx, req, out)
	return err
}

func bestPair(pairs []pair, slug string, match func(pair) bool) (pair, bool) {
	var best pair
	found := false
	for _, p := range pairs {
		if !strings.EqualFold(p.ChainID, slug) || !match(p) || !id.IsAddress(p.BaseToken.Address) {
			continue
		}
		if !found || p.Liquidity.USD > best.Liquidity.USD {
			best = p
			found = true
		}
	}
	return best, found
}

func identityFromPair(p pair, chainID int64) model.TokenIdentity {
	return model.TokenIdentity{
		Address:   p.BaseToken.Address,
		Symbol:    strings.ToUpper(p.BaseToken.Symbol),
		Name:      p.BaseToken.Name,
		Verified:  true,
		Source:    model.SourceDexScreener,
		ChainID:   chainID,
		ChainName: id.ChainName(chainID),
	}
}

func slugFor(chainID int64) (string, error) {
	slug, ok := chainSlugByID[chainID]
	if !ok {
		return "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("dexscreener does not support chain %d", chainID))
	}
	return slug, nil
}
