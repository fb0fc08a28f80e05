package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/registry"
)

// maxSearchCandidates bounds the /coins/{id} follow-ups per symbol lookup.
const maxSearchCandidates = 3

var platformByChainID = map[int64]string{
	1:      "ethereum",
	10:     "optimistic-ethereum",
	56:     "binance-smart-chain",
	100:    "xdai",
	137:    "polygon-pos",
	324:    "zksync",
	5000:   "mantle",
	8453:   "base",
	42161:  "arbitrum-one",
	43114:  "avalanche",
	59144:  "linea",
	81457:  "blast",
	167000: "taiko",
	534352: "scroll",
}

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

var (
	_ providers.TokenProvider = (*Client)(nil)
	_ providers.PriceProvider = (*Client)(nil)
)

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: registry.CoinGeckoBaseURL, apiKey: strings.TrimSpace(apiKey), now: time.Now}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "coingecko",
		Type:          "token+price",
		RequiresKey:   false,
		Capabilities:  []string{"token.symbol", "token.address", "price.address"},
		KeyEnvVarName: "DEFICHAT_COINGECKO_API_KEY",
	}
}

func (c *Client) RequiresAddress() bool { return true }

type searchResponse struct {
	Coins []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Symbol        string `json:"symbol"`
		MarketCapRank int    `json:"market_cap_rank"`
	} `json:"coins"`
}

type coinResponse struct {
	ID              string            `json:"id"`
	Symbol          string            `json:"symbol"`
	Name            string            `json:"name"`
	Platforms       map[string]string `json:"platforms"`
	DetailPlatforms map[string]struct {
		DecimalPlace    *int   `json:"decimal_place"`
		ContractAddress string `json:"contract_address"`
	} `json:"detail_platforms"`
}

func (c *Client) LookupBySymbol(ctx context.Context, symbol string, chainID int64) (model.TokenIdentity, error) {
	platform, err := platformFor(chainID)
	if err != nil {
		return model.TokenIdentity{}, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var search searchResponse
	if err := c.get(ctx, "/search?query="+url.QueryEscape(symbol), &search); err != nil {
		return model.TokenIdentity{}, err
	}

	candidates := search.Coins[:0:0]
	for _, coin := range search.Coins {
		if strings.EqualFold(coin.Symbol, symbol) {
			candidates = append(candidates, coin)
		}
	}
	// Ranked coins first, best rank first; unranked (0) last.
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].MarketCapRank, candidates[j].MarketCapRank
		if ri == 0 || rj == 0 {
			return ri != 0 && rj == 0
		}
		return ri < rj
	})
	if len(candidates) > maxSearchCandidates {
		candidates = candidates[:maxSearchCandidates]
	}

	for _, candidate := range candidates {
		var coin coinResponse
		path := "/coins/" + url.PathEscape(candidate.ID) + "?localization=false&tickers=false&market_data=false&community_data=false&developer_data=false"
		if err := c.get(ctx, path, &coin); err != nil {
			if clierr.IsMiss(err) {
				continue
			}
			return model.TokenIdentity{}, err
		}
		if identity, ok := identityFromCoin(coin, platform, chainID); ok {
			return identity, nil
		}
	}
	return model.TokenIdentity{}, clierr.New(clierr.CodeResolutionMiss, fmt.Sprintf("coingecko has no %s on chain %d", symbol, chainID))
}

func (c *Client) LookupByAddress(ctx context.Context, address string, chainID int64) (model.TokenIdentity, error) {
	platform, err := platformFor(chainID)
	if err != nil {
		return model.TokenIdentity{}, err
	}
	var coin coinResponse
	path := fmt.Sprintf("/coins/%s/contract/%s", platform, strings.ToLower(strings.TrimSpace(address)))
	if err := c.get(ctx, path, &coin); err != nil {
		return model.TokenIdentity{}, err
	}
	identity, ok := identityFromCoin(coin, platform, chainID)
	if !ok {
		return model.TokenIdentity{}, clierr.New(clierr.CodeResolutionMiss, "coingecko has no contract entry")
	}
	return identity, nil
}

func (c *Client) Price(ctx context.Context, token providers.TokenRef, chainID int64) (float64, error) {
	platform, err := platformFor(chainID)
	if err != nil {
		return 0, err
	}
	address := strings.ToLower(strings.TrimSpace(token.Address))
	if address == "" {
		return 0, clierr.New(clierr.CodeUsage, "coingecko price lookup requires a contract address")
	}
	var resp map[string]map[string]float64
	path := fmt.Sprintf("/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd", platform, url.QueryEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		return 0, err
	}
	for key, prices := range resp {
		if strings.EqualFold(key, address) {
			if usd, ok := prices["usd"]; ok && usd > 0 {
				return usd, nil
			}
		}
	}
	return 0, clierr.New(clierr.CodeResolutionMiss, "coingecko has no price for token")
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build coingecko request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}
	_, err = c.http.DoJSON(ctx, req, out)
	return err
}

func identityFromCoin(coin coinResponse, platform string, chainID int64) (model.TokenIdentity, bool) {
	address := strings.TrimSpace(coin.Platforms[platform])
	decimals := 0
	if detail, ok := coin.DetailPlatforms[platform]; ok {
		if address == "" {
			address = strings.TrimSpace(detail.ContractAddress)
		}
		if detail.DecimalPlace != nil {
			decimals = *detail.DecimalPlace
		}
	}
	if !id.IsAddress(address) {
		return model.TokenIdentity{}, false
	}
	return model.TokenIdentity{
		Address:   address,
		Symbol:    strings.ToUpper(coin.Symbol),
		Name:      coin.Name,
		Decimals:  decimals,
		Verified:  true,
		Source:    model.SourceCoinGecko,
		ChainID:   chainID,
		ChainName: id.ChainName(chainID),
	}, true
}

func platformFor(chainID int64) (string, error) {
	platform, ok := platformByChainID[chainID]
	if !ok {
		return "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("coingecko does not support chain %d", chainID))
	}
	return platform, nil
}
