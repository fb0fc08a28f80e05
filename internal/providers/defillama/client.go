package defillama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/registry"
)

// minConfidence drops prices DefiLlama itself flags as unreliable.
const minConfidence = 0.5

var chainKeyByID = map[int64]string{
	1:      "ethereum",
	10:     "optimism",
	56:     "bsc",
	100:    "xdai",
	137:    "polygon",
	324:    "era",
	5000:   "mantle",
	8453:   "base",
	42161:  "arbitrum",
	43114:  "avax",
	59144:  "linea",
	81457:  "blast",
	167000: "taiko",
	534352: "scroll",
}

type Client struct {
	http     *httpx.Client
	coinsURL string
	now      func() time.Time
}

var (
	_ providers.AddressProvider = (*Client)(nil)
	_ providers.PriceProvider   = (*Client)(nil)
)

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, coinsURL: registry.DefiLlamaCoinsURL, now: time.Now}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "defillama",
		Type:         "token+price",
		RequiresKey:  false,
		Capabilities: []string{"token.address", "price.address"},
	}
}

func (c *Client) RequiresAddress() bool { return true }

type coinEntry struct {
	Decimals   *int    `json:"decimals"`
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Timestamp  int64   `json:"timestamp"`
	Confidence float64 `json:"confidence"`
}

type coinsResponse struct {
	Coins map[string]coinEntry `json:"coins"`
}

func (c *Client) LookupByAddress(ctx context.Context, address string, chainID int64) (model.TokenIdentity, error) {
	entry, err := c.current(ctx, address, chainID)
	if err != nil {
		return model.TokenIdentity{}, err
	}
	identity := model.TokenIdentity{
		Address:   strings.TrimSpace(address),
		Symbol:    strings.ToUpper(entry.Symbol),
		Verified:  true,
		Source:    model.SourceDefiLlama,
		ChainID:   chainID,
		ChainName: id.ChainName(chainID),
	}
	if entry.Decimals != nil {
		identity.Decimals = *entry.Decimals
	}
	return identity, nil
}

func (c *Client) Price(ctx context.Context, token providers.TokenRef, chainID int64) (float64, error) {
	if strings.TrimSpace(token.Address) == "" {
		return 0, clierr.New(clierr.CodeUsage, "defillama price lookup requires a contract address")
	}
	entry, err := c.current(ctx, token.Address, chainID)
	if err != nil {
		return 0, err
	}
	if entry.Price <= 0 || (entry.Confidence > 0 && entry.Confidence < minConfidence) {
		return 0, clierr.New(clierr.CodeResolutionMiss, "defillama has no reliable price for token")
	}
	return entry.Price, nil
}

func (c *Client) current(ctx context.Context, address string, chainID int64) (coinEntry, error) {
	chainKey, ok := chainKeyByID[chainID]
	if !ok {
		return coinEntry{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("defillama does not support chain %d", chainID))
	}
	coinKey := chainKey + ":" + strings.ToLower(strings.TrimSpace(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.coinsURL+"/prices/current/"+coinKey, nil)
	if err != nil {
		return coinEntry{}, clierr.Wrap(clierr.CodeInternal, "build defillama coins request", err)
	}
	var resp coinsResponse
	if _, err := c.http.DoJSON(ctx, req, &resp); err != nil {
		return coinEntry{}, err
	}
	for key, entry := range resp.Coins {
		if strings.EqualFold(key, coinKey) {
			return entry, nil
		}
	}
	return coinEntry{}, clierr.New(clierr.CodeResolutionMiss, fmt.Sprintf("defillama has no entry for %s", coinKey))
}
