package oneinch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/registry"
)

const defaultSlippageBps = 50

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

var _ providers.SwapProvider = (*Client)(nil)

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: registry.OneInchBaseURL, apiKey: strings.TrimSpace(apiKey), now: time.Now}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "1inch",
		Type:          "swap",
		RequiresKey:   true,
		KeyEnvVarName: "DEFICHAT_1INCH_API_KEY",
		Capabilities:  []string{"swap.quote", "swap.build"},
	}
}

type quoteResponse struct {
	DstAmount string  `json:"dstAmount"`
	Gas       float64 `json:"gas"`
}

type swapResponse struct {
	DstAmount string `json:"dstAmount"`
	Tx        struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
		Gas   int64  `json:"gas"`
	} `json:"tx"`
}

func (c *Client) QuoteSwap(ctx context.Context, req providers.SwapQuoteRequest) (model.SwapQuote, error) {
	if err := c.validate(req); err != nil {
		return model.SwapQuote{}, err
	}
	vals := c.baseValues(req)
	vals.Set("includeGas", "true")

	var resp quoteResponse
	if err := c.get(ctx, req.ChainID, "quote", vals, &resp); err != nil {
		return model.SwapQuote{}, err
	}
	if resp.DstAmount == "" {
		return model.SwapQuote{}, clierr.New(clierr.CodeUnavailable, "1inch quote missing destination amount")
	}

	return model.SwapQuote{
		Provider:  "1inch",
		ChainID:   req.ChainID,
		FromToken: req.FromToken.Symbol,
		ToToken:   req.ToToken.Symbol,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: req.AmountBaseUnits,
			AmountDecimal:   req.AmountDecimal,
			Decimals:        req.FromToken.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: resp.DstAmount,
			AmountDecimal:   id.FormatBaseUnits(resp.DstAmount, req.ToToken.Decimals),
			Decimals:        req.ToToken.Decimals,
		},
		Route:     "1inch",
		SourceURL: "https://app.1inch.io",
		FetchedAt: c.now().UTC().Format(time.RFC3339),
	}, nil
}

func (c *Client) BuildSwapTransaction(ctx context.Context, req providers.SwapQuoteRequest) (model.TransactionRequest, error) {
	if err := c.validate(req); err != nil {
		return model.TransactionRequest{}, err
	}
	if !common.IsHexAddress(req.Sender) {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUsage, "swap transaction requires a valid sender wallet")
	}
	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = defaultSlippageBps
	}
	vals := c.baseValues(req)
	vals.Set("from", common.HexToAddress(req.Sender).Hex())
	vals.Set("origin", common.HexToAddress(req.Sender).Hex())
	vals.Set("slippage", strconv.FormatFloat(float64(slippage)/100, 'f', -1, 64))
	vals.Set("disableEstimate", "true")

	var resp swapResponse
	if err := c.get(ctx, req.ChainID, "swap", vals, &resp); err != nil {
		return model.TransactionRequest{}, err
	}
	if !common.IsHexAddress(resp.Tx.To) || strings.TrimSpace(resp.Tx.Data) == "" {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUnavailable, "1inch swap response missing transaction")
	}
	tx := model.TransactionRequest{
		ChainID: req.ChainID,
		From:    common.HexToAddress(req.Sender).Hex(),
		To:      common.HexToAddress(resp.Tx.To).Hex(),
		Data:    resp.Tx.Data,
		Value:   firstNonEmpty(resp.Tx.Value, "0"),
	}
	if resp.Tx.Gas > 0 {
		tx.Gas = strconv.FormatInt(resp.Tx.Gas, 10)
	}
	return tx, nil
}

func (c *Client) validate(req providers.SwapQuoteRequest) error {
	if c.apiKey == "" {
		return clierr.New(clierr.CodeAuth, "missing required API key for 1inch (DEFICHAT_1INCH_API_KEY)")
	}
	if req.ChainID <= 0 {
		return clierr.New(clierr.CodeUsage, "swap chain is required")
	}
	if !common.IsHexAddress(req.FromToken.Address) || !common.IsHexAddress(req.ToToken.Address) {
		return clierr.New(clierr.CodeUsage, "1inch swaps require resolved token addresses")
	}
	return nil
}

func (c *Client) baseValues(req providers.SwapQuoteRequest) url.Values {
	vals := url.Values{}
	vals.Set("src", req.FromToken.Address)
	vals.Set("dst", req.ToToken.Address)
	vals.Set("amount", req.AmountBaseUnits)
	return vals
}

func (c *Client) get(ctx context.Context, chainID int64, endpoint string, vals url.Values, out any) error {
	reqURL := fmt.Sprintf("%s/%d/%s?%s", c.baseURL, chainID, endpoint, vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build 1inch "+endpoint+" request", err)
	}
	hReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	_, err = c.http.DoJSON(ctx, hReq, out)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
