package lifi

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/registry"
)

// quoteOnlySender stands in for the wallet when only a price estimate is needed.
const quoteOnlySender = "0x0000000000000000000000000000000000000001"

const defaultSlippageBps = 50

type Client struct {
	http         *httpx.Client
	baseURL      string
	apiKey       string
	rpcOverrides map[int64]string
	now          func() time.Time
}

var (
	_ providers.SwapProvider   = (*Client)(nil)
	_ providers.BridgeProvider = (*Client)(nil)
)

func New(httpClient *httpx.Client, apiKey string, rpcOverrides map[int64]string) *Client {
	return &Client{
		http:         httpClient,
		baseURL:      registry.LiFiBaseURL,
		apiKey:       strings.TrimSpace(apiKey),
		rpcOverrides: rpcOverrides,
		now:          time.Now,
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "lifi",
		Type:          "swap+bridge",
		RequiresKey:   false,
		KeyEnvVarName: "DEFICHAT_LIFI_API_KEY",
		Capabilities: []string{
			"swap.quote",
			"swap.build",
			"bridge.quote",
			"bridge.build",
		},
	}
}

type quoteResponse struct {
	ID       string `json:"id"`
	Estimate struct {
		ToAmount        string `json:"toAmount"`
		ToAmountMin     string `json:"toAmountMin"`
		ApprovalAddress string `json:"approvalAddress"`
		FeeCosts        []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"feeCosts"`
		GasCosts []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"gasCosts"`
		ExecutionDuration int64 `json:"executionDuration"`
	} `json:"estimate"`
	ToolDetails struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"toolDetails"`
	Tool               string `json:"tool"`
	TransactionRequest struct {
		To       string `json:"to"`
		From     string `json:"from"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		ChainID  int64  `json:"chainId"`
		GasLimit string `json:"gasLimit"`
	} `json:"transactionRequest"`
}

type quoteParams struct {
	fromChain   int64
	toChain     int64
	fromToken   string
	toToken     string
	amount      string
	sender      string
	recipient   string
	slippageBps int64
}

func (c *Client) QuoteSwap(ctx context.Context, req providers.SwapQuoteRequest) (model.SwapQuote, error) {
	resp, err := c.quote(ctx, swapParams(req, quoteOnlySender))
	if err != nil {
		return model.SwapQuote{}, err
	}
	_, gasUSD := sumCosts(resp)
	return model.SwapQuote{
		Provider:  "lifi",
		ChainID:   req.ChainID,
		FromToken: req.FromToken.Symbol,
		ToToken:   req.ToToken.Symbol,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: req.AmountBaseUnits,
			AmountDecimal:   req.AmountDecimal,
			Decimals:        req.FromToken.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: resp.Estimate.ToAmount,
			AmountDecimal:   id.FormatBaseUnits(resp.Estimate.ToAmount, req.ToToken.Decimals),
			Decimals:        req.ToToken.Decimals,
		},
		EstimatedGasUSD: gasUSD,
		Route:           firstNonEmpty(resp.ToolDetails.Name, resp.Tool, "lifi"),
		SourceURL:       "https://li.quest",
		FetchedAt:       c.now().UTC().Format(time.RFC3339),
	}, nil
}

func (c *Client) BuildSwapTransaction(ctx context.Context, req providers.SwapQuoteRequest) (model.TransactionRequest, error) {
	if !common.IsHexAddress(req.Sender) {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUsage, "swap transaction requires a valid sender wallet")
	}
	params := swapParams(req, req.Sender)
	resp, err := c.quote(ctx, params)
	if err != nil {
		return model.TransactionRequest{}, err
	}
	return c.transaction(ctx, resp, params)
}

func (c *Client) QuoteBridge(ctx context.Context, req providers.BridgeQuoteRequest) (model.BridgeQuote, error) {
	resp, err := c.quote(ctx, bridgeParams(req, quoteOnlySender))
	if err != nil {
		return model.BridgeQuote{}, err
	}
	protocolUSD, gasUSD := sumCosts(resp)
	route := firstNonEmpty(resp.ToolDetails.Name, resp.Tool)
	if route == "" {
		route = fmt.Sprintf("%s->%s", id.ChainName(req.FromChainID), id.ChainName(req.ToChainID))
	}
	return model.BridgeQuote{
		Provider:    "lifi",
		FromChainID: req.FromChainID,
		ToChainID:   req.ToChainID,
		FromToken:   req.FromToken.Symbol,
		ToToken:     req.ToToken.Symbol,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: req.AmountBaseUnits,
			AmountDecimal:   req.AmountDecimal,
			Decimals:        req.FromToken.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: resp.Estimate.ToAmount,
			AmountDecimal:   id.FormatBaseUnits(resp.Estimate.ToAmount, req.ToToken.Decimals),
			Decimals:        req.ToToken.Decimals,
		},
		EstimatedFeeUSD: protocolUSD + gasUSD,
		EstimatedTimeS:  resp.Estimate.ExecutionDuration,
		Route:           route,
		SourceURL:       "https://li.quest",
		FetchedAt:       c.now().UTC().Format(time.RFC3339),
	}, nil
}

func (c *Client) BuildBridgeTransaction(ctx context.Context, req providers.BridgeQuoteRequest) (model.TransactionRequest, error) {
	sender := strings.TrimSpace(req.Sender)
	if !common.IsHexAddress(sender) {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUsage, "bridge transaction requires a valid sender wallet")
	}
	if r := strings.TrimSpace(req.Recipient); r != "" && !common.IsHexAddress(r) {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUsage, "bridge recipient must be a valid EVM address")
	}
	params := bridgeParams(req, sender)
	resp, err := c.quote(ctx, params)
	if err != nil {
		return model.TransactionRequest{}, err
	}
	return c.transaction(ctx, resp, params)
}

func swapParams(req providers.SwapQuoteRequest, sender string) quoteParams {
	return quoteParams{
		fromChain:   req.ChainID,
		toChain:     req.ChainID,
		fromToken:   req.FromToken.Address,
		toToken:     req.ToToken.Address,
		amount:      req.AmountBaseUnits,
		sender:      sender,
		slippageBps: req.SlippageBps,
	}
}

func bridgeParams(req providers.BridgeQuoteRequest, sender string) quoteParams {
	return quoteParams{
		fromChain:   req.FromChainID,
		toChain:     req.ToChainID,
		fromToken:   req.FromToken.Address,
		toToken:     req.ToToken.Address,
		amount:      req.AmountBaseUnits,
		sender:      sender,
		recipient:   req.Recipient,
		slippageBps: req.SlippageBps,
	}
}

func (c *Client) quote(ctx context.Context, p quoteParams) (quoteResponse, error) {
	if p.fromChain <= 0 || p.toChain <= 0 {
		return quoteResponse{}, clierr.New(clierr.CodeUsage, "lifi quotes require source and destination chains")
	}
	if !common.IsHexAddress(p.fromToken) || !common.IsHexAddress(p.toToken) {
		return quoteResponse{}, clierr.New(clierr.CodeUsage, "lifi quotes require resolved token addresses")
	}
	slippage := p.slippageBps
	if slippage <= 0 {
		slippage = defaultSlippageBps
	}
	vals := url.Values{}
	vals.Set("fromChain", strconv.FormatInt(p.fromChain, 10))
	vals.Set("toChain", strconv.FormatInt(p.toChain, 10))
	vals.Set("fromToken", p.fromToken)
	vals.Set("toToken", p.toToken)
	vals.Set("fromAmount", p.amount)
	vals.Set("slippage", strconv.FormatFloat(float64(slippage)/10_000, 'f', -1, 64))
	vals.Set("fromAddress", common.HexToAddress(p.sender).Hex())
	if common.IsHexAddress(p.recipient) {
		vals.Set("toAddress", common.HexToAddress(p.recipient).Hex())
	}

	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+vals.Encode(), nil)
	if err != nil {
		return quoteResponse{}, clierr.Wrap(clierr.CodeInternal, "build lifi quote request", err)
	}
	if c.apiKey != "" {
		hReq.Header.Set("x-lifi-api-key", c.apiKey)
	}
	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return quoteResponse{}, err
	}
	if resp.Estimate.ToAmount == "" {
		return quoteResponse{}, clierr.New(clierr.CodeUnavailable, "lifi quote missing output amount")
	}
	return resp, nil
}

// transaction converts the quote's transactionRequest and prepends an ERC20
// approval when the sender's allowance for the route spender is too low.
func (c *Client) transaction(ctx context.Context, resp quoteResponse, p quoteParams) (model.TransactionRequest, error) {
	if !common.IsHexAddress(resp.TransactionRequest.To) {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUnavailable, "lifi quote missing transaction request")
	}
	value, err := hexToDecimal(resp.TransactionRequest.Value)
	if err != nil {
		return model.TransactionRequest{}, clierr.Wrap(clierr.CodeUnavailable, "parse lifi transaction value", err)
	}
	tx := model.TransactionRequest{
		ChainID: p.fromChain,
		From:    common.HexToAddress(p.sender).Hex(),
		To:      common.HexToAddress(resp.TransactionRequest.To).Hex(),
		Data:    ensureHexPrefix(resp.TransactionRequest.Data),
		Value:   value,
	}
	if gas, err := hexToDecimal(resp.TransactionRequest.GasLimit); err == nil && gas != "0" {
		tx.Gas = gas
	}

	if !shouldAddApproval(p.fromToken, resp.Estimate.ApprovalAddress) {
		return tx, nil
	}
	approval, err := c.approvalIfNeeded(ctx, p, resp.Estimate.ApprovalAddress)
	if err != nil {
		return model.TransactionRequest{}, err
	}
	tx.Approval = approval
	return tx, nil
}

func (c *Client) approvalIfNeeded(ctx context.Context, p quoteParams, spender string) (*model.TransactionRequest, error) {
	rpcURL, err := registry.ResolveRPCURL(c.rpcOverrides, p.fromChain)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnsupported, "resolve rpc url for allowance check", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect source chain rpc for allowance check", err)
	}
	defer client.Close()

	amountIn, ok := new(big.Int).SetString(p.amount, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, "invalid amount base units")
	}
	tokenAddr := common.HexToAddress(p.fromToken)
	ownerAddr := common.HexToAddress(p.sender)
	spenderAddr := common.HexToAddress(spender)
	allowanceData, err := lifiERC20ABI.Pack("allowance", ownerAddr, spenderAddr)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack allowance call", err)
	}
	allowanceRaw, err := client.CallContract(ctx, ethereum.CallMsg{From: ownerAddr, To: &tokenAddr, Data: allowanceData}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read allowance", err)
	}
	allowanceOut, err := lifiERC20ABI.Unpack("allowance", allowanceRaw)
	if err != nil || len(allowanceOut) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode allowance", err)
	}
	current, ok := allowanceOut[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid allowance response type")
	}
	if current.Cmp(amountIn) >= 0 {
		return nil, nil
	}
	approveData, err := lifiERC20ABI.Pack("approve", spenderAddr, amountIn)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	return &model.TransactionRequest{
		ChainID: p.fromChain,
		From:    ownerAddr.Hex(),
		To:      tokenAddr.Hex(),
		Data:    "0x" + common.Bytes2Hex(approveData),
		Value:   "0",
	}, nil
}

var lifiERC20ABI = mustLifiABI(registry.ERC20ABI)

func mustLifiABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func sumCosts(resp quoteResponse) (protocolUSD, gasUSD float64) {
	for _, item := range resp.Estimate.FeeCosts {
		v, _ := strconv.ParseFloat(item.AmountUSD, 64)
		protocolUSD += v
	}
	for _, item := range resp.Estimate.GasCosts {
		v, _ := strconv.ParseFloat(item.AmountUSD, 64)
		gasUSD += v
	}
	return protocolUSD, gasUSD
}

func shouldAddApproval(tokenAddr, spender string) bool {
	if strings.TrimSpace(tokenAddr) == "" || strings.TrimSpace(spender) == "" {
		return false
	}
	if !common.IsHexAddress(tokenAddr) || !common.IsHexAddress(spender) {
		return false
	}
	return !isNativeTokenAddress(tokenAddr)
}

func isNativeTokenAddress(addr string) bool {
	if strings.EqualFold(addr, "0x0000000000000000000000000000000000000000") {
		return true
	}
	return id.IsNativeAddress(addr)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func ensureHexPrefix(v string) string {
	clean := strings.TrimSpace(v)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		return clean
	}
	return "0x" + clean
}

func hexToDecimal(v string) (string, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0", nil
	}
	clean = strings.TrimPrefix(clean, "0x")
	clean = strings.TrimPrefix(clean, "0X")
	if clean == "" {
		return "0", nil
	}
	n := new(big.Int)
	if _, ok := n.SetString(clean, 16); !ok {
		return "", fmt.Errorf("invalid hex value %q", v)
	}
	return n.String(), nil
}
