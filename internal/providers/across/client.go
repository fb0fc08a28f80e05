package across

import (
	"context"
	"fmt"
	"math/big"
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

const (
	defaultSlippageBps = 50
	defaultFillTimeS   = 120
)

type Client struct {
	http    *httpx.Client
	baseURL string
	now     func() time.Time
}

var _ providers.BridgeProvider = (*Client)(nil)

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: registry.AcrossBaseURL, now: time.Now}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "across",
		Type:        "bridge",
		RequiresKey: false,
		Capabilities: []string{
			"bridge.quote",
			"bridge.build",
		},
	}
}

// QuoteBridge checks the deposit limits for the route and prices the relay
// fee. Across moves ERC20 balances only; the native sentinel is unsupported.
func (c *Client) QuoteBridge(ctx context.Context, req providers.BridgeQuoteRequest) (model.BridgeQuote, error) {
	if err := checkTokens(req); err != nil {
		return model.BridgeQuote{}, err
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.AmountBaseUnits), 10)
	if !ok || amount.Sign() <= 0 {
		return model.BridgeQuote{}, clierr.New(clierr.CodeUsage, "across quotes require a positive base-unit amount")
	}

	vals := url.Values{}
	vals.Set("originChainId", strconv.FormatInt(req.FromChainID, 10))
	vals.Set("destinationChainId", strconv.FormatInt(req.ToChainID, 10))
	vals.Set("token", req.FromToken.Address)
	vals.Set("amount", amount.String())

	var limits map[string]any
	if err := c.get(ctx, "/limits", vals, &limits); err != nil {
		return model.BridgeQuote{}, err
	}
	if !withinLimits(amount, limits) {
		return model.BridgeQuote{}, clierr.New(clierr.CodeUpstreamQuote, "amount is outside across bridge limits")
	}

	var fees map[string]any
	if err := c.get(ctx, "/suggested-fees", vals, &fees); err != nil {
		return model.BridgeQuote{}, err
	}

	fee := pickAmount(fees, "totalRelayFee", "relayFeeTotal")
	out := pickAmount(fees, "outputAmount")
	switch {
	case out != nil:
	case fee != nil:
		out = new(big.Int).Sub(amount, fee)
		if out.Sign() < 0 {
			out.SetInt64(0)
		}
	default:
		out = new(big.Int).Set(amount)
	}
	feeUSD := pickFloat(fees, "totalRelayFeeUsd", "feeUsd")
	if feeUSD == 0 && fee != nil {
		feeUSD = approximateStableUSD(req.FromToken.Symbol, fee.String(), req.FromToken.Decimals)
	}
	fillTime := int64(pickFloat(fees, "estimatedFillTimeSec", "estimatedFillTime"))
	if fillTime == 0 {
		fillTime = defaultFillTimeS
	}

	return model.BridgeQuote{
		Provider:    "across",
		FromChainID: req.FromChainID,
		ToChainID:   req.ToChainID,
		FromToken:   req.FromToken.Symbol,
		ToToken:     req.ToToken.Symbol,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: amount.String(),
			AmountDecimal:   req.AmountDecimal,
			Decimals:        req.FromToken.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: out.String(),
			AmountDecimal:   id.FormatBaseUnits(out.String(), req.ToToken.Decimals),
			Decimals:        req.ToToken.Decimals,
		},
		EstimatedFeeUSD: feeUSD,
		EstimatedTimeS:  fillTime,
		Route:           fmt.Sprintf("%s->%s", id.ChainName(req.FromChainID), id.ChainName(req.ToChainID)),
		SourceURL:       "https://app.across.to",
		FetchedAt:       c.now().UTC().Format(time.RFC3339),
	}, nil
}

type swapApprovalResponse struct {
	ApprovalTxns []acrossTx `json:"approvalTxns"`
	SwapTx       acrossTx   `json:"swapTx"`
}

type acrossTx struct {
	ChainID int64  `json:"chainId"`
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	Gas     string `json:"gas"`
}

// BuildBridgeTransaction returns the unsigned deposit. The first approval
// Across reports for the source chain is attached as the prerequisite step.
func (c *Client) BuildBridgeTransaction(ctx context.Context, req providers.BridgeQuoteRequest) (model.TransactionRequest, error) {
	sender := strings.TrimSpace(req.Sender)
	if !common.IsHexAddress(sender) {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUsage, "bridge transaction requires a valid sender wallet")
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		recipient = sender
	}
	if !common.IsHexAddress(recipient) {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUsage, "bridge recipient must be a valid EVM address")
	}
	if err := checkTokens(req); err != nil {
		return model.TransactionRequest{}, err
	}
	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = defaultSlippageBps
	}
	if slippage >= 10_000 {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUsage, "slippage bps must be less than 10000")
	}

	vals := url.Values{}
	vals.Set("amount", req.AmountBaseUnits)
	vals.Set("inputToken", req.FromToken.Address)
	vals.Set("outputToken", req.ToToken.Address)
	vals.Set("originChainId", strconv.FormatInt(req.FromChainID, 10))
	vals.Set("destinationChainId", strconv.FormatInt(req.ToChainID, 10))
	vals.Set("depositor", sender)
	vals.Set("recipient", recipient)
	vals.Set("slippage", formatSlippage(slippage))

	var resp swapApprovalResponse
	if err := c.get(ctx, "/swap/approval", vals, &resp); err != nil {
		return model.TransactionRequest{}, err
	}
	if strings.TrimSpace(resp.SwapTx.To) == "" || strings.TrimSpace(resp.SwapTx.Data) == "" {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUpstreamQuote, "across response missing deposit transaction")
	}
	if resp.SwapTx.ChainID != 0 && resp.SwapTx.ChainID != req.FromChainID {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUpstreamQuote, "across deposit chain does not match source chain")
	}

	from := common.HexToAddress(sender).Hex()
	tx := toRequest(resp.SwapTx, req.FromChainID, from)
	for _, approval := range resp.ApprovalTxns {
		if strings.TrimSpace(approval.To) == "" || strings.TrimSpace(approval.Data) == "" {
			continue
		}
		if approval.ChainID != 0 && approval.ChainID != req.FromChainID {
			continue
		}
		step := toRequest(approval, req.FromChainID, from)
		tx.Approval = &step
		break
	}
	return tx, nil
}

func (c *Client) get(ctx context.Context, path string, vals url.Values, out any) error {
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+vals.Encode(), nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build across request", err)
	}
	_, err = c.http.DoJSON(ctx, hReq, out)
	return err
}

func checkTokens(req providers.BridgeQuoteRequest) error {
	if req.FromChainID <= 0 || req.ToChainID <= 0 {
		return clierr.New(clierr.CodeUsage, "across quotes require source and destination chains")
	}
	if !common.IsHexAddress(req.FromToken.Address) || !common.IsHexAddress(req.ToToken.Address) {
		return clierr.New(clierr.CodeUsage, "across quotes require resolved token addresses")
	}
	if id.IsNativeAddress(req.FromToken.Address) || id.IsNativeAddress(req.ToToken.Address) {
		return clierr.New(clierr.CodeUnsupported, "across bridges ERC20 tokens only")
	}
	return nil
}

func toRequest(in acrossTx, chainID int64, from string) model.TransactionRequest {
	out := model.TransactionRequest{
		ChainID: chainID,
		From:    from,
		To:      common.HexToAddress(in.To).Hex(),
		Data:    ensureHexPrefix(in.Data),
		Value:   normalizeTransactionValue(in.Value),
	}
	if gas := normalizeTransactionValue(in.Gas); gas != "0" {
		out.Gas = gas
	}
	return out
}

func withinLimits(amount *big.Int, limits map[string]any) bool {
	if min := pickAmount(limits, "minDeposit", "minLimit"); min != nil && amount.Cmp(min) < 0 {
		return false
	}
	if max := pickAmount(limits, "maxDeposit", "maxLimit"); max != nil && amount.Cmp(max) > 0 {
		return false
	}
	return true
}

// pickAmount reads a base-unit integer that Across reports either as a
// string, a JSON number, or an object with a total/amount field.
func pickAmount(m map[string]any, keys ...string) *big.Int {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if out := amountValue(v); out != nil {
				return out
			}
		}
	}
	return nil
}

func amountValue(v any) *big.Int {
	switch t := v.(type) {
	case string:
		out, ok := new(big.Int).SetString(strings.TrimSpace(t), 10)
		if !ok {
			return nil
		}
		return out
	case float64:
		out, _ := new(big.Float).SetFloat64(t).Int(nil)
		return out
	case map[string]any:
		if out := amountValue(t["total"]); out != nil {
			return out
		}
		return amountValue(t["amount"])
	default:
		return nil
	}
}

func pickFloat(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if out, ok := floatValue(v); ok {
				return out
			}
		}
	}
	return 0
}

func floatValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case map[string]any:
		if f, ok := floatValue(t["usd"]); ok {
			return f, true
		}
		return floatValue(t["value"])
	default:
		return 0, false
	}
}

func approximateStableUSD(symbol, amountBase string, decimals int) float64 {
	if !isStableSymbol(symbol) {
		return 0
	}
	v, err := strconv.ParseFloat(id.FormatBaseUnits(amountBase, decimals), 64)
	if err != nil {
		return 0
	}
	return v
}

func isStableSymbol(symbol string) bool {
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case "USDC", "USDT", "USDT0", "DAI", "USDE", "USDS", "USD1", "FRAX", "GHO", "TUSD", "LUSD", "PYUSD":
		return true
	default:
		return false
	}
}

func formatSlippage(bps int64) string {
	return strconv.FormatFloat(float64(bps)/10000, 'f', 6, 64)
}

func ensureHexPrefix(v string) string {
	clean := strings.TrimSpace(v)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		return clean
	}
	return "0x" + clean
}

func normalizeTransactionValue(v string) string {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0"
	}
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		n := new(big.Int)
		if _, ok := n.SetString(clean[2:], 16); ok {
			return n.String()
		}
		return "0"
	}
	if n, ok := new(big.Int).SetString(clean, 10); ok {
		return n.String()
	}
	return "0"
}
