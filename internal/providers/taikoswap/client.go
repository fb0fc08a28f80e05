package taikoswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/registry"
)

const defaultSlippageBps = 50

var (
	feeTiers = []uint32{100, 500, 3000, 10000}

	quoterABI = mustABI(registry.UniswapV3QuoterV2ABI)
	erc20ABI  = mustABI(registry.ERC20ABI)
	routerABI = mustABI(registry.UniswapV3RouterABI)
)

// Client quotes and builds single-pool swaps against the Uniswap V3 fork
// deployed on Taiko. Other chains report CodeUnsupported so the swap handler
// falls through to the aggregators.
type Client struct {
	rpcOverrides map[int64]string
	now          func() time.Time
}

var _ providers.SwapProvider = (*Client)(nil)

func New(rpcOverrides map[int64]string) *Client {
	return &Client{rpcOverrides: rpcOverrides, now: time.Now}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "taikoswap",
		Type:        "swap",
		RequiresKey: false,
		Capabilities: []string{
			"swap.quote",
			"swap.build",
		},
	}
}

type quoteExactInputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	AmountIn          *big.Int       `abi:"amountIn"`
	Fee               *big.Int       `abi:"fee"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

type exactInputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	Fee               *big.Int       `abi:"fee"`
	Recipient         common.Address `abi:"recipient"`
	AmountIn          *big.Int       `abi:"amountIn"`
	AmountOutMinimum  *big.Int       `abi:"amountOutMinimum"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

// pool is a dialed chain plus the contracts and pair a request resolved to.
type pool struct {
	client   *ethclient.Client
	quoter   common.Address
	router   common.Address
	tokenIn  common.Address
	tokenOut common.Address
	amountIn *big.Int
}

func (c *Client) QuoteSwap(ctx context.Context, req providers.SwapQuoteRequest) (model.SwapQuote, error) {
	p, err := c.open(ctx, req)
	if err != nil {
		return model.SwapQuote{}, err
	}
	defer p.client.Close()

	quoteOut, bestFee, _, err := quoteBestFee(ctx, p.client, p.quoter, p.tokenIn, p.tokenOut, p.amountIn)
	if err != nil {
		return model.SwapQuote{}, err
	}
	return model.SwapQuote{
		Provider:  "taikoswap",
		ChainID:   req.ChainID,
		FromToken: req.FromToken.Symbol,
		ToToken:   req.ToToken.Symbol,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: req.AmountBaseUnits,
			AmountDecimal:   req.AmountDecimal,
			Decimals:        req.FromToken.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: quoteOut.String(),
			AmountDecimal:   id.FormatBaseUnits(quoteOut.String(), req.ToToken.Decimals),
			Decimals:        req.ToToken.Decimals,
		},
		Route:     fmt.Sprintf("taikoswap-v3-fee-%d", bestFee),
		SourceURL: "https://swap.taiko.xyz",
		FetchedAt: c.now().UTC().Format(time.RFC3339),
	}, nil
}

// BuildSwapTransaction re-quotes the best fee tier, applies the slippage
// floor and attaches an approval when the router allowance is short.
func (c *Client) BuildSwapTransaction(ctx context.Context, req providers.SwapQuoteRequest) (model.TransactionRequest, error) {
	sender := strings.TrimSpace(req.Sender)
	if !common.IsHexAddress(sender) {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUsage, "swap transaction requires a valid sender wallet")
	}
	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = defaultSlippageBps
	}
	if slippage >= 10_000 {
		return model.TransactionRequest{}, clierr.New(clierr.CodeUsage, "slippage bps must be less than 10000")
	}
	p, err := c.open(ctx, req)
	if err != nil {
		return model.TransactionRequest{}, err
	}
	defer p.client.Close()

	senderAddr := common.HexToAddress(sender)
	quotedOut, bestFee, _, err := quoteBestFee(ctx, p.client, p.quoter, p.tokenIn, p.tokenOut, p.amountIn)
	if err != nil {
		return model.TransactionRequest{}, err
	}
	amountOutMin := new(big.Int).Mul(quotedOut, big.NewInt(10_000-slippage))
	amountOutMin.Div(amountOutMin, big.NewInt(10_000))

	swapData, err := routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           p.tokenIn,
		TokenOut:          p.tokenOut,
		Fee:               big.NewInt(int64(bestFee)),
		Recipient:         senderAddr,
		AmountIn:          p.amountIn,
		AmountOutMinimum:  amountOutMin,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return model.TransactionRequest{}, clierr.Wrap(clierr.CodeInternal, "pack swap calldata", err)
	}
	tx := model.TransactionRequest{
		ChainID: req.ChainID,
		From:    senderAddr.Hex(),
		To:      p.router.Hex(),
		Data:    "0x" + common.Bytes2Hex(swapData),
		Value:   "0",
	}

	allowance, err := readAllowance(ctx, p.client, p.tokenIn, senderAddr, p.router)
	if err != nil {
		return model.TransactionRequest{}, err
	}
	if allowance.Cmp(p.amountIn) < 0 {
		approveData, err := erc20ABI.Pack("approve", p.router, p.amountIn)
		if err != nil {
			return model.TransactionRequest{}, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
		}
		tx.Approval = &model.TransactionRequest{
			ChainID: req.ChainID,
			From:    senderAddr.Hex(),
			To:      p.tokenIn.Hex(),
			Data:    "0x" + common.Bytes2Hex(approveData),
			Value:   "0",
		}
	}
	return tx, nil
}

func (c *Client) open(ctx context.Context, req providers.SwapQuoteRequest) (pool, error) {
	quoterRaw, routerRaw, ok := registry.UniswapV3Contracts(req.ChainID)
	if !ok {
		return pool{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("taikoswap does not support %s", id.ChainName(req.ChainID)))
	}
	if !common.IsHexAddress(req.FromToken.Address) || !common.IsHexAddress(req.ToToken.Address) {
		return pool{}, clierr.New(clierr.CodeUsage, "taikoswap quotes require resolved token addresses")
	}
	if id.IsNativeAddress(req.FromToken.Address) || id.IsNativeAddress(req.ToToken.Address) {
		return pool{}, clierr.New(clierr.CodeUnsupported, "taikoswap pools trade ERC20 tokens only; use WETH")
	}
	amountIn, ok := new(big.Int).SetString(strings.TrimSpace(req.AmountBaseUnits), 10)
	if !ok || amountIn.Sign() <= 0 {
		return pool{}, clierr.New(clierr.CodeUsage, "invalid amount base units")
	}
	rpcURL, err := registry.ResolveRPCURL(c.rpcOverrides, req.ChainID)
	if err != nil {
		return pool{}, clierr.Wrap(clierr.CodeUnsupported, "resolve rpc url", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return pool{}, clierr.Wrap(clierr.CodeUnavailable, "connect taiko rpc", err)
	}
	return pool{
		client:   client,
		quoter:   common.HexToAddress(quoterRaw),
		router:   common.HexToAddress(routerRaw),
		tokenIn:  common.HexToAddress(req.FromToken.Address),
		tokenOut: common.HexToAddress(req.ToToken.Address),
		amountIn: amountIn,
	}, nil
}

func readAllowance(ctx context.Context, client *ethclient.Client, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack allowance call", err)
	}
	raw, err := client.CallContract(ctx, ethereum.CallMsg{From: owner, To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read allowance", err)
	}
	values, err := erc20ABI.Unpack("allowance", raw)
	if err != nil || len(values) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode allowance", err)
	}
	allowance, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid allowance response")
	}
	return allowance, nil
}

// quoteBestFee asks the quoter for every fee tier and keeps the largest
// output, breaking ties on the lower gas estimate.
func quoteBestFee(ctx context.Context, client *ethclient.Client, quoter, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, uint32, *big.Int, error) {
	var (
		bestOut *big.Int
		bestGas *big.Int
		bestFee uint32
	)
	for _, fee := range feeTiers {
		callData, err := quoterABI.Pack("quoteExactInputSingle", quoteExactInputSingleParams{
			TokenIn:           tokenIn,
			TokenOut:          tokenOut,
			AmountIn:          amountIn,
			Fee:               big.NewInt(int64(fee)),
			SqrtPriceLimitX96: big.NewInt(0),
		})
		if err != nil {
			return nil, 0, nil, clierr.Wrap(clierr.CodeInternal, "pack quoter calldata", err)
		}
		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &quoter, Data: callData}, nil)
		if err != nil {
			continue
		}
		decoded, err := quoterABI.Unpack("quoteExactInputSingle", out)
		if err != nil || len(decoded) < 4 {
			continue
		}
		amountOut, ok := decoded[0].(*big.Int)
		if !ok || amountOut == nil || amountOut.Sign() <= 0 {
			continue
		}
		gasEstimate, ok := decoded[3].(*big.Int)
		if !ok || gasEstimate == nil {
			gasEstimate = big.NewInt(0)
		}
		if bestOut == nil || amountOut.Cmp(bestOut) > 0 || (amountOut.Cmp(bestOut) == 0 && gasEstimate.Cmp(bestGas) < 0) {
			bestOut = new(big.Int).Set(amountOut)
			bestGas = new(big.Int).Set(gasEstimate)
			bestFee = fee
		}
	}
	if bestOut == nil {
		return nil, 0, nil, clierr.New(clierr.CodeUpstreamQuote, "taikoswap has no pool for this token pair")
	}
	return bestOut, bestFee, bestGas, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
