package providers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/defi-chat/internal/model"
)

type Provider interface {
	Info() model.ProviderInfo
}

// SymbolProvider and AddressProvider look up token metadata. A clean "not
// found" is reported as a CodeResolutionMiss error; any other error is a
// provider failure.
type SymbolProvider interface {
	Provider
	LookupBySymbol(ctx context.Context, symbol string, chainID int64) (model.TokenIdentity, error)
}

type AddressProvider interface {
	Provider
	LookupByAddress(ctx context.Context, address string, chainID int64) (model.TokenIdentity, error)
}

type TokenProvider interface {
	SymbolProvider
	AddressProvider
}

// PriceProvider returns a USD price for a token on a chain. Providers that
// price by contract address report RequiresAddress and receive it in TokenRef.
type PriceProvider interface {
	Provider
	RequiresAddress() bool
	Price(ctx context.Context, token TokenRef, chainID int64) (float64, error)
}

type TokenRef struct {
	Symbol   string
	Address  string
	Decimals int
}

type SwapQuoteRequest struct {
	ChainID         int64
	FromToken       model.TokenIdentity
	ToToken         model.TokenIdentity
	AmountBaseUnits string
	AmountDecimal   string
	Sender          string
	SlippageBps     int64
}

type SwapProvider interface {
	Provider
	QuoteSwap(ctx context.Context, req SwapQuoteRequest) (model.SwapQuote, error)
	BuildSwapTransaction(ctx context.Context, req SwapQuoteRequest) (model.TransactionRequest, error)
}

type BridgeQuoteRequest struct {
	FromChainID     int64
	ToChainID       int64
	FromToken       model.TokenIdentity
	ToToken         model.TokenIdentity
	AmountBaseUnits string
	AmountDecimal   string
	Sender          string
	Recipient       string
	SlippageBps     int64
}

type BridgeProvider interface {
	Provider
	QuoteBridge(ctx context.Context, req BridgeQuoteRequest) (model.BridgeQuote, error)
	BuildBridgeTransaction(ctx context.Context, req BridgeQuoteRequest) (model.TransactionRequest, error)
}

// BalanceReader reads wallet balances; an empty token address means the native asset.
type BalanceReader interface {
	Provider
	Balance(ctx context.Context, wallet string, token model.TokenIdentity, chainID int64) (decimal.Decimal, error)
}

// Extraction is the structured result of the LLM fallback extractor.
type Extraction struct {
	Tokens   []string `json:"tokens"`
	Currency string   `json:"currency"`
}

type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}
