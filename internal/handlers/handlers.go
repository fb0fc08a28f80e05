// Package handlers implements one router.Handler per intent. Handlers only
// quote, read and build unsigned transactions; signing and submission belong
// to the client wallet.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

const (
	DefaultQuoteTimeout = 15 * time.Second
	DefaultSlippageBps  = int64(50)

	confirmPrompt = "Reply \"yes\" to confirm or \"no\" to cancel."
)

type TokenResolver interface {
	Resolve(ctx context.Context, reference string, chainID int64) model.TokenIdentity
}

type PriceResolver interface {
	GetPrice(ctx context.Context, symbol string, chainID int64) model.PriceQuote
}

type PendingClearer interface {
	Clear(userKey string) error
}

// Deps is shared by every handler. Providers are tried in slice order.
type Deps struct {
	Tokens       TokenResolver
	Prices       PriceResolver
	Swaps        []providers.SwapProvider
	Bridges      []providers.BridgeProvider
	Balances     providers.BalanceReader
	Pending      PendingClearer
	SlippageBps  int64
	QuoteTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.SlippageBps <= 0 {
		d.SlippageBps = DefaultSlippageBps
	}
	if d.QuoteTimeout <= 0 {
		d.QuoteTimeout = DefaultQuoteTimeout
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// All returns the full handler set keyed by intent.
func All(deps Deps) map[intent.Intent]router.Handler {
	d := deps.withDefaults()
	return map[intent.Intent]router.Handler{
		intent.Swap:     &Swap{deps: d},
		intent.Bridge:   &Bridge{deps: d},
		intent.Transfer: &Transfer{deps: d},
		intent.Balance:  &Balance{deps: d},
		intent.DCA:      &DCA{deps: d},
		intent.Price:    &Price{deps: d},
		intent.Help:     router.HandlerFunc(help),
		intent.Cancel:   &Cancel{deps: d},
		intent.Unknown:  router.HandlerFunc(unknown),
	}
}

// chainFor picks the chain a command runs on: an explicit "on <chain>"
// wins over the chain the message arrived on.
func chainFor(fields intent.Fields, mc router.MessageContext) (int64, error) {
	if fields.ChainID > 0 {
		return fields.ChainID, nil
	}
	if fields.Chain != "" {
		return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("I don't support the %s chain.", fields.Chain))
	}
	if mc.ChainID <= 0 {
		return 1, nil
	}
	return mc.ChainID, nil
}

func requireWallet(mc router.MessageContext) (string, error) {
	if !common.IsHexAddress(mc.WalletAddress) {
		return "", clierr.New(clierr.CodeUsage, "Connect a wallet to continue.")
	}
	return common.HexToAddress(mc.WalletAddress).Hex(), nil
}

// resolveToken returns a usable identity or a resolution miss carrying the
// chain so the reply can tell the user where the lookup happened.
func resolveToken(ctx context.Context, tokens TokenResolver, ref string, chainID int64) (model.TokenIdentity, error) {
	token := tokens.Resolve(ctx, ref, chainID)
	if token.Resolved() {
		return token, nil
	}
	msg := fmt.Sprintf("I couldn't find token %s on %s. Send its contract address (0x...) to use it.", displayRef(ref), id.ChainName(chainID))
	return token, clierr.New(clierr.CodeResolutionMiss, msg)
}

func missMetadata(ref string, chainID int64) map[string]any {
	return map[string]any{
		"token":      ref,
		"chain_id":   chainID,
		"chain_name": id.ChainName(chainID),
	}
}

// tokenAmount returns the amount in token units, converting "$N" requests
// through the price cascade.
func tokenAmount(ctx context.Context, prices PriceResolver, fields intent.Fields, token model.TokenIdentity, chainID int64) (decimal.Decimal, error) {
	if fields.Amount == nil {
		return decimal.Zero, clierr.New(clierr.CodeUsage, "How much? Include an amount, e.g. \"1.5 ETH\" or \"$100 of ETH\".")
	}
	amount := *fields.Amount
	if amount.Sign() <= 0 {
		return decimal.Zero, clierr.New(clierr.CodeUsage, "Amount must be greater than zero.")
	}
	if !fields.IsUSDAmount {
		return amount, nil
	}
	quote := prices.GetPrice(ctx, priceRef(token), chainID)
	if quote.Price == nil || *quote.Price <= 0 {
		return decimal.Zero, clierr.New(clierr.CodeResolutionMiss,
			fmt.Sprintf("I couldn't get a price for %s to convert $%s.", token.Symbol, amount.String()))
	}
	converted := amount.Div(decimal.NewFromFloat(*quote.Price))
	return converted.Truncate(int32(token.Decimals)), nil
}

// priceRef prices curated tokens by symbol, so stablecoins short-circuit,
// and everything else by address.
func priceRef(token model.TokenIdentity) string {
	switch token.Source {
	case model.SourcePredefined, model.SourceAlias:
		return token.Symbol
	}
	if token.Address == "" || id.IsNativeAddress(token.Address) {
		return token.Symbol
	}
	return token.Address
}

func baseUnits(amount decimal.Decimal, decimals int) (string, error) {
	n, err := id.ToBaseUnits(amount.Truncate(int32(decimals)), decimals)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// quoteError maps a quote or build failure to UpstreamQuote. A provider's
// own rejection message (a 4xx body) is kept; transport failures are not.
// preferredQuoteError keeps the first failure, letting a later one replace
// it only while the kept one is a provider that does not serve the route.
func preferredQuoteError(kept, next error) error {
	if kept == nil {
		return next
	}
	if clierr.CodeOf(kept) == clierr.CodeUnsupported && clierr.CodeOf(next) != clierr.CodeUnsupported {
		return next
	}
	return kept
}

func logQuoteFailure(logger *slog.Logger, kind, provider string, chainID int64, err error) {
	if clierr.CodeOf(err) == clierr.CodeUnsupported {
		logger.Debug(kind+" provider skipped", "provider", provider, "chain_id", chainID, "error", err)
		return
	}
	logger.Warn(kind+" quote failed", "provider", provider, "chain_id", chainID, "error", err)
}

func quoteError(err error) error {
	if err == nil {
		return clierr.New(clierr.CodeUpstreamQuote, "no route found")
	}
	if e, ok := clierr.As(err); ok {
		switch e.Code {
		case clierr.CodeUsage, clierr.CodeUpstreamQuote:
			return err
		case clierr.CodeUnsupported:
			return clierr.Wrap(clierr.CodeUpstreamQuote, e.Message, err)
		case clierr.CodeResolutionMiss:
			return clierr.Wrap(clierr.CodeUpstreamQuote, "no route found", err)
		}
	}
	return clierr.Wrap(clierr.CodeUpstreamQuote, "the quote service is unavailable, try again shortly", err)
}

func tokenLabel(token model.TokenIdentity) string {
	if token.Symbol != "" {
		return token.Symbol
	}
	return shortAddress(token.Address)
}

func displayRef(ref string) string {
	if id.IsAddress(ref) {
		return shortAddress(ref)
	}
	return ref
}

func shortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func formatAmount(d decimal.Decimal) string {
	return d.Round(6).String()
}

func formatUSD(v float64) string {
	d := decimal.NewFromFloat(v)
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		return "$" + d.Round(6).String()
	}
	return "$" + d.StringFixed(2)
}

func warningsOf(tokens ...model.TokenIdentity) []string {
	var out []string
	for _, tok := range tokens {
		out = append(out, tok.Warnings...)
	}
	return out
}

func withWarnings(content string, warnings []string) string {
	if len(warnings) == 0 {
		return content
	}
	return content + "\n\nNote: " + strings.Join(warnings, "\nNote: ")
}
