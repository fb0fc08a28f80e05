package handlers

import (
	"context"
	"fmt"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

// Bridge moves one token between chains. The source chain defaults to the
// chain the message arrived on.
type Bridge struct {
	deps Deps
}

func (h *Bridge) Handle(ctx context.Context, cmd intent.ExtractedCommand, mc router.MessageContext) router.HandlerResult {
	f := cmd.Fields
	if f.Token == "" || f.ToChainID <= 0 {
		return router.Failure(clierr.New(clierr.CodeUsage, "Tell me what to bridge and where, e.g. \"bridge 0.1 ETH to base\"."), nil)
	}
	fromChainID := f.FromChainID
	if fromChainID <= 0 {
		if f.FromChain != "" {
			return router.Failure(clierr.New(clierr.CodeUsage, fmt.Sprintf("I don't support the %s chain.", f.FromChain)), nil)
		}
		fromChainID = mc.ChainID
	}
	if fromChainID <= 0 {
		fromChainID = 1
	}
	if fromChainID == f.ToChainID {
		return router.Failure(clierr.New(clierr.CodeUsage, fmt.Sprintf("You are already on %s. Pick a different destination chain.", id.ChainName(fromChainID))), nil)
	}
	if len(h.deps.Bridges) == 0 {
		return router.Failure(clierr.New(clierr.CodeUnsupported, "bridging is not configured"), nil)
	}

	fromToken, err := resolveToken(ctx, h.deps.Tokens, f.Token, fromChainID)
	if err != nil {
		return router.Failure(err, missMetadata(f.Token, fromChainID))
	}
	// A contract address only exists on the source chain; look the
	// destination up by symbol.
	destRef := f.Token
	if id.IsAddress(destRef) {
		destRef = fromToken.Symbol
	}
	toToken, err := resolveToken(ctx, h.deps.Tokens, destRef, f.ToChainID)
	if err != nil {
		return router.Failure(err, missMetadata(destRef, f.ToChainID))
	}
	amount, err := tokenAmount(ctx, h.deps.Prices, f, fromToken, fromChainID)
	if err != nil {
		return router.Failure(err, nil)
	}
	units, err := baseUnits(amount, fromToken.Decimals)
	if err != nil {
		return router.Failure(err, nil)
	}

	req := providers.BridgeQuoteRequest{
		FromChainID:     fromChainID,
		ToChainID:       f.ToChainID,
		FromToken:       fromToken,
		ToToken:         toToken,
		AmountBaseUnits: units,
		AmountDecimal:   amount.String(),
		Sender:          mc.WalletAddress,
		Recipient:       mc.WalletAddress,
		SlippageBps:     h.deps.SlippageBps,
	}
	provider, quote, err := h.quote(ctx, req)
	if err != nil {
		return router.Failure(err, nil)
	}

	warnings := warningsOf(fromToken, toToken)
	if f.ToChainDefaulted {
		warnings = append(warnings, fmt.Sprintf("I don't recognize the chain %q, so I'm bridging to %s.", f.RequestedToChain, id.ChainName(f.ToChainID)))
	}
	metadata := map[string]any{
		"quote":         quote,
		"from_chain_id": fromChainID,
		"to_chain_id":   f.ToChainID,
		"token":         fromToken,
	}
	if len(warnings) > 0 {
		metadata["warnings"] = warnings
	}
	summary := fmt.Sprintf("Bridge %s %s from %s to %s, receiving ~%s %s via %s.",
		formatAmount(amount), tokenLabel(fromToken),
		id.ChainName(fromChainID), id.ChainName(f.ToChainID),
		quote.EstimatedOut.AmountDecimal, tokenLabel(toToken), quote.Route)
	if quote.EstimatedFeeUSD > 0 {
		summary += fmt.Sprintf(" Fees ~%s.", formatUSD(quote.EstimatedFeeUSD))
	}

	if !mc.Confirmed {
		return router.AwaitConfirmation(withWarnings(summary+" "+confirmPrompt, warnings), metadata)
	}

	wallet, err := requireWallet(mc)
	if err != nil {
		return router.Failure(err, metadata)
	}
	req.Sender = wallet
	req.Recipient = wallet
	buildCtx, cancel := context.WithTimeout(ctx, h.deps.QuoteTimeout)
	defer cancel()
	tx, err := provider.BuildBridgeTransaction(buildCtx, req)
	if err != nil {
		h.deps.Logger.Warn("bridge build failed", "provider", provider.Info().Name, "chain_id", fromChainID, "error", err)
		return router.Failure(quoteError(err), metadata)
	}
	metadata["transaction"] = tx
	return router.Success(withWarnings(summary+" Sign the transaction in your wallet to submit it.", warnings), metadata)
}

// quote walks the bridge providers in order and returns the first quote.
func (h *Bridge) quote(ctx context.Context, req providers.BridgeQuoteRequest) (providers.BridgeProvider, model.BridgeQuote, error) {
	var firstErr error
	for _, provider := range h.deps.Bridges {
		quoteCtx, cancel := context.WithTimeout(ctx, h.deps.QuoteTimeout)
		quote, err := provider.QuoteBridge(quoteCtx, req)
		cancel()
		if err == nil {
			return provider, quote, nil
		}
		logQuoteFailure(h.deps.Logger, "bridge", provider.Info().Name, req.FromChainID, err)
		firstErr = preferredQuoteError(firstErr, err)
	}
	return nil, model.BridgeQuote{}, quoteError(firstErr)
}
