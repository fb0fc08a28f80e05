package handlers

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

// Swap quotes every swap provider and keeps the best output. An "approved:"
// command or a confirmed replay builds the transaction for that provider.
type Swap struct {
	deps Deps
}

type swapCandidate struct {
	provider providers.SwapProvider
	quote    model.SwapQuote
	err      error
}

func (h *Swap) Handle(ctx context.Context, cmd intent.ExtractedCommand, mc router.MessageContext) router.HandlerResult {
	f := cmd.Fields
	if f.TokenIn == "" || f.TokenOut == "" {
		return router.Failure(clierr.New(clierr.CodeUsage, "Tell me what to swap, e.g. \"swap 10 USDC for ETH\"."), nil)
	}
	chainID, err := chainFor(f, mc)
	if err != nil {
		return router.Failure(err, nil)
	}
	if len(h.deps.Swaps) == 0 {
		return router.Failure(clierr.New(clierr.CodeUnsupported, "swaps are not configured"), nil)
	}

	tokenIn, err := resolveToken(ctx, h.deps.Tokens, f.TokenIn, chainID)
	if err != nil {
		return router.Failure(err, missMetadata(f.TokenIn, chainID))
	}
	tokenOut, err := resolveToken(ctx, h.deps.Tokens, f.TokenOut, chainID)
	if err != nil {
		return router.Failure(err, missMetadata(f.TokenOut, chainID))
	}
	if strings.EqualFold(tokenIn.Address, tokenOut.Address) {
		return router.Failure(clierr.New(clierr.CodeUsage, "Pick two different tokens to swap."), nil)
	}
	amount, err := tokenAmount(ctx, h.deps.Prices, f, tokenIn, chainID)
	if err != nil {
		return router.Failure(err, nil)
	}
	units, err := baseUnits(amount, tokenIn.Decimals)
	if err != nil {
		return router.Failure(err, nil)
	}

	req := providers.SwapQuoteRequest{
		ChainID:         chainID,
		FromToken:       tokenIn,
		ToToken:         tokenOut,
		AmountBaseUnits: units,
		AmountDecimal:   amount.String(),
		Sender:          mc.WalletAddress,
		SlippageBps:     h.deps.SlippageBps,
	}
	best, err := h.bestQuote(ctx, req)
	if err != nil {
		return router.Failure(err, nil)
	}

	warnings := warningsOf(tokenIn, tokenOut)
	metadata := map[string]any{
		"quote":     best.quote,
		"token_in":  tokenIn,
		"token_out": tokenOut,
		"chain_id":  chainID,
	}
	if len(warnings) > 0 {
		metadata["warnings"] = warnings
	}
	summary := fmt.Sprintf("Swap %s %s for ~%s %s on %s via %s.",
		formatAmount(amount), tokenLabel(tokenIn),
		best.quote.EstimatedOut.AmountDecimal, tokenLabel(tokenOut),
		id.ChainName(chainID), best.quote.Route)

	if !mc.Confirmed && !f.Approved {
		return router.AwaitConfirmation(withWarnings(summary+" "+confirmPrompt, warnings), metadata)
	}

	wallet, err := requireWallet(mc)
	if err != nil {
		return router.Failure(err, metadata)
	}
	req.Sender = wallet
	buildCtx, cancel := context.WithTimeout(ctx, h.deps.QuoteTimeout)
	defer cancel()
	tx, err := best.provider.BuildSwapTransaction(buildCtx, req)
	if err != nil {
		h.deps.Logger.Warn("swap build failed", "provider", best.provider.Info().Name, "chain_id", chainID, "error", err)
		return router.Failure(quoteError(err), metadata)
	}
	metadata["transaction"] = tx
	content := summary + " Sign the transaction in your wallet to submit it."
	if tx.Approval != nil {
		content += " An approval transaction must be sent first."
	}
	return router.Success(withWarnings(content, warnings), metadata)
}

// bestQuote fans out to every provider and keeps the highest output. The
// first real failure is reported when no provider returns a quote.
func (h *Swap) bestQuote(ctx context.Context, req providers.SwapQuoteRequest) (swapCandidate, error) {
	quoteCtx, cancel := context.WithTimeout(ctx, h.deps.QuoteTimeout)
	defer cancel()

	results := make([]swapCandidate, len(h.deps.Swaps))
	var wg sync.WaitGroup
	for i, provider := range h.deps.Swaps {
		wg.Add(1)
		go func(i int, provider providers.SwapProvider) {
			defer wg.Done()
			quote, err := provider.QuoteSwap(quoteCtx, req)
			results[i] = swapCandidate{provider: provider, quote: quote, err: err}
		}(i, provider)
	}
	wg.Wait()

	var best *swapCandidate
	var firstErr error
	for i := range results {
		c := &results[i]
		if c.err != nil {
			logQuoteFailure(h.deps.Logger, "swap", c.provider.Info().Name, req.ChainID, c.err)
			firstErr = preferredQuoteError(firstErr, c.err)
			continue
		}
		if best == nil || outAmount(c.quote.EstimatedOut).Cmp(outAmount(best.quote.EstimatedOut)) > 0 {
			best = c
		}
	}
	if best == nil {
		return swapCandidate{}, quoteError(firstErr)
	}
	return *best, nil
}

func outAmount(info model.AmountInfo) *big.Int {
	n, ok := new(big.Int).SetString(info.AmountBaseUnits, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}
