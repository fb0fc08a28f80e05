package handlers

import (
	"context"
	"fmt"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

// Balance reads the connected wallet's balance of one token, defaulting to
// the chain's gas token.
type Balance struct {
	deps Deps
}

func (h *Balance) Handle(ctx context.Context, cmd intent.ExtractedCommand, mc router.MessageContext) router.HandlerResult {
	wallet, err := requireWallet(mc)
	if err != nil {
		return router.Failure(err, nil)
	}
	chainID, err := chainFor(cmd.Fields, mc)
	if err != nil {
		return router.Failure(err, nil)
	}
	if h.deps.Balances == nil {
		return router.Failure(clierr.New(clierr.CodeUnsupported, "balance reads are not configured"), nil)
	}
	ref := cmd.Fields.Token
	if ref == "" {
		ref = id.NativeSymbol(chainID)
	}
	token, err := resolveToken(ctx, h.deps.Tokens, ref, chainID)
	if err != nil {
		return router.Failure(err, missMetadata(ref, chainID))
	}

	readCtx, cancel := context.WithTimeout(ctx, h.deps.QuoteTimeout)
	defer cancel()
	amount, err := h.deps.Balances.Balance(readCtx, wallet, token, chainID)
	if err != nil {
		h.deps.Logger.Warn("balance read failed", "provider", h.deps.Balances.Info().Name, "address", token.Address, "chain_id", chainID, "error", err)
		if clierr.CodeOf(err) == clierr.CodeUsage {
			return router.Failure(err, nil)
		}
		return router.Failure(clierr.Wrap(clierr.CodeUnavailable, "balance read failed", err), nil)
	}

	balance := model.Balance{
		Wallet:  wallet,
		ChainID: chainID,
		Token:   token.Symbol,
		Address: token.Address,
		Amount: model.AmountInfo{
			AmountBaseUnits: amount.Shift(int32(token.Decimals)).Truncate(0).String(),
			AmountDecimal:   amount.String(),
			Decimals:        token.Decimals,
		},
	}
	warnings := warningsOf(token)
	metadata := map[string]any{"balance": balance, "chain_id": chainID, "chain_name": id.ChainName(chainID)}
	if len(warnings) > 0 {
		metadata["warnings"] = warnings
	}
	content := fmt.Sprintf("You have %s %s on %s.", formatAmount(amount), tokenLabel(token), id.ChainName(chainID))
	return router.Success(withWarnings(content, warnings), metadata)
}
