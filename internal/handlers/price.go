package handlers

import (
	"context"
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

// Price looks up USD prices for every token the message named. A partial
// answer is a success; only a total miss is an error.
type Price struct {
	deps Deps
}

func (h *Price) Handle(ctx context.Context, cmd intent.ExtractedCommand, mc router.MessageContext) router.HandlerResult {
	f := cmd.Fields
	refs := f.Tokens
	if len(refs) == 0 && f.Token != "" {
		refs = []string{f.Token}
	}
	if len(refs) == 0 {
		return router.Failure(clierr.New(clierr.CodeUsage, "Which token? e.g. \"price of ETH\"."), nil)
	}
	chainID, err := chainFor(f, mc)
	if err != nil {
		return router.Failure(err, nil)
	}

	var lines []string
	var missing []string
	quotes := make([]model.PriceQuote, 0, len(refs))
	for _, ref := range dedupe(refs) {
		quote := h.deps.Prices.GetPrice(ctx, ref, chainID)
		quotes = append(quotes, quote)
		if quote.Price == nil {
			missing = append(missing, displayRef(ref))
			continue
		}
		label := quote.Symbol
		if label == "" || id.IsAddress(label) {
			label = displayRef(ref)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, formatUSD(*quote.Price)))
	}

	metadata := map[string]any{"prices": quotes, "chain_id": chainID}
	if len(lines) == 0 {
		msg := fmt.Sprintf("I couldn't find a price for %s on %s.", strings.Join(missing, ", "), id.ChainName(chainID))
		return router.Failure(clierr.New(clierr.CodeResolutionMiss, msg), metadata)
	}

	var warnings []string
	if len(missing) > 0 {
		warnings = append(warnings, fmt.Sprintf("No price found for %s.", strings.Join(missing, ", ")))
	}
	if f.Currency != "" && f.Currency != "usd" {
		warnings = append(warnings, fmt.Sprintf("Prices are shown in USD, not %s.", strings.ToUpper(f.Currency)))
	}
	if len(warnings) > 0 {
		metadata["warnings"] = warnings
	}
	return router.Success(withWarnings(strings.Join(lines, "\n"), warnings), metadata)
}

func dedupe(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		key := strings.ToUpper(ref)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}
	return out
}
