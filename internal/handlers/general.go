package handlers

import (
	"context"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

const helpText = `Here's what I can do:
- Swap: "swap 10 USDC for ETH" or "swap $50 of ETH to USDC on base"
- Bridge: "bridge 0.1 ETH to base" or "bridge $100 of USDC from arbitrum to optimism"
- Send: "send 5 USDC to 0x..."
- Balance: "check my USDC balance on scroll"
- DCA: "DCA $50 into ETH weekly"
- Price: "price of ETH" or "how much is PEPE worth?"

Unknown tokens work with their contract address or a $ prefix, e.g. "$MOON".
Swaps, bridges, transfers and DCA plans wait for you to reply "yes".`

func help(context.Context, intent.ExtractedCommand, router.MessageContext) router.HandlerResult {
	return router.Success(helpText, nil)
}

func unknown(context.Context, intent.ExtractedCommand, router.MessageContext) router.HandlerResult {
	return router.Failure(clierr.New(clierr.CodeParse, "could not interpret message"), nil)
}

// Cancel drops whatever the user had pending.
type Cancel struct {
	deps Deps
}

func (h *Cancel) Handle(_ context.Context, _ intent.ExtractedCommand, mc router.MessageContext) router.HandlerResult {
	if h.deps.Pending == nil {
		return router.Success("Nothing to cancel.", nil)
	}
	if err := h.deps.Pending.Clear(mc.UserKey); err != nil {
		h.deps.Logger.Warn("pending clear failed", "user", mc.UserKey, "error", err)
		return router.Failure(err, nil)
	}
	return router.Success("Cancelled. Nothing is pending.", map[string]any{"pending": false})
}
