package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

const (
	defaultDCAFrequency = "weekly"
	defaultDCASource    = "USDC"
)

// Plan is a recurring purchase the client schedules; each run is an
// ordinary swap.
type Plan struct {
	ID         string              `json:"id"`
	ChainID    int64               `json:"chain_id"`
	Wallet     string              `json:"wallet,omitempty"`
	TokenIn    model.TokenIdentity `json:"token_in"`
	TokenOut   model.TokenIdentity `json:"token_out"`
	Amount     string              `json:"amount"`
	IsUSD      bool                `json:"is_usd"`
	Frequency  string              `json:"frequency"`
	CreatedAt  time.Time           `json:"created_at"`
	NextRunAt  time.Time           `json:"next_run_at"`
	Confirmed  bool                `json:"confirmed"`
	SourceText string              `json:"source_text"`
}

type DCA struct {
	deps Deps
}

func (h *DCA) Handle(ctx context.Context, cmd intent.ExtractedCommand, mc router.MessageContext) router.HandlerResult {
	f := cmd.Fields
	if f.TokenOut == "" {
		return router.Failure(clierr.New(clierr.CodeUsage, "Tell me what to buy, e.g. \"DCA $50 into ETH weekly\"."), nil)
	}
	if f.Amount == nil || f.Amount.Sign() <= 0 {
		return router.Failure(clierr.New(clierr.CodeUsage, "How much per purchase? e.g. \"DCA $50 into ETH weekly\"."), nil)
	}
	chainID, err := chainFor(f, mc)
	if err != nil {
		return router.Failure(err, nil)
	}
	sourceRef := f.TokenIn
	if sourceRef == "" {
		sourceRef = defaultDCASource
	}
	tokenIn, err := resolveToken(ctx, h.deps.Tokens, sourceRef, chainID)
	if err != nil {
		return router.Failure(err, missMetadata(sourceRef, chainID))
	}
	tokenOut, err := resolveToken(ctx, h.deps.Tokens, f.TokenOut, chainID)
	if err != nil {
		return router.Failure(err, missMetadata(f.TokenOut, chainID))
	}
	frequency := f.Frequency
	if frequency == "" {
		frequency = defaultDCAFrequency
	}
	interval, err := frequencyInterval(frequency)
	if err != nil {
		return router.Failure(err, nil)
	}

	now := h.deps.Now().UTC()
	plan := Plan{
		ChainID:    chainID,
		Wallet:     mc.WalletAddress,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		Amount:     f.Amount.String(),
		IsUSD:      f.IsUSDAmount,
		Frequency:  frequency,
		CreatedAt:  now,
		NextRunAt:  now.Add(interval),
		SourceText: cmd.RawText,
	}
	amountText := formatAmount(*f.Amount) + " " + tokenLabel(tokenIn)
	if f.IsUSDAmount {
		amountText = "$" + f.Amount.String() + " of " + tokenLabel(tokenIn)
	}
	summary := fmt.Sprintf("Buy %s with %s %s on %s.", tokenLabel(tokenOut), amountText, frequency, id.ChainName(chainID))
	warnings := warningsOf(tokenIn, tokenOut)

	if !mc.Confirmed {
		metadata := map[string]any{"plan": plan}
		if len(warnings) > 0 {
			metadata["warnings"] = warnings
		}
		return router.AwaitConfirmation(withWarnings("DCA plan: "+summary+" "+confirmPrompt, warnings), metadata)
	}

	if _, err := requireWallet(mc); err != nil {
		return router.Failure(err, map[string]any{"plan": plan})
	}
	plan.ID = uuid.NewString()
	plan.Confirmed = true
	metadata := map[string]any{"plan": plan}
	if len(warnings) > 0 {
		metadata["warnings"] = warnings
	}
	content := fmt.Sprintf("DCA plan created: %s First purchase %s.", summary, plan.NextRunAt.Format("Jan 2 15:04 UTC"))
	return router.Success(withWarnings(content, warnings), metadata)
}

var unitIntervals = map[string]time.Duration{
	"hour":  time.Hour,
	"day":   24 * time.Hour,
	"week":  7 * 24 * time.Hour,
	"month": 30 * 24 * time.Hour,
}

// frequencyInterval accepts "daily"-style words and "every N days".
func frequencyInterval(frequency string) (time.Duration, error) {
	switch frequency {
	case "hourly":
		return unitIntervals["hour"], nil
	case "daily":
		return unitIntervals["day"], nil
	case "weekly":
		return unitIntervals["week"], nil
	case "monthly":
		return unitIntervals["month"], nil
	}
	var n int
	var unit string
	if _, err := fmt.Sscanf(frequency, "every %d %s", &n, &unit); err == nil && n > 0 {
		if d, ok := unitIntervals[strings.TrimSuffix(unit, "s")]; ok {
			return time.Duration(n) * d, nil
		}
	}
	return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("I can't schedule purchases %q. Try daily, weekly or \"every 2 weeks\".", frequency))
}
