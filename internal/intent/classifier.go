package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/providers"
)

const DefaultLLMTimeout = 30 * time.Second

// Pattern fragments shared by the rules. All patterns are compiled
// case-insensitive and matched against whitespace-collapsed input.
const (
	amountPat    = `([0-9][0-9,]*(?:\.[0-9]+)?|\.[0-9]+)`
	tokenPat     = `(\$?[a-z0-9][a-z0-9._\-]*)`
	chainPat     = `([a-z0-9:\-]+)`
	recipientPat = `(\S+)`
)

func compile(pattern string) *regexp.Regexp {
	expanded := strings.NewReplacer(
		"AMOUNT", amountPat,
		"TOKEN", tokenPat,
		"CHAIN", chainPat,
		"RECIPIENT", recipientPat,
	).Replace(pattern)
	return regexp.MustCompile(`(?i)` + expanded)
}

var (
	usdTransferPattern  = compile(`^(?:send|transfer)\s+\$\s?AMOUNT\s+(?:worth\s+of|worth|of)\s+TOKEN\s+to\s+RECIPIENT$`)
	usdBridgePattern    = compile(`^bridge\s+\$\s?AMOUNT\s+(?:(?:worth\s+)?of\s+|worth\s+)?TOKEN(?:\s+from\s+CHAIN)?\s+to\s+CHAIN$`)
	transferPattern     = compile(`^(?:send|transfer)\s+AMOUNT\s+TOKEN\s+to\s+RECIPIENT$`)
	bridgeFullPattern   = compile(`^bridge\s+AMOUNT\s+TOKEN\s+from\s+CHAIN\s+to\s+CHAIN$`)
	bridgeSimplePattern = compile(`^bridge\s+AMOUNT\s+TOKEN\s+to\s+CHAIN$`)
	balancePattern      = compile(`^(?:check|show|what'?s|what\s+is|get|see)\s+(?:my|the)\s+(?:TOKEN\s+)?balances?(?:\s+(?:on|in)\s+CHAIN)?$`)
	balanceShortPattern = compile(`^balances?(?:\s+(?:of\s+)?TOKEN)?(?:\s+(?:on|in)\s+CHAIN)?$`)
	dcaKeywordPattern   = compile(`\b(?:dca|dollar[\s-]cost[\s-]averag(?:e|ing))\b`)
	dcaPairPattern      = compile(`^\s+(?:of\s+)?(?:into\s+)?(?:(\$)\s?AMOUNT\s+|AMOUNT\s+)?(?:(?:worth\s+)?of\s+)?TOKEN\s+(?:into|to|for)\s+TOKEN`)
	dcaSinglePattern    = compile(`^\s+(?:of\s+)?(?:(\$)\s?AMOUNT\s+|AMOUNT\s+)?(?:(?:worth\s+)?of\s+|into\s+|in\s+)?TOKEN`)
	usdAmountPattern    = compile(`\$\s?AMOUNT`)
	frequencyPattern    = compile(`\b(hourly|daily|weekly|monthly)\b|\bevery\s+(?:([0-9]+)\s+)?(hour|day|week|month)s?\b`)
	swapKeywordPattern  = compile(`\b(?:swap|convert)\b`)
	swapPattern         = compile(`(?:^|\s)(?:swap|convert|trade|exchange)\s+(?:(\$)\s?AMOUNT\s+|AMOUNT\s+)?(?:(?:worth\s+)?of\s+)?TOKEN\s+(?:for|to|into|->|with)\s+TOKEN(?:\s+on\s+CHAIN)?`)
	approvedPattern     = compile(`^approved:\s*`)
	priceKeywordPattern = compile(`\b(?:price|how\s+much|worth|cost)\b`)
	onChainPattern      = compile(`(?:^|\s)on\s+CHAIN\b`)
	currencyPattern     = compile(`\bin\s+(usd|eur|gbp|jpy)\b`)
)

// Options configures a Classifier. Extractor is the optional LLM fallback;
// DefaultDestinationChain replaces an unrecognized bridge destination.
type Options struct {
	Table                   *id.TokenTable
	Extractor               providers.Extractor
	LLMTimeout              time.Duration
	DefaultDestinationChain string
	Logger                  *slog.Logger
}

// Classifier maps free text to an ExtractedCommand. Rules are evaluated in
// order and the first match wins; several patterns are subsets of later
// ones, so the order matters.
type Classifier struct {
	table       *id.TokenTable
	extractor   providers.Extractor
	llmTimeout  time.Duration
	destination id.Chain
	log         *slog.Logger
	rules       []rule
}

type rule struct {
	name   string
	intent Intent
	match  func(text string) (Fields, bool)
}

func New(opts Options) *Classifier {
	c := &Classifier{
		table:      opts.Table,
		extractor:  opts.Extractor,
		llmTimeout: opts.LLMTimeout,
		log:        opts.Logger,
	}
	if c.table == nil {
		c.table = id.DefaultTokenTable()
	}
	if c.llmTimeout <= 0 {
		c.llmTimeout = DefaultLLMTimeout
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	dest, err := id.ParseChain(opts.DefaultDestinationChain)
	if err != nil {
		dest, _ = id.ChainBySlug("ethereum")
	}
	c.destination = dest

	c.rules = []rule{
		{name: "usd_transfer", intent: Transfer, match: c.matchUSDTransfer},
		{name: "usd_bridge", intent: Bridge, match: c.matchUSDBridge},
		{name: "transfer", intent: Transfer, match: c.matchTransfer},
		{name: "bridge_full", intent: Bridge, match: c.matchBridgeFull},
		{name: "bridge_simple", intent: Bridge, match: c.matchBridgeSimple},
		{name: "balance", intent: Balance, match: c.matchBalance},
		{name: "dca", intent: DCA, match: c.matchDCA},
		{name: "swap", intent: Swap, match: c.matchSwap},
		{name: "price", intent: Price, match: c.matchPrice},
	}
	return c
}

// Classify never fails; the worst case is Unknown with empty fields.
func (c *Classifier) Classify(ctx context.Context, text string) ExtractedCommand {
	norm := normalize(text)
	lower := strings.ToLower(norm)
	cmd := ExtractedCommand{Intent: Unknown, RawText: text, ConfidenceSource: SourcePattern}

	if _, ok := confirmWords[lower]; ok {
		cmd.Intent = Confirm
		return cmd
	}
	if _, ok := cancelWords[lower]; ok {
		cmd.Intent = Cancel
		return cmd
	}
	if _, ok := helpWords[lower]; ok {
		cmd.Intent = Help
		return cmd
	}
	if norm == "" {
		return cmd
	}

	for _, r := range c.rules {
		if fields, ok := r.match(norm); ok {
			cmd.Intent = r.intent
			cmd.Fields = fields
			cmd.Rule = r.name
			return cmd
		}
	}

	return c.fallback(ctx, text, cmd)
}

// ExtractAs re-extracts slots for a known intent without classifying, so a
// stored command resumes as the flow that produced it. The bool is false
// when no rule of that intent matches.
func (c *Classifier) ExtractAs(intent Intent, text string) (ExtractedCommand, bool) {
	norm := normalize(text)
	cmd := ExtractedCommand{Intent: intent, RawText: text, ConfidenceSource: SourcePattern}
	for _, r := range c.rules {
		if r.intent != intent {
			continue
		}
		if fields, ok := r.match(norm); ok {
			cmd.Fields = fields
			cmd.Rule = r.name
			return cmd, true
		}
	}
	return cmd, false
}

func (c *Classifier) fallback(ctx context.Context, raw string, cmd ExtractedCommand) ExtractedCommand {
	if c.extractor == nil {
		return cmd
	}
	callCtx, cancel := context.WithTimeout(ctx, c.llmTimeout)
	defer cancel()
	extraction, err := c.extractor.Extract(callCtx, raw)
	if err != nil {
		c.log.Warn("llm extraction failed", "error", err)
		return cmd
	}
	tokens := make([]string, 0, len(extraction.Tokens))
	for _, tok := range extraction.Tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, normalizeToken(tok))
		}
	}
	if len(tokens) == 0 {
		return cmd
	}
	currency := strings.ToLower(strings.TrimSpace(extraction.Currency))
	if currency == "" {
		currency = "usd"
	}
	cmd.Intent = Price
	cmd.ConfidenceSource = SourceLLM
	cmd.Fields = Fields{Token: tokens[0], Tokens: tokens, Currency: currency}
	return cmd
}

func (c *Classifier) matchUSDTransfer(text string) (Fields, bool) {
	m := usdTransferPattern.FindStringSubmatch(text)
	if m == nil {
		return Fields{}, false
	}
	amount, ok := parseAmount(m[1])
	if !ok {
		return Fields{}, false
	}
	return Fields{Amount: amount, IsUSDAmount: true, Token: normalizeToken(m[2]), Recipient: m[3]}, true
}

// matchUSDBridge leaves the source chain empty unless named; the caller
// fills it from the request.
func (c *Classifier) matchUSDBridge(text string) (Fields, bool) {
	m := usdBridgePattern.FindStringSubmatch(text)
	if m == nil {
		return Fields{}, false
	}
	amount, ok := parseAmount(m[1])
	if !ok {
		return Fields{}, false
	}
	fields := Fields{Amount: amount, IsUSDAmount: true, Token: normalizeToken(m[2])}
	if m[3] != "" {
		c.setFromChain(&fields, m[3])
	}
	c.setToChain(&fields, m[4])
	return fields, true
}

func (c *Classifier) matchTransfer(text string) (Fields, bool) {
	m := transferPattern.FindStringSubmatch(text)
	if m == nil {
		return Fields{}, false
	}
	amount, ok := parseAmount(m[1])
	if !ok {
		return Fields{}, false
	}
	return Fields{Amount: amount, Token: normalizeToken(m[2]), Recipient: m[3]}, true
}

func (c *Classifier) matchBridgeFull(text string) (Fields, bool) {
	m := bridgeFullPattern.FindStringSubmatch(text)
	if m == nil {
		return Fields{}, false
	}
	amount, ok := parseAmount(m[1])
	if !ok {
		return Fields{}, false
	}
	fields := Fields{Amount: amount, Token: normalizeToken(m[2])}
	c.setFromChain(&fields, m[3])
	c.setToChain(&fields, m[4])
	return fields, true
}

func (c *Classifier) matchBridgeSimple(text string) (Fields, bool) {
	m := bridgeSimplePattern.FindStringSubmatch(text)
	if m == nil {
		return Fields{}, false
	}
	amount, ok := parseAmount(m[1])
	if !ok {
		return Fields{}, false
	}
	fields := Fields{Amount: amount, Token: normalizeToken(m[2])}
	c.setToChain(&fields, m[3])
	return fields, true
}

func (c *Classifier) matchBalance(text string) (Fields, bool) {
	m := balancePattern.FindStringSubmatch(text)
	if m == nil {
		m = balanceShortPattern.FindStringSubmatch(text)
	}
	if m == nil {
		return Fields{}, false
	}
	var fields Fields
	if m[1] != "" && c.tokenLike(m[1]) {
		fields.Token = normalizeToken(m[1])
	}
	if m[2] != "" {
		setChain(&fields, m[2])
	}
	return fields, true
}

func (c *Classifier) matchDCA(text string) (Fields, bool) {
	stripped := stripFillers(text)
	loc := dcaKeywordPattern.FindStringIndex(stripped)
	if loc == nil {
		return Fields{}, false
	}
	rest := stripped[loc[1]:]

	var fields Fields
	if m := dcaPairPattern.FindStringSubmatch(rest); m != nil && c.tokenLike(m[4]) && c.tokenLike(m[5]) {
		fields.Amount, fields.IsUSDAmount = pickAmount(m[1], m[2], m[3])
		fields.TokenIn = normalizeToken(m[4])
		fields.TokenOut = normalizeToken(m[5])
	} else if m := dcaSinglePattern.FindStringSubmatch(rest); m != nil && c.tokenLike(m[4]) {
		fields.Amount, fields.IsUSDAmount = pickAmount(m[1], m[2], m[3])
		fields.TokenOut = normalizeToken(m[4])
	} else {
		return Fields{}, false
	}
	if fields.Amount == nil {
		if m := usdAmountPattern.FindStringSubmatch(rest); m != nil {
			if amount, ok := parseAmount(m[1]); ok {
				fields.Amount = amount
				fields.IsUSDAmount = true
			}
		}
	}
	fields.Frequency = parseFrequency(rest)
	return fields, true
}

func (c *Classifier) matchSwap(text string) (Fields, bool) {
	var fields Fields
	body := text
	if loc := approvedPattern.FindStringIndex(body); loc != nil {
		fields.Approved = true
		body = body[loc[1]:]
	}
	lower := strings.ToLower(body)

	m := swapPattern.FindStringSubmatch(body)
	if m != nil && (c.tokenLike(m[4]) || c.tokenLike(m[5])) {
		fields.Amount, fields.IsUSDAmount = pickAmount(m[1], m[2], m[3])
		fields.TokenIn = normalizeToken(m[4])
		fields.TokenOut = normalizeToken(m[5])
		if m[6] != "" {
			setChain(&fields, m[6])
		}
		return fields, true
	}

	if fields.Approved || strings.HasPrefix(lower, "swap") {
		return fields, true
	}
	if swapKeywordPattern.MatchString(body) && c.anyWord(body, c.tokenLike) {
		return fields, true
	}
	return Fields{}, false
}

func (c *Classifier) matchPrice(text string) (Fields, bool) {
	lower := strings.ToLower(text)
	explicit := lower == "price" || strings.HasPrefix(lower, "price ") || strings.HasPrefix(lower, "p ")
	if !explicit && !(priceKeywordPattern.MatchString(text) && c.anyWord(text, c.knownToken)) {
		return Fields{}, false
	}

	fields := Fields{Currency: "usd"}
	body := text
	if m := currencyPattern.FindStringSubmatchIndex(body); m != nil {
		fields.Currency = strings.ToLower(body[m[2]:m[3]])
		body = body[:m[0]] + body[m[1]:]
	}
	if m := onChainPattern.FindStringSubmatchIndex(body); m != nil {
		if chain, err := id.ParseChain(body[m[2]:m[3]]); err == nil {
			fields.Chain = chain.Slug
			fields.ChainID = chain.ID
			body = body[:m[0]] + body[m[1]:]
		}
	}

	accept := c.knownToken
	if explicit {
		accept = c.tokenLike
	}
	for _, word := range words(body) {
		if accept(word) {
			fields.Tokens = append(fields.Tokens, normalizeToken(word))
		}
	}
	if len(fields.Tokens) > 0 {
		fields.Token = fields.Tokens[0]
	}
	return fields, true
}

func (c *Classifier) setFromChain(fields *Fields, raw string) {
	fields.FromChain = strings.ToLower(raw)
	if chain, err := id.ParseChain(raw); err == nil {
		fields.FromChain = chain.Slug
		fields.FromChainID = chain.ID
	}
}

// setToChain falls back to the configured destination when the named chain
// is unknown and records what the user asked for.
func (c *Classifier) setToChain(fields *Fields, raw string) {
	if chain, err := id.ParseChain(raw); err == nil {
		fields.ToChain = chain.Slug
		fields.ToChainID = chain.ID
		return
	}
	fields.ToChain = c.destination.Slug
	fields.ToChainID = c.destination.ID
	fields.ToChainDefaulted = true
	fields.RequestedToChain = strings.ToLower(raw)
}

func setChain(fields *Fields, raw string) {
	fields.Chain = strings.ToLower(raw)
	if chain, err := id.ParseChain(raw); err == nil {
		fields.Chain = chain.Slug
		fields.ChainID = chain.ID
	}
}

// tokenLike is the loose heuristic: a "$" ticker, an address, a known
// symbol, or a short alphanumeric word that is not a command word.
func (c *Classifier) tokenLike(word string) bool {
	if c.knownToken(word) {
		return true
	}
	w := strings.ToLower(strings.TrimSpace(word))
	if len(w) < 2 || len(w) > 11 {
		return false
	}
	if _, stop := notTokens[w]; stop {
		return false
	}
	if !isLetter(w[0]) {
		return false
	}
	for _, r := range w {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// knownToken is the strict heuristic used by the price keywords.
func (c *Classifier) knownToken(word string) bool {
	w := strings.TrimSpace(word)
	if len(w) > 1 && w[0] == '$' && isLetter(w[1]) {
		return true
	}
	if id.IsAddress(w) {
		return true
	}
	if _, stop := notTokens[strings.ToLower(w)]; stop {
		return false
	}
	return c.table.Known(w)
}

func (c *Classifier) anyWord(text string, pred func(string) bool) bool {
	for _, word := range words(text) {
		if pred(word) {
			return true
		}
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func normalize(text string) string {
	out := strings.Join(strings.Fields(text), " ")
	return strings.TrimRight(out, "?!. ")
}

func normalizeToken(raw string) string {
	tok := strings.TrimSpace(raw)
	if strings.HasPrefix(tok, "$") || id.IsAddress(tok) {
		return tok
	}
	return strings.ToUpper(tok)
}

func words(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '?', '!', '"', '\'', '(', ')':
			return ' '
		}
		return r
	}, text)
	return strings.Fields(cleaned)
}

func stripFillers(text string) string {
	out := strings.TrimSpace(text)
	for {
		lower := strings.ToLower(out)
		trimmed := false
		for _, filler := range dcaFillers {
			if strings.HasPrefix(lower, filler+" ") {
				out = strings.TrimSpace(out[len(filler):])
				trimmed = true
				break
			}
		}
		if !trimmed {
			return out
		}
	}
}

func parseAmount(raw string) (*decimal.Decimal, bool) {
	amount, err := id.ParseAmount(raw)
	if err != nil {
		return nil, false
	}
	return &amount, true
}

// pickAmount reads the "$N" or "N" alternatives of a pattern and reports
// whether the amount is in dollars.
func pickAmount(dollar, usdAmount, plainAmount string) (*decimal.Decimal, bool) {
	switch {
	case dollar != "" && usdAmount != "":
		if amount, ok := parseAmount(usdAmount); ok {
			return amount, true
		}
	case plainAmount != "":
		if amount, ok := parseAmount(plainAmount); ok {
			return amount, false
		}
	}
	return nil, false
}

func parseFrequency(text string) string {
	m := frequencyPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return strings.ToLower(m[1])
	}
	unit := strings.ToLower(m[3])
	if m[2] == "" || m[2] == "1" {
		return frequencyWords[unit]
	}
	return "every " + m[2] + " " + unit + "s"
}
