package intent

var confirmWords = setOf(
	"yes", "y", "yeah", "yep", "yup", "ok", "okay", "k", "confirm", "confirmed",
	"sure", "go ahead", "do it", "proceed", "approve", "lgtm",
)

var cancelWords = setOf(
	"no", "n", "nope", "nah", "cancel", "abort", "stop", "nevermind", "never mind",
)

var helpWords = setOf(
	"hi", "hello", "hey", "gm", "help", "/start", "/help", "menu", "commands",
	"what can you do", "what can you do?",
)

// dcaFillers are stripped from the front of DCA-style requests only.
var dcaFillers = []string{
	"please", "can you", "could you", "would you", "i want to", "i'd like to",
	"i would like to", "help me", "set up", "setup", "start", "create", "begin", "a", "an",
}

var frequencyWords = map[string]string{
	"hourly":  "hourly",
	"daily":   "daily",
	"weekly":  "weekly",
	"monthly": "monthly",
	"hour":    "hourly",
	"day":     "daily",
	"week":    "weekly",
	"month":   "monthly",
}

// notTokens are words the loose token heuristic must never treat as a
// ticker.
var notTokens = setOf(
	"a", "all", "an", "and", "any", "at", "balance", "bridge", "buy", "can",
	"convert", "cost", "daily", "dca", "do", "does", "dollar", "dollars", "each",
	"every", "exchange", "for", "from", "get", "hourly", "how", "i", "in", "into",
	"is", "it", "me", "monthly", "much", "my", "of", "on", "please", "price",
	"sell", "send", "some", "swap", "that", "the", "this", "to", "trade",
	"transfer", "usd", "want", "weekly", "what", "with", "worth", "you",
)

func setOf(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
