package intent

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Intent string

const (
	Swap     Intent = "Swap"
	Bridge   Intent = "Bridge"
	Transfer Intent = "Transfer"
	Balance  Intent = "Balance"
	DCA      Intent = "DCA"
	Price    Intent = "Price"
	Confirm  Intent = "Confirm"
	Cancel   Intent = "Cancel"
	Help     Intent = "Help"
	Unknown  Intent = "Unknown"
)

var all = []Intent{Swap, Bridge, Transfer, Balance, DCA, Price, Confirm, Cancel, Help, Unknown}

func All() []Intent {
	return append([]Intent(nil), all...)
}

// Parse accepts an intent name in any case.
func Parse(raw string) (Intent, bool) {
	for _, candidate := range all {
		if strings.EqualFold(string(candidate), strings.TrimSpace(raw)) {
			return candidate, true
		}
	}
	return Unknown, false
}

// AwaitsConfirmation reports whether the intent is a multi-step flow that
// may leave a pending action behind.
func (i Intent) AwaitsConfirmation() bool {
	switch i {
	case Swap, Bridge, Transfer, DCA:
		return true
	default:
		return false
	}
}

type ConfidenceSource string

const (
	SourcePattern ConfidenceSource = "pattern"
	SourceLLM     ConfidenceSource = "llm"
)

// Fields holds the slots a rule captured. Tokens are upper-cased unless they
// carry the "$" custom marker or are contract addresses. A zero chain id
// means the request's current chain.
type Fields struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	IsUSDAmount bool             `json:"is_usd_amount,omitempty"`
	Token       string           `json:"token,omitempty"`
	TokenIn     string           `json:"token_in,omitempty"`
	TokenOut    string           `json:"token_out,omitempty"`
	Recipient   string           `json:"recipient,omitempty"`

	Chain       string `json:"chain,omitempty"`
	ChainID     int64  `json:"chain_id,omitempty"`
	FromChain   string `json:"from_chain,omitempty"`
	FromChainID int64  `json:"from_chain_id,omitempty"`
	ToChain     string `json:"to_chain,omitempty"`
	ToChainID   int64  `json:"to_chain_id,omitempty"`

	// ToChainDefaulted is set when the named destination was not recognized
	// and the configured default was used instead.
	ToChainDefaulted bool   `json:"to_chain_defaulted,omitempty"`
	RequestedToChain string `json:"requested_to_chain,omitempty"`

	Approved  bool     `json:"approved,omitempty"`
	Frequency string   `json:"frequency,omitempty"`
	Tokens    []string `json:"tokens,omitempty"`
	Currency  string   `json:"currency,omitempty"`
}

// ExtractedCommand is the classifier output. Rule names the pattern that
// matched and is empty for literals and the LLM fallback.
type ExtractedCommand struct {
	Intent           Intent           `json:"intent"`
	RawText          string           `json:"raw_text"`
	Fields           Fields           `json:"fields"`
	ConfidenceSource ConfidenceSource `json:"confidence_source"`
	Rule             string           `json:"rule,omitempty"`
}
