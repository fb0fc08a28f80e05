package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type ProviderInfo struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	RequiresKey   bool     `json:"requires_key"`
	Capabilities  []string `json:"capabilities"`
	KeyEnvVarName string   `json:"key_env_var,omitempty"`
}

// TokenSource records which table or provider produced a TokenIdentity.
type TokenSource string

const (
	SourcePredefined  TokenSource = "predefined"
	SourceCache       TokenSource = "cache"
	SourceAlias       TokenSource = "alias"
	SourceCoinGecko   TokenSource = "coingecko"
	SourceDexScreener TokenSource = "dexscreener"
	SourceDefiLlama   TokenSource = "defillama"
	SourceOnchain     TokenSource = "onchain"
	SourceAddressOnly TokenSource = "address_only"
	SourceCustom      TokenSource = "custom"
)

// TokenIdentity is a resolved token reference. Address is empty only when
// Verified is false.
type TokenIdentity struct {
	Address   string      `json:"address,omitempty"`
	Symbol    string      `json:"symbol"`
	Name      string      `json:"name,omitempty"`
	Decimals  int         `json:"decimals,omitempty"`
	Verified  bool        `json:"verified"`
	Source    TokenSource `json:"source"`
	Warnings  []string    `json:"warnings,omitempty"`
	ChainID   int64       `json:"chain_id"`
	ChainName string      `json:"chain_name,omitempty"`
}

func (t TokenIdentity) Resolved() bool {
	return t.Address != ""
}

// PriceQuote is a USD price lookup. A nil Price means no provider had one.
type PriceQuote struct {
	Symbol   string    `json:"symbol"`
	ChainID  int64     `json:"chain_id"`
	Price    *float64  `json:"price"`
	Decimals int       `json:"decimals"`
	Source   string    `json:"source"`
	AsOf     time.Time `json:"as_of"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

// TransactionRequest is an unsigned transaction forwarded verbatim to the
// client wallet. Approval, when set, must be sent first.
type TransactionRequest struct {
	ChainID  int64               `json:"chain_id"`
	From     string              `json:"from,omitempty"`
	To       string              `json:"to"`
	Data     string              `json:"data"`
	Value    string              `json:"value"`
	Gas      string              `json:"gas,omitempty"`
	Approval *TransactionRequest `json:"approval,omitempty"`
}

type SwapQuote struct {
	Provider        string     `json:"provider"`
	ChainID         int64      `json:"chain_id"`
	FromToken       string     `json:"from_token"`
	ToToken         string     `json:"to_token"`
	InputAmount     AmountInfo `json:"input_amount"`
	EstimatedOut    AmountInfo `json:"estimated_out"`
	EstimatedGasUSD float64    `json:"estimated_gas_usd"`
	PriceImpactPct  float64    `json:"price_impact_pct"`
	Route           string     `json:"route"`
	SourceURL       string     `json:"source_url,omitempty"`
	FetchedAt       string     `json:"fetched_at"`
}

type BridgeQuote struct {
	Provider        string     `json:"provider"`
	FromChainID     int64      `json:"from_chain_id"`
	ToChainID       int64      `json:"to_chain_id"`
	FromToken       string     `json:"from_token"`
	ToToken         string     `json:"to_token"`
	InputAmount     AmountInfo `json:"input_amount"`
	EstimatedOut    AmountInfo `json:"estimated_out"`
	EstimatedFeeUSD float64    `json:"estimated_fee_usd"`
	EstimatedTimeS  int64      `json:"estimated_time_s"`
	Route           string     `json:"route"`
	SourceURL       string     `json:"source_url,omitempty"`
	FetchedAt       string     `json:"fetched_at"`
}

type Balance struct {
	Wallet  string     `json:"wallet"`
	ChainID int64      `json:"chain_id"`
	Token   string     `json:"token"`
	Address string     `json:"address"`
	Amount  AmountInfo `json:"amount"`
}
