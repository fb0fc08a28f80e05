package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	CoinGeckoBaseURL    = "https://api.coingecko.com/api/v3"
	CoinGeckoProBaseURL = "https://pro-api.coingecko.com/api/v3"
	DexScreenerBaseURL  = "https://api.dexscreener.com"
	DefiLlamaCoinsURL   = "https://coins.llama.fi"
	OneInchBaseURL      = "https://api.1inch.dev/swap/v6.0"
	LiFiBaseURL         = "https://li.quest/v1"
	AcrossBaseURL       = "https://app.across.to/api"
	AnthropicBaseURL    = "https://api.anthropic.com/v1"
)

// DefaultBaseURL returns the production endpoint for a provider name.
func DefaultBaseURL(provider string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "coingecko":
		return CoinGeckoBaseURL, true
	case "dexscreener":
		return DexScreenerBaseURL, true
	case "defillama":
		return DefiLlamaCoinsURL, true
	case "1inch", "oneinch":
		return OneInchBaseURL, true
	case "lifi":
		return LiFiBaseURL, true
	case "across":
		return AcrossBaseURL, true
	case "llm", "anthropic":
		return AnthropicBaseURL, true
	default:
		return "", false
	}
}

// IsAllowedBaseURL reports whether a configured endpoint override is safe to
// use: https anywhere, or plain http on loopback for local testing.
func IsAllowedBaseURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
