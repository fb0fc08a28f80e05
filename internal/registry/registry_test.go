package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestERC20ABIParses(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		t.Fatalf("failed to parse abi json: %v", err)
	}
	for _, method := range []string{"name", "symbol", "decimals", "balanceOf", "transfer"} {
		if _, ok := parsed.Methods[method]; !ok {
			t.Fatalf("missing method %s", method)
		}
	}
}

func TestDefaultRPCURL(t *testing.T) {
	if rpc, ok := DefaultRPCURL(534352); !ok || rpc == "" {
		t.Fatalf("expected scroll rpc default, got ok=%v rpc=%q", ok, rpc)
	}
	if _, ok := DefaultRPCURL(999999); ok {
		t.Fatal("did not expect rpc default for unknown chain")
	}
}

func TestResolveRPCURLPrefersOverride(t *testing.T) {
	got, err := ResolveRPCURL(map[int64]string{8453: " http://127.0.0.1:8545 "}, 8453)
	if err != nil || got != "http://127.0.0.1:8545" {
		t.Fatalf("unexpected override resolution: %q err=%v", got, err)
	}
	got, err = ResolveRPCURL(nil, 1)
	if err != nil || got == "" {
		t.Fatalf("expected default rpc, got %q err=%v", got, err)
	}
	if _, err := ResolveRPCURL(nil, 999999); err == nil {
		t.Fatal("expected error for unknown chain without override")
	}
}

func TestIsAllowedBaseURL(t *testing.T) {
	cases := map[string]bool{
		"https://api.coingecko.com/api/v3": true,
		"http://127.0.0.1:9000":            true,
		"http://localhost:8080/v1":         true,
		"http://api.coingecko.com":         false,
		"ftp://127.0.0.1":                  false,
		"not a url":                        false,
	}
	for endpoint, want := range cases {
		if got := IsAllowedBaseURL(endpoint); got != want {
			t.Fatalf("IsAllowedBaseURL(%q) = %v, want %v", endpoint, got, want)
		}
	}
	if _, ok := DefaultBaseURL("1inch"); !ok {
		t.Fatal("expected 1inch default base url")
	}
}

func TestUniswapV3ContractsTaikoOnly(t *testing.T) {
	quoter, router, ok := UniswapV3Contracts(167000)
	if !ok || quoter == "" || router == "" {
		t.Fatalf("expected taiko contracts, got ok=%v quoter=%q router=%q", ok, quoter, router)
	}
	if _, _, ok := UniswapV3Contracts(1); ok {
		t.Fatal("did not expect uniswap v3 contracts for ethereum")
	}
	for _, raw := range []string{UniswapV3QuoterV2ABI, UniswapV3RouterABI} {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi: %v", err)
		}
	}
}
