package oneinch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
)

func testRequest() providers.SwapQuoteRequest {
	return providers.SwapQuoteRequest{
		ChainID:         1,
		FromToken:       model.TokenIdentity{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18},
		ToToken:         model.TokenIdentity{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		AmountBaseUnits: "1000000000000000000",
		AmountDecimal:   "1",
		Sender:          "0x00000000000000000000000000000000000000aa",
	}
}

func TestQuoteSwapRequiresAPIKey(t *testing.T) {
	c := New(httpx.New(1*time.Second, 0), "")
	_, err := c.QuoteSwap(context.Background(), testRequest())
	if clierr.CodeOf(err) != clierr.CodeAuth {
		t.Fatalf("expected missing API key error, got %v", err)
	}
}

func TestQuoteSwapRequiresResolvedAddresses(t *testing.T) {
	req := testRequest()
	req.ToToken.Address = ""
	c := New(httpx.New(1*time.Second, 0), "test-key")
	if _, err := c.QuoteSwap(context.Background(), req); clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestQuoteSwapParsesDestinationAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/quote" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("missing bearer token")
		}
		_, _ = w.Write([]byte(`{"dstAmount":"3012345678","gas":150000}`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), "test-key")
	c.baseURL = srv.URL
	quote, err := c.QuoteSwap(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("QuoteSwap failed: %v", err)
	}
	if quote.EstimatedOut.AmountDecimal != "3012.345678" || quote.Provider != "1inch" {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestBuildSwapTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/swap" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("slippage") != "0.5" || r.URL.Query().Get("from") != common.HexToAddress("0x00000000000000000000000000000000000000aa").Hex() {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"dstAmount":"3012345678","tx":{"from":"0x00000000000000000000000000000000000000aa","to":"0x111111125421ca6dc452d289314280a0f8842a65","data":"0x12aa3caf","value":"1000000000000000000","gas":210000}}`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), "test-key")
	c.baseURL = srv.URL
	tx, err := c.BuildSwapTransaction(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("BuildSwapTransaction failed: %v", err)
	}
	if tx.To != common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65").Hex() || tx.Data != "0x12aa3caf" || tx.Gas != "210000" || tx.ChainID != 1 {
		t.Fatalf("unexpected tx: %+v", tx)
	}
}

func TestBuildSwapTransactionSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Bad Request","description":"insufficient liquidity","statusCode":400}`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), "test-key")
	c.baseURL = srv.URL
	_, err := c.BuildSwapTransaction(context.Background(), testRequest())
	e, ok := clierr.As(err)
	if !ok || e.Message != "insufficient liquidity" {
		t.Fatalf("expected provider message, got %v", err)
	}
}
