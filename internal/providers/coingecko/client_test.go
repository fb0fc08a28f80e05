package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
)

func TestLookupBySymbolPrefersRankedCoinOnChain(t *testing.T) {
	var coinCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") != "PEPE" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"coins":[
			{"id":"pepe-fake","name":"Pepe Fake","symbol":"pepe","market_cap_rank":0},
			{"id":"pepe","name":"Pepe","symbol":"PEPE","market_cap_rank":30},
			{"id":"pepecoin","name":"PepeCoin","symbol":"pepecoin","market_cap_rank":900}
		]}`))
	})
	mux.HandleFunc("/coins/pepe", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&coinCalls, 1)
		_, _ = w.Write([]byte(`{"id":"pepe","symbol":"pepe","name":"Pepe",
			"platforms":{"ethereum":"0x6982508145454ce325ddbe47a25d4ec3d2311933"},
			"detail_platforms":{"ethereum":{"decimal_place":18,"contract_address":"0x6982508145454ce325ddbe47a25d4ec3d2311933"}}}`))
	})
	mux.HandleFunc("/coins/pepe-fake", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unranked candidate must not be fetched before the ranked match succeeds")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), "")
	c.baseURL = srv.URL
	got, err := c.LookupBySymbol(context.Background(), "pepe", 1)
	if err != nil {
		t.Fatalf("LookupBySymbol failed: %v", err)
	}
	if got.Address != "0x6982508145454ce325ddbe47a25d4ec3d2311933" || got.Decimals != 18 || got.Source != model.SourceCoinGecko {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if atomic.LoadInt32(&coinCalls) != 1 {
		t.Fatalf("expected one coin detail call, got %d", coinCalls)
	}
}

func TestLookupBySymbolMissWhenNotOnChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"coins":[{"id":"foo","name":"Foo","symbol":"FOO","market_cap_rank":10}]}`))
	})
	mux.HandleFunc("/coins/foo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"foo","symbol":"foo","name":"Foo","platforms":{"ethereum":"0x0000000000000000000000000000000000000001"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), "")
	c.baseURL = srv.URL
	_, err := c.LookupBySymbol(context.Background(), "FOO", 534352)
	if !clierr.IsMiss(err) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestPriceSendsAPIKeyAndMatchesAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/token_price/scroll" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-cg-demo-api-key") != "demo-key" {
			t.Fatalf("missing api key header")
		}
		_, _ = w.Write([]byte(`{"0xd29687c813d741e2f938f4ac377128810e217b1b":{"usd":0.42}}`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), "demo-key")
	c.baseURL = srv.URL
	price, err := c.Price(context.Background(), providers.TokenRef{Symbol: "SCR", Address: "0xd29687c813D741E2F938F4aC377128810E217b1b"}, 534352)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if price != 0.42 {
		t.Fatalf("unexpected price: %v", price)
	}
}

func TestUnsupportedChainIsProviderFailure(t *testing.T) {
	c := New(httpx.New(time.Second, 0), "")
	_, err := c.LookupBySymbol(context.Background(), "ETH", 999999)
	if !clierr.IsProviderFailure(err) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}
