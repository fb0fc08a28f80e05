package lifi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
)

type lifiRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
}

var (
	ethUSDC  = model.TokenIdentity{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6}
	baseUSDC = model.TokenIdentity{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6}
	ethETH   = model.TokenIdentity{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18}
)

func bridgeRequest() providers.BridgeQuoteRequest {
	return providers.BridgeQuoteRequest{
		FromChainID:     1,
		ToChainID:       8453,
		FromToken:       ethUSDC,
		ToToken:         baseUSDC,
		AmountBaseUnits: "1000000",
		AmountDecimal:   "1",
		Sender:          "0x00000000000000000000000000000000000000AA",
		Recipient:       "0x00000000000000000000000000000000000000BB",
		SlippageBps:     50,
	}
}

func TestQuoteBridge(t *testing.T) {
	quoteServer := newLiFiQuoteServer(t, "0x0000000000000000000000000000000000000ABC")
	defer quoteServer.Close()

	c := New(httpx.New(2*time.Second, 0), "", nil)
	c.baseURL = quoteServer.URL

	quote, err := c.QuoteBridge(context.Background(), bridgeRequest())
	if err != nil {
		t.Fatalf("QuoteBridge failed: %v", err)
	}
	if quote.Provider != "lifi" {
		t.Fatalf("unexpected provider: %s", quote.Provider)
	}
	if quote.EstimatedOut.AmountBaseUnits != "950000" || quote.EstimatedOut.AmountDecimal != "0.95" {
		t.Fatalf("unexpected estimated out: %+v", quote.EstimatedOut)
	}
	if quote.EstimatedFeeUSD != 1.0 {
		t.Fatalf("expected fee estimate of 1.0, got %f", quote.EstimatedFeeUSD)
	}
	if quote.Route != "across" {
		t.Fatalf("unexpected route: %s", quote.Route)
	}
}

func TestBuildBridgeTransactionAddsApproval(t *testing.T) {
	quoteServer := newLiFiQuoteServer(t, "0x0000000000000000000000000000000000000ABC")
	defer quoteServer.Close()
	rpcServer := newLiFiRPCServer(t, big.NewInt(0))
	defer rpcServer.Close()

	c := New(httpx.New(2*time.Second, 0), "", map[int64]string{1: rpcServer.URL})
	c.baseURL = quoteServer.URL

	tx, err := c.BuildBridgeTransaction(context.Background(), bridgeRequest())
	if err != nil {
		t.Fatalf("BuildBridgeTransaction failed: %v", err)
	}
	if tx.To != common.HexToAddress("0x0000000000000000000000000000000000000DDD").Hex() || tx.Data != "0x1234" || tx.Value != "0" || tx.ChainID != 1 {
		t.Fatalf("unexpected bridge tx: %+v", tx)
	}
	if tx.Gas != "300000" {
		t.Fatalf("expected gas limit to be decoded, got %q", tx.Gas)
	}
	if tx.Approval == nil {
		t.Fatal("expected approval transaction when allowance is zero")
	}
	if tx.Approval.To != ethUSDC.Address {
		t.Fatalf("approval must target the source token, got %s", tx.Approval.To)
	}
}

func TestBuildBridgeTransactionSkipsApprovalWhenAllowanceSufficient(t *testing.T) {
	quoteServer := newLiFiQuoteServer(t, "0x0000000000000000000000000000000000000ABC")
	defer quoteServer.Close()
	rpcServer := newLiFiRPCServer(t, big.NewInt(5_000_000))
	defer rpcServer.Close()

	c := New(httpx.New(2*time.Second, 0), "", map[int64]string{1: rpcServer.URL})
	c.baseURL = quoteServer.URL

	tx, err := c.BuildBridgeTransaction(context.Background(), bridgeRequest())
	if err != nil {
		t.Fatalf("BuildBridgeTransaction failed: %v", err)
	}
	if tx.Approval != nil {
		t.Fatalf("did not expect approval, got %+v", tx.Approval)
	}
}

func TestBuildSwapTransactionNativeInputSkipsApproval(t *testing.T) {
	quoteServer := newLiFiQuoteServer(t, "0x0000000000000000000000000000000000000ABC")
	defer quoteServer.Close()

	// The RPC endpoint is unreachable: a native input must never dial it.
	c := New(httpx.New(2*time.Second, 0), "", map[int64]string{1: "http://127.0.0.1:1"})
	c.baseURL = quoteServer.URL

	tx, err := c.BuildSwapTransaction(context.Background(), providers.SwapQuoteRequest{
		ChainID:         1,
		FromToken:       ethETH,
		ToToken:         ethUSDC,
		AmountBaseUnits: "1000000000000000000",
		AmountDecimal:   "1",
		Sender:          "0x00000000000000000000000000000000000000AA",
	})
	if err != nil {
		t.Fatalf("BuildSwapTransaction failed: %v", err)
	}
	if tx.Approval != nil {
		t.Fatal("native input must not need an approval")
	}
}

func TestQuoteRequiresResolvedAddresses(t *testing.T) {
	c := New(httpx.New(time.Second, 0), "", nil)
	req := bridgeRequest()
	req.FromToken.Address = ""
	if _, err := c.QuoteBridge(context.Background(), req); err == nil {
		t.Fatal("expected error for unresolved token")
	}
}

func newLiFiQuoteServer(t *testing.T, approvalAddress string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("slippage") != "0.005" {
			t.Fatalf("unexpected slippage: %s", r.URL.Query().Get("slippage"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{
			"estimate": {
				"toAmount": "950000",
				"toAmountMin": "940000",
				"approvalAddress": %q,
				"feeCosts": [{"amountUSD":"0.40"}],
				"gasCosts": [{"amountUSD":"0.60"}],
				"executionDuration": 120
			},
			"toolDetails": {"name":"across"},
			"tool": "across",
			"transactionRequest": {
				"to": "0x0000000000000000000000000000000000000DDD",
				"from": "0x00000000000000000000000000000000000000AA",
				"data": "0x1234",
				"value": "0x0",
				"gasLimit": "0x493e0",
				"chainId": 1
			}
		}`, approvalAddress)
	}))
}

func newLiFiRPCServer(t *testing.T, allowance *big.Int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req lifiRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Method {
		case "eth_call":
			encoded, err := lifiERC20ABI.Methods["allowance"].Outputs.Pack(allowance)
			if err != nil {
				t.Fatalf("pack allowance response: %v", err)
			}
			writeLiFiRPCResult(w, req.ID, "0x"+hex.EncodeToString(encoded))
		default:
			writeLiFiRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
		}
	}))
}

func writeLiFiRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, rawLiFiID(id), result)
}

func writeLiFiRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawLiFiID(id), code, message)
}

func rawLiFiID(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}
