package taikoswap

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
)

const taikoChainID = 167000

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func taikoRequest() providers.SwapQuoteRequest {
	return providers.SwapQuoteRequest{
		ChainID:         taikoChainID,
		FromToken:       model.TokenIdentity{Symbol: "USDC", Address: "0x07d83526730c7438048D55A4fc0b850e2aaB6f0b", Decimals: 6, ChainID: taikoChainID},
		ToToken:         model.TokenIdentity{Symbol: "WETH", Address: "0xA51894664A773981C6C112C43ce576f315d5b1B6", Decimals: 18, ChainID: taikoChainID},
		AmountBaseUnits: "1000000",
		AmountDecimal:   "1",
	}
}

func TestQuoteSwapChoosesBestFeeRoute(t *testing.T) {
	server := newMockRPCServer(t, false)
	defer server.Close()

	c := New(map[int64]string{taikoChainID: server.URL})
	quote, err := c.QuoteSwap(context.Background(), taikoRequest())
	if err != nil {
		t.Fatalf("QuoteSwap failed: %v", err)
	}
	if quote.Provider != "taikoswap" || quote.ChainID != taikoChainID {
		t.Fatalf("unexpected quote header: %+v", quote)
	}
	if !strings.Contains(quote.Route, "fee-500") {
		t.Fatalf("expected best fee tier 500 in route, got %s", quote.Route)
	}
	if quote.EstimatedOut.AmountBaseUnits != "2000" {
		t.Fatalf("expected estimated out 2000, got %s", quote.EstimatedOut.AmountBaseUnits)
	}
}

func TestQuoteSwapUnsupportedChain(t *testing.T) {
	req := taikoRequest()
	req.ChainID = 1
	_, err := New(nil).QuoteSwap(context.Background(), req)
	if clierr.CodeOf(err) != clierr.CodeUnsupported {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestQuoteSwapRejectsNativeToken(t *testing.T) {
	req := taikoRequest()
	req.FromToken = model.TokenIdentity{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18, ChainID: taikoChainID}
	_, err := New(nil).QuoteSwap(context.Background(), req)
	if clierr.CodeOf(err) != clierr.CodeUnsupported {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestBuildSwapTransactionAddsApprovalWhenNeeded(t *testing.T) {
	server := newMockRPCServer(t, true)
	defer server.Close()

	req := taikoRequest()
	req.Sender = "0x00000000000000000000000000000000000000AA"
	req.SlippageBps = 100
	tx, err := New(map[int64]string{taikoChainID: server.URL}).BuildSwapTransaction(context.Background(), req)
	if err != nil {
		t.Fatalf("BuildSwapTransaction failed: %v", err)
	}
	if tx.ChainID != taikoChainID || tx.To != "0x1A0c3a0Cfd1791FAC7798FA2b05208B66aaadfeD" {
		t.Fatalf("unexpected swap target: %+v", tx)
	}
	if tx.Approval == nil {
		t.Fatal("expected approval for zero allowance")
	}
	if !strings.HasPrefix(tx.Approval.Data, "0x095ea7b3") || !strings.EqualFold(tx.Approval.To, req.FromToken.Address) {
		t.Fatalf("unexpected approval: %+v", tx.Approval)
	}

	method, ok := routerABI.Methods["exactInputSingle"]
	if !ok {
		t.Fatal("router abi missing exactInputSingle")
	}
	if !strings.HasPrefix(tx.Data, "0x"+hex.EncodeToString(method.ID)) {
		t.Fatalf("unexpected swap selector: %s", tx.Data[:10])
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(tx.Data, "0x"))
	if err != nil {
		t.Fatalf("decode calldata: %v", err)
	}
	args, err := method.Inputs.Unpack(raw[4:])
	if err != nil {
		t.Fatalf("unpack calldata: %v", err)
	}
	params := *abi.ConvertType(args[0], new(exactInputSingleParams)).(*exactInputSingleParams)
	if params.AmountOutMinimum.String() != "1980" || params.Fee.Int64() != 500 {
		t.Fatalf("expected fee 500 and 1%% slippage floor 1980, got fee=%s min=%s", params.Fee, params.AmountOutMinimum)
	}
	if !strings.EqualFold(params.Recipient.Hex(), req.Sender) {
		t.Fatalf("unexpected recipient: %s", params.Recipient.Hex())
	}
}

func TestBuildSwapTransactionRequiresSender(t *testing.T) {
	_, err := New(nil).BuildSwapTransaction(context.Background(), taikoRequest())
	if clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestBuildSwapTransactionRejectsSlippage(t *testing.T) {
	req := taikoRequest()
	req.Sender = "0x00000000000000000000000000000000000000AA"
	req.SlippageBps = 10_000
	_, err := New(nil).BuildSwapTransaction(context.Background(), req)
	if clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func newMockRPCServer(t *testing.T, includeAllowance bool) *httptest.Server {
	t.Helper()

	var mu sync.Mutex
	callCount := 0

	handler := func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Method {
		case "eth_call":
			mu.Lock()
			callCount++
			index := callCount
			mu.Unlock()

			if includeAllowance && index == 5 {
				allowancePayload, err := erc20ABI.Methods["allowance"].Outputs.Pack(big.NewInt(0))
				if err != nil {
					t.Fatalf("pack allowance output: %v", err)
				}
				writeRPCResult(w, req.ID, "0x"+hex.EncodeToString(allowancePayload))
				return
			}

			amountOut := big.NewInt(0)
			switch index {
			case 1:
				amountOut = big.NewInt(1000)
			case 2:
				amountOut = big.NewInt(2000)
			case 3:
				amountOut = big.NewInt(1500)
			default:
				amountOut = big.NewInt(500)
			}
			out, err := quoterABI.Methods["quoteExactInputSingle"].Outputs.Pack(
				amountOut,
				big.NewInt(0), // sqrtPriceX96After
				uint32(0),     // initializedTicksCrossed
				big.NewInt(70_000),
			)
			if err != nil {
				t.Fatalf("pack quote output: %v", err)
			}
			writeRPCResult(w, req.ID, "0x"+hex.EncodeToString(out))
		default:
			writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
		}
	}

	return httptest.NewServer(http.HandlerFunc(handler))
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, rawIDOrDefault(id), result)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawIDOrDefault(id), code, message)
}

func rawIDOrDefault(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}
