package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/registry"
)

var erc20ABI = mustABI(registry.ERC20ABI)

// Client reads ERC20 metadata and balances straight from chain RPC.
type Client struct {
	rpcOverrides map[int64]string
}

var (
	_ providers.AddressProvider = (*Client)(nil)
	_ providers.BalanceReader   = (*Client)(nil)
)

func New(rpcOverrides map[int64]string) *Client {
	overrides := make(map[int64]string, len(rpcOverrides))
	for chainID, url := range rpcOverrides {
		overrides[chainID] = url
	}
	return &Client{rpcOverrides: overrides}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "onchain",
		Type:         "token+balance",
		RequiresKey:  false,
		Capabilities: []string{"token.address", "balance.read"},
	}
}

func (c *Client) LookupByAddress(ctx context.Context, address string, chainID int64) (model.TokenIdentity, error) {
	if !common.IsHexAddress(address) {
		return model.TokenIdentity{}, clierr.New(clierr.CodeUsage, "invalid token address")
	}
	client, err := c.dial(ctx, chainID)
	if err != nil {
		return model.TokenIdentity{}, err
	}
	defer client.Close()

	token := common.HexToAddress(address)
	symbol, err := callString(ctx, client, token, "symbol")
	if err != nil {
		return model.TokenIdentity{}, err
	}
	decimals, err := callDecimals(ctx, client, token)
	if err != nil {
		return model.TokenIdentity{}, err
	}
	// name() is optional in practice; keep going without it.
	name, _ := callString(ctx, client, token, "name")

	return model.TokenIdentity{
		Address:   token.Hex(),
		Symbol:    strings.ToUpper(symbol),
		Name:      name,
		Decimals:  decimals,
		Verified:  true,
		Source:    model.SourceOnchain,
		ChainID:   chainID,
		ChainName: id.ChainName(chainID),
	}, nil
}

// Balance returns the wallet balance in token units. An empty or native
// sentinel address reads the chain's gas token.
func (c *Client) Balance(ctx context.Context, wallet string, token model.TokenIdentity, chainID int64) (decimal.Decimal, error) {
	if !common.IsHexAddress(wallet) {
		return decimal.Zero, clierr.New(clierr.CodeUsage, "invalid wallet address")
	}
	client, err := c.dial(ctx, chainID)
	if err != nil {
		return decimal.Zero, err
	}
	defer client.Close()

	owner := common.HexToAddress(wallet)
	if token.Address == "" || id.IsNativeAddress(token.Address) {
		raw, err := client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return decimal.Zero, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
		}
		return decimal.NewFromBigInt(raw, -18), nil
	}

	tokenAddr := common.HexToAddress(token.Address)
	decimals := token.Decimals
	if decimals <= 0 {
		if decimals, err = callDecimals(ctx, client, tokenAddr); err != nil {
			return decimal.Zero, err
		}
	}
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeInternal, "pack balanceOf call", err)
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeUnavailable, "read token balance", err)
	}
	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(values) == 0 {
		return decimal.Zero, clierr.Wrap(clierr.CodeUnavailable, "decode token balance", err)
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, clierr.New(clierr.CodeUnavailable, "invalid balanceOf response type")
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)), nil
}

func (c *Client) dial(ctx context.Context, chainID int64) (*ethclient.Client, error) {
	rpcURL, err := registry.ResolveRPCURL(c.rpcOverrides, chainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnsupported, "resolve rpc url", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("connect chain %d rpc", chainID), err)
	}
	return client, nil
}

func callString(ctx context.Context, client *ethclient.Client, token common.Address, method string) (string, error) {
	values, err := call(ctx, client, token, method)
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", clierr.New(clierr.CodeResolutionMiss, fmt.Sprintf("token has no %s()", method))
	}
	return strings.TrimSpace(s), nil
}

func callDecimals(ctx context.Context, client *ethclient.Client, token common.Address) (int, error) {
	values, err := call(ctx, client, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, clierr.New(clierr.CodeResolutionMiss, "token has no decimals()")
	}
	return int(d), nil
}

func call(ctx context.Context, client *ethclient.Client, token common.Address, method string) ([]any, error) {
	data, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method+" call", err)
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "call "+method, err)
	}
	// Empty return data means no contract (or no such method) at the address.
	if len(out) == 0 {
		return nil, clierr.New(clierr.CodeResolutionMiss, "no ERC20 contract at address")
	}
	values, err := erc20ABI.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return nil, clierr.New(clierr.CodeResolutionMiss, "decode "+method+" response")
	}
	return values, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
