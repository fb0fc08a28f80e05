package handlers

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/registry"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

var erc20ABI = mustABI(registry.ERC20ABI)

// Transfer sends native or ERC-20 tokens to a 0x recipient. The transaction
// is built locally; no provider is involved.
type Transfer struct {
	deps Deps
}

func (h *Transfer) Handle(ctx context.Context, cmd intent.ExtractedCommand, mc router.MessageContext) router.HandlerResult {
	f := cmd.Fields
	if f.Token == "" {
		return router.Failure(clierr.New(clierr.CodeUsage, "Tell me what to send, e.g. \"send 10 USDC to 0x...\"."), nil)
	}
	if !common.IsHexAddress(f.Recipient) {
		return router.Failure(clierr.New(clierr.CodeUsage, "The recipient must be a 0x wallet address."), nil)
	}
	recipient := common.HexToAddress(f.Recipient)
	chainID, err := chainFor(f, mc)
	if err != nil {
		return router.Failure(err, nil)
	}

	token, err := resolveToken(ctx, h.deps.Tokens, f.Token, chainID)
	if err != nil {
		return router.Failure(err, missMetadata(f.Token, chainID))
	}
	amount, err := tokenAmount(ctx, h.deps.Prices, f, token, chainID)
	if err != nil {
		return router.Failure(err, nil)
	}
	units, err := baseUnits(amount, token.Decimals)
	if err != nil {
		return router.Failure(err, nil)
	}

	warnings := warningsOf(token)
	metadata := map[string]any{
		"token":     token,
		"recipient": recipient.Hex(),
		"chain_id":  chainID,
		"amount": model.AmountInfo{
			AmountBaseUnits: units,
			AmountDecimal:   amount.String(),
			Decimals:        token.Decimals,
		},
	}
	if len(warnings) > 0 {
		metadata["warnings"] = warnings
	}
	summary := fmt.Sprintf("Send %s %s to %s on %s.",
		formatAmount(amount), tokenLabel(token), shortAddress(recipient.Hex()), id.ChainName(chainID))

	if !mc.Confirmed {
		return router.AwaitConfirmation(withWarnings(summary+" "+confirmPrompt, warnings), metadata)
	}

	wallet, err := requireWallet(mc)
	if err != nil {
		return router.Failure(err, metadata)
	}
	tx, err := transferTransaction(chainID, wallet, token, recipient, units)
	if err != nil {
		return router.Failure(err, metadata)
	}
	metadata["transaction"] = tx
	return router.Success(withWarnings(summary+" Sign the transaction in your wallet to submit it.", warnings), metadata)
}

func transferTransaction(chainID int64, from string, token model.TokenIdentity, recipient common.Address, units string) (model.TransactionRequest, error) {
	amount, ok := new(big.Int).SetString(units, 10)
	if !ok {
		return model.TransactionRequest{}, clierr.New(clierr.CodeInternal, "invalid transfer amount")
	}
	if id.IsNativeAddress(token.Address) {
		return model.TransactionRequest{
			ChainID: chainID,
			From:    from,
			To:      recipient.Hex(),
			Data:    "0x",
			Value:   amount.String(),
		}, nil
	}
	data, err := erc20ABI.Pack("transfer", recipient, amount)
	if err != nil {
		return model.TransactionRequest{}, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
	}
	return model.TransactionRequest{
		ChainID: chainID,
		From:    from,
		To:      common.HexToAddress(token.Address).Hex(),
		Data:    hexutil.Encode(data),
		Value:   "0",
	}, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
