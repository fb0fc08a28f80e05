package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-chat/internal/cache"
	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
)

const (
	DefaultProviderTimeout = 10 * time.Second
	DefaultSymbolTTL       = 30 * time.Minute
)

// TokenResolverOptions configures a TokenResolver. ProviderTimeout bounds
// each provider call independently.
type TokenResolverOptions struct {
	Table            *id.TokenTable
	Cache            cache.KV
	SymbolProviders  []providers.SymbolProvider
	AddressProviders []providers.AddressProvider
	ProviderTimeout  time.Duration
	SymbolTTL        time.Duration
	Logger           *slog.Logger
}

// TokenResolver turns a symbol, alias, "$" ticker or contract address into a
// TokenIdentity. Resolve never fails: unresolved references come back
// unverified with a warning.
type TokenResolver struct {
	table            *id.TokenTable
	cache            cache.KV
	symbolProviders  []providers.SymbolProvider
	addressProviders []providers.AddressProvider
	timeout          time.Duration
	symbolTTL        time.Duration
	log              *slog.Logger
}

func NewTokenResolver(opts TokenResolverOptions) *TokenResolver {
	r := &TokenResolver{
		table:            opts.Table,
		cache:            opts.Cache,
		symbolProviders:  opts.SymbolProviders,
		addressProviders: opts.AddressProviders,
		timeout:          opts.ProviderTimeout,
		symbolTTL:        opts.SymbolTTL,
		log:              opts.Logger,
	}
	if r.table == nil {
		r.table = id.DefaultTokenTable()
	}
	if r.cache == nil {
		r.cache = cache.NewMemoryStore()
	}
	if r.timeout <= 0 {
		r.timeout = DefaultProviderTimeout
	}
	if r.symbolTTL <= 0 {
		r.symbolTTL = DefaultSymbolTTL
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

func (r *TokenResolver) Table() *id.TokenTable {
	return r.table
}

func (r *TokenResolver) Resolve(ctx context.Context, reference string, chainID int64) model.TokenIdentity {
	ref := strings.TrimSpace(reference)
	if id.IsAddress(ref) {
		return r.resolveAddress(ctx, ref, chainID)
	}

	custom := strings.HasPrefix(ref, "$")
	symbol := r.table.Canonical(ref)
	if symbol == "" {
		return unresolved(ref, chainID)
	}

	if tok, ok := r.table.Predefined(symbol, chainID); ok {
		return fromTable(tok, model.SourcePredefined, chainID)
	}
	if tok, ok := r.table.Pinned(symbol, chainID); ok {
		return fromTable(tok, model.SourceAlias, chainID)
	}
	if custom {
		return unresolved(symbol, chainID)
	}

	key := symbolCacheKey(symbol, chainID)
	if identity, ok := r.cached(key); ok {
		return identity
	}

	for _, provider := range r.symbolProviders {
		if ctx.Err() != nil {
			break
		}
		name := provider.Info().Name
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		identity, err := provider.LookupBySymbol(callCtx, symbol, chainID)
		cancel()
		if err != nil {
			r.logFailure(name, "lookup_by_symbol", "symbol", symbol, chainID, err)
			continue
		}
		if !id.IsAddress(identity.Address) {
			r.log.Debug("token provider returned no address", "provider", name, "symbol", symbol, "chain_id", chainID)
			continue
		}
		identity = r.complete(identity, symbol, chainID)
		r.store(key, identity, r.symbolTTL)
		return identity
	}

	return unresolved(symbol, chainID)
}

func (r *TokenResolver) resolveAddress(ctx context.Context, raw string, chainID int64) model.TokenIdentity {
	address := common.HexToAddress(raw).Hex()
	if tok, ok := r.table.ByAddress(chainID, address); ok {
		return fromTable(tok, model.SourcePredefined, chainID)
	}

	key := addressCacheKey(address, chainID)
	if identity, ok := r.cached(key); ok {
		return identity
	}

	for _, provider := range r.addressProviders {
		if ctx.Err() != nil {
			break
		}
		name := provider.Info().Name
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		identity, err := provider.LookupByAddress(callCtx, address, chainID)
		cancel()
		if err != nil {
			r.logFailure(name, "lookup_by_address", "address", address, chainID, err)
			continue
		}
		identity.Address = address
		identity = r.complete(identity, identity.Symbol, chainID)
		// Contract metadata is immutable, so partial results are kept forever.
		r.store(key, identity, 0)
		return identity
	}

	return model.TokenIdentity{
		Address:   address,
		Decimals:  18,
		Verified:  false,
		Source:    model.SourceAddressOnly,
		ChainID:   chainID,
		ChainName: id.ChainName(chainID),
		Warnings: []string{
			fmt.Sprintf("Could not verify token %s on %s; assuming 18 decimals. Double-check the contract before confirming.", address, id.ChainName(chainID)),
		},
	}
}

func (r *TokenResolver) complete(identity model.TokenIdentity, symbol string, chainID int64) model.TokenIdentity {
	identity.Address = common.HexToAddress(identity.Address).Hex()
	if identity.Symbol == "" {
		identity.Symbol = symbol
	}
	if identity.Decimals <= 0 {
		identity.Decimals = r.table.DefaultDecimals(identity.Symbol, chainID)
	}
	identity.Verified = true
	identity.ChainID = chainID
	identity.ChainName = id.ChainName(chainID)
	return identity
}

func (r *TokenResolver) cached(key string) (model.TokenIdentity, bool) {
	res, err := r.cache.Get(key)
	if err != nil {
		r.log.Warn("token cache read failed", "key", key, "error", err)
		return model.TokenIdentity{}, false
	}
	if !res.Hit {
		return model.TokenIdentity{}, false
	}
	var identity model.TokenIdentity
	if err := json.Unmarshal(res.Value, &identity); err != nil {
		return model.TokenIdentity{}, false
	}
	identity.Source = model.SourceCache
	return identity, true
}

func (r *TokenResolver) store(key string, identity model.TokenIdentity, ttl time.Duration) {
	payload, err := json.Marshal(identity)
	if err != nil {
		return
	}
	if err := r.cache.Set(key, payload, ttl); err != nil {
		r.log.Warn("token cache write failed", "key", key, "error", err)
	}
}

func (r *TokenResolver) logFailure(provider, op, refKind, ref string, chainID int64, err error) {
	if clierr.IsMiss(err) {
		r.log.Debug("token provider miss", "provider", provider, "op", op, refKind, ref, "chain_id", chainID)
		return
	}
	r.log.Warn("token provider failed", "provider", provider, "op", op, refKind, ref, "chain_id", chainID, "error", err)
}

func fromTable(tok id.Token, source model.TokenSource, chainID int64) model.TokenIdentity {
	return model.TokenIdentity{
		Address:   tok.Address,
		Symbol:    tok.Symbol,
		Name:      tok.Name,
		Decimals:  tok.Decimals,
		Verified:  true,
		Source:    source,
		ChainID:   chainID,
		ChainName: id.ChainName(chainID),
	}
}

func unresolved(symbol string, chainID int64) model.TokenIdentity {
	chainName := id.ChainName(chainID)
	return model.TokenIdentity{
		Symbol:    symbol,
		Verified:  false,
		Source:    model.SourceCustom,
		ChainID:   chainID,
		ChainName: chainName,
		Warnings: []string{
			fmt.Sprintf("Could not find token %s on %s. Send its contract address (0x...) to use it.", symbol, chainName),
		},
	}
}

func symbolCacheKey(symbol string, chainID int64) string {
	return fmt.Sprintf("sym:%s:%d", strings.ToUpper(symbol), chainID)
}

func addressCacheKey(address string, chainID int64) string {
	return fmt.Sprintf("addr:%s:%d", strings.ToLower(address), chainID)
}
