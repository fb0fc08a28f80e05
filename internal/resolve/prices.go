package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ggonzalez94/defi-chat/internal/cache"
	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
)

const DefaultPriceTTL = 5 * time.Minute

// TokenLookup is the part of TokenResolver the price cascade needs.
type TokenLookup interface {
	Resolve(ctx context.Context, reference string, chainID int64) model.TokenIdentity
}

type PriceResolverOptions struct {
	Table           *id.TokenTable
	Tokens          TokenLookup
	Cache           cache.KV
	Providers       []providers.PriceProvider
	ProviderTimeout time.Duration
	TTL             time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
}

// PriceResolver returns USD prices. Stablecoins are pinned at 1.0 and only
// successful lookups are cached.
type PriceResolver struct {
	table     *id.TokenTable
	tokens    TokenLookup
	cache     cache.KV
	providers []providers.PriceProvider
	timeout   time.Duration
	ttl       time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewPriceResolver(opts PriceResolverOptions) *PriceResolver {
	r := &PriceResolver{
		table:     opts.Table,
		tokens:    opts.Tokens,
		cache:     opts.Cache,
		providers: opts.Providers,
		timeout:   opts.ProviderTimeout,
		ttl:       opts.TTL,
		log:       opts.Logger,
		now:       opts.Now,
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
	if r.ttl <= 0 {
		r.ttl = DefaultPriceTTL
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// GetPrice returns a quote whose Price is nil when every provider missed.
// Decimals are always populated.
func (r *PriceResolver) GetPrice(ctx context.Context, symbol string, chainID int64) model.PriceQuote {
	ref := strings.TrimSpace(symbol)
	byAddress := id.IsAddress(ref)
	canonical := r.table.Canonical(ref)
	if byAddress {
		canonical = strings.ToLower(ref)
	}

	if !byAddress {
		if decimals, ok := r.table.Stablecoin(canonical, chainID); ok {
			one := 1.0
			return model.PriceQuote{Symbol: canonical, ChainID: chainID, Price: &one, Decimals: decimals, Source: "stablecoin", AsOf: r.now().UTC()}
		}
	}

	key := priceCacheKey(canonical, chainID)
	if quote, ok := r.cached(key); ok {
		return quote
	}

	decimals := r.table.DefaultDecimals(canonical, chainID)
	var token *model.TokenIdentity
	for _, provider := range r.providers {
		if ctx.Err() != nil {
			break
		}
		name := provider.Info().Name
		tokenRef := providers.TokenRef{Symbol: canonical, Decimals: decimals}
		if provider.RequiresAddress() {
			if token == nil {
				resolved := r.resolveToken(ctx, ref, chainID)
				token = &resolved
				if resolved.Decimals > 0 {
					decimals = resolved.Decimals
				}
				if resolved.Symbol != "" {
					canonical = strings.ToUpper(resolved.Symbol)
				}
			}
			if !token.Resolved() {
				r.log.Debug("price provider skipped without address", "provider", name, "symbol", canonical, "chain_id", chainID)
				continue
			}
			tokenRef = providers.TokenRef{Symbol: canonical, Address: r.priceAddress(*token, chainID), Decimals: decimals}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		price, err := provider.Price(callCtx, tokenRef, chainID)
		cancel()
		if err != nil {
			if clierr.IsMiss(err) {
				r.log.Debug("price provider miss", "provider", name, "op", "price", "symbol", canonical, "chain_id", chainID)
			} else {
				r.log.Warn("price provider failed", "provider", name, "op", "price", "symbol", canonical, "chain_id", chainID, "error", err)
			}
			continue
		}
		if price <= 0 {
			continue
		}

		quote := model.PriceQuote{Symbol: canonical, ChainID: chainID, Price: &price, Decimals: decimals, Source: name, AsOf: r.now().UTC()}
		r.store(key, quote)
		return quote
	}

	return model.PriceQuote{Symbol: canonical, ChainID: chainID, Decimals: decimals, AsOf: r.now().UTC()}
}

func (r *PriceResolver) resolveToken(ctx context.Context, ref string, chainID int64) model.TokenIdentity {
	if r.tokens == nil {
		return model.TokenIdentity{}
	}
	return r.tokens.Resolve(ctx, ref, chainID)
}

// priceAddress maps the native sentinel to the chain's wrapped gas token,
// which is what address-keyed price APIs list.
func (r *PriceResolver) priceAddress(token model.TokenIdentity, chainID int64) string {
	if !id.IsNativeAddress(token.Address) {
		return token.Address
	}
	if wrapped, ok := r.table.Predefined("W"+id.NativeSymbol(chainID), chainID); ok {
		return wrapped.Address
	}
	return token.Address
}

func (r *PriceResolver) cached(key string) (model.PriceQuote, bool) {
	res, err := r.cache.Get(key)
	if err != nil {
		r.log.Warn("price cache read failed", "key", key, "error", err)
		return model.PriceQuote{}, false
	}
	if !res.Hit {
		return model.PriceQuote{}, false
	}
	var quote model.PriceQuote
	if err := json.Unmarshal(res.Value, &quote); err != nil || quote.Price == nil {
		return model.PriceQuote{}, false
	}
	return quote, true
}

func (r *PriceResolver) store(key string, quote model.PriceQuote) {
	if quote.Price == nil {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return
	}
	if err := r.cache.Set(key, payload, r.ttl); err != nil {
		r.log.Warn("price cache write failed", "key", key, "error", err)
	}
}

func priceCacheKey(symbol string, chainID int64) string {
	return fmt.Sprintf("price:%s:%d", symbol, chainID)
}
