package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/ggonzalez94/defi-chat/internal/cache"
	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/handlers"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/pending"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/providers/across"
	"github.com/ggonzalez94/defi-chat/internal/providers/coingecko"
	"github.com/ggonzalez94/defi-chat/internal/providers/defillama"
	"github.com/ggonzalez94/defi-chat/internal/providers/dexscreener"
	"github.com/ggonzalez94/defi-chat/internal/providers/lifi"
	"github.com/ggonzalez94/defi-chat/internal/providers/llm"
	"github.com/ggonzalez94/defi-chat/internal/providers/onchain"
	"github.com/ggonzalez94/defi-chat/internal/providers/oneinch"
	"github.com/ggonzalez94/defi-chat/internal/providers/taikoswap"
	"github.com/ggonzalez94/defi-chat/internal/registry"
	"github.com/ggonzalez94/defi-chat/internal/resolve"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

// providerSet holds every provider client. Building it does no I/O.
type providerSet struct {
	gecko   *coingecko.Client
	dex     *dexscreener.Client
	llama   *defillama.Client
	chain   *onchain.Client
	oneInch *oneinch.Client
	lifi    *lifi.Client
	across  *across.Client
	taiko   *taikoswap.Client
	llm     *llm.Client
}

func (s *runtimeState) ensureProviders() (*providerSet, error) {
	if s.providers != nil {
		return s.providers, nil
	}
	settings := s.settings
	httpClient := httpx.New(settings.Timeout, settings.Retries)
	set := &providerSet{
		gecko:   coingecko.New(httpClient, settings.CoinGeckoAPIKey),
		dex:     dexscreener.New(httpClient),
		llama:   defillama.New(httpClient),
		chain:   onchain.New(settings.RPCOverrides),
		oneInch: oneinch.New(httpClient, settings.OneInchAPIKey),
		lifi:    lifi.New(httpClient, settings.LiFiAPIKey, settings.RPCOverrides),
		across:  across.New(httpClient),
		taiko:   taikoswap.New(settings.RPCOverrides),
	}
	if settings.LLMAPIKey != "" {
		if settings.LLMBaseURL != "" && !registry.IsAllowedBaseURL(settings.LLMBaseURL) {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("llm base url must be https (or loopback http): %s", settings.LLMBaseURL))
		}
		// The extractor gets its own client so the longer LLM budget does not
		// widen every provider call.
		llmHTTP := httpx.New(settings.LLMTimeout, settings.Retries)
		set.llm = llm.New(llmHTTP, settings.LLMAPIKey, settings.LLMModel).WithBaseURL(settings.LLMBaseURL)
	}
	s.providers = set
	return set, nil
}

func (p *providerSet) infos() []model.ProviderInfo {
	items := []providers.Provider{p.gecko, p.dex, p.llama, p.chain, p.oneInch, p.lifi, p.across, p.taiko}
	out := make([]model.ProviderInfo, 0, len(items)+1)
	for _, item := range items {
		out = append(out, item.Info())
	}
	if p.llm != nil {
		out = append(out, p.llm.Info())
	} else {
		out = append(out, llm.New(nil, "", "").Info())
	}
	return out
}

// ensureResolvers builds the token and price cascades over the token cache.
// A cache that cannot be opened falls back to memory with a warning.
func (s *runtimeState) ensureResolvers() error {
	if s.tokens != nil {
		return nil
	}
	set, err := s.ensureProviders()
	if err != nil {
		return err
	}
	var kv cache.KV = cache.NewMemoryStore()
	if s.settings.CacheEnabled {
		store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
		if err != nil {
			s.log().Warn("token cache unavailable", "path", s.settings.CachePath, "error", err)
			s.warn("token cache unavailable; using an in-memory cache")
		} else {
			if err := store.Prune(); err != nil {
				s.log().Warn("token cache prune failed", "error", err)
			}
			s.tokenCache = store
			kv = store
		}
	}

	s.tokens = resolve.NewTokenResolver(resolve.TokenResolverOptions{
		Cache:            kv,
		SymbolProviders:  []providers.SymbolProvider{set.gecko, set.dex},
		AddressProviders: []providers.AddressProvider{set.gecko, set.dex, set.llama, set.chain},
		ProviderTimeout:  s.settings.Timeout,
		SymbolTTL:        s.settings.TokenTTL,
		Logger:           s.log(),
	})
	s.prices = resolve.NewPriceResolver(resolve.PriceResolverOptions{
		Table:           s.tokens.Table(),
		Tokens:          s.tokens,
		Cache:           kv,
		Providers:       []providers.PriceProvider{set.gecko, set.llama, set.dex},
		ProviderTimeout: s.settings.Timeout,
		TTL:             s.settings.PriceTTL,
		Logger:          s.log(),
		Now:             s.runner.now,
	})
	return nil
}

// ensurePending opens the state store. When it cannot be opened the store is
// still returned, backed by a KV that fails every call, so confirmations
// degrade to StateError while one-shot commands keep working.
func (s *runtimeState) ensurePending() *pending.Store {
	if s.pending != nil {
		return s.pending
	}
	var kv cache.KV
	store, err := cache.Open(s.settings.StatePath, s.settings.StateLockPath)
	if err != nil {
		s.log().Warn("pending state store unavailable", "path", s.settings.StatePath, "error", err)
		s.warn("confirmations are unavailable: state store could not be opened")
		kv = unavailableKV{err: err}
	} else {
		s.stateStore = store
		kv = store
	}
	s.pending = pending.NewStoreWithClock(kv, s.settings.PendingTTL, s.runner.now)
	return s.pending
}

func (s *runtimeState) newClassifier() (*intent.Classifier, error) {
	set, err := s.ensureProviders()
	if err != nil {
		return nil, err
	}
	opts := intent.Options{
		LLMTimeout:              s.settings.LLMTimeout,
		DefaultDestinationChain: s.settings.DefaultDestinationChain,
		Logger:                  s.log(),
	}
	if s.tokens != nil {
		opts.Table = s.tokens.Table()
	}
	if set.llm != nil {
		opts.Extractor = set.llm
	}
	return intent.New(opts), nil
}

func (s *runtimeState) ensureService() (*router.Service, error) {
	if s.service != nil {
		return s.service, nil
	}
	if err := s.ensureResolvers(); err != nil {
		return nil, err
	}
	set, err := s.ensureProviders()
	if err != nil {
		return nil, err
	}
	store := s.ensurePending()
	classifier, err := s.newClassifier()
	if err != nil {
		return nil, err
	}

	handlerSet := handlers.All(handlers.Deps{
		Tokens:       s.tokens,
		Prices:       s.prices,
		Swaps:        []providers.SwapProvider{set.oneInch, set.lifi, set.taiko},
		Bridges:      []providers.BridgeProvider{set.lifi, set.across},
		Balances:     set.chain,
		Pending:      store,
		SlippageBps:  s.settings.SlippageBps,
		QuoteTimeout: quoteTimeout(s.settings.Timeout),
		Logger:       s.log(),
		Now:          s.runner.now,
	})
	r := router.New(router.Options{
		Handlers:  handlerSet,
		Pending:   store,
		Extractor: classifier,
		Allowlist: s.settings.EnableIntents,
		Logger:    s.log(),
	})
	s.service = router.NewService(classifier, r, s.settings.DefaultChainID, s.log())
	return s.service, nil
}

// quoteTimeout leaves room for one retry of a provider call.
func quoteTimeout(providerTimeout time.Duration) time.Duration {
	if providerTimeout <= 0 {
		return handlers.DefaultQuoteTimeout
	}
	if d := providerTimeout + providerTimeout/2; d > handlers.DefaultQuoteTimeout {
		return d
	}
	return handlers.DefaultQuoteTimeout
}

// unavailableKV stands in for a state store that could not be opened.
type unavailableKV struct {
	err error
}

var errStateUnavailable = errors.New("state store unavailable")

func (u unavailableKV) cause() error {
	if u.err != nil {
		return u.err
	}
	return errStateUnavailable
}

func (u unavailableKV) Get(string) (cache.Result, error) { return cache.Result{}, u.cause() }
func (u unavailableKV) Set(string, []byte, time.Duration) error { return u.cause() }
func (u unavailableKV) Delete(string) error { return u.cause() }
func (u unavailableKV) Keys(string) ([]string, error) { return nil, u.cause() }
