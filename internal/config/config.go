package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/defi-chat/internal/id"
)

type GlobalFlags struct {
	ConfigPath    string
	JSON          bool
	Plain         bool
	Select        string
	ResultsOnly   bool
	EnableIntents string
	Timeout       string
	Retries       int
	NoCache       bool
	LogLevel      string
}

type Settings struct {
	OutputMode    string
	SelectFields  []string
	ResultsOnly   bool
	EnableIntents []string
	Timeout       time.Duration
	LLMTimeout    time.Duration
	Retries       int

	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
	StatePath     string
	StateLockPath string
	PendingTTL    time.Duration
	TokenTTL      time.Duration
	PriceTTL      time.Duration

	DefaultChainID          int64
	DefaultDestinationChain string
	SlippageBps             int64

	CoinGeckoAPIKey string
	OneInchAPIKey   string
	LiFiAPIKey      string
	LLMAPIKey       string
	LLMModel        string
	LLMBaseURL      string
	RPCOverrides    map[int64]string

	LogLevel  string
	LogFormat string
}

type keyConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Cache   struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		TokenTTL string `yaml:"token_ttl"`
		PriceTTL string `yaml:"price_ttl"`
	} `yaml:"cache"`
	State struct {
		Path       string `yaml:"path"`
		LockPath   string `yaml:"lock_path"`
		PendingTTL string `yaml:"pending_ttl"`
	} `yaml:"state"`
	Intent struct {
		DefaultChain            string   `yaml:"default_chain"`
		DefaultDestinationChain string   `yaml:"default_destination_chain"`
		Enabled                 []string `yaml:"enabled"`
	} `yaml:"intent"`
	Swap struct {
		SlippageBps *int64 `yaml:"slippage_bps"`
	} `yaml:"swap"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	RPC       map[string]string `yaml:"rpc"`
	Providers struct {
		CoinGecko keyConfig `yaml:"coingecko"`
		OneInch   keyConfig `yaml:"oneinch"`
		LiFi      keyConfig `yaml:"lifi"`
		LLM       struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			Model     string `yaml:"model"`
			BaseURL   string `yaml:"base_url"`
			Timeout   string `yaml:"timeout"`
		} `yaml:"llm"`
	} `yaml:"providers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.LLMTimeout <= 0 {
		settings.LLMTimeout = 30 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.PendingTTL <= 0 {
		settings.PendingTTL = 30 * time.Minute
	}
	if settings.SlippageBps <= 0 {
		settings.SlippageBps = 50
	}
	if _, err := id.ParseChain(settings.DefaultDestinationChain); err != nil {
		return Settings{}, fmt.Errorf("default destination chain: %w", err)
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:              "json",
		Timeout:                 10 * time.Second,
		LLMTimeout:              30 * time.Second,
		Retries:                 2,
		CacheEnabled:            true,
		CachePath:               cachePath,
		CacheLockPath:           lockPath,
		StatePath:               filepath.Join(cacheDir, "state.db"),
		StateLockPath:           filepath.Join(cacheDir, "state.lock"),
		PendingTTL:              30 * time.Minute,
		TokenTTL:                30 * time.Minute,
		PriceTTL:                5 * time.Minute,
		DefaultChainID:          1,
		DefaultDestinationChain: "ethereum",
		SlippageBps:             50,
		RPCOverrides:            map[int64]string{},
		LogLevel:                "warn",
		LogFormat:               "text",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := os.Getenv("DEFICHAT_CONFIG"); v != "" {
		return v, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "defichat", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "defichat")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := setDuration(&settings.Timeout, cfg.Timeout, "config timeout"); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if err := setDuration(&settings.TokenTTL, cfg.Cache.TokenTTL, "config cache.token_ttl"); err != nil {
		return err
	}
	if err := setDuration(&settings.PriceTTL, cfg.Cache.PriceTTL, "config cache.price_ttl"); err != nil {
		return err
	}
	if cfg.State.Path != "" {
		settings.StatePath = cfg.State.Path
	}
	if cfg.State.LockPath != "" {
		settings.StateLockPath = cfg.State.LockPath
	}
	if err := setDuration(&settings.PendingTTL, cfg.State.PendingTTL, "config state.pending_ttl"); err != nil {
		return err
	}
	if cfg.Intent.DefaultChain != "" {
		chain, err := id.ParseChain(cfg.Intent.DefaultChain)
		if err != nil {
			return fmt.Errorf("config intent.default_chain: %w", err)
		}
		settings.DefaultChainID = chain.ID
	}
	if cfg.Intent.DefaultDestinationChain != "" {
		settings.DefaultDestinationChain = strings.ToLower(cfg.Intent.DefaultDestinationChain)
	}
	if len(cfg.Intent.Enabled) > 0 {
		settings.EnableIntents = cfg.Intent.Enabled
	}
	if cfg.Swap.SlippageBps != nil {
		settings.SlippageBps = *cfg.Swap.SlippageBps
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = strings.ToLower(cfg.Log.Level)
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = strings.ToLower(cfg.Log.Format)
	}
	for name, url := range cfg.RPC {
		chain, err := id.ParseChain(name)
		if err != nil {
			return fmt.Errorf("config rpc.%s: %w", name, err)
		}
		settings.RPCOverrides[chain.ID] = url
	}

	applyKey(&settings.CoinGeckoAPIKey, cfg.Providers.CoinGecko)
	applyKey(&settings.OneInchAPIKey, cfg.Providers.OneInch)
	applyKey(&settings.LiFiAPIKey, cfg.Providers.LiFi)
	applyKey(&settings.LLMAPIKey, keyConfig{APIKey: cfg.Providers.LLM.APIKey, APIKeyEnv: cfg.Providers.LLM.APIKeyEnv})
	if cfg.Providers.LLM.Model != "" {
		settings.LLMModel = cfg.Providers.LLM.Model
	}
	if cfg.Providers.LLM.BaseURL != "" {
		settings.LLMBaseURL = cfg.Providers.LLM.BaseURL
	}
	if err := setDuration(&settings.LLMTimeout, cfg.Providers.LLM.Timeout, "config providers.llm.timeout"); err != nil {
		return err
	}

	return nil
}

func applyKey(dst *string, cfg keyConfig) {
	if cfg.APIKey != "" {
		*dst = cfg.APIKey
	}
	if cfg.APIKeyEnv != "" {
		*dst = os.Getenv(cfg.APIKeyEnv)
	}
}

func setDuration(dst *time.Duration, raw, label string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	*dst = d
	return nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv("DEFICHAT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("DEFICHAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("DEFICHAT_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.LLMTimeout = d
		}
	}
	if v := os.Getenv("DEFICHAT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("DEFICHAT_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("DEFICHAT_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("DEFICHAT_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("DEFICHAT_STATE_PATH"); v != "" {
		settings.StatePath = v
	}
	if v := os.Getenv("DEFICHAT_STATE_LOCK_PATH"); v != "" {
		settings.StateLockPath = v
	}
	if v := os.Getenv("DEFICHAT_PENDING_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PendingTTL = d
		}
	}
	if v := os.Getenv("DEFICHAT_CHAIN"); v != "" {
		chain, err := id.ParseChain(v)
		if err != nil {
			return fmt.Errorf("DEFICHAT_CHAIN: %w", err)
		}
		settings.DefaultChainID = chain.ID
	}
	if v := os.Getenv("DEFICHAT_DEFAULT_DESTINATION_CHAIN"); v != "" {
		settings.DefaultDestinationChain = strings.ToLower(v)
	}
	if v := os.Getenv("DEFICHAT_SLIPPAGE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.SlippageBps = n
		}
	}
	if v := os.Getenv("DEFICHAT_COINGECKO_API_KEY"); v != "" {
		settings.CoinGeckoAPIKey = v
	}
	if v := os.Getenv("DEFICHAT_1INCH_API_KEY"); v != "" {
		settings.OneInchAPIKey = v
	}
	if v := os.Getenv("DEFICHAT_LIFI_API_KEY"); v != "" {
		settings.LiFiAPIKey = v
	}
	if v := os.Getenv("DEFICHAT_LLM_API_KEY"); v != "" {
		settings.LLMAPIKey = v
	}
	if v := os.Getenv("DEFICHAT_LLM_MODEL"); v != "" {
		settings.LLMModel = v
	}
	if v := os.Getenv("DEFICHAT_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("DEFICHAT_LOG_FORMAT"); v != "" {
		settings.LogFormat = strings.ToLower(v)
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := splitList(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if allowed := splitList(flags.EnableIntents); len(allowed) > 0 {
		settings.EnableIntents = allowed
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	switch settings.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error")
	}
	if settings.LogFormat != "text" && settings.LogFormat != "json" {
		return fmt.Errorf("log format must be text or json")
	}

	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
