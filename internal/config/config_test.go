package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DEFICHAT_OUTPUT", "json")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.PendingTTL != 30*time.Minute {
		t.Fatalf("unexpected pending ttl: %s", settings.PendingTTL)
	}
	if settings.TokenTTL != 30*time.Minute || settings.PriceTTL != 5*time.Minute {
		t.Fatalf("unexpected cache ttls: token=%s price=%s", settings.TokenTTL, settings.PriceTTL)
	}
	if settings.DefaultDestinationChain != "ethereum" || settings.DefaultChainID != 1 {
		t.Fatalf("unexpected chain defaults: %+v", settings)
	}
	if settings.Retries != 2 {
		t.Fatalf("expected default retries, got %d", settings.Retries)
	}
	if filepath.Base(filepath.Dir(settings.StatePath)) != "defichat" {
		t.Fatalf("unexpected state path %s", settings.StatePath)
	}
}

func TestLoadFileSections(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	body := `
state:
  pending_ttl: 10m
intent:
  default_chain: base
  default_destination_chain: Scroll
  enabled: [swap, price]
rpc:
  scroll: https://rpc.example.org
providers:
  oneinch:
    api_key_env: TEST_ONEINCH_KEY
  llm:
    api_key: llm-key
    model: test-model
log:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_ONEINCH_KEY", "from-env")

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.PendingTTL != 10*time.Minute {
		t.Fatalf("unexpected pending ttl: %s", settings.PendingTTL)
	}
	if settings.DefaultChainID != 8453 {
		t.Fatalf("expected base as default chain, got %d", settings.DefaultChainID)
	}
	if settings.DefaultDestinationChain != "scroll" {
		t.Fatalf("unexpected destination default %q", settings.DefaultDestinationChain)
	}
	if len(settings.EnableIntents) != 2 || settings.EnableIntents[0] != "swap" {
		t.Fatalf("unexpected intents allowlist %#v", settings.EnableIntents)
	}
	if settings.RPCOverrides[534352] != "https://rpc.example.org" {
		t.Fatalf("unexpected rpc overrides %#v", settings.RPCOverrides)
	}
	if settings.OneInchAPIKey != "from-env" {
		t.Fatalf("expected api_key_env indirection, got %q", settings.OneInchAPIKey)
	}
	if settings.LLMAPIKey != "llm-key" || settings.LLMModel != "test-model" {
		t.Fatalf("unexpected llm settings: key=%q model=%q", settings.LLMAPIKey, settings.LLMModel)
	}
	if settings.LogLevel != "debug" || settings.LogFormat != "json" {
		t.Fatalf("unexpected log settings: %s/%s", settings.LogLevel, settings.LogFormat)
	}
}

func TestLoadRejectsUnknownDestinationChain(t *testing.T) {
	t.Setenv("DEFICHAT_DEFAULT_DESTINATION_CHAIN", "narnia")
	_, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Retries: -1})
	if err == nil {
		t.Fatal("expected error for unknown destination chain")
	}
}

func TestLoadEnableIntentsFlag(t *testing.T) {
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), EnableIntents: "swap, bridge,,", Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(settings.EnableIntents) != 2 || settings.EnableIntents[1] != "bridge" {
		t.Fatalf("unexpected intents %#v", settings.EnableIntents)
	}
}
