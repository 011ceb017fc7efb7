package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// complete fills the secrets that Defaults leaves empty.
func complete(cfg Config) Config {
	cfg.Chain.RPCURL = "https://polygon-rpc.example"
	cfg.Chain.ContractAddress = "0x1111111111111111111111111111111111111111"
	cfg.Chain.ResolverKey = "deadbeef"
	cfg.AI.APIKey = "sk-test"
	return cfg
}

func TestDefaultsValidateWithSecrets(t *testing.T) {
	cfg := complete(Defaults())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Engine.Workers = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"unknown mode", "chain: rpc_url", "ai: api_key", "redis: addr", "engine: workers"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateGNewsNeedsKey(t *testing.T) {
	cfg := complete(Defaults())
	cfg.Adapters.GNews.Enabled = true
	cfg.Adapters.GNews.APIKey = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "gnews.api_key") {
		t.Errorf("err = %v, want gnews.api_key complaint", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
mode = "server"
log_level = "debug"

[chain]
rpc_url = "https://polygon-rpc.example"
receipt_timeout = "90s"

[adapters.gnews]
enabled = true
api_key = "g-key"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "server" || cfg.LogLevel != "debug" {
		t.Errorf("top-level = %q/%q", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Chain.ReceiptTimeout.Duration != 90*time.Second {
		t.Errorf("receipt_timeout = %v", cfg.Chain.ReceiptTimeout.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" || cfg.AI.Model != "gpt-4o-mini" {
		t.Errorf("defaults lost: redis=%q model=%q", cfg.Redis.Addr, cfg.AI.Model)
	}
	if !cfg.Adapters.GNews.Enabled || cfg.Adapters.GNews.APIKey != "g-key" {
		t.Errorf("gnews = %+v", cfg.Adapters.GNews)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORACLEBOT_MODE", "worker")
	t.Setenv("ORACLEBOT_CHAIN_MAX_GAS_GWEI", "55.5")
	t.Setenv("ORACLEBOT_ENGINE_WORKERS", "8")
	t.Setenv("ORACLEBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ORACLEBOT_AI_TIMEOUT", "45s")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "worker" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Chain.MaxGasGwei != 55.5 {
		t.Errorf("max_gas_gwei = %v", cfg.Chain.MaxGasGwei)
	}
	if cfg.Engine.Workers != 8 {
		t.Errorf("workers = %d", cfg.Engine.Workers)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors = %v", cfg.Server.CORSOrigins)
	}
	if cfg.AI.Timeout.Duration != 45*time.Second {
		t.Errorf("ai timeout = %v", cfg.AI.Timeout.Duration)
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := complete(Defaults())
	cfg.Postgres.Password = "pg-pass"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"resolver_key":   red.Chain.ResolverKey,
		"ai api_key":     red.AI.APIKey,
		"pg password":    red.Postgres.Password,
		"s3 secret":      red.S3.SecretKey,
		"telegram token": red.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Errorf("%s not redacted: %q", name, got)
		}
	}
	// Original untouched.
	if cfg.AI.APIKey != "sk-test" {
		t.Errorf("original mutated: %q", cfg.AI.APIKey)
	}
	// Empty secrets stay empty rather than becoming "***".
	if red.Redis.Password != "" {
		t.Errorf("empty secret redacted: %q", red.Redis.Password)
	}
}
