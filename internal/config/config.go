// Package config defines the top-level configuration for the resolver and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ORACLEBOT_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	AI       AIConfig       `toml:"ai"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Adapters AdaptersConfig `toml:"adapters"`
	Engine   EngineConfig   `toml:"engine"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds RPC endpoint, contract, and resolver account parameters.
type ChainConfig struct {
	RPCURL          string `toml:"rpc_url"`
	ContractAddress string `toml:"contract_address"`
	ResolverKey     string `toml:"resolver_key"`
	// EncryptedKeyPath and KeyPassword load the resolver key from an
	// encrypted file instead of resolver_key.
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ChainID          int64  `toml:"chain_id"`
	GasLimit         uint64 `toml:"gas_limit"`
	// MaxGasGwei is the gas price ceiling in gwei; 0 disables the gate.
	MaxGasGwei          float64  `toml:"max_gas_gwei"`
	ReceiptTimeout      duration `toml:"receipt_timeout"`
	ReceiptPollInterval duration `toml:"receipt_poll_interval"`
}

// AIConfig holds the chat completion API parameters for verdict analysis.
type AIConfig struct {
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	Timeout     duration `toml:"timeout"`
	Temperature float64  `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
	// MinConfidence is the verdict floor of 10000; below it no submission
	// happens.
	MinConfidence int `toml:"min_confidence"`
}

// PostgresConfig holds PostgreSQL connection parameters for the audit trail.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for evidence.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FetchConfig holds the resilient HTTP client parameters shared by every
// adapter unless overridden per provider.
type FetchConfig struct {
	Timeout           duration `toml:"timeout"`
	MaxAttempts       int      `toml:"max_attempts"`
	InitialDelay      duration `toml:"initial_delay"`
	BackoffMultiplier float64  `toml:"backoff_multiplier"`
	MaxDelay          duration `toml:"max_delay"`
	CacheTTL          duration `toml:"cache_ttl"`
}

// ProviderConfig holds one data source provider's credentials and limits.
type ProviderConfig struct {
	Enabled           bool   `toml:"enabled"`
	BaseURL           string `toml:"base_url"`
	APIKey            string `toml:"api_key"`
	Priority          int    `toml:"priority"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	RequestsPerHour   int    `toml:"requests_per_hour"`
}

// AdaptersConfig holds the fetch defaults plus per-provider settings.
type AdaptersConfig struct {
	Fetch     FetchConfig    `toml:"fetch"`
	CoinGecko ProviderConfig `toml:"coingecko"`
	SportsDB  ProviderConfig `toml:"sportsdb"`
	OpenMeteo ProviderConfig `toml:"openmeteo"`
	// GeocodeURL overrides the Open-Meteo geocoding host.
	GeocodeURL string         `toml:"geocode_url"`
	GNews      ProviderConfig `toml:"gnews"`
	// NewsMaxArticles caps how many articles the news adapter keeps.
	NewsMaxArticles int `toml:"news_max_articles"`
}

// EngineConfig holds resolution pipeline parameters.
type EngineConfig struct {
	Workers      int      `toml:"workers"`
	FetchTimeout duration `toml:"fetch_timeout"`
	LockTTL      duration `toml:"lock_ttl"`
	// ArchiveRetentionDays controls how long attempt rows stay in Postgres
	// before being archived to S3; 0 disables archiving.
	ArchiveRetentionDays int `toml:"archive_retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled      bool     `toml:"enabled"`
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	APIKey       string   `toml:"api_key"`
	RateLimitRPS float64  `toml:"rate_limit_rps"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:             137,
			GasLimit:            500_000,
			MaxGasGwei:          200,
			ReceiptTimeout:      duration{2 * time.Minute},
			ReceiptPollInterval: duration{3 * time.Second},
		},
		AI: AIConfig{
			Model:         "gpt-4o-mini",
			Timeout:       duration{60 * time.Second},
			Temperature:   0.1,
			MaxTokens:     1200,
			MinConfidence: 8000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "oraclebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "oraclebot-evidence",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Adapters: AdaptersConfig{
			Fetch: FetchConfig{
				Timeout:           duration{30 * time.Second},
				MaxAttempts:       3,
				InitialDelay:      duration{time.Second},
				BackoffMultiplier: 2.0,
				MaxDelay:          duration{10 * time.Second},
				CacheTTL:          duration{5 * time.Minute},
			},
			CoinGecko: ProviderConfig{Enabled: true, Priority: 10, RequestsPerMinute: 30},
			SportsDB:  ProviderConfig{Enabled: true, Priority: 20, RequestsPerMinute: 30},
			OpenMeteo: ProviderConfig{Enabled: true, Priority: 30, RequestsPerMinute: 60},
			GNews:     ProviderConfig{Enabled: false, Priority: 50, RequestsPerMinute: 10},

			NewsMaxArticles: 5,
		},
		Engine: EngineConfig{
			Workers:              4,
			FetchTimeout:         duration{30 * time.Second},
			LockTTL:              duration{5 * time.Minute},
			ArchiveRetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000"},
			RateLimitRPS: 10,
		},
		Notify: NotifyConfig{
			Events: []string{"resolution.resolved", "resolution.failed", "resolution.gas_deferred"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"resolve": true,
	"worker":  true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: resolve, worker, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ContractAddress == "" {
		errs = append(errs, "chain: contract_address must not be empty")
	}
	if c.Chain.ResolverKey == "" && c.Chain.EncryptedKeyPath == "" {
		errs = append(errs, "chain: either resolver_key or encrypted_key_path must be set")
	}
	if c.Chain.EncryptedKeyPath != "" && c.Chain.KeyPassword == "" {
		errs = append(errs, "chain: key_password is required when encrypted_key_path is set")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.MaxGasGwei < 0 {
		errs = append(errs, "chain: max_gas_gwei must be >= 0")
	}

	// AI
	if c.AI.APIKey == "" {
		errs = append(errs, "ai: api_key must not be empty")
	}
	if c.AI.MinConfidence < 0 || c.AI.MinConfidence > 10000 {
		errs = append(errs, fmt.Sprintf("ai: min_confidence must be 0-10000, got %d", c.AI.MinConfidence))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Adapters
	if c.Adapters.Fetch.MaxAttempts < 1 {
		errs = append(errs, "adapters: fetch.max_attempts must be >= 1")
	}
	if c.Adapters.GNews.Enabled && c.Adapters.GNews.APIKey == "" {
		errs = append(errs, "adapters: gnews.api_key is required when gnews is enabled")
	}
	if !c.Adapters.CoinGecko.Enabled && !c.Adapters.SportsDB.Enabled &&
		!c.Adapters.OpenMeteo.Enabled && !c.Adapters.GNews.Enabled {
		errs = append(errs, "adapters: at least one provider must be enabled")
	}

	// Engine
	if c.Engine.Workers < 1 {
		errs = append(errs, "engine: workers must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
