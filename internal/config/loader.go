package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORACLEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORACLEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ORACLEBOT_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ContractAddress, "ORACLEBOT_CHAIN_CONTRACT_ADDRESS")
	setStr(&cfg.Chain.ResolverKey, "ORACLEBOT_CHAIN_RESOLVER_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "ORACLEBOT_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "ORACLEBOT_CHAIN_KEY_PASSWORD")
	setInt64(&cfg.Chain.ChainID, "ORACLEBOT_CHAIN_ID")
	setUint64(&cfg.Chain.GasLimit, "ORACLEBOT_CHAIN_GAS_LIMIT")
	setFloat64(&cfg.Chain.MaxGasGwei, "ORACLEBOT_CHAIN_MAX_GAS_GWEI")
	setDuration(&cfg.Chain.ReceiptTimeout, "ORACLEBOT_CHAIN_RECEIPT_TIMEOUT")
	setDuration(&cfg.Chain.ReceiptPollInterval, "ORACLEBOT_CHAIN_RECEIPT_POLL_INTERVAL")

	// ── AI ──
	setStr(&cfg.AI.APIKey, "ORACLEBOT_AI_API_KEY")
	setStr(&cfg.AI.APIKey, "OPENAI_API_KEY") // compatibility alias
	setStr(&cfg.AI.BaseURL, "ORACLEBOT_AI_BASE_URL")
	setStr(&cfg.AI.Model, "ORACLEBOT_AI_MODEL")
	setDuration(&cfg.AI.Timeout, "ORACLEBOT_AI_TIMEOUT")
	setFloat64(&cfg.AI.Temperature, "ORACLEBOT_AI_TEMPERATURE")
	setInt(&cfg.AI.MaxTokens, "ORACLEBOT_AI_MAX_TOKENS")
	setInt(&cfg.AI.MinConfidence, "ORACLEBOT_AI_MIN_CONFIDENCE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ORACLEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ORACLEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORACLEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORACLEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORACLEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORACLEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORACLEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ORACLEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ORACLEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ORACLEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ORACLEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORACLEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORACLEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORACLEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORACLEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORACLEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ORACLEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORACLEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORACLEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORACLEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORACLEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ORACLEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ORACLEBOT_S3_FORCE_PATH_STYLE")

	// ── Adapters ──
	setDuration(&cfg.Adapters.Fetch.Timeout, "ORACLEBOT_ADAPTERS_FETCH_TIMEOUT")
	setInt(&cfg.Adapters.Fetch.MaxAttempts, "ORACLEBOT_ADAPTERS_FETCH_MAX_ATTEMPTS")
	setDuration(&cfg.Adapters.Fetch.CacheTTL, "ORACLEBOT_ADAPTERS_FETCH_CACHE_TTL")
	setBool(&cfg.Adapters.CoinGecko.Enabled, "ORACLEBOT_ADAPTERS_COINGECKO_ENABLED")
	setStr(&cfg.Adapters.CoinGecko.APIKey, "ORACLEBOT_ADAPTERS_COINGECKO_API_KEY")
	setBool(&cfg.Adapters.SportsDB.Enabled, "ORACLEBOT_ADAPTERS_SPORTSDB_ENABLED")
	setStr(&cfg.Adapters.SportsDB.APIKey, "ORACLEBOT_ADAPTERS_SPORTSDB_API_KEY")
	setBool(&cfg.Adapters.OpenMeteo.Enabled, "ORACLEBOT_ADAPTERS_OPENMETEO_ENABLED")
	setBool(&cfg.Adapters.GNews.Enabled, "ORACLEBOT_ADAPTERS_GNEWS_ENABLED")
	setStr(&cfg.Adapters.GNews.APIKey, "ORACLEBOT_ADAPTERS_GNEWS_API_KEY")

	// ── Engine ──
	setInt(&cfg.Engine.Workers, "ORACLEBOT_ENGINE_WORKERS")
	setDuration(&cfg.Engine.FetchTimeout, "ORACLEBOT_ENGINE_FETCH_TIMEOUT")
	setDuration(&cfg.Engine.LockTTL, "ORACLEBOT_ENGINE_LOCK_TTL")
	setInt(&cfg.Engine.ArchiveRetentionDays, "ORACLEBOT_ENGINE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ORACLEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ORACLEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ORACLEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ORACLEBOT_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimitRPS, "ORACLEBOT_SERVER_RATE_LIMIT_RPS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ORACLEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORACLEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORACLEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ORACLEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ORACLEBOT_MODE")
	setStr(&cfg.LogLevel, "ORACLEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
