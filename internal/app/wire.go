package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/veritaslabs/oraclebot/internal/adapter"
	"github.com/veritaslabs/oraclebot/internal/analyzer"
	s3blob "github.com/veritaslabs/oraclebot/internal/blob/s3"
	"github.com/veritaslabs/oraclebot/internal/cache/redis"
	"github.com/veritaslabs/oraclebot/internal/chain"
	"github.com/veritaslabs/oraclebot/internal/config"
	"github.com/veritaslabs/oraclebot/internal/crypto"
	"github.com/veritaslabs/oraclebot/internal/domain"
	"github.com/veritaslabs/oraclebot/internal/engine"
	"github.com/veritaslabs/oraclebot/internal/evidence"
	"github.com/veritaslabs/oraclebot/internal/fetch"
	"github.com/veritaslabs/oraclebot/internal/metrics"
	"github.com/veritaslabs/oraclebot/internal/notify"
	"github.com/veritaslabs/oraclebot/internal/server/handler"
	"github.com/veritaslabs/oraclebot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Engine   *engine.Engine
	Queue    domain.JobQueue
	Attempts *postgres.AttemptStore
	Evidence domain.EvidenceStore
	Ledger   *chain.Ledger
	Archiver *s3blob.Archiver
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier

	// HealthChecks probes the wired backing services, keyed by name.
	HealthChecks map[string]handler.HealthFunc
}

// gweiToWei converts a gwei gas ceiling into wei; a zero ceiling disables the
// gas gate (nil).
func gweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return wei
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: map[string]handler.HealthFunc{}}

	// --- Redis: response cache, CID cache, job stream, locks ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.HealthChecks["redis"] = redisClient.Ping

	responseCache := redis.NewResponseCache(redisClient)
	cidCache := redis.NewCIDCache(redisClient)
	locks := redis.NewLockManager(redisClient)
	deps.Queue = redis.NewJobQueue(redisClient)

	// --- PostgreSQL: attempt audit trail ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.HealthChecks["postgres"] = pgClient.Pool().Ping

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.Attempts = postgres.NewAttemptStore(pgClient.Pool())

	// --- S3: evidence blobs ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })
	deps.HealthChecks["s3"] = s3Client.Health

	blobWriter := s3blob.NewWriter(s3Client)
	blobReader := s3blob.NewReader(s3Client)
	deps.Evidence = evidence.NewStore(blobWriter, blobReader, cidCache, logger)

	if cfg.Engine.ArchiveRetentionDays > 0 {
		deps.Archiver = s3blob.NewArchiver(blobWriter, deps.Attempts, logger)
	}

	// --- Chain ---
	resolverKey, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Chain.ResolverKey,
		EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
		KeyPassword:      cfg.Chain.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: resolver key: %w", err)
	}
	ledger, err := chain.New(ctx, chain.Config{
		RPCURL:              cfg.Chain.RPCURL,
		ContractAddress:     cfg.Chain.ContractAddress,
		ResolverKey:         resolverKey,
		ChainID:             cfg.Chain.ChainID,
		GasLimit:            cfg.Chain.GasLimit,
		ReceiptTimeout:      cfg.Chain.ReceiptTimeout.Duration,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval.Duration,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	deps.Ledger = ledger

	// --- Analyzer ---
	ai, err := analyzer.New(analyzer.Config{
		APIKey:        cfg.AI.APIKey,
		BaseURL:       cfg.AI.BaseURL,
		Model:         cfg.AI.Model,
		Timeout:       cfg.AI.Timeout.Duration,
		Temperature:   float32(cfg.AI.Temperature),
		MaxTokens:     cfg.AI.MaxTokens,
		MinConfidence: cfg.AI.MinConfidence,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: analyzer: %w", err)
	}

	// --- Adapters ---
	registry := buildRegistry(cfg, responseCache, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	deps.Metrics = metrics.New()

	// --- Engine ---
	deps.Engine = engine.New(engine.Config{
		FetchTimeout:  cfg.Engine.FetchTimeout.Duration,
		MaxGasWei:     gweiToWei(cfg.Chain.MaxGasGwei),
		MinConfidence: cfg.AI.MinConfidence,
		LockTTL:       cfg.Engine.LockTTL.Duration,
		Workers:       cfg.Engine.Workers,
	}, registry, ai, deps.Evidence, ledger, ledger.Resolver(), engine.Options{
		Attempts: deps.Attempts,
		Locks:    locks,
		Notifier: deps.Notifier,
		Metrics:  deps.Metrics,
	}, logger)

	return deps, cleanup, nil
}

// buildRegistry constructs one fetch client per enabled provider and
// registers the matching adapter.
func buildRegistry(cfg *config.Config, cache domain.ResponseCache, logger *slog.Logger) *adapter.Registry {
	registry := adapter.NewRegistry()

	newClient := func(provider string, p config.ProviderConfig) *fetch.Client {
		fc := cfg.Adapters.Fetch
		return fetch.NewClient(fetch.Config{
			Provider: provider,
			Timeout:  fc.Timeout.Duration,
			Retry: fetch.RetryConfig{
				MaxAttempts:       fc.MaxAttempts,
				InitialDelay:      fc.InitialDelay.Duration,
				BackoffMultiplier: fc.BackoffMultiplier,
				MaxDelay:          fc.MaxDelay.Duration,
			},
			RequestsPerMinute: p.RequestsPerMinute,
			RequestsPerHour:   p.RequestsPerHour,
			CacheEnabled:      fc.CacheTTL.Duration > 0,
			CacheTTL:          fc.CacheTTL.Duration,
		}, cache, logger)
	}

	if p := cfg.Adapters.CoinGecko; p.Enabled {
		registry.Register(adapter.NewPriceAdapter(adapter.PriceConfig{
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		}, newClient("coingecko", p), logger))
	}
	if p := cfg.Adapters.SportsDB; p.Enabled {
		registry.Register(adapter.NewSportsAdapter(adapter.SportsConfig{
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		}, newClient("sportsdb", p), logger))
	}
	if p := cfg.Adapters.OpenMeteo; p.Enabled {
		registry.Register(adapter.NewWeatherAdapter(adapter.WeatherConfig{
			GeocodeURL:  cfg.Adapters.GeocodeURL,
			ForecastURL: p.BaseURL,
			Priority:    p.Priority,
		}, newClient("openmeteo", p), logger))
	}
	if p := cfg.Adapters.GNews; p.Enabled {
		registry.Register(adapter.NewNewsAdapter(adapter.NewsConfig{
			BaseURL:     p.BaseURL,
			APIKey:      p.APIKey,
			Priority:    p.Priority,
			MaxArticles: cfg.Adapters.NewsMaxArticles,
		}, newClient("gnews", p), logger))
	}

	return registry
}
