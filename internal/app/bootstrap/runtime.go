package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/intake-agent/cmd/mainconfig"
	appconfig "github.com/wolfman30/intake-agent/internal/config"
	"github.com/wolfman30/intake-agent/internal/llm"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/internal/session"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks the session backend. A redis backend that cannot be
// reached falls back to the in-memory store so local runs keep working.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, m *metrics.IntakeMetrics, logger *logging.Logger) (session.Store, *redis.Client) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil && cfg.SessionBackend == "redis" {
		if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
			logger.Info("using redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
			return session.NewRedisStore(client, cfg.SessionTTL), client
		}
		logger.Warn("redis session backend unavailable; falling back to memory store")
	}
	var (
		capacity int
		ttl      time.Duration
	)
	if cfg != nil {
		capacity = cfg.SessionCapacity
		ttl = cfg.SessionTTL
	}
	return session.NewMemoryStore(capacity, ttl, m), nil
}

// ConnectPostgres opens the booking archive pool. An empty URL or a failed
// connection returns nil and the archive sink is skipped.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.LLMProvider == llm.ProviderBedrock ||
		cfg.LLMFallbackProvider == llm.ProviderBedrock ||
		strings.TrimSpace(cfg.BookingsQueueURL) != ""
}

// LoadAWS loads the shared AWS config when NeedsAWS, else returns nil.
func LoadAWS(ctx context.Context, cfg *appconfig.Config) (*aws.Config, error) {
	if !NeedsAWS(cfg) {
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return &awsCfg, nil
}
