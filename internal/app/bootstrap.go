package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/cache"
	"github.com/jia-app/dunningservice/internal/circuitbreaker"
	"github.com/jia-app/dunningservice/internal/commerce"
	"github.com/jia-app/dunningservice/internal/config"
	"github.com/jia-app/dunningservice/internal/events"
	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/notifications"
	"github.com/jia-app/dunningservice/internal/retry"
	"github.com/jia-app/dunningservice/internal/shared/db"
)

// webhookDedupeTTL covers the platform's redelivery window
const webhookDedupeTTL = 48 * time.Hour

// NewPublisher creates the outcome publisher based on configuration
func NewPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (events.DunningPublisher, error) {
	if !cfg.Kafka.Enabled {
		log.Info(ctx, "Kafka disabled, dunning outcomes will not be published")
		return events.NoopPublisher{}, nil
	}

	publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID, logger)
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "Kafka outcome publisher initialized",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic))
	return publisher, nil
}

// NewDatabasePool connects to PostgreSQL, waiting for it to come up
func NewDatabasePool(ctx context.Context, cfg *config.Config) (*db.Pool, error) {
	dbConfig := db.DefaultConfig()
	dbConfig.DSN = cfg.Postgres.DSN
	dbConfig.MaxConns = cfg.Postgres.MaxConns
	if dbConfig.MinConns > dbConfig.MaxConns {
		dbConfig.MinConns = dbConfig.MaxConns
	}
	return db.NewPool(ctx, dbConfig)
}

// NewRedisCache connects to Redis. It returns nil without error when Redis is not configured.
func NewRedisCache(ctx context.Context, cfg *config.Config) (*cache.Cache, error) {
	if !cfg.RedisEnabled() {
		log.Warn(ctx, "Redis not configured: settings cache, webhook dedupe and inventory digests disabled")
		return nil, nil
	}

	c, err := cache.NewCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return c, nil
}

// NewCommerceClient creates the Admin API client with one circuit breaker per shop
func NewCommerceClient(cfg *config.Config, tokens commerce.TokenSource, logger *zap.Logger) *commerce.Client {
	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		MaxFailures:      cfg.Commerce.CircuitBreaker.MaxFailures,
		Timeout:          cfg.Commerce.CircuitBreaker.Timeout,
		SuccessThreshold: cfg.Commerce.CircuitBreaker.SuccessThreshold,
	}, logger)

	return commerce.NewClient(commerce.Config{
		APIVersion: cfg.Commerce.APIVersion,
		Timeout:    cfg.Commerce.Timeout,
		BaseURL:    cfg.Commerce.BaseURL,
	}, tokens, breakers)
}

// NewEmailSender creates the email delivery client
func NewEmailSender(cfg *config.Config) *notifications.HTTPSender {
	retryConfig := retry.DefaultConfig()
	if cfg.Notifications.MaxAttempts > 0 {
		retryConfig.MaxAttempts = cfg.Notifications.MaxAttempts
	}
	return notifications.NewHTTPSender(notifications.Config{
		BaseURL: cfg.Notifications.BaseURL,
		APIKey:  cfg.Notifications.APIKey,
		Timeout: cfg.Notifications.Timeout,
		Retry:   retryConfig,
	})
}
