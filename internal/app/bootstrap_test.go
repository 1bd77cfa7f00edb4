package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/config"
	"github.com/jia-app/dunningservice/internal/events"
)

func testConfig() *config.Config {
	return &config.Config{
		AppName: "dunning-service",
		Kafka:   config.KafkaConfig{Topic: "dunning.outcomes"},
		Notifications: config.NotificationsConfig{
			BaseURL:     "http://mailer.local",
			MaxAttempts: 4,
		},
		Commerce: config.CommerceConfig{
			APIVersion: "2025-01",
			CircuitBreaker: config.CircuitBreakerConfig{
				MaxFailures:      3,
				SuccessThreshold: 1,
			},
		},
	}
}

func TestNewPublisher_KafkaDisabled(t *testing.T) {
	publisher, err := NewPublisher(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, events.NoopPublisher{}, publisher)
}

func TestNewRedisCache(t *testing.T) {
	cfg := testConfig()

	c, err := NewRedisCache(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, c)

	mr := miniredis.RunT(t)
	cfg.Redis.Addr = mr.Addr()
	c, err = NewRedisCache(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))

	mr.Close()
	_, err = NewRedisCache(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewCommerceClientAndSender(t *testing.T) {
	cfg := testConfig()
	assert.NotNil(t, NewCommerceClient(cfg, nil, zap.NewNop()))
	assert.NotNil(t, NewEmailSender(cfg))
}
