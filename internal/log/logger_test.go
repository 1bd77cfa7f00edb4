package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func ExampleL() {
	_ = Init("info")

	ctx := context.Background()
	ctx = WithShop(ctx, "example.myshopify.com")
	ctx = WithContractID(ctx, "gid://shopify/SubscriptionContract/1")
	ctx = WithRequestID(ctx, "req456")

	// includes shop, contract_id and request_id
	L(ctx).Info("Dunning run started",
		zap.Int("billing_cycle_index", 3),
		zap.String("failure_reason", "INSUFFICIENT_FUNDS"))

	Info(ctx, "Dunning retry scheduled", zap.Int("days_between_retry_attempts", 7))
}

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	ctx = WithShop(ctx, "test.myshopify.com")
	assert.Equal(t, "test.myshopify.com", ctx.Value(ShopKey))

	ctx = WithContractID(ctx, "gid://shopify/SubscriptionContract/9")
	assert.Equal(t, "gid://shopify/SubscriptionContract/9", ctx.Value(ContractIDKey))

	ctx = WithRequestID(ctx, "test_request")
	assert.Equal(t, "test_request", ctx.Value(RequestIDKey))

	ctx = WithTraceID(ctx, "test_trace")
	assert.Equal(t, "test_trace", ctx.Value(TraceIDKey))
}

func TestL_AddsContextFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	ctx := WithShop(context.Background(), "fields.myshopify.com")
	ctx = WithTraceID(ctx, "trace-1")

	Warn(ctx, "tracker already completed")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "fields.myshopify.com", fields["shop"])
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.NotContains(t, fields, "contract_id")
}

func TestNewProduction_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger, err := NewProduction("not-a-level")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}
