package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

func newObservedManager() (*Manager, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewManager(NewZapAuditLogger(zap.New(core)))
	m.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return m, logs
}

func TestManager_LogSettingsUpdated(t *testing.T) {
	m, logs := newObservedManager()

	require.NoError(t, m.LogSettingsUpdated(context.Background(), "acme.myshopify.com", domain.DefaultSettings(), nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "audit", entries[0].LoggerName)

	fields := entries[0].ContextMap()
	assert.Equal(t, "dunning_settings", fields["audit_resource"])
	assert.Equal(t, "acme.myshopify.com", fields["shop"])
	assert.Equal(t, ResultSuccess, fields["audit_result"])
	assert.Contains(t, fields["audit_details"], `"on_failure":"skip"`)
	assert.NotEmpty(t, fields["audit_id"])
}

func TestManager_LogSettingsUpdatedFailure(t *testing.T) {
	m, logs := newObservedManager()

	require.NoError(t, m.LogSettingsUpdated(context.Background(), "acme.myshopify.com", domain.Settings{}, errors.New("validation failed")))

	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, ResultFailure, entry.ContextMap()["audit_result"])
	assert.Equal(t, "validation failed", entry.ContextMap()["audit_error"])
}

func TestManager_LogContractAction(t *testing.T) {
	m, logs := newObservedManager()

	require.NoError(t, m.LogContractAction(context.Background(), "acme.myshopify.com", "gid://shopify/SubscriptionContract/42", 3, domain.OutcomeCanceled))

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "CANCELED", fields["audit_action"])
	assert.Equal(t, "gid://shopify/SubscriptionContract/42", fields["audit_resource_id"])
	assert.Equal(t, `{"billing_cycle_index":3}`, fields["audit_details"])
}

func TestManager_LogAccessDeniedIsFailure(t *testing.T) {
	m, logs := newObservedManager()

	require.NoError(t, m.LogAccessDenied(context.Background(), "webhook", "10.0.0.1", "signature mismatch"))

	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, ResultFailure, entry.ContextMap()["audit_result"])
	assert.Equal(t, "10.0.0.1", entry.ContextMap()["audit_ip_address"])
}
