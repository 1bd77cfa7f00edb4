package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheWithClient(client), mr
}

func TestCache_GetMiss(t *testing.T) {
	c, _ := newTestCache(t)
	var v string
	assert.ErrorIs(t, c.Get(context.Background(), "missing", &v), ErrMiss)
}

func TestSettingsCache_RoundTripAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	sc := NewSettingsCache(c, time.Minute)
	ctx := context.Background()

	_, ok, err := sc.Get(ctx, "a.myshopify.com")
	require.NoError(t, err)
	assert.False(t, ok)

	settings := domain.DefaultSettings()
	settings.OnFailure = domain.OnFailureCancel
	require.NoError(t, sc.Set(ctx, "a.myshopify.com", settings))

	got, ok, err := sc.Get(ctx, "a.myshopify.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, settings, *got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = sc.Get(ctx, "a.myshopify.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettingsCache_Delete(t *testing.T) {
	c, _ := newTestCache(t)
	sc := NewSettingsCache(c, 0)
	ctx := context.Background()

	require.NoError(t, sc.Set(ctx, "a.myshopify.com", domain.DefaultSettings()))
	require.NoError(t, sc.Delete(ctx, "a.myshopify.com"))

	_, ok, err := sc.Get(ctx, "a.myshopify.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeliveryDeduper_ClaimOnce(t *testing.T) {
	c, mr := newTestCache(t)
	d := NewDeliveryDeduper(c, time.Hour)
	ctx := context.Background()

	first, err := d.Claim(ctx, "webhook-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := d.Claim(ctx, "webhook-1")
	require.NoError(t, err)
	assert.False(t, second)

	require.NoError(t, d.Release(ctx, "webhook-1"))
	again, err := d.Claim(ctx, "webhook-1")
	require.NoError(t, err)
	assert.True(t, again)

	mr.FastForward(2 * time.Hour)
	expired, err := d.Claim(ctx, "webhook-1")
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestInventoryDigest_AppendDueAck(t *testing.T) {
	c, _ := newTestCache(t)
	digest := NewInventoryDigest(c)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	first := domain.InventoryFailure{ContractID: "c1", BillingCycleIndex: 1, Reason: domain.FailureReasonInsufficientInventory, OccurredAt: now}
	second := domain.InventoryFailure{ContractID: "c2", BillingCycleIndex: 4, Reason: domain.FailureReasonInventoryAllocationsNotFound, OccurredAt: now.Add(time.Hour)}

	require.NoError(t, digest.Append(ctx, "a.myshopify.com", first, now.AddDate(0, 0, 7)))
	// a later append keeps the original due time
	require.NoError(t, digest.Append(ctx, "a.myshopify.com", second, now.AddDate(0, 0, 30)))

	due, err := digest.DueShops(ctx, now.AddDate(0, 0, 6), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = digest.DueShops(ctx, now.AddDate(0, 0, 7), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.myshopify.com"}, due)

	pending, err := digest.Pending(ctx, "a.myshopify.com")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c1", pending[0].ContractID)
	assert.Equal(t, domain.FailureReasonInventoryAllocationsNotFound, pending[1].Reason)

	remaining, err := digest.Ack(ctx, "a.myshopify.com", len(pending))
	require.NoError(t, err)
	assert.Zero(t, remaining)

	due, err = digest.DueShops(ctx, now.AddDate(1, 0, 0), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestInventoryDigest_AckKeepsLateEntries(t *testing.T) {
	c, _ := newTestCache(t)
	digest := NewInventoryDigest(c)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, digest.Append(ctx, "b.myshopify.com", domain.InventoryFailure{ContractID: "c1"}, now))
	pending, err := digest.Pending(ctx, "b.myshopify.com")
	require.NoError(t, err)

	require.NoError(t, digest.Append(ctx, "b.myshopify.com", domain.InventoryFailure{ContractID: "late"}, now))

	remaining, err := digest.Ack(ctx, "b.myshopify.com", len(pending))
	require.NoError(t, err)
	assert.EqualValues(t, 1, remaining)

	left, err := digest.Pending(ctx, "b.myshopify.com")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "late", left[0].ContractID)

	due, err := digest.DueShops(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.myshopify.com"}, due)
}
