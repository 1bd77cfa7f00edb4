package cache

import (
	"context"
	"time"
)

// DefaultDeliveryTTL covers the platform's webhook redelivery window.
const DefaultDeliveryTTL = 48 * time.Hour

// DeliveryDeduper remembers webhook ids that were already accepted.
type DeliveryDeduper struct {
	cache *Cache
	ttl   time.Duration
}

// NewDeliveryDeduper creates a webhook deduper
func NewDeliveryDeduper(cache *Cache, ttl time.Duration) *DeliveryDeduper {
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	return &DeliveryDeduper{cache: cache, ttl: ttl}
}

func deliveryKey(webhookID string) string {
	return "dunning:webhook:" + webhookID
}

// Claim returns true for the first caller presenting webhookID.
func (d *DeliveryDeduper) Claim(ctx context.Context, webhookID string) (bool, error) {
	return d.cache.SetNX(ctx, deliveryKey(webhookID), time.Now().UTC(), d.ttl)
}

// Release forgets webhookID so that a redelivery is processed again.
func (d *DeliveryDeduper) Release(ctx context.Context, webhookID string) error {
	return d.cache.Delete(ctx, deliveryKey(webhookID))
}
