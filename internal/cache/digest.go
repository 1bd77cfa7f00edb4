package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

const digestDueKey = "dunning:digest:due"

func digestListKey(shop string) string {
	return "dunning:digest:" + shop
}

// ackScript trims the sent entries and drops the due marker once the list is
// empty, atomically with respect to concurrent appends.
var ackScript = redis.NewScript(`
redis.call('LTRIM', KEYS[1], ARGV[1], -1)
if redis.call('LLEN', KEYS[1]) == 0 then
  redis.call('ZREM', KEYS[2], ARGV[2])
end
return redis.call('LLEN', KEYS[1])
`)

// InventoryDigest queues inventory failures per shop until their digest is due.
type InventoryDigest struct {
	cache *Cache
}

// NewInventoryDigest creates a digest queue
func NewInventoryDigest(cache *Cache) *InventoryDigest {
	return &InventoryDigest{cache: cache}
}

// Append queues failure for shop. The due time of a shop's digest is set by
// the first append after the previous digest was sent.
func (d *InventoryDigest) Append(ctx context.Context, shop string, failure domain.InventoryFailure, dueAt time.Time) error {
	data, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory failure: %w", err)
	}

	_, err = d.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, digestListKey(shop), data)
		pipe.ZAddNX(ctx, digestDueKey, redis.Z{Score: float64(dueAt.Unix()), Member: shop})
		return nil
	})
	observe("digest_append", err)
	if err != nil {
		return fmt.Errorf("failed to append inventory failure: %w", err)
	}
	return nil
}

// DueShops lists shops whose digest is due at now.
func (d *InventoryDigest) DueShops(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	shops, err := d.cache.client.ZRangeByScore(ctx, digestDueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	observe("digest_due", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list due digests: %w", err)
	}
	return shops, nil
}

// Pending returns the queued failures of shop in arrival order.
func (d *InventoryDigest) Pending(ctx context.Context, shop string) ([]domain.InventoryFailure, error) {
	raw, err := d.cache.client.LRange(ctx, digestListKey(shop), 0, -1).Result()
	observe("digest_pending", err)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory digest: %w", err)
	}

	failures := make([]domain.InventoryFailure, 0, len(raw))
	for _, item := range raw {
		var f domain.InventoryFailure
		if err := json.Unmarshal([]byte(item), &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inventory failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, nil
}

// Ack removes the first n entries of shop's digest and returns how many remain.
func (d *InventoryDigest) Ack(ctx context.Context, shop string, n int) (int64, error) {
	remaining, err := ackScript.Run(ctx, d.cache.client,
		[]string{digestListKey(shop), digestDueKey}, n, shop).Int64()
	observe("digest_ack", err)
	if err != nil {
		return 0, fmt.Errorf("failed to ack inventory digest: %w", err)
	}
	return remaining, nil
}
