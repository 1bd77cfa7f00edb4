package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

// DefaultSettingsTTL bounds how long a shop sees stale settings written by
// another replica.
const DefaultSettingsTTL = 5 * time.Minute

// SettingsCache caches per-shop dunning settings.
type SettingsCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewSettingsCache creates a settings cache
func NewSettingsCache(cache *Cache, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	return &SettingsCache{cache: cache, ttl: ttl}
}

func settingsKey(shop string) string {
	return "dunning:settings:" + shop
}

// Get returns the cached settings; ok is false on a miss.
func (s *SettingsCache) Get(ctx context.Context, shop string) (*domain.Settings, bool, error) {
	var settings domain.Settings
	err := s.cache.Get(ctx, settingsKey(shop), &settings)
	if errors.Is(err, ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &settings, true, nil
}

// Set stores settings for shop
func (s *SettingsCache) Set(ctx context.Context, shop string, settings domain.Settings) error {
	return s.cache.Set(ctx, settingsKey(shop), settings, s.ttl)
}

// Delete invalidates the cached settings of shop
func (s *SettingsCache) Delete(ctx context.Context, shop string) error {
	return s.cache.Delete(ctx, settingsKey(shop))
}
