package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/metrics"
)

// SettingsService resolves and writes per-shop dunning settings.
type SettingsService struct {
	store SettingsStore
	cache SettingsCache
}

// NewSettingsService creates a settings service. cache may be nil.
func NewSettingsService(store SettingsStore, cache SettingsCache) *SettingsService {
	return &SettingsService{store: store, cache: cache}
}

// Load returns the shop's settings, or the defaults when the shop never saved
// any. Stored values are trusted as written by Save.
func (s *SettingsService) Load(ctx context.Context, shop string) (domain.Settings, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, shop)
		if err != nil {
			log.Warn(ctx, "Settings cache read failed", zap.String("shop", shop), zap.Error(err))
		} else if ok {
			metrics.RecordSettingsCacheHit()
			return *cached, nil
		}
		metrics.RecordSettingsCacheMiss()
	}

	stored, err := s.store.GetDunningSettings(ctx, shop)
	var settings domain.Settings
	switch {
	case errors.Is(err, domain.ErrSettingsNotFound):
		settings = domain.DefaultSettings()
	case err != nil:
		return domain.Settings{}, fmt.Errorf("failed to load dunning settings: %w", err)
	default:
		settings = *stored
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, shop, settings); err != nil {
			log.Warn(ctx, "Settings cache write failed", zap.String("shop", shop), zap.Error(err))
		}
	}
	return settings, nil
}

// Save validates input and stores it. Numeric fields are clamped into range;
// unknown enum values fail with a *domain.ValidationError and nothing is written.
func (s *SettingsService) Save(ctx context.Context, shop string, input domain.SettingsInput) (domain.Settings, error) {
	settings, err := input.Normalize()
	if err != nil {
		return domain.Settings{}, err
	}

	stored, err := s.store.UpsertDunningSettings(ctx, shop, settings)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("failed to save dunning settings: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, shop); err != nil {
			log.Warn(ctx, "Settings cache invalidation failed", zap.String("shop", shop), zap.Error(err))
		}
	}

	log.Info(ctx, "Dunning settings saved",
		zap.String("shop", shop),
		zap.Int("retry_attempts", stored.RetryAttempts),
		zap.String("on_failure", string(stored.OnFailure)),
		zap.Int("inventory_retry_attempts", stored.InventoryRetryAttempts),
		zap.String("inventory_on_failure", string(stored.InventoryOnFailure)))
	return *stored, nil
}
