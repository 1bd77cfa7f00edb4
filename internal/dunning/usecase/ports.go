package usecase

import (
	"context"
	"time"

	"github.com/jia-app/dunningservice/internal/commerce"
	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/notifications"
)

// ContractReader loads the read-only contract and billing cycle views.
type ContractReader interface {
	GetContract(ctx context.Context, shop, contractID string) (*domain.Contract, error)
	GetBillingCycle(ctx context.Context, shop, contractID string, cycleIndex int) (*domain.BillingCycle, error)
}

// BillingScheduler moves the next billing attempt of a cycle.
type BillingScheduler interface {
	RescheduleBillingCycle(ctx context.Context, shop string, input commerce.RescheduleInput) error
}

// ContractActions are the terminal dunning mutations.
type ContractActions interface {
	PauseContract(ctx context.Context, shop, contractID string) error
	CancelContract(ctx context.Context, shop, contractID string) error
	SkipBillingCycle(ctx context.Context, shop, contractID string, cycleIndex int) error
}

// SettingsStore persists per-shop settings.
type SettingsStore interface {
	GetDunningSettings(ctx context.Context, shop string) (*domain.Settings, error)
	UpsertDunningSettings(ctx context.Context, shop string, settings domain.Settings) (*domain.Settings, error)
}

// SettingsCache fronts the SettingsStore.
type SettingsCache interface {
	Get(ctx context.Context, shop string) (*domain.Settings, bool, error)
	Set(ctx context.Context, shop string, settings domain.Settings) error
	Delete(ctx context.Context, shop string) error
}

// CustomerNotifier emails the customer of a contract.
type CustomerNotifier interface {
	Run(ctx context.Context, shop, customerID string, input notifications.TemplateInput) error
}

// MerchantNotifier emails the merchant of a shop.
type MerchantNotifier interface {
	Run(ctx context.Context, shop string, input notifications.TemplateInput) error
}

// DigestMailer sends a merchant digest under an explicit idempotency key.
type DigestMailer interface {
	RunWithKey(ctx context.Context, shop, key string, input notifications.TemplateInput) error
}

// DigestQueue holds inventory failures until a shop's digest is due.
type DigestQueue interface {
	Append(ctx context.Context, shop string, failure domain.InventoryFailure, dueAt time.Time) error
	DueShops(ctx context.Context, now time.Time, limit int64) ([]string, error)
	Pending(ctx context.Context, shop string) ([]domain.InventoryFailure, error)
	Ack(ctx context.Context, shop string, n int) (int64, error)
}
