package usecase

import (
	"context"
	"time"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/notifications"
)

// InventoryNotifier reports inventory failures to merchants immediately or
// through the digest queue, per the shop's notification frequency.
type InventoryNotifier struct {
	merchant MerchantNotifier
	digest   DigestQueue
	now      func() time.Time
}

// NewInventoryNotifier creates an inventory notifier. Without a digest queue
// every failure is sent immediately.
func NewInventoryNotifier(merchant MerchantNotifier, digest DigestQueue) *InventoryNotifier {
	return &InventoryNotifier{merchant: merchant, digest: digest, now: time.Now}
}

// Notify implements InventoryFailureNotifier
func (n *InventoryNotifier) Notify(ctx context.Context, shop string, frequency domain.NotificationFrequency, failure domain.InventoryFailure) error {
	if frequency == domain.NotificationFrequencyImmediately || n.digest == nil {
		return n.merchant.Run(ctx, shop, notifications.TemplateInput{
			Template:          notifications.TemplateInventoryFailure,
			ContractID:        failure.ContractID,
			BillingCycleIndex: failure.BillingCycleIndex,
			Variables: map[string]any{
				"failure_reason": string(failure.Reason),
				"occurred_at":    failure.OccurredAt,
			},
		})
	}
	return n.digest.Append(ctx, shop, failure, frequency.DigestDue(n.now().UTC()))
}
