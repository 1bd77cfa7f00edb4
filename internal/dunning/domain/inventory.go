package domain

import "time"

// InventoryFailure is one inventory related billing failure reported to the merchant.
type InventoryFailure struct {
	ContractID        string        `json:"contractId"`
	BillingCycleIndex int           `json:"billingCycleIndex"`
	Reason            FailureReason `json:"reason"`
	OccurredAt        time.Time     `json:"occurredAt"`
}

// DigestDue returns when a digest started at now should be sent. Immediate
// notifications have no digest and return the zero time.
func (f NotificationFrequency) DigestDue(now time.Time) time.Time {
	switch f {
	case NotificationFrequencyWeekly:
		return now.AddDate(0, 0, 7)
	case NotificationFrequencyMonthly:
		return now.AddDate(0, 1, 0)
	default:
		return time.Time{}
	}
}
