package domain

import "time"

// ContractStatus is the lifecycle status of a subscription contract.
type ContractStatus string

const (
	ContractStatusActive    ContractStatus = "ACTIVE"
	ContractStatusPaused    ContractStatus = "PAUSED"
	ContractStatusCancelled ContractStatus = "CANCELLED"
	ContractStatusFailed    ContractStatus = "FAILED"
	ContractStatusExpired   ContractStatus = "EXPIRED"
	ContractStatusStale     ContractStatus = "STALE"
)

// IsTerminal reports whether no further dunning applies to a contract in this status.
func (s ContractStatus) IsTerminal() bool {
	switch s {
	case ContractStatusCancelled, ContractStatusExpired, ContractStatusStale:
		return true
	default:
		return false
	}
}

// Customer is the buyer that owns a contract.
type Customer struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Contract is a read-only view of a subscription contract.
type Contract struct {
	ID       string         `json:"id"`
	Status   ContractStatus `json:"status"`
	Customer Customer       `json:"customer"`
}

// BillingCycleStatus is the billing state of one cycle.
type BillingCycleStatus string

const (
	BillingCycleStatusUnbilled BillingCycleStatus = "UNBILLED"
	BillingCycleStatusBilled   BillingCycleStatus = "BILLED"
)

// BillingAttempt is a single charge attempt made for a billing cycle.
type BillingAttempt struct {
	ID        string    `json:"id"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Ready     bool      `json:"ready"`
	CreatedAt time.Time `json:"createdAt"`
}

// BillingCycle is a read-only view of one scheduled charge of a contract.
type BillingCycle struct {
	CycleIndex                 int                `json:"cycleIndex"`
	Status                     BillingCycleStatus `json:"status"`
	Skipped                    bool               `json:"skipped"`
	BillingAttemptExpectedDate time.Time          `json:"billingAttemptExpectedDate"`
	BillingAttempts            []BillingAttempt   `json:"billingAttempts"`
}

// FailedAttempts counts the failed attempts on the cycle whose error code falls
// in the given class.
func (c BillingCycle) FailedAttempts(class FailureClass) int {
	count := 0
	for _, attempt := range c.BillingAttempts {
		if attempt.ErrorCode == "" {
			continue
		}
		if ParseFailureReason(attempt.ErrorCode).Class() == class {
			count++
		}
	}
	return count
}
