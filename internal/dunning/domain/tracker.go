package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TrackerKey identifies the dunning progress of one billing cycle.
type TrackerKey struct {
	Shop              string `json:"shop"`
	ContractID        string `json:"contract_id"`
	BillingCycleIndex int    `json:"billing_cycle_index"`
}

// String renders the key for logs.
func (k TrackerKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Shop, k.ContractID, k.BillingCycleIndex)
}

// Validate checks that every component of the key is present.
func (k TrackerKey) Validate() error {
	if strings.TrimSpace(k.Shop) == "" {
		return NewInvalidInputError("shop is required", "")
	}
	if strings.TrimSpace(k.ContractID) == "" {
		return NewInvalidInputError("contract_id is required", "")
	}
	if k.BillingCycleIndex < 0 {
		return NewInvalidInputError("billing_cycle_index must not be negative", fmt.Sprintf("got %d", k.BillingCycleIndex))
	}
	return nil
}

// Tracker records dunning progress for a (shop, contract, billing cycle).
type Tracker struct {
	ID                uuid.UUID  `json:"id"`
	Shop              string     `json:"shop"`
	ContractID        string     `json:"contract_id"`
	BillingCycleIndex int        `json:"billing_cycle_index"`
	FailureReason     string     `json:"failure_reason"`
	AttemptsCount     int        `json:"attempts_count"`
	Outcome           Outcome    `json:"outcome,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewTracker builds an open tracker for key.
func NewTracker(key TrackerKey, failureReason string, now time.Time) Tracker {
	return Tracker{
		ID:                uuid.New(),
		Shop:              key.Shop,
		ContractID:        key.ContractID,
		BillingCycleIndex: key.BillingCycleIndex,
		FailureReason:     failureReason,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Key returns the identity of the tracker.
func (t Tracker) Key() TrackerKey {
	return TrackerKey{Shop: t.Shop, ContractID: t.ContractID, BillingCycleIndex: t.BillingCycleIndex}
}

// IsCompleted reports whether a terminal outcome was reached.
func (t Tracker) IsCompleted() bool {
	return t.CompletedAt != nil
}
