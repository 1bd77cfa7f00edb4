package domain

import "fmt"

// Outcome is the named result of one dunning run.
type Outcome string

const (
	OutcomeBillingCycleAlreadyBilled    Outcome = "BILLING_CYCLE_ALREADY_BILLED"
	OutcomeContractInTerminalStatus     Outcome = "CONTRACT_IN_TERMINAL_STATUS"
	OutcomeBillingCycleSkipped          Outcome = "BILLING_CYCLE_SKIPPED"
	OutcomeExpectedDateInFuture         Outcome = "EXPECTED_DATE_IN_FUTURE"
	OutcomeRetryDunning                 Outcome = "RETRY_DUNNING"
	OutcomeInsufficientInventory        Outcome = "INSUFFICIENT_INVENTORY"
	OutcomeInventoryAllocationsNotFound Outcome = "INVENTORY_ALLOCATIONS_NOT_FOUND"
	OutcomeCanceled                     Outcome = "CANCELED"
	OutcomePaused                       Outcome = "PAUSED"
	OutcomeSkipped                      Outcome = "SKIPPED"
	OutcomeBillingSucceeded             Outcome = "BILLING_SUCCEEDED"
)

// IsFinal reports whether a tracker completed with this outcome is closed for good.
// Early-exit outcomes only describe the state seen at the time, so a later failure
// that passes the early exits reopens the tracker.
func (o Outcome) IsFinal() bool {
	switch o {
	case OutcomeCanceled, OutcomePaused, OutcomeSkipped, OutcomeBillingSucceeded:
		return true
	default:
		return false
	}
}

// RetryOutcomeFor is the outcome reported when a retry is scheduled for reason.
func RetryOutcomeFor(reason FailureReason) Outcome {
	switch reason {
	case FailureReasonInsufficientInventory:
		return OutcomeInsufficientInventory
	case FailureReasonInventoryAllocationsNotFound:
		return OutcomeInventoryAllocationsNotFound
	default:
		return OutcomeRetryDunning
	}
}

// DunningStatus is the terminal state a contract lands in after dunning is exhausted.
type DunningStatus string

const (
	DunningStatusCanceled DunningStatus = "CANCELED"
	DunningStatusPaused   DunningStatus = "PAUSED"
	DunningStatusSkipped  DunningStatus = "SKIPPED"
)

// DunningStatusFor maps an on-failure action to the resulting dunning status.
func DunningStatusFor(action OnFailureAction) (DunningStatus, error) {
	switch action {
	case OnFailureCancel:
		return DunningStatusCanceled, nil
	case OnFailurePause:
		return DunningStatusPaused, nil
	case OnFailureSkip:
		return DunningStatusSkipped, nil
	default:
		return "", NewInvalidInputError("unknown on-failure action", fmt.Sprintf("action=%q", action))
	}
}

// Outcome returns the orchestrator outcome for the status.
func (s DunningStatus) Outcome() Outcome {
	switch s {
	case DunningStatusCanceled:
		return OutcomeCanceled
	case DunningStatusPaused:
		return OutcomePaused
	default:
		return OutcomeSkipped
	}
}
