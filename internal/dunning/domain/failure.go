package domain

import "strings"

// FailureReason is a billing attempt error code reported by the commerce platform.
type FailureReason string

const (
	FailureReasonInsufficientInventory        FailureReason = "INSUFFICIENT_INVENTORY"
	FailureReasonInventoryAllocationsNotFound FailureReason = "INVENTORY_ALLOCATIONS_NOT_FOUND"

	FailureReasonPaymentMethodDeclined      FailureReason = "PAYMENT_METHOD_DECLINED"
	FailureReasonPaymentMethodNotFound      FailureReason = "PAYMENT_METHOD_NOT_FOUND"
	FailureReasonExpiredPaymentMethod       FailureReason = "EXPIRED_PAYMENT_METHOD"
	FailureReasonInvalidPaymentMethod       FailureReason = "INVALID_PAYMENT_METHOD"
	FailureReasonInsufficientFunds          FailureReason = "INSUFFICIENT_FUNDS"
	FailureReasonAuthenticationError        FailureReason = "AUTHENTICATION_ERROR"
	FailureReasonCardNumberIncorrect        FailureReason = "CARD_NUMBER_INCORRECT"
	FailureReasonFraudSuspected             FailureReason = "FRAUD_SUSPECTED"
	FailureReasonBuyerCanceledPaymentMethod FailureReason = "BUYER_CANCELED_PAYMENT_METHOD"
	FailureReasonCustomerNotFound           FailureReason = "CUSTOMER_NOT_FOUND"
	FailureReasonPaymentProviderNotEnabled  FailureReason = "PAYMENT_PROVIDER_IS_NOT_ENABLED"
	FailureReasonUnexpectedError            FailureReason = "UNEXPECTED_ERROR"

	// FailureReasonUnknown stands in for any code not listed above.
	FailureReasonUnknown FailureReason = "UNKNOWN"
)

var knownFailureReasons = map[FailureReason]struct{}{
	FailureReasonInsufficientInventory:        {},
	FailureReasonInventoryAllocationsNotFound: {},
	FailureReasonPaymentMethodDeclined:        {},
	FailureReasonPaymentMethodNotFound:        {},
	FailureReasonExpiredPaymentMethod:         {},
	FailureReasonInvalidPaymentMethod:         {},
	FailureReasonInsufficientFunds:            {},
	FailureReasonAuthenticationError:          {},
	FailureReasonCardNumberIncorrect:          {},
	FailureReasonFraudSuspected:               {},
	FailureReasonBuyerCanceledPaymentMethod:   {},
	FailureReasonCustomerNotFound:             {},
	FailureReasonPaymentProviderNotEnabled:    {},
	FailureReasonUnexpectedError:              {},
}

// ParseFailureReason maps a raw error code onto the closed set of reasons.
func ParseFailureReason(raw string) FailureReason {
	reason := FailureReason(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := knownFailureReasons[reason]; ok {
		return reason
	}
	return FailureReasonUnknown
}

// FailureClass selects which settings triple drives dunning.
type FailureClass int

const (
	FailureClassPayment FailureClass = iota
	FailureClassInventory
)

// String returns a label suitable for logs and metrics.
func (c FailureClass) String() string {
	switch c {
	case FailureClassInventory:
		return "inventory"
	case FailureClassPayment:
		return "payment"
	default:
		return "unknown"
	}
}

// Class returns the failure class of the reason.
func (r FailureReason) Class() FailureClass {
	switch r {
	case FailureReasonInsufficientInventory, FailureReasonInventoryAllocationsNotFound:
		return FailureClassInventory
	case FailureReasonPaymentMethodDeclined,
		FailureReasonPaymentMethodNotFound,
		FailureReasonExpiredPaymentMethod,
		FailureReasonInvalidPaymentMethod,
		FailureReasonInsufficientFunds,
		FailureReasonAuthenticationError,
		FailureReasonCardNumberIncorrect,
		FailureReasonFraudSuspected,
		FailureReasonBuyerCanceledPaymentMethod,
		FailureReasonCustomerNotFound,
		FailureReasonPaymentProviderNotEnabled,
		FailureReasonUnexpectedError,
		FailureReasonUnknown:
		return FailureClassPayment
	default:
		// Reasons must come from ParseFailureReason.
		return FailureClassPayment
	}
}

// IsInventory reports whether the reason is one of the inventory failure codes.
func (r FailureReason) IsInventory() bool {
	return r.Class() == FailureClassInventory
}

// ClassifyInventoryFailure returns the inventory code for raw, or false when the
// failure is not inventory related. It has no side effects.
func ClassifyInventoryFailure(raw string) (FailureReason, bool) {
	reason := ParseFailureReason(raw)
	if reason.IsInventory() {
		return reason, true
	}
	return "", false
}
