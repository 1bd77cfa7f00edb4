package notifications

import "github.com/jia-app/dunningservice/internal/dunning/domain"

// Template names an email template of the delivery service.
type Template string

// Customer facing templates
const (
	TemplateSubscriptionCanceled Template = "SUBSCRIPTION_CANCELED"
	TemplateSubscriptionPaused   Template = "SUBSCRIPTION_PAUSED"
	TemplateSubscriptionSkipped  Template = "SUBSCRIPTION_SKIPPED"
)

// Merchant facing templates
const (
	TemplateDunningCanceled        Template = "DUNNING_CANCELED"
	TemplateDunningPaused          Template = "DUNNING_PAUSED"
	TemplateDunningSkipped         Template = "DUNNING_SKIPPED"
	TemplateInventoryFailure       Template = "INVENTORY_FAILURE"
	TemplateInventoryFailureDigest Template = "INVENTORY_FAILURE_DIGEST"
)

// CustomerTemplateFor returns the customer template for a dunning status.
func CustomerTemplateFor(status domain.DunningStatus) Template {
	switch status {
	case domain.DunningStatusCanceled:
		return TemplateSubscriptionCanceled
	case domain.DunningStatusPaused:
		return TemplateSubscriptionPaused
	default:
		return TemplateSubscriptionSkipped
	}
}

// MerchantTemplateFor returns the merchant template for a dunning status.
func MerchantTemplateFor(status domain.DunningStatus) Template {
	switch status {
	case domain.DunningStatusCanceled:
		return TemplateDunningCanceled
	case domain.DunningStatusPaused:
		return TemplateDunningPaused
	default:
		return TemplateDunningSkipped
	}
}

// TemplateInput carries the template and the values rendered into it.
type TemplateInput struct {
	Template          Template             `json:"template"`
	DunningStatus     domain.DunningStatus `json:"dunningStatus,omitempty"`
	ContractID        string               `json:"contractId,omitempty"`
	BillingCycleIndex int                  `json:"billingCycleIndex,omitempty"`
	Variables         map[string]any       `json:"variables,omitempty"`
}
