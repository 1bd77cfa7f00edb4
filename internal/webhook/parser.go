package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/dunning/usecase"
)

// Delivery headers set by the commerce platform.
const (
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderHmac       = "X-Shopify-Hmac-Sha256"
	HeaderTopic      = "X-Shopify-Topic"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
)

// Topics the service subscribes to.
const (
	TopicBillingAttemptFailure = "subscription_billing_attempts/failure"
	TopicBillingAttemptSuccess = "subscription_billing_attempts/success"
)

// BillingAttemptPayload is the body of the billing attempt webhooks.
type BillingAttemptPayload struct {
	ID                   int64  `json:"id"`
	AdminGraphqlAPIID    string `json:"admin_graphql_api_id"`
	IdempotencyKey       string `json:"idempotency_key"`
	OrderID              *int64 `json:"order_id"`
	SubscriptionContract string `json:"admin_graphql_api_subscription_contract_id"`
	BillingCycleIndex    *int   `json:"billing_cycle_index"`
	Ready                bool   `json:"ready"`
	ErrorMessage         string `json:"error_message"`
	ErrorCode            string `json:"error_code"`
}

// ParseBillingAttempt decodes and checks a billing attempt payload.
func ParseBillingAttempt(body []byte) (*BillingAttemptPayload, error) {
	var payload BillingAttemptPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.NewInvalidInputError("malformed webhook payload", err.Error())
	}

	if strings.TrimSpace(payload.SubscriptionContract) == "" {
		return nil, domain.NewInvalidInputError("missing subscription contract id", "")
	}
	if payload.BillingCycleIndex == nil {
		return nil, domain.NewInvalidInputError("missing billing cycle index", "")
	}
	if *payload.BillingCycleIndex < 0 {
		return nil, domain.NewInvalidInputError("billing cycle index must not be negative", fmt.Sprintf("got %d", *payload.BillingCycleIndex))
	}
	return &payload, nil
}

// FailureEvent converts a failure payload for the dunning handler.
func (p *BillingAttemptPayload) FailureEvent(shop string) usecase.FailureEvent {
	return usecase.FailureEvent{
		Shop:              shop,
		ContractID:        p.SubscriptionContract,
		BillingCycleIndex: *p.BillingCycleIndex,
		FailureReason:     p.ErrorCode,
		ErrorMessage:      p.ErrorMessage,
		BillingAttemptID:  p.AdminGraphqlAPIID,
	}
}

// SuccessEvent converts a success payload for the dunning handler.
func (p *BillingAttemptPayload) SuccessEvent(shop string) usecase.SuccessEvent {
	return usecase.SuccessEvent{
		Shop:              shop,
		ContractID:        p.SubscriptionContract,
		BillingCycleIndex: *p.BillingCycleIndex,
		BillingAttemptID:  p.AdminGraphqlAPIID,
	}
}
