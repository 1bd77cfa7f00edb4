package notifications

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/metrics"
)

// CustomerSendEmailService emails the customer that owns a contract.
type CustomerSendEmailService struct {
	sender Sender
}

// NewCustomerSendEmailService creates a customer email service
func NewCustomerSendEmailService(sender Sender) *CustomerSendEmailService {
	return &CustomerSendEmailService{sender: sender}
}

// Run sends input to customerID and waits for the delivery service to accept it.
func (s *CustomerSendEmailService) Run(ctx context.Context, shop, customerID string, input TemplateInput) error {
	if customerID == "" {
		metrics.RecordNotification(string(AudienceCustomer), string(input.Template), "skipped")
		return fmt.Errorf("customer email %s: contract has no customer", input.Template)
	}

	err := s.sender.Send(ctx, Message{
		Shop:       shop,
		Audience:   AudienceCustomer,
		CustomerID: customerID,
		Input:      input,
	})
	record(ctx, AudienceCustomer, input, err)
	if err != nil {
		return fmt.Errorf("failed to send customer email %s: %w", input.Template, err)
	}
	return nil
}

// MerchantSendEmailService emails the shop owner.
type MerchantSendEmailService struct {
	sender Sender
}

// NewMerchantSendEmailService creates a merchant email service
func NewMerchantSendEmailService(sender Sender) *MerchantSendEmailService {
	return &MerchantSendEmailService{sender: sender}
}

// Run sends input to the merchant of shop.
func (s *MerchantSendEmailService) Run(ctx context.Context, shop string, input TemplateInput) error {
	return s.send(ctx, Message{Shop: shop, Audience: AudienceMerchant, Input: input})
}

// RunWithKey is Run with an explicit idempotency key, used by digests that
// reuse one template for many periods.
func (s *MerchantSendEmailService) RunWithKey(ctx context.Context, shop, key string, input TemplateInput) error {
	return s.send(ctx, Message{Shop: shop, Audience: AudienceMerchant, Input: input, IdempotencyKey: key})
}

func (s *MerchantSendEmailService) send(ctx context.Context, msg Message) error {
	err := s.sender.Send(ctx, msg)
	record(ctx, AudienceMerchant, msg.Input, err)
	if err != nil {
		return fmt.Errorf("failed to send merchant email %s: %w", msg.Input.Template, err)
	}
	return nil
}

func record(ctx context.Context, audience Audience, input TemplateInput, err error) {
	status := "sent"
	if err != nil {
		status = "error"
	}
	metrics.RecordNotification(string(audience), string(input.Template), status)
	log.Debug(ctx, "Email notification",
		zap.String("audience", string(audience)),
		zap.String("template", string(input.Template)),
		zap.String("status", status))
}
