package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/metrics"
	"github.com/jia-app/dunningservice/internal/notifications"
)

// FinalAttemptRequest describes the terminal action for an exhausted billing cycle.
type FinalAttemptRequest struct {
	Shop              string
	Contract          domain.Contract
	BillingCycleIndex int
	OnFailure         domain.OnFailureAction
	FailureReason     domain.FailureReason
}

// FinalAttemptDunningService applies the on-failure action and notifies the
// customer and the merchant.
type FinalAttemptDunningService struct {
	actions  ContractActions
	customer CustomerNotifier
	merchant MerchantNotifier
}

// NewFinalAttemptDunningService creates a final attempt service
func NewFinalAttemptDunningService(actions ContractActions, customer CustomerNotifier, merchant MerchantNotifier) *FinalAttemptDunningService {
	return &FinalAttemptDunningService{
		actions:  actions,
		customer: customer,
		merchant: merchant,
	}
}

// Run executes exactly one of cancel, pause or skip. A failed mutation is
// returned and nobody is notified. Once the mutation succeeded both
// notifications are attempted; their failures are logged and counted but do
// not undo the action.
func (s *FinalAttemptDunningService) Run(ctx context.Context, req FinalAttemptRequest) (domain.DunningStatus, error) {
	status, err := domain.DunningStatusFor(req.OnFailure)
	if err != nil {
		return "", err
	}

	switch req.OnFailure {
	case domain.OnFailureCancel:
		err = s.actions.CancelContract(ctx, req.Shop, req.Contract.ID)
	case domain.OnFailurePause:
		err = s.actions.PauseContract(ctx, req.Shop, req.Contract.ID)
	case domain.OnFailureSkip:
		err = s.actions.SkipBillingCycle(ctx, req.Shop, req.Contract.ID, req.BillingCycleIndex)
	}
	if err != nil {
		metrics.RecordError("terminal_action", "final_attempt")
		return "", fmt.Errorf("dunning %s of %s failed: %w", req.OnFailure, req.Contract.ID, err)
	}

	log.Info(ctx, "Dunning final attempt applied",
		zap.String("contract_id", req.Contract.ID),
		zap.Int("billing_cycle_index", req.BillingCycleIndex),
		zap.String("dunning_status", string(status)))

	variables := map[string]any{
		"failure_reason": string(req.FailureReason),
		"customer_name":  req.Contract.Customer.DisplayName,
	}

	customerInput := notifications.TemplateInput{
		Template:          notifications.CustomerTemplateFor(status),
		DunningStatus:     status,
		ContractID:        req.Contract.ID,
		BillingCycleIndex: req.BillingCycleIndex,
		Variables:         variables,
	}
	if err := s.customer.Run(ctx, req.Shop, req.Contract.Customer.ID, customerInput); err != nil {
		metrics.RecordError("notification", "final_attempt")
		log.Error(ctx, "Failed to notify customer of dunning outcome",
			zap.String("contract_id", req.Contract.ID),
			zap.String("dunning_status", string(status)),
			zap.Error(err))
	}

	merchantInput := notifications.TemplateInput{
		Template:          notifications.MerchantTemplateFor(status),
		DunningStatus:     status,
		ContractID:        req.Contract.ID,
		BillingCycleIndex: req.BillingCycleIndex,
		Variables:         variables,
	}
	if err := s.merchant.Run(ctx, req.Shop, merchantInput); err != nil {
		metrics.RecordError("notification", "final_attempt")
		log.Error(ctx, "Failed to notify merchant of dunning outcome",
			zap.String("contract_id", req.Contract.ID),
			zap.String("dunning_status", string(status)),
			zap.Error(err))
	}

	return status, nil
}
