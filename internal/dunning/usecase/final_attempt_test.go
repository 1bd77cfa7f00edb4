package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/notifications"
)

func TestFinalAttemptDunningService_Run(t *testing.T) {
	tests := []struct {
		action           domain.OnFailureAction
		wantStatus       domain.DunningStatus
		customerTemplate notifications.Template
		merchantTemplate notifications.Template
	}{
		{domain.OnFailureCancel, domain.DunningStatusCanceled, notifications.TemplateSubscriptionCanceled, notifications.TemplateDunningCanceled},
		{domain.OnFailurePause, domain.DunningStatusPaused, notifications.TemplateSubscriptionPaused, notifications.TemplateDunningPaused},
		{domain.OnFailureSkip, domain.DunningStatusSkipped, notifications.TemplateSubscriptionSkipped, notifications.TemplateDunningSkipped},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			fc := &fakeCommerce{}
			customer := &fakeCustomerNotifier{}
			merchant := &fakeMerchantNotifier{}
			svc := NewFinalAttemptDunningService(fc, customer, merchant)

			status, err := svc.Run(context.Background(), FinalAttemptRequest{
				Shop:              testShop,
				Contract:          *activeContract(),
				BillingCycleIndex: 3,
				OnFailure:         tt.action,
				FailureReason:     domain.FailureReasonInsufficientFunds,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, 1, fc.mutations())

			require.Len(t, customer.sent, 1)
			assert.Equal(t, tt.customerTemplate, customer.sent[0].input.Template)
			assert.Equal(t, tt.wantStatus, customer.sent[0].input.DunningStatus)
			assert.Equal(t, 3, customer.sent[0].input.BillingCycleIndex)

			require.Len(t, merchant.sent, 1)
			assert.Equal(t, tt.merchantTemplate, merchant.sent[0].input.Template)
			assert.Equal(t, tt.wantStatus, merchant.sent[0].input.DunningStatus)
		})
	}
}

func TestFinalAttemptDunningService_SkipTargetsFailedCycle(t *testing.T) {
	fc := &fakeCommerce{}
	svc := NewFinalAttemptDunningService(fc, &fakeCustomerNotifier{}, &fakeMerchantNotifier{})

	_, err := svc.Run(context.Background(), FinalAttemptRequest{
		Shop:              testShop,
		Contract:          *activeContract(),
		BillingCycleIndex: 9,
		OnFailure:         domain.OnFailureSkip,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{9}, fc.skips)
	assert.Empty(t, fc.cancels)
	assert.Empty(t, fc.pauses)
}

func TestFinalAttemptDunningService_NotificationFailuresDoNotUndoAction(t *testing.T) {
	fc := &fakeCommerce{}
	customer := &fakeCustomerNotifier{fakeNotifier{err: errors.New("smtp down")}}
	merchant := &fakeMerchantNotifier{fakeNotifier{err: errors.New("smtp down")}}
	svc := NewFinalAttemptDunningService(fc, customer, merchant)

	status, err := svc.Run(context.Background(), FinalAttemptRequest{
		Shop:      testShop,
		Contract:  *activeContract(),
		OnFailure: domain.OnFailurePause,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DunningStatusPaused, status)
	assert.Len(t, customer.sent, 1)
	assert.Len(t, merchant.sent, 1)
}

func TestFinalAttemptDunningService_MutationFailureSkipsNotifications(t *testing.T) {
	fc := &fakeCommerce{actionErr: errors.New("boom")}
	customer := &fakeCustomerNotifier{}
	merchant := &fakeMerchantNotifier{}
	svc := NewFinalAttemptDunningService(fc, customer, merchant)

	_, err := svc.Run(context.Background(), FinalAttemptRequest{
		Shop:      testShop,
		Contract:  *activeContract(),
		OnFailure: domain.OnFailureCancel,
	})
	require.Error(t, err)
	assert.Empty(t, customer.sent)
	assert.Empty(t, merchant.sent)
}

func TestFinalAttemptDunningService_RejectsUnknownAction(t *testing.T) {
	fc := &fakeCommerce{}
	svc := NewFinalAttemptDunningService(fc, &fakeCustomerNotifier{}, &fakeMerchantNotifier{})

	_, err := svc.Run(context.Background(), FinalAttemptRequest{
		Shop:      testShop,
		Contract:  *activeContract(),
		OnFailure: "refund",
	})
	require.Error(t, err)
	assert.Zero(t, fc.mutations())
}

func TestRetryDunningService_Run(t *testing.T) {
	fc := &fakeCommerce{}
	svc := NewRetryDunningService(fc)
	svc.now = func() time.Time { return testNow }

	next, err := svc.Run(context.Background(), RetryRequest{
		Shop:                     testShop,
		ContractID:               testContract,
		BillingCycleIndex:        2,
		DaysBetweenRetryAttempts: 3,
		FailureClass:             domain.FailureClassPayment,
	})
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(0, 0, 3), next)
	require.Len(t, fc.reschedules, 1)
	assert.Equal(t, 2, fc.reschedules[0].CycleIndex)
}

func TestRetryDunningService_PropagatesSchedulerError(t *testing.T) {
	sentinel := errors.New("throttled")
	fc := &fakeCommerce{rescheduleErr: sentinel}
	svc := NewRetryDunningService(fc)

	_, err := svc.Run(context.Background(), RetryRequest{Shop: testShop, ContractID: testContract, DaysBetweenRetryAttempts: 1})
	require.ErrorIs(t, err, sentinel)
}
