package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/commerce"
	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/log"
)

// RetryRequest describes one rescheduled billing attempt.
type RetryRequest struct {
	Shop                     string
	ContractID               string
	BillingCycleIndex        int
	DaysBetweenRetryAttempts int
	FailureClass             domain.FailureClass
}

// RetryDunningService reschedules a failed billing cycle a configured number of days later.
type RetryDunningService struct {
	scheduler BillingScheduler
	now       func() time.Time
}

// NewRetryDunningService creates a retry service
func NewRetryDunningService(scheduler BillingScheduler) *RetryDunningService {
	return &RetryDunningService{scheduler: scheduler, now: time.Now}
}

// Run moves the cycle's next attempt to now + DaysBetweenRetryAttempts and
// returns that date. Commerce API errors are returned unchanged in kind.
func (s *RetryDunningService) Run(ctx context.Context, req RetryRequest) (time.Time, error) {
	billingDate := s.now().UTC().AddDate(0, 0, req.DaysBetweenRetryAttempts)

	err := s.scheduler.RescheduleBillingCycle(ctx, req.Shop, commerce.RescheduleInput{
		ContractID:  req.ContractID,
		CycleIndex:  req.BillingCycleIndex,
		BillingDate: billingDate,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to reschedule billing cycle %d: %w", req.BillingCycleIndex, err)
	}

	log.Info(ctx, "Dunning retry scheduled",
		zap.String("contract_id", req.ContractID),
		zap.Int("billing_cycle_index", req.BillingCycleIndex),
		zap.String("failure_class", req.FailureClass.String()),
		zap.Int("days_between_retry_attempts", req.DaysBetweenRetryAttempts),
		zap.Time("billing_date", billingDate))

	return billingDate, nil
}
