package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/dunning/repo"
	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/retry"
	"github.com/jia-app/dunningservice/internal/tracing"
)

// RetryRunner schedules one retry.
type RetryRunner interface {
	Run(ctx context.Context, req RetryRequest) (time.Time, error)
}

// FinalAttemptRunner applies the terminal action.
type FinalAttemptRunner interface {
	Run(ctx context.Context, req FinalAttemptRequest) (domain.DunningStatus, error)
}

// InventoryFailureNotifier tells the merchant about an inventory failure.
type InventoryFailureNotifier interface {
	Notify(ctx context.Context, shop string, frequency domain.NotificationFrequency, failure domain.InventoryFailure) error
}

// RunRequest is one failed billing attempt together with the state it is judged against.
type RunRequest struct {
	Shop          string
	Contract      domain.Contract
	BillingCycle  domain.BillingCycle
	Settings      domain.Settings
	FailureReason string
}

// Result describes what a run decided.
type Result struct {
	Outcome         domain.Outcome
	TrackerID       uuid.UUID
	FailureReason   domain.FailureReason
	FailureClass    domain.FailureClass
	AttemptsCount   int
	NextBillingDate *time.Time
	// Replayed is set when the tracker was already completed and nothing was done.
	Replayed bool
}

// ActionNotRecordedError is returned when the terminal action was applied but the
// tracker could not be completed. Redelivering the event would apply it again.
type ActionNotRecordedError struct {
	Outcome domain.Outcome
	Err     error
}

func (e *ActionNotRecordedError) Error() string {
	return fmt.Sprintf("dunning action %s applied but not recorded: %v", e.Outcome, e.Err)
}

func (e *ActionNotRecordedError) Unwrap() error { return e.Err }

// Orchestrator decides between the early exits, a retry and the final attempt.
type Orchestrator struct {
	trackers     repo.TrackerRepository
	retry        RetryRunner
	finalAttempt FinalAttemptRunner
	inventory    InventoryFailureNotifier
	trackerRetry retry.Config
	now          func() time.Time
}

// NewOrchestrator creates an orchestrator. inventory may be nil.
func NewOrchestrator(trackers repo.TrackerRepository, retrier RetryRunner, finalAttempt FinalAttemptRunner, inventory InventoryFailureNotifier) *Orchestrator {
	return &Orchestrator{
		trackers:     trackers,
		retry:        retrier,
		finalAttempt: finalAttempt,
		inventory:    inventory,
		trackerRetry: retry.DefaultConfig(),
		now:          time.Now,
	}
}

// Run applies the first matching rule:
//  1. cycle already billed
//  2. contract in a terminal status
//  3. cycle skipped
//  4. expected billing date still in the future
//  5. tracker completed with a final outcome: replay, no side effects
//  6. fewer failed attempts of the failure's class than allowed: retry
//  7. otherwise: final attempt
//
// Rules 1-4 and 7 complete the tracker. A tracker completed by rules 1-4 is
// reopened once a later failure gets past them. At most one of retry and final
// attempt runs per call.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (res Result, err error) {
	key := domain.TrackerKey{
		Shop:              req.Shop,
		ContractID:        req.Contract.ID,
		BillingCycleIndex: req.BillingCycle.CycleIndex,
	}
	if err := key.Validate(); err != nil {
		return Result{}, err
	}

	reason := domain.ParseFailureReason(req.FailureReason)
	class := reason.Class()
	res = Result{FailureReason: reason, FailureClass: class}

	ctx, span := tracing.StartSpan(ctx, "dunning.run",
		attribute.String("shop", req.Shop),
		attribute.String("contract_id", req.Contract.ID),
		attribute.Int("billing_cycle_index", req.BillingCycle.CycleIndex),
		attribute.String("failure_reason", string(reason)))
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		tracing.EndSpan(span, err)
	}()

	logger := log.L(ctx).With(
		zap.String("shop", req.Shop),
		zap.String("contract_id", req.Contract.ID),
		zap.Int("billing_cycle_index", req.BillingCycle.CycleIndex),
		zap.String("failure_reason", string(reason)))

	if outcome, ok := o.earlyExit(req); ok {
		tracker, err := o.trackers.FindOrCreate(ctx, key, string(reason))
		if err != nil {
			return res, fmt.Errorf("failed to load dunning tracker: %w", err)
		}
		if err := o.trackers.MarkCompleted(ctx, tracker.ID, outcome); err != nil {
			return res, fmt.Errorf("failed to complete dunning tracker: %w", err)
		}
		res.Outcome = outcome
		res.TrackerID = tracker.ID
		res.AttemptsCount = tracker.AttemptsCount
		logger.Info("Dunning stopped early", zap.String("outcome", string(outcome)))
		return res, nil
	}

	tracker, err := o.trackers.FindOrCreate(ctx, key, string(reason))
	if err != nil {
		return res, fmt.Errorf("failed to load dunning tracker: %w", err)
	}
	res.TrackerID = tracker.ID

	if tracker.IsCompleted() && !tracker.Outcome.IsFinal() {
		tracker, err = o.reopen(ctx, key, tracker)
		if err != nil {
			return res, err
		}
		if !tracker.IsCompleted() {
			logger.Info("Dunning tracker reopened",
				zap.String("tracker_id", tracker.ID.String()))
		}
	}

	if tracker.IsCompleted() {
		res.Outcome = tracker.Outcome
		res.AttemptsCount = tracker.AttemptsCount
		res.Replayed = true
		logger.Info("Dunning tracker already completed",
			zap.String("tracker_id", tracker.ID.String()),
			zap.String("outcome", string(tracker.Outcome)))
		return res, nil
	}

	policy := req.Settings.PolicyFor(class)
	attempts := req.BillingCycle.FailedAttempts(class)
	res.AttemptsCount = attempts

	logger = logger.With(
		zap.String("tracker_id", tracker.ID.String()),
		zap.String("failure_class", class.String()),
		zap.Int("attempts", attempts),
		zap.Int("retry_attempts", policy.RetryAttempts))

	if attempts < policy.RetryAttempts {
		next, err := o.retry.Run(ctx, RetryRequest{
			Shop:                     req.Shop,
			ContractID:               req.Contract.ID,
			BillingCycleIndex:        req.BillingCycle.CycleIndex,
			DaysBetweenRetryAttempts: policy.DaysBetweenRetryAttempts,
			FailureClass:             class,
		})
		if err != nil {
			return res, err
		}
		if err := o.trackers.RecordAttempt(ctx, tracker.ID, string(reason), attempts); err != nil {
			return res, fmt.Errorf("failed to record dunning attempt: %w", err)
		}

		if class == domain.FailureClassInventory {
			o.notifyInventory(ctx, req, reason)
		}

		res.Outcome = domain.RetryOutcomeFor(reason)
		res.NextBillingDate = &next
		logger.Info("Dunning retry", zap.String("outcome", string(res.Outcome)))
		return res, nil
	}

	status, err := o.finalAttempt.Run(ctx, FinalAttemptRequest{
		Shop:              req.Shop,
		Contract:          req.Contract,
		BillingCycleIndex: req.BillingCycle.CycleIndex,
		OnFailure:         policy.OnFailure,
		FailureReason:     reason,
	})
	if err != nil {
		return res, err
	}

	res.Outcome = status.Outcome()
	err = retry.Do(ctx, o.trackerRetry, logger, func() error {
		if err := o.trackers.RecordAttempt(ctx, tracker.ID, string(reason), attempts); err != nil {
			return fmt.Errorf("failed to record dunning attempt: %w", err)
		}
		if err := o.trackers.MarkCompleted(ctx, tracker.ID, res.Outcome); err != nil {
			return fmt.Errorf("failed to complete dunning tracker: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("Dunning action applied but tracker not completed",
			zap.String("outcome", string(res.Outcome)),
			zap.Error(err))
		return res, &ActionNotRecordedError{Outcome: res.Outcome, Err: err}
	}

	logger.Info("Dunning exhausted", zap.String("outcome", string(res.Outcome)))
	return res, nil
}

func (o *Orchestrator) earlyExit(req RunRequest) (domain.Outcome, bool) {
	switch {
	case req.BillingCycle.Status == domain.BillingCycleStatusBilled:
		return domain.OutcomeBillingCycleAlreadyBilled, true
	case req.Contract.Status.IsTerminal():
		return domain.OutcomeContractInTerminalStatus, true
	case req.BillingCycle.Skipped:
		return domain.OutcomeBillingCycleSkipped, true
	case req.BillingCycle.BillingAttemptExpectedDate.After(o.now()):
		return domain.OutcomeExpectedDateInFuture, true
	default:
		return "", false
	}
}

// reopen clears an early-exit completion. When another delivery changed the
// tracker first, the stored state is returned as is.
func (o *Orchestrator) reopen(ctx context.Context, key domain.TrackerKey, tracker *domain.Tracker) (*domain.Tracker, error) {
	reopened, err := o.trackers.Reopen(ctx, tracker.ID, tracker.Outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen dunning tracker: %w", err)
	}
	if reopened {
		open := *tracker
		open.CompletedAt = nil
		open.Outcome = ""
		return &open, nil
	}
	current, err := o.trackers.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load dunning tracker: %w", err)
	}
	return current, nil
}

func (o *Orchestrator) notifyInventory(ctx context.Context, req RunRequest, reason domain.FailureReason) {
	if o.inventory == nil {
		return
	}
	failure := domain.InventoryFailure{
		ContractID:        req.Contract.ID,
		BillingCycleIndex: req.BillingCycle.CycleIndex,
		Reason:            reason,
		OccurredAt:        o.now().UTC(),
	}
	if err := o.inventory.Notify(ctx, req.Shop, req.Settings.InventoryNotificationFrequency, failure); err != nil {
		log.Error(ctx, "Failed to notify merchant of inventory failure",
			zap.String("contract_id", req.Contract.ID),
			zap.Error(err))
	}
}
