package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/dunning/repo"
	"github.com/jia-app/dunningservice/internal/events"
	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/metrics"
)

// FailureEvent is a failed billing attempt delivered by the webhook transport.
type FailureEvent struct {
	Shop              string
	ContractID        string
	BillingCycleIndex int
	FailureReason     string
	ErrorMessage      string
	BillingAttemptID  string
}

// SuccessEvent is a successful billing attempt delivered by the webhook transport.
type SuccessEvent struct {
	Shop              string
	ContractID        string
	BillingCycleIndex int
	BillingAttemptID  string
}

// SettingsLoader resolves a shop's settings.
type SettingsLoader interface {
	Load(ctx context.Context, shop string) (domain.Settings, error)
}

// Runner runs the dunning decision for one failure.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (Result, error)
}

// ContractAuditor records terminal contract actions.
type ContractAuditor interface {
	LogContractAction(ctx context.Context, shop, contractID string, billingCycleIndex int, outcome domain.Outcome) error
}

// DunningHandler turns transport events into orchestrator runs and publishes
// their outcomes.
type DunningHandler struct {
	contracts    ContractReader
	settings     SettingsLoader
	orchestrator Runner
	trackers     repo.TrackerRepository
	publisher    events.DunningPublisher
	auditor      ContractAuditor
}

// NewDunningHandler creates a handler. publisher may be nil.
func NewDunningHandler(contracts ContractReader, settings SettingsLoader, orchestrator Runner, trackers repo.TrackerRepository, publisher events.DunningPublisher) *DunningHandler {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &DunningHandler{
		contracts:    contracts,
		settings:     settings,
		orchestrator: orchestrator,
		trackers:     trackers,
		publisher:    publisher,
	}
}

// WithAuditor records every cancel, pause and skip in the audit trail.
func (h *DunningHandler) WithAuditor(auditor ContractAuditor) *DunningHandler {
	h.auditor = auditor
	return h
}

// HandleFailure loads the contract, cycle and settings for ev and runs the orchestrator.
func (h *DunningHandler) HandleFailure(ctx context.Context, ev FailureEvent) (Result, error) {
	key := domain.TrackerKey{Shop: ev.Shop, ContractID: ev.ContractID, BillingCycleIndex: ev.BillingCycleIndex}
	if err := key.Validate(); err != nil {
		return Result{}, err
	}

	ctx = log.WithShop(ctx, ev.Shop)
	ctx = log.WithContractID(ctx, ev.ContractID)
	start := time.Now()

	log.Info(ctx, "Billing attempt failed",
		zap.Int("billing_cycle_index", ev.BillingCycleIndex),
		zap.String("failure_reason", ev.FailureReason),
		zap.String("error_message", ev.ErrorMessage),
		zap.String("billing_attempt_id", ev.BillingAttemptID))

	contract, err := h.contracts.GetContract(ctx, ev.Shop, ev.ContractID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load contract: %w", err)
	}
	cycle, err := h.contracts.GetBillingCycle(ctx, ev.Shop, ev.ContractID, ev.BillingCycleIndex)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load billing cycle: %w", err)
	}
	settings, err := h.settings.Load(ctx, ev.Shop)
	if err != nil {
		return Result{}, err
	}

	res, err := h.orchestrator.Run(ctx, RunRequest{
		Shop:          ev.Shop,
		Contract:      *contract,
		BillingCycle:  *cycle,
		Settings:      settings,
		FailureReason: ev.FailureReason,
	})
	if err != nil {
		metrics.RecordError("dunning_run", "handler")
		log.Error(ctx, "Dunning run failed", zap.Error(err))
		return res, err
	}

	metrics.RecordDunningOutcome(string(res.Outcome), res.FailureClass.String(), time.Since(start))
	if !res.Replayed && isContractAction(res.Outcome) && h.auditor != nil {
		if err := h.auditor.LogContractAction(ctx, ev.Shop, ev.ContractID, ev.BillingCycleIndex, res.Outcome); err != nil {
			log.Warn(ctx, "Failed to write audit event", zap.Error(err))
		}
	}
	if !res.Replayed {
		h.publish(ctx, events.DunningOutcome{
			Shop:              ev.Shop,
			ContractID:        ev.ContractID,
			BillingCycleIndex: ev.BillingCycleIndex,
			FailureReason:     string(res.FailureReason),
			FailureClass:      res.FailureClass.String(),
			Outcome:           string(res.Outcome),
			AttemptsCount:     res.AttemptsCount,
			TrackerID:         trackerID(res),
			NextBillingDate:   res.NextBillingDate,
		})
	}
	return res, nil
}

// HandleSuccess completes the open tracker of the cycle, if any. It reports
// whether a tracker was stopped.
func (h *DunningHandler) HandleSuccess(ctx context.Context, ev SuccessEvent) (bool, error) {
	key := domain.TrackerKey{Shop: ev.Shop, ContractID: ev.ContractID, BillingCycleIndex: ev.BillingCycleIndex}
	if err := key.Validate(); err != nil {
		return false, err
	}
	ctx = log.WithShop(ctx, ev.Shop)
	ctx = log.WithContractID(ctx, ev.ContractID)

	tracker, err := h.trackers.FindByKey(ctx, key)
	if errors.Is(err, domain.ErrTrackerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load dunning tracker: %w", err)
	}
	if tracker.IsCompleted() {
		return false, nil
	}

	if err := h.trackers.MarkCompleted(ctx, tracker.ID, domain.OutcomeBillingSucceeded); err != nil {
		return false, fmt.Errorf("failed to complete dunning tracker: %w", err)
	}

	log.Info(ctx, "Dunning stopped after successful billing",
		zap.Int("billing_cycle_index", ev.BillingCycleIndex),
		zap.String("tracker_id", tracker.ID.String()))
	metrics.RecordDunningOutcome(string(domain.OutcomeBillingSucceeded), "", 0)

	h.publish(ctx, events.DunningOutcome{
		Shop:              ev.Shop,
		ContractID:        ev.ContractID,
		BillingCycleIndex: ev.BillingCycleIndex,
		Outcome:           string(domain.OutcomeBillingSucceeded),
		AttemptsCount:     tracker.AttemptsCount,
		TrackerID:         tracker.ID.String(),
	})
	return true, nil
}

func (h *DunningHandler) publish(ctx context.Context, outcome events.DunningOutcome) {
	if err := h.publisher.PublishDunningOutcome(ctx, outcome); err != nil {
		metrics.RecordEventPublished(events.EventTypeDunningOutcome, "error")
		log.Warn(ctx, "Failed to publish dunning outcome",
			zap.String("outcome", outcome.Outcome),
			zap.Error(err))
		return
	}
	metrics.RecordEventPublished(events.EventTypeDunningOutcome, "success")
}

func isContractAction(outcome domain.Outcome) bool {
	switch outcome {
	case domain.OutcomeCanceled, domain.OutcomePaused, domain.OutcomeSkipped:
		return true
	default:
		return false
	}
}

func trackerID(res Result) string {
	if res.TrackerID == [16]byte{} {
		return ""
	}
	return res.TrackerID.String()
}
