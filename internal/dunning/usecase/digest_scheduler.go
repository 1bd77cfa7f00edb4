package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/notifications"
)

const digestBatchSize = 100

// DigestScheduler periodically sends due inventory failure digests.
type DigestScheduler struct {
	digest   DigestQueue
	mailer   DigestMailer
	interval time.Duration
	now      func() time.Time

	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewDigestScheduler creates a digest scheduler
func NewDigestScheduler(digest DigestQueue, mailer DigestMailer, interval time.Duration) *DigestScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &DigestScheduler{
		digest:   digest,
		mailer:   mailer,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs FlushDue on every tick until Stop or ctx is done
func (s *DigestScheduler) Start(ctx context.Context) {
	s.ticker = time.NewTicker(s.interval)
	log.L(ctx).Info("Starting inventory digest scheduler", zap.Duration("interval", s.interval))

	go func() {
		for {
			select {
			case <-s.ticker.C:
				if _, err := s.FlushDue(ctx); err != nil {
					log.L(ctx).Error("Inventory digest flush failed", zap.Error(err))
				}
			case <-s.stopChan:
				log.L(ctx).Info("Stopping inventory digest scheduler")
				return
			case <-ctx.Done():
				log.L(ctx).Info("Inventory digest scheduler context cancelled")
				return
			}
		}
	}()
}

// Stop stops the scheduler
func (s *DigestScheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// FlushDue sends one digest per due shop and returns how many were sent.
// A shop whose email fails keeps its entries for the next tick.
func (s *DigestScheduler) FlushDue(ctx context.Context) (int, error) {
	shops, err := s.digest.DueShops(ctx, s.now().UTC(), digestBatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, shop := range shops {
		shopCtx := log.WithShop(ctx, shop)
		if err := s.flushShop(shopCtx, shop); err != nil {
			log.Error(shopCtx, "Failed to send inventory digest", zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *DigestScheduler) flushShop(ctx context.Context, shop string) error {
	pending, err := s.digest.Pending(ctx, shop)
	if err != nil {
		return err
	}

	if len(pending) > 0 {
		failures := make([]map[string]any, 0, len(pending))
		for _, f := range pending {
			failures = append(failures, map[string]any{
				"contract_id":         f.ContractID,
				"billing_cycle_index": f.BillingCycleIndex,
				"failure_reason":      string(f.Reason),
				"occurred_at":         f.OccurredAt,
			})
		}

		// Same batch, same key: a retried flush is not delivered twice.
		name := fmt.Sprintf("%s:%d:%d", shop, pending[0].OccurredAt.UnixNano(), len(pending))
		key := uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()

		err = s.mailer.RunWithKey(ctx, shop, key, notifications.TemplateInput{
			Template: notifications.TemplateInventoryFailureDigest,
			Variables: map[string]any{
				"failures": failures,
				"count":    len(pending),
			},
		})
		if err != nil {
			return err
		}
	}

	if _, err := s.digest.Ack(ctx, shop, len(pending)); err != nil {
		return err
	}
	log.Info(ctx, "Inventory digest sent", zap.Int("failures", len(pending)))
	return nil
}
