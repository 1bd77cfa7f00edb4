package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jia-app/dunningservice/internal/commerce"
	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/events"
	"github.com/jia-app/dunningservice/internal/notifications"
)

const (
	testShop     = "acme.myshopify.com"
	testContract = "gid://shopify/SubscriptionContract/42"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeCommerce struct {
	mu sync.Mutex

	contract *domain.Contract
	cycle    *domain.BillingCycle
	readErr  error

	rescheduleErr error
	actionErr     error

	reschedules []commerce.RescheduleInput
	cancels     []string
	pauses      []string
	skips       []int
}

func (f *fakeCommerce) GetContract(ctx context.Context, shop, contractID string) (*domain.Contract, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	c := *f.contract
	return &c, nil
}

func (f *fakeCommerce) GetBillingCycle(ctx context.Context, shop, contractID string, cycleIndex int) (*domain.BillingCycle, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	c := *f.cycle
	return &c, nil
}

func (f *fakeCommerce) RescheduleBillingCycle(ctx context.Context, shop string, input commerce.RescheduleInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rescheduleErr != nil {
		return f.rescheduleErr
	}
	f.reschedules = append(f.reschedules, input)
	return nil
}

func (f *fakeCommerce) PauseContract(ctx context.Context, shop, contractID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.pauses = append(f.pauses, contractID)
	return nil
}

func (f *fakeCommerce) CancelContract(ctx context.Context, shop, contractID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.cancels = append(f.cancels, contractID)
	return nil
}

func (f *fakeCommerce) SkipBillingCycle(ctx context.Context, shop, contractID string, cycleIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.skips = append(f.skips, cycleIndex)
	return nil
}

func (f *fakeCommerce) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reschedules) + len(f.cancels) + len(f.pauses) + len(f.skips)
}

type sentEmail struct {
	shop       string
	customerID string
	key        string
	input      notifications.TemplateInput
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []sentEmail
}

func (f *fakeNotifier) record(e sentEmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
	return f.err
}

type fakeCustomerNotifier struct{ fakeNotifier }

func (f *fakeCustomerNotifier) Run(ctx context.Context, shop, customerID string, input notifications.TemplateInput) error {
	return f.record(sentEmail{shop: shop, customerID: customerID, input: input})
}

type fakeMerchantNotifier struct{ fakeNotifier }

func (f *fakeMerchantNotifier) Run(ctx context.Context, shop string, input notifications.TemplateInput) error {
	return f.record(sentEmail{shop: shop, input: input})
}

func (f *fakeMerchantNotifier) RunWithKey(ctx context.Context, shop, key string, input notifications.TemplateInput) error {
	return f.record(sentEmail{shop: shop, key: key, input: input})
}

type fakeSettingsStore struct {
	settings map[string]domain.Settings
	getErr   error
	gets     int
	upserts  int
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{settings: make(map[string]domain.Settings)}
}

func (f *fakeSettingsStore) GetDunningSettings(ctx context.Context, shop string) (*domain.Settings, error) {
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.settings[shop]
	if !ok {
		return nil, domain.ErrSettingsNotFound
	}
	return &s, nil
}

func (f *fakeSettingsStore) UpsertDunningSettings(ctx context.Context, shop string, settings domain.Settings) (*domain.Settings, error) {
	f.upserts++
	settings.ID = "gid://shopify/Metaobject/1"
	f.settings[shop] = settings
	return &settings, nil
}

type fakeSettingsCache struct {
	entries map[string]domain.Settings
	deletes int
}

func newFakeSettingsCache() *fakeSettingsCache {
	return &fakeSettingsCache{entries: make(map[string]domain.Settings)}
}

func (f *fakeSettingsCache) Get(ctx context.Context, shop string) (*domain.Settings, bool, error) {
	s, ok := f.entries[shop]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (f *fakeSettingsCache) Set(ctx context.Context, shop string, settings domain.Settings) error {
	f.entries[shop] = settings
	return nil
}

func (f *fakeSettingsCache) Delete(ctx context.Context, shop string) error {
	f.deletes++
	delete(f.entries, shop)
	return nil
}

type appendedFailure struct {
	shop    string
	failure domain.InventoryFailure
	dueAt   time.Time
}

type fakeDigestQueue struct {
	mu       sync.Mutex
	appended []appendedFailure
	due      []string
	pending  map[string][]domain.InventoryFailure
	acked    map[string]int
}

func newFakeDigestQueue() *fakeDigestQueue {
	return &fakeDigestQueue{
		pending: make(map[string][]domain.InventoryFailure),
		acked:   make(map[string]int),
	}
}

func (f *fakeDigestQueue) Append(ctx context.Context, shop string, failure domain.InventoryFailure, dueAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, appendedFailure{shop: shop, failure: failure, dueAt: dueAt})
	f.pending[shop] = append(f.pending[shop], failure)
	return nil
}

func (f *fakeDigestQueue) DueShops(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.due...), nil
}

func (f *fakeDigestQueue) Pending(ctx context.Context, shop string) ([]domain.InventoryFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.InventoryFailure(nil), f.pending[shop]...), nil
}

func (f *fakeDigestQueue) Ack(ctx context.Context, shop string, n int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked[shop] += n
	f.pending[shop] = f.pending[shop][n:]
	return int64(len(f.pending[shop])), nil
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	outcomes []events.DunningOutcome
}

func (f *fakePublisher) PublishDunningOutcome(ctx context.Context, outcome events.DunningOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

func activeContract() *domain.Contract {
	return &domain.Contract{
		ID:     testContract,
		Status: domain.ContractStatusActive,
		Customer: domain.Customer{
			ID:          "gid://shopify/Customer/7",
			Email:       "buyer@example.com",
			DisplayName: "Ada Buyer",
		},
	}
}

// failedCycle returns an unbilled cycle due yesterday with one failed attempt per code.
func failedCycle(index int, codes ...string) *domain.BillingCycle {
	cycle := &domain.BillingCycle{
		CycleIndex:                 index,
		Status:                     domain.BillingCycleStatusUnbilled,
		BillingAttemptExpectedDate: testNow.Add(-24 * time.Hour),
	}
	for i, code := range codes {
		cycle.BillingAttempts = append(cycle.BillingAttempts, domain.BillingAttempt{
			ID:        "attempt-" + string(rune('a'+i)),
			ErrorCode: code,
			Ready:     true,
			CreatedAt: testNow.Add(-time.Duration(len(codes)-i) * time.Hour),
		})
	}
	return cycle
}
