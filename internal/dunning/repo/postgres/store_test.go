package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

// newTestStore connects to DUNNING_TEST_DATABASE_DSN and applies the migrations.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("DUNNING_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("DUNNING_TEST_DATABASE_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	for _, file := range []string{
		"../../../../migrations/001_create_dunning_trackers.sql",
		"../../../../migrations/002_create_shop_sessions.sql",
	} {
		ddl, err := os.ReadFile(file)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(ddl))
		require.NoError(t, err)
	}

	store, err := NewStoreWithPool(pool)
	require.NoError(t, err)
	return store
}

func uniqueKey() domain.TrackerKey {
	return domain.TrackerKey{
		Shop:              "test-" + uuid.NewString()[:8] + ".myshopify.com",
		ContractID:        "gid://shopify/SubscriptionContract/" + uuid.NewString(),
		BillingCycleIndex: 2,
	}
}

func TestNewStoreWithPool_NilPool(t *testing.T) {
	_, err := NewStoreWithPool(nil)
	require.Error(t, err)
}

func TestTrackerRepository_FindOrCreate(t *testing.T) {
	store := newTestStore(t)
	trackers := store.Trackers()
	ctx := context.Background()
	key := uniqueKey()

	first, err := trackers.FindOrCreate(ctx, key, "PAYMENT_METHOD_DECLINED")
	require.NoError(t, err)
	assert.Equal(t, key, first.Key())
	assert.Nil(t, first.CompletedAt)

	second, err := trackers.FindOrCreate(ctx, key, "INSUFFICIENT_FUNDS")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "PAYMENT_METHOD_DECLINED", second.FailureReason)
}

func TestTrackerRepository_FindOrCreate_Concurrent(t *testing.T) {
	store := newTestStore(t)
	trackers := store.Trackers()
	ctx := context.Background()
	key := uniqueKey()

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 10)
	errs := make([]error, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker, err := trackers.FindOrCreate(ctx, key, "PAYMENT_METHOD_DECLINED")
			errs[i] = err
			if err == nil {
				ids[i] = tracker.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestTrackerRepository_MarkCompleted(t *testing.T) {
	store := newTestStore(t)
	trackers := store.Trackers()
	ctx := context.Background()
	key := uniqueKey()

	tracker, err := trackers.FindOrCreate(ctx, key, "PAYMENT_METHOD_DECLINED")
	require.NoError(t, err)

	require.NoError(t, trackers.RecordAttempt(ctx, tracker.ID, "INSUFFICIENT_FUNDS", 2))
	require.NoError(t, trackers.MarkCompleted(ctx, tracker.ID, domain.OutcomeSkipped))
	require.NoError(t, trackers.MarkCompleted(ctx, tracker.ID, domain.OutcomeCanceled))

	got, err := trackers.FindByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, domain.OutcomeSkipped, got.Outcome)
	assert.Equal(t, 2, got.AttemptsCount)
	assert.Equal(t, "INSUFFICIENT_FUNDS", got.FailureReason)

	// completed trackers ignore further attempts
	require.NoError(t, trackers.RecordAttempt(ctx, tracker.ID, "CARD_EXPIRED", 5))
	got, err = trackers.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptsCount)
}

func TestTrackerRepository_Reopen(t *testing.T) {
	store := newTestStore(t)
	trackers := store.Trackers()
	ctx := context.Background()
	key := uniqueKey()

	tracker, err := trackers.FindOrCreate(ctx, key, "PAYMENT_METHOD_DECLINED")
	require.NoError(t, err)
	require.NoError(t, trackers.RecordAttempt(ctx, tracker.ID, "PAYMENT_METHOD_DECLINED", 1))
	require.NoError(t, trackers.MarkCompleted(ctx, tracker.ID, domain.OutcomeExpectedDateInFuture))

	reopened, err := trackers.Reopen(ctx, tracker.ID, domain.OutcomeCanceled)
	require.NoError(t, err)
	assert.False(t, reopened)

	reopened, err = trackers.Reopen(ctx, tracker.ID, domain.OutcomeExpectedDateInFuture)
	require.NoError(t, err)
	assert.True(t, reopened)

	got, err := trackers.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.Outcome)
	assert.Equal(t, 1, got.AttemptsCount)

	again, err := trackers.FindOrCreate(ctx, key, "PAYMENT_METHOD_DECLINED")
	require.NoError(t, err)
	assert.Equal(t, tracker.ID, again.ID)
}

func TestTrackerRepository_UnknownID(t *testing.T) {
	store := newTestStore(t)
	trackers := store.Trackers()
	ctx := context.Background()

	assert.ErrorIs(t, trackers.MarkCompleted(ctx, uuid.New(), domain.OutcomeCanceled), domain.ErrTrackerNotFound)
	assert.ErrorIs(t, trackers.RecordAttempt(ctx, uuid.New(), "X", 1), domain.ErrTrackerNotFound)
	_, err := trackers.Reopen(ctx, uuid.New(), domain.OutcomeCanceled)
	assert.ErrorIs(t, err, domain.ErrTrackerNotFound)

	_, err = trackers.FindByKey(ctx, uniqueKey())
	assert.ErrorIs(t, err, domain.ErrTrackerNotFound)
}

func TestSessionRepository_AccessToken(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	shop := uniqueKey().Shop

	_, err := store.Sessions().AccessToken(ctx, shop)
	require.Error(t, err)
	derr := domain.GetDomainError(err)
	require.NotNil(t, derr)
	assert.Equal(t, domain.ErrCodeNotFound, derr.Code)

	pool := store.db.(*pgxpool.Pool)
	_, err = pool.Exec(ctx,
		`INSERT INTO shop_sessions (id, shop, access_token, is_online) VALUES ($1, $2, $3, false)`,
		"offline_"+shop, shop, "shpat_test")
	require.NoError(t, err)

	token, err := store.Sessions().AccessToken(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, "shpat_test", token)
}
