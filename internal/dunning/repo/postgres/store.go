package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/dunning/repo"
	"github.com/jia-app/dunningservice/internal/metrics"
)

// DBTX is the subset of pgxpool.Pool the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store represents the PostgreSQL store implementation
type Store struct {
	db  DBTX
	now func() time.Time
}

// NewStoreWithPool creates a new PostgreSQL store with an existing pool
func NewStoreWithPool(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	return &Store{db: pool, now: time.Now}, nil
}

// Trackers returns the tracker repository implementation
func (s *Store) Trackers() repo.TrackerRepository {
	return &trackerRepository{store: s}
}

// Sessions returns the session repository implementation
func (s *Store) Sessions() repo.SessionRepository {
	return &sessionRepository{store: s}
}

const insertTrackerSQL = `
INSERT INTO dunning_trackers (id, shop, contract_id, billing_cycle_index, failure_reason, attempts_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
ON CONFLICT (shop, contract_id, billing_cycle_index) DO NOTHING`

const selectTrackerByKeySQL = `
SELECT id, shop, contract_id, billing_cycle_index, failure_reason, attempts_count, outcome, completed_at, created_at, updated_at
FROM dunning_trackers
WHERE shop = $1 AND contract_id = $2 AND billing_cycle_index = $3`

const recordAttemptSQL = `
UPDATE dunning_trackers
SET failure_reason = $2, attempts_count = $3, updated_at = $4
WHERE id = $1 AND completed_at IS NULL`

const markCompletedSQL = `
UPDATE dunning_trackers
SET completed_at = $2, outcome = $3, updated_at = $2
WHERE id = $1 AND completed_at IS NULL`

const reopenTrackerSQL = `
UPDATE dunning_trackers
SET completed_at = NULL, outcome = NULL, updated_at = $3
WHERE id = $1 AND completed_at IS NOT NULL AND outcome = $2`

const trackerExistsSQL = `SELECT EXISTS (SELECT 1 FROM dunning_trackers WHERE id = $1)`

// trackerRepository implements repo.TrackerRepository
type trackerRepository struct {
	store *Store
}

// FindOrCreate inserts an open tracker unless one exists for the key, then reads it back.
// The unique constraint on the key makes concurrent deliveries converge on one row.
func (r *trackerRepository) FindOrCreate(ctx context.Context, key domain.TrackerKey, failureReason string) (*domain.Tracker, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.RecordTrackerStoreOperation("find_or_create", time.Since(start)) }()

	now := r.store.now().UTC()
	_, err := r.store.db.Exec(ctx, insertTrackerSQL,
		uuid.New(), key.Shop, key.ContractID, key.BillingCycleIndex, failureReason, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dunning tracker: %w", err)
	}

	tracker, err := r.selectByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read dunning tracker: %w", err)
	}
	return tracker, nil
}

// FindByKey retrieves the tracker for a key
func (r *trackerRepository) FindByKey(ctx context.Context, key domain.TrackerKey) (*domain.Tracker, error) {
	start := time.Now()
	defer func() { metrics.RecordTrackerStoreOperation("find_by_key", time.Since(start)) }()

	return r.selectByKey(ctx, key)
}

// RecordAttempt updates failure reason and attempt count of an open tracker
func (r *trackerRepository) RecordAttempt(ctx context.Context, id uuid.UUID, failureReason string, attemptsCount int) error {
	start := time.Now()
	defer func() { metrics.RecordTrackerStoreOperation("record_attempt", time.Since(start)) }()

	tag, err := r.store.db.Exec(ctx, recordAttemptSQL, id, failureReason, attemptsCount, r.store.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record dunning attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

// MarkCompleted sets completed_at once; later calls are no-ops
func (r *trackerRepository) MarkCompleted(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error {
	start := time.Now()
	defer func() { metrics.RecordTrackerStoreOperation("mark_completed", time.Since(start)) }()

	tag, err := r.store.db.Exec(ctx, markCompletedSQL, id, r.store.now().UTC(), string(outcome))
	if err != nil {
		return fmt.Errorf("failed to mark dunning tracker completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

// Reopen clears the completion of a tracker closed with outcome
func (r *trackerRepository) Reopen(ctx context.Context, id uuid.UUID, outcome domain.Outcome) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordTrackerStoreOperation("reopen", time.Since(start)) }()

	tag, err := r.store.db.Exec(ctx, reopenTrackerSQL, id, string(outcome), r.store.now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to reopen dunning tracker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, r.ensureExists(ctx, id)
	}
	return true, nil
}

func (r *trackerRepository) ensureExists(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.store.db.QueryRow(ctx, trackerExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check dunning tracker: %w", err)
	}
	if !exists {
		return domain.ErrTrackerNotFound
	}
	return nil
}

func (r *trackerRepository) selectByKey(ctx context.Context, key domain.TrackerKey) (*domain.Tracker, error) {
	var (
		t           domain.Tracker
		outcome     pgtype.Text
		completedAt pgtype.Timestamptz
	)

	err := r.store.db.QueryRow(ctx, selectTrackerByKeySQL, key.Shop, key.ContractID, key.BillingCycleIndex).Scan(
		&t.ID,
		&t.Shop,
		&t.ContractID,
		&t.BillingCycleIndex,
		&t.FailureReason,
		&t.AttemptsCount,
		&outcome,
		&completedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTrackerNotFound
	}
	if err != nil {
		return nil, err
	}

	if outcome.Valid {
		t.Outcome = domain.Outcome(outcome.String)
	}
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}

const selectAccessTokenSQL = `
SELECT access_token
FROM shop_sessions
WHERE shop = $1 AND is_online = false
ORDER BY updated_at DESC
LIMIT 1`

// sessionRepository implements repo.SessionRepository
type sessionRepository struct {
	store *Store
}

// AccessToken returns the offline access token of an installed shop
func (r *sessionRepository) AccessToken(ctx context.Context, shop string) (string, error) {
	var token string
	err := r.store.db.QueryRow(ctx, selectAccessTokenSQL, shop).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.NewNotFoundError("offline session", shop)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load access token: %w", err)
	}
	return token, nil
}
