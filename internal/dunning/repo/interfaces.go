package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

// TrackerRepository persists dunning trackers. Implementations own the
// uniqueness of (shop, contract, billing cycle): concurrent FindOrCreate calls
// for the same key must converge on one row.
type TrackerRepository interface {
	// FindOrCreate returns the tracker for key, creating an open one when none exists
	FindOrCreate(ctx context.Context, key domain.TrackerKey, failureReason string) (*domain.Tracker, error)

	// FindByKey returns the tracker for key or domain.ErrTrackerNotFound
	FindByKey(ctx context.Context, key domain.TrackerKey) (*domain.Tracker, error)

	// RecordAttempt stores the latest failure reason and attempt count of an open tracker
	RecordAttempt(ctx context.Context, id uuid.UUID, failureReason string, attemptsCount int) error

	// MarkCompleted sets completed_at and the outcome; a completed tracker is left untouched
	MarkCompleted(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error

	// Reopen clears completed_at when the tracker is still completed with outcome.
	// It reports false when the tracker was closed with another outcome in the meantime.
	Reopen(ctx context.Context, id uuid.UUID, outcome domain.Outcome) (bool, error)
}

// SessionRepository resolves offline access tokens for installed shops.
type SessionRepository interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}
