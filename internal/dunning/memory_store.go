package dunning

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

// MemoryTrackerStore is an in-memory implementation of repo.TrackerRepository.
type MemoryTrackerStore struct {
	mu       sync.RWMutex
	trackers map[uuid.UUID]*domain.Tracker
	byKey    map[domain.TrackerKey]uuid.UUID
	now      func() time.Time
}

func NewMemoryTrackerStore() *MemoryTrackerStore {
	return &MemoryTrackerStore{
		trackers: make(map[uuid.UUID]*domain.Tracker),
		byKey:    make(map[domain.TrackerKey]uuid.UUID),
		now:      time.Now,
	}
}

func (s *MemoryTrackerStore) FindOrCreate(ctx context.Context, key domain.TrackerKey, failureReason string) (*domain.Tracker, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[key]; ok {
		t := *s.trackers[id]
		return &t, nil
	}

	t := domain.NewTracker(key, failureReason, s.now())
	s.trackers[t.ID] = &t
	s.byKey[key] = t.ID

	out := t
	return &out, nil
}

func (s *MemoryTrackerStore) FindByKey(ctx context.Context, key domain.TrackerKey) (*domain.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, domain.ErrTrackerNotFound
	}
	t := *s.trackers[id]
	return &t, nil
}

func (s *MemoryTrackerStore) RecordAttempt(ctx context.Context, id uuid.UUID, failureReason string, attemptsCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trackers[id]
	if !ok {
		return domain.ErrTrackerNotFound
	}
	if t.IsCompleted() {
		return nil
	}
	t.FailureReason = failureReason
	t.AttemptsCount = attemptsCount
	t.UpdatedAt = s.now()
	return nil
}

func (s *MemoryTrackerStore) MarkCompleted(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trackers[id]
	if !ok {
		return domain.ErrTrackerNotFound
	}
	if t.IsCompleted() {
		return nil
	}
	now := s.now()
	t.CompletedAt = &now
	t.Outcome = outcome
	t.UpdatedAt = now
	return nil
}

func (s *MemoryTrackerStore) Reopen(ctx context.Context, id uuid.UUID, outcome domain.Outcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trackers[id]
	if !ok {
		return false, domain.ErrTrackerNotFound
	}
	if !t.IsCompleted() || t.Outcome != outcome {
		return false, nil
	}
	t.CompletedAt = nil
	t.Outcome = ""
	t.UpdatedAt = s.now()
	return true, nil
}

// Len returns the number of stored trackers.
func (s *MemoryTrackerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trackers)
}
