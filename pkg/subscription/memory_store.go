package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process AtomicStore for tests and single-instance deployments.
// Updates for one account are serialized by a per-account mutex; the shared
// map lock is only held for lookups.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]Record
	byExtID   map[string]uuid.UUID
	accounts  map[uuid.UUID]*sync.Mutex
	processed *MemoryLedger
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[uuid.UUID]Record),
		byExtID:   make(map[string]uuid.UUID),
		accounts:  make(map[uuid.UUID]*sync.Mutex),
		processed: NewMemoryLedger(),
		now:       time.Now,
	}
}

// Get retrieves a copy of the record for accountID.
func (s *MemoryStore) Get(ctx context.Context, accountID uuid.UUID) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[accountID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

// FindAccountByExternalID returns the account bound to externalID.
func (s *MemoryStore) FindAccountByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExtID[externalID]
	if !ok || externalID == "" {
		return uuid.Nil, ErrRecordNotFound
	}
	return id, nil
}

// Update runs fn under the account's lock and stores its result.
func (s *MemoryStore) Update(ctx context.Context, accountID uuid.UUID, fn UpdateFunc) (*Record, error) {
	unlock, err := s.lockAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.update(accountID, fn)
}

// ApplyOnce records eventID and applies fn as one step.
// The event is only marked processed if fn succeeds.
func (s *MemoryStore) ApplyOnce(ctx context.Context, eventID string, accountID uuid.UUID, appliedAt time.Time, fn UpdateFunc) (*Record, error) {
	unlock, err := s.lockAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	fresh, err := s.processed.Reserve(ctx, eventID, appliedAt)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, ErrDuplicateEvent
	}

	rec, err := s.update(accountID, fn)
	if err != nil {
		_ = s.processed.Release(ctx, eventID)
		return nil, err
	}
	return rec, nil
}

// Processed exposes the store's own idempotency ledger.
// Use it as the engine ledger to keep reservations and records in one place.
func (s *MemoryStore) Processed() *MemoryLedger {
	return s.processed
}

func (s *MemoryStore) lockAccount(ctx context.Context, accountID uuid.UUID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	m, ok := s.accounts[accountID]
	if !ok {
		m = &sync.Mutex{}
		s.accounts[accountID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// update must be called with the account lock held.
func (s *MemoryStore) update(accountID uuid.UUID, fn UpdateFunc) (*Record, error) {
	s.mu.RLock()
	current, ok := s.records[accountID]
	s.mu.RUnlock()

	now := s.now()
	if !ok {
		current = NewRecord(accountID)
		current.CreatedAt = now
		current.UpdatedAt = now
	}

	in := current
	next, err := fn(&in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if next == nil {
		// lazy creation still materializes the record
		if !ok {
			s.records[accountID] = current
		}
		out := current
		return &out, nil
	}

	stored := *next
	stored.AccountID = accountID
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = now
	if current.ExternalSubscriptionID != "" && current.ExternalSubscriptionID != stored.ExternalSubscriptionID {
		delete(s.byExtID, current.ExternalSubscriptionID)
	}
	if stored.ExternalSubscriptionID != "" {
		s.byExtID[stored.ExternalSubscriptionID] = accountID
	}
	s.records[accountID] = stored

	out := stored
	return &out, nil
}
