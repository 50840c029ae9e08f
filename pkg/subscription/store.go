package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpdateFunc computes the next state of a record inside a store's critical section.
// current is never nil: stores create a StatusNone record on first reference.
// Returning a nil record leaves the stored record untouched.
type UpdateFunc func(current *Record) (*Record, error)

// Store defines the interface for subscription record persistence.
// Each account has exactly one record, so AccountID serves as the primary key.
type Store interface {
	// Get retrieves a record by account ID.
	// Returns ErrRecordNotFound if the account has never been referenced.
	Get(ctx context.Context, accountID uuid.UUID) (*Record, error)

	// Update runs fn against the current record and persists its result.
	// Calls for the same account must be serialized; different accounts must not block each other.
	Update(ctx context.Context, accountID uuid.UUID, fn UpdateFunc) (*Record, error)

	// FindAccountByExternalID returns the account bound to a provider subscription ID.
	// Returns ErrRecordNotFound if no record is bound to it.
	FindAccountByExternalID(ctx context.Context, externalID string) (uuid.UUID, error)
}

// AtomicStore is a Store that can record an event in its own idempotency
// ledger and apply the resulting state change as a single unit.
type AtomicStore interface {
	Store

	// ApplyOnce behaves like Update but first records eventID as processed.
	// Returns ErrDuplicateEvent without calling fn if eventID was already recorded.
	// If fn or the write fails, the event is not recorded.
	ApplyOnce(ctx context.Context, eventID string, accountID uuid.UUID, appliedAt time.Time, fn UpdateFunc) (*Record, error)
}

// Ledger records which provider events have already been applied.
// Entries are append-only and never expire.
type Ledger interface {
	// Reserve atomically records eventID. It returns false if the event was already recorded.
	Reserve(ctx context.Context, eventID string, appliedAt time.Time) (fresh bool, err error)

	// Contains reports whether eventID has been recorded.
	Contains(ctx context.Context, eventID string) (bool, error)

	// Release removes a reservation whose state change did not commit.
	Release(ctx context.Context, eventID string) error
}
