package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Record is the locally persisted subscription state of an account.
// Each account has exactly one record; records are never deleted.
type Record struct {
	AccountID              uuid.UUID // Primary key - one record per account
	Status                 Status
	PlanID                 string // Empty when Status is StatusNone
	ExternalSubscriptionID string // Provider's subscription ID, empty until bound

	// ExternalSubscriptionSince is the occurrence time of the creation event that
	// bound ExternalSubscriptionID. Zero when bound by any other event.
	ExternalSubscriptionSince time.Time

	PeriodStart time.Time
	PeriodEnd   time.Time // Authoritative for entitlement checks

	// LastAppliedEventAt is the provider-reported occurrence time of the newest
	// event applied to this record. It is the ordering key, not arrival time.
	LastAppliedEventAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord returns the initial record of an account that has never subscribed.
func NewRecord(accountID uuid.UUID) Record {
	return Record{AccountID: accountID, Status: StatusNone}
}

// IsActiveAt reports whether the account is entitled to service at the given time.
func (r Record) IsActiveAt(now time.Time) bool {
	return r.Status == StatusActive && !r.PeriodEnd.IsZero() && r.PeriodEnd.After(now)
}

// sameState compares the reconciled fields, ignoring store bookkeeping timestamps.
func (r Record) sameState(o Record) bool {
	return r.AccountID == o.AccountID &&
		r.Status == o.Status &&
		r.PlanID == o.PlanID &&
		r.ExternalSubscriptionID == o.ExternalSubscriptionID &&
		r.ExternalSubscriptionSince.Equal(o.ExternalSubscriptionSince) &&
		r.PeriodStart.Equal(o.PeriodStart) &&
		r.PeriodEnd.Equal(o.PeriodEnd) &&
		r.LastAppliedEventAt.Equal(o.LastAppliedEventAt)
}
