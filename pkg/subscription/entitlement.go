package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// View is the read-only entitlement summary of an account.
type View struct {
	AccountID   uuid.UUID  `json:"account_id"`
	Status      Status     `json:"status"`
	PlanID      string     `json:"plan_id,omitempty"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// Entitlements answers "is this account entitled right now" from the store.
// It never writes; IsActive is computed at read time so an elapsed period
// stops granting access without any event arriving.
type Entitlements struct {
	store Store
	now   func() time.Time
}

// NewEntitlements creates a query façade over store. Panics if store is nil.
func NewEntitlements(store Store, now func() time.Time) *Entitlements {
	if store == nil {
		panic("subscription: nil store")
	}
	if now == nil {
		now = time.Now
	}
	return &Entitlements{store: store, now: now}
}

// Get returns the entitlement view of accountID. Accounts without a record
// are reported as StatusNone.
func (q *Entitlements) Get(ctx context.Context, accountID uuid.UUID) (View, error) {
	rec, err := q.store.Get(ctx, accountID)
	if errors.Is(err, ErrRecordNotFound) {
		return View{AccountID: accountID, Status: StatusNone}, nil
	}
	if err != nil {
		return View{}, err
	}

	return View{
		AccountID:   accountID,
		Status:      rec.Status,
		PlanID:      rec.PlanID,
		PeriodStart: timePtr(rec.PeriodStart),
		PeriodEnd:   timePtr(rec.PeriodEnd),
		IsActive:    rec.IsActiveAt(q.now()),
	}, nil
}

// HasEntitlement reports whether accountID may use paid features now.
// Store failures deny access.
func (q *Entitlements) HasEntitlement(ctx context.Context, accountID uuid.UUID) bool {
	v, err := q.Get(ctx, accountID)
	return err == nil && v.IsActive
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
