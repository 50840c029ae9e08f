package subscription

import (
	"strings"
	"time"
)

// DefaultBillingPeriod is the entitlement window granted by a completed checkout
// until the provider reports the real billing period.
const DefaultBillingPeriod = 30 * 24 * time.Hour

// No-op reasons reported by the resolver.
const (
	ReasonUnrecognized      = "unrecognized event"
	ReasonStale             = "older than last applied event"
	ReasonTerminal          = "subscription already cancelled"
	ReasonOtherSubscription = "event targets a different subscription"
	ReasonSuperseded        = "subscription superseded by a newer one"
	ReasonPeriodElapsed     = "billing period already elapsed"
	ReasonUnchanged         = "record already reflects event"
)

// Decision is the outcome of resolving one event against a record.
// When Applied is false, Record equals the input record and Reason explains why.
type Decision struct {
	Record  Record
	Applied bool
	Reason  string
}

// Resolver derives the next subscription record from the current one and an event.
// It performs no I/O and depends only on its arguments.
type Resolver struct {
	BillingPeriod time.Duration
}

// NewResolver creates a resolver. A non-positive period falls back to DefaultBillingPeriod.
func NewResolver(billingPeriod time.Duration) Resolver {
	if billingPeriod <= 0 {
		billingPeriod = DefaultBillingPeriod
	}
	return Resolver{BillingPeriod: billingPeriod}
}

// Resolve applies ev to current. A nil current means the account has no record yet.
// now is only used to reject transitions into an already elapsed active period.
func (r Resolver) Resolve(current *Record, ev Event, now time.Time) Decision {
	rec := NewRecord(ev.Key.AccountID)
	if current != nil {
		rec = *current
	}
	noop := func(reason string) Decision {
		return Decision{Record: rec, Reason: reason}
	}

	if ev.Payload == nil || ev.Kind() == KindUnrecognized {
		return noop(ReasonUnrecognized)
	}

	extID := externalID(ev.Payload)
	bound := rec.ExternalSubscriptionID != ""
	foreign := extID != "" && bound && extID != rec.ExternalSubscriptionID
	stale := ev.OccurredAt.Before(rec.LastAppliedEventAt)
	terminal := rec.Status == StatusCancelled && bound && !foreign

	next := rec
	switch p := ev.Payload.(type) {
	case SubscriptionDeleted:
		// Cancellation wins over any ordering of events for the same subscription.
		// The only exception is a checkout newer than the deletion on a record
		// that was never bound to the deleted subscription.
		switch {
		case foreign:
			return noop(ReasonOtherSubscription)
		case rec.Status == StatusCancelled:
			return noop(ReasonTerminal)
		case !bound && stale:
			return noop(ReasonStale)
		}
		next.Status = StatusCancelled
		next.PeriodEnd = ev.OccurredAt
		if !bound {
			next.ExternalSubscriptionID = p.ExternalSubscriptionID
		}

	case SubscriptionCreated:
		switch {
		case foreign && !ev.OccurredAt.After(rec.ExternalSubscriptionSince):
			return noop(ReasonSuperseded)
		case terminal:
			return noop(ReasonTerminal)
		case !foreign && stale:
			if bound || rec.Status == StatusCancelled {
				return noop(ReasonStale)
			}
			// A late creation still tells us which subscription the record belongs to.
			next.ExternalSubscriptionID = p.ExternalSubscriptionID
			next.ExternalSubscriptionSince = ev.OccurredAt
			return Decision{Record: next, Applied: true, Reason: string(ev.Kind())}
		}
		next.Status = StatusActive
		next.PlanID = p.PlanID
		next.ExternalSubscriptionID = p.ExternalSubscriptionID
		next.ExternalSubscriptionSince = ev.OccurredAt
		next.PeriodStart = p.PeriodStart
		next.PeriodEnd = laterOf(rec.PeriodEnd, p.PeriodEnd)

	case CheckoutCompleted:
		if stale {
			return noop(ReasonStale)
		}
		if rec.Status == StatusCancelled {
			// A new purchase after cancellation starts a new subscription.
			next.ExternalSubscriptionID = ""
			next.ExternalSubscriptionSince = time.Time{}
		}
		next.Status = StatusActive
		next.PlanID = p.PlanID
		next.PeriodStart = ev.OccurredAt
		next.PeriodEnd = laterOf(rec.PeriodEnd, ev.OccurredAt.Add(r.BillingPeriod))

	case SubscriptionUpdated:
		if d, skip := r.guard(rec, foreign, terminal, stale); skip {
			return d
		}
		next.Status = mapProviderStatus(p.ProviderStatus)
		switch {
		case next.Status == StatusNone:
			next.PlanID = ""
		case p.PlanID != "":
			next.PlanID = p.PlanID
		}
		next.PeriodEnd = laterOf(rec.PeriodEnd, p.PeriodEnd)
		bind(&next, p.ExternalSubscriptionID)

	case InvoicePaymentSucceeded:
		if d, skip := r.guard(rec, foreign, terminal, stale); skip {
			return d
		}
		next.Status = StatusActive
		if p.PlanID != "" {
			next.PlanID = p.PlanID
		}
		next.PeriodEnd = laterOf(rec.PeriodEnd, p.PeriodEnd)
		bind(&next, p.ExternalSubscriptionID)

	case InvoicePaymentFailed:
		if d, skip := r.guard(rec, foreign, terminal, stale); skip {
			return d
		}
		next.Status = StatusPaymentFailed
		bind(&next, p.ExternalSubscriptionID)

	default:
		return noop(ReasonUnrecognized)
	}

	if next.Status == StatusActive && !next.PeriodEnd.After(now) {
		return noop(ReasonPeriodElapsed)
	}

	next.LastAppliedEventAt = laterOf(rec.LastAppliedEventAt, ev.OccurredAt)
	if next.sameState(rec) {
		return noop(ReasonUnchanged)
	}

	return Decision{Record: next, Applied: true, Reason: string(ev.Kind())}
}

// guard applies the ordering rules shared by all events that modify an
// existing subscription.
func (r Resolver) guard(rec Record, foreign, terminal, stale bool) (Decision, bool) {
	switch {
	case foreign:
		return Decision{Record: rec, Reason: ReasonOtherSubscription}, true
	case terminal:
		return Decision{Record: rec, Reason: ReasonTerminal}, true
	case stale:
		return Decision{Record: rec, Reason: ReasonStale}, true
	}
	return Decision{}, false
}

func bind(rec *Record, extID string) {
	if rec.ExternalSubscriptionID == "" && extID != "" {
		rec.ExternalSubscriptionID = extID
	}
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// mapProviderStatus maps a provider subscription status to a local status.
// Stripe and Paddle share the relevant vocabulary. Only SubscriptionDeleted
// makes a record cancelled, so a "canceled" update maps to none and stays
// subject to the timestamp ordering.
func mapProviderStatus(providerStatus string) Status {
	switch strings.ToLower(providerStatus) {
	case "active", "trialing":
		return StatusActive
	case "past_due", "unpaid":
		return StatusPaymentFailed
	default:
		return StatusNone
	}
}
