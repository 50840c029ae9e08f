package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Event is a provider notification after authentication and classification.
// Only classifiers construct events; the payload carries exactly the fields
// its kind needs.
type Event struct {
	ID         string    // Provider-assigned unique identifier
	Provider   string    // Provider name, e.g. "stripe"
	Type       string    // Original provider event name
	OccurredAt time.Time // Provider-reported time of the underlying change
	Key        AccountKey
	Payload    Payload
}

// Kind returns the normalized event kind derived from the payload.
func (e Event) Kind() EventKind {
	if e.Payload == nil {
		return KindUnrecognized
	}
	return e.Payload.Kind()
}

// AccountKey holds the fields used to find the record an event targets.
// AccountID comes from checkout metadata echoed by the provider and may be
// uuid.Nil, in which case the external subscription ID is used for lookup.
type AccountKey struct {
	AccountID              uuid.UUID
	ExternalSubscriptionID string
}

// Payload is the kind-specific body of an Event. The set of implementations is closed.
type Payload interface {
	Kind() EventKind
	payload()
}

// CheckoutCompleted reports that a customer finished a hosted checkout for a plan.
type CheckoutCompleted struct {
	PlanID string
}

// SubscriptionCreated reports a new provider-side subscription.
type SubscriptionCreated struct {
	PlanID                 string
	ExternalSubscriptionID string
	PeriodStart            time.Time
	PeriodEnd              time.Time
}

// SubscriptionUpdated reports a change of the provider-side subscription.
type SubscriptionUpdated struct {
	ExternalSubscriptionID string
	ProviderStatus         string // Raw provider status, e.g. "active", "past_due"
	PlanID                 string // Optional
	PeriodEnd              time.Time
}

// SubscriptionDeleted reports that the provider-side subscription ended.
type SubscriptionDeleted struct {
	ExternalSubscriptionID string
}

// InvoicePaymentSucceeded reports a paid renewal invoice.
type InvoicePaymentSucceeded struct {
	ExternalSubscriptionID string
	PlanID                 string // Optional
	PeriodEnd              time.Time
}

// InvoicePaymentFailed reports a failed renewal charge.
type InvoicePaymentFailed struct {
	ExternalSubscriptionID string
}

// Unrecognized is any event this system does not act on.
type Unrecognized struct{}

func (CheckoutCompleted) Kind() EventKind       { return KindCheckoutCompleted }
func (SubscriptionCreated) Kind() EventKind     { return KindSubscriptionCreated }
func (SubscriptionUpdated) Kind() EventKind     { return KindSubscriptionUpdated }
func (SubscriptionDeleted) Kind() EventKind     { return KindSubscriptionDeleted }
func (InvoicePaymentSucceeded) Kind() EventKind { return KindInvoicePaymentSucceeded }
func (InvoicePaymentFailed) Kind() EventKind    { return KindInvoicePaymentFailed }
func (Unrecognized) Kind() EventKind            { return KindUnrecognized }

func (CheckoutCompleted) payload()       {}
func (SubscriptionCreated) payload()     {}
func (SubscriptionUpdated) payload()     {}
func (SubscriptionDeleted) payload()     {}
func (InvoicePaymentSucceeded) payload() {}
func (InvoicePaymentFailed) payload()    {}
func (Unrecognized) payload()            {}

// externalID returns the external subscription ID named by the payload, if any.
func externalID(p Payload) string {
	switch p := p.(type) {
	case SubscriptionCreated:
		return p.ExternalSubscriptionID
	case SubscriptionUpdated:
		return p.ExternalSubscriptionID
	case SubscriptionDeleted:
		return p.ExternalSubscriptionID
	case InvoicePaymentSucceeded:
		return p.ExternalSubscriptionID
	case InvoicePaymentFailed:
		return p.ExternalSubscriptionID
	}
	return ""
}
