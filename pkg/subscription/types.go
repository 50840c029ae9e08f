package subscription

// Status represents the locally reconciled state of an account's subscription.
type Status string

const (
	StatusNone          Status = "none"
	StatusActive        Status = "active"
	StatusPaymentFailed Status = "payment_failed"
	StatusCancelled     Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusActive, StatusPaymentFailed, StatusCancelled:
		return true
	}
	return false
}

// EventKind is the normalized classification of a provider notification.
// Each provider implementation maps its own vocabulary onto these kinds.
type EventKind string

const (
	KindCheckoutCompleted       EventKind = "checkout_completed"
	KindSubscriptionCreated     EventKind = "subscription_created"
	KindSubscriptionUpdated     EventKind = "subscription_updated"
	KindSubscriptionDeleted     EventKind = "subscription_deleted"
	KindInvoicePaymentSucceeded EventKind = "invoice_payment_succeeded"
	KindInvoicePaymentFailed    EventKind = "invoice_payment_failed"
	KindUnrecognized            EventKind = "unrecognized"
)

// Result describes what the ingestion pipeline did with an event.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultNoOp      Result = "noop"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored" // unrecognized kinds
)

// ReservationMode selects how the idempotency ledger is coordinated with the store write.
type ReservationMode string

const (
	// ReservationAtomic records the ledger entry and the state change in one
	// transaction. Requires a store implementing AtomicStore.
	ReservationAtomic ReservationMode = "atomic"
	// ReservationReserveFirst reserves the event before writing and releases
	// the reservation if the write fails.
	ReservationReserveFirst ReservationMode = "reserve_first"
	// ReservationCommitFirst only checks the ledger before writing and records
	// the event after the write commits.
	ReservationCommitFirst ReservationMode = "commit_first"
)

// Metadata keys echoed back by the provider from the checkout session.
const (
	MetadataAccountID = "account_id"
	MetadataPlanID    = "plan_id"
)

// Provider names.
const (
	ProviderStripe = "stripe"
	ProviderPaddle = "paddle"
)
