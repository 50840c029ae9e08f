package subscription

import "errors"

var (
	// Rejections: the provider gets a 4xx and retrying will not help.
	ErrAuthenticationFailed = errors.New("subscription event authentication failed")
	ErrStaleEvent           = errors.New("subscription event signature is too old")
	ErrMalformedEvent       = errors.New("malformed subscription event")

	// Transient failures: the provider gets a 5xx and redelivers.
	ErrStoreUnavailable   = errors.New("subscription store unavailable")
	ErrLedgerUnavailable  = errors.New("idempotency ledger unavailable")
	ErrAccountNotResolved = errors.New("subscription event account could not be resolved")

	ErrRecordNotFound  = errors.New("subscription record not found")
	ErrDuplicateEvent  = errors.New("subscription event already processed")
	ErrLedgerRequired  = errors.New("idempotency ledger is required for non-atomic stores")
	ErrInvalidStrategy = errors.New("invalid idempotency reservation mode")

	// Provider-specific errors
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrUnknownProvider            = errors.New("unknown billing provider")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
	ErrMissingAccountID           = errors.New("account ID is required")
	ErrMissingPlanID              = errors.New("plan ID is required")
	ErrMissingSuccessURL          = errors.New("checkout success URL is required")
)

// IsRetryable reports whether the provider should redeliver an event that failed with err.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrAuthenticationFailed) &&
		!errors.Is(err, ErrStaleEvent) &&
		!errors.Is(err, ErrMalformedEvent)
}
