package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Authenticator verifies that a raw notification body was produced by the provider.
// It must run over the exact bytes received, before any decoding.
// Returns ErrAuthenticationFailed or ErrStaleEvent.
type Authenticator interface {
	Authenticate(ctx context.Context, payload []byte, signature string) error
}

// Classifier decodes an authenticated body into a typed Event.
// Unknown event types yield an Event with an Unrecognized payload, not an error.
// Returns ErrMalformedEvent if a recognized event lacks required fields.
type Classifier interface {
	Classify(payload []byte) (Event, error)
}

// Provider is a payment provider's notification vocabulary and signature scheme.
type Provider interface {
	Authenticator
	Classifier

	// Name returns the provider identifier, e.g. "stripe".
	Name() string
	// SignatureHeader returns the HTTP header carrying the signature.
	SignatureHeader() string
}

// CheckoutStarter starts a hosted payment flow. The provider must echo
// MetadataAccountID and MetadataPlanID back in its notifications.
type CheckoutStarter interface {
	StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)
}

// CheckoutStarterFor returns p as a CheckoutStarter when its configuration
// allows starting checkouts.
func CheckoutStarterFor(p Provider) (CheckoutStarter, bool) {
	starter, ok := p.(CheckoutStarter)
	if !ok {
		return nil, false
	}
	if c, ok := p.(interface{ CheckoutEnabled() bool }); ok && !c.CheckoutEnabled() {
		return nil, false
	}
	return starter, true
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	AccountID  uuid.UUID
	PlanID     string // Provider's price identifier
	Email      string // Optional billing email
	SuccessURL string // Optional redirect after payment
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
}

// ProviderOption configures provider adapters.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	now       func() time.Time
	tolerance time.Duration
}

// WithProviderClock overrides the clock used for signature age checks.
func WithProviderClock(now func() time.Time) ProviderOption {
	return func(o *providerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSignatureTolerance sets the maximum accepted signature age.
// Zero disables the check.
func WithSignatureTolerance(d time.Duration) ProviderOption {
	return func(o *providerOptions) {
		if d >= 0 {
			o.tolerance = d
		}
	}
}

func newProviderOptions(opts []ProviderOption) providerOptions {
	o := providerOptions{now: time.Now, tolerance: 5 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// parseAccountID reads an echoed account identifier. Empty means absent.
func parseAccountID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func decodeObject(obj json.RawMessage, v any) error {
	if len(obj) == 0 {
		return fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
	}
	if err := json.Unmarshal(obj, v); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	return nil
}
