package subscription

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"

	"github.com/dmitrymomot/billingsync/pkg/webhook"
)

// StripeSignatureHeader is the header Stripe puts its "t=…,v1=…" signature in.
const StripeSignatureHeader = "Stripe-Signature"

// StripeConfig holds configuration for the Stripe notification adapter.
// APIKey is only needed to start checkouts.
type StripeConfig struct {
	WebhookSecret string `env:"BILLING_WEBHOOK_SECRET"`
	APIKey        string `env:"STRIPE_API_KEY"`
	APIURL        string `env:"STRIPE_API_URL"` // Overrides the API endpoint, e.g. for stripe-mock
	SuccessURL    string `env:"BILLING_CHECKOUT_SUCCESS_URL"`
	CancelURL     string `env:"BILLING_CHECKOUT_CANCEL_URL"`
}

// StripeProvider authenticates and classifies Stripe webhook events and
// starts hosted checkout sessions.
type StripeProvider struct {
	secret     string
	sessions   *checkoutsession.Client
	successURL string
	cancelURL  string
	opts       providerOptions
}

// NewStripeProvider creates a Stripe adapter.
// Returns ErrMissingWebhookSecret if no secret is configured.
func NewStripeProvider(cfg StripeConfig, opts ...ProviderOption) (*StripeProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	p := &StripeProvider{
		secret:     cfg.WebhookSecret,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		opts:       newProviderOptions(opts),
	}
	if cfg.APIKey != "" {
		backendCfg := &stripe.BackendConfig{}
		if cfg.APIURL != "" {
			backendCfg.URL = stripe.String(cfg.APIURL)
		}
		p.sessions = &checkoutsession.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.APIKey,
		}
	}
	return p, nil
}

func (p *StripeProvider) Name() string            { return ProviderStripe }
func (p *StripeProvider) SignatureHeader() string { return StripeSignatureHeader }

// CheckoutEnabled reports whether an API key was configured.
func (p *StripeProvider) CheckoutEnabled() bool { return p.sessions != nil }

// Authenticate verifies the Stripe-Signature header over the raw payload with
// the SDK, then rejects signatures older than the configured tolerance.
func (p *StripeProvider) Authenticate(_ context.Context, payload []byte, signature string) error {
	if err := stripewebhook.ValidatePayloadIgnoringTolerance(payload, signature, p.secret); err != nil {
		return errors.Join(ErrAuthenticationFailed, err)
	}
	if p.opts.tolerance == 0 {
		return nil
	}

	sig, err := webhook.ParseSignatureHeader(signature)
	if err != nil {
		return errors.Join(ErrAuthenticationFailed, err)
	}
	age := p.opts.now().Sub(sig.Timestamp)
	if age > p.opts.tolerance || age < -p.opts.tolerance {
		return fmt.Errorf("%w: signed %s ago", ErrStaleEvent, age.Truncate(time.Second))
	}
	return nil
}

// Classify maps a Stripe event body onto an Event.
func (p *StripeProvider) Classify(payload []byte) (Event, error) {
	var raw stripe.Event
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, errors.Join(ErrMalformedEvent, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	if raw.Created <= 0 {
		return Event{}, fmt.Errorf("%w: missing created", ErrMalformedEvent)
	}

	ev := Event{
		ID:         raw.ID,
		Provider:   ProviderStripe,
		Type:       string(raw.Type),
		OccurredAt: time.Unix(raw.Created, 0).UTC(),
		Payload:    Unrecognized{},
	}

	var err error
	switch raw.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		err = p.classifyCheckout(&ev, raw.Data)
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		err = p.classifySubscription(&ev, raw.Data)
	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaymentFailed:
		err = p.classifyInvoice(&ev, raw.Data)
	}
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (p *StripeProvider) classifyCheckout(ev *Event, data *stripe.EventData) error {
	var s stripe.CheckoutSession
	if err := decodeEventData(data, &s); err != nil {
		return err
	}

	accountID, err := parseAccountID(cmp.Or(s.Metadata[MetadataAccountID], s.ClientReferenceID))
	if err != nil {
		return fmt.Errorf("%w: metadata.%s: %w", ErrMalformedEvent, MetadataAccountID, err)
	}
	planID := s.Metadata[MetadataPlanID]
	if planID == "" {
		return fmt.Errorf("%w: metadata.%s is required", ErrMalformedEvent, MetadataPlanID)
	}

	var subID string
	if s.Subscription != nil {
		subID = s.Subscription.ID
	}
	ev.Key = AccountKey{AccountID: accountID, ExternalSubscriptionID: subID}
	ev.Payload = CheckoutCompleted{PlanID: planID}
	return nil
}

func (p *StripeProvider) classifySubscription(ev *Event, data *stripe.EventData) error {
	var s stripe.Subscription
	if err := decodeEventData(data, &s); err != nil {
		return err
	}
	if s.ID == "" {
		return fmt.Errorf("%w: subscription id is required", ErrMalformedEvent)
	}

	accountID, err := parseAccountID(s.Metadata[MetadataAccountID])
	if err != nil {
		return fmt.Errorf("%w: metadata.%s: %w", ErrMalformedEvent, MetadataAccountID, err)
	}
	ev.Key = AccountKey{AccountID: accountID, ExternalSubscriptionID: s.ID}

	planID := s.Metadata[MetadataPlanID]
	if planID == "" && s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		planID = s.Items.Data[0].Price.ID
	}

	switch stripe.EventType(ev.Type) {
	case stripe.EventTypeCustomerSubscriptionCreated:
		if planID == "" {
			return fmt.Errorf("%w: subscription plan is required", ErrMalformedEvent)
		}
		ev.Payload = SubscriptionCreated{
			PlanID:                 planID,
			ExternalSubscriptionID: s.ID,
			PeriodStart:            unixTime(s.CurrentPeriodStart),
			PeriodEnd:              unixTime(s.CurrentPeriodEnd),
		}
	case stripe.EventTypeCustomerSubscriptionUpdated:
		if s.Status == "" {
			return fmt.Errorf("%w: subscription status is required", ErrMalformedEvent)
		}
		ev.Payload = SubscriptionUpdated{
			ExternalSubscriptionID: s.ID,
			ProviderStatus:         string(s.Status),
			PlanID:                 planID,
			PeriodEnd:              unixTime(s.CurrentPeriodEnd),
		}
	case stripe.EventTypeCustomerSubscriptionDeleted:
		ev.Payload = SubscriptionDeleted{ExternalSubscriptionID: s.ID}
	}
	return nil
}

func (p *StripeProvider) classifyInvoice(ev *Event, data *stripe.EventData) error {
	var inv stripe.Invoice
	if err := decodeEventData(data, &inv); err != nil {
		return err
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		// One-off invoices do not affect subscription state.
		return nil
	}
	subID := inv.Subscription.ID

	var meta map[string]string
	if inv.SubscriptionDetails != nil {
		meta = inv.SubscriptionDetails.Metadata
	}
	accountID, err := parseAccountID(meta[MetadataAccountID])
	if err != nil {
		return fmt.Errorf("%w: metadata.%s: %w", ErrMalformedEvent, MetadataAccountID, err)
	}
	ev.Key = AccountKey{AccountID: accountID, ExternalSubscriptionID: subID}

	if stripe.EventType(ev.Type) == stripe.EventTypeInvoicePaymentFailed {
		ev.Payload = InvoicePaymentFailed{ExternalSubscriptionID: subID}
		return nil
	}

	planID := meta[MetadataPlanID]
	var periodEnd int64
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line == nil {
				continue
			}
			if line.Period != nil {
				periodEnd = max(periodEnd, line.Period.End)
			}
			if planID == "" && line.Price != nil {
				planID = line.Price.ID
			}
		}
	}
	ev.Payload = InvoicePaymentSucceeded{
		ExternalSubscriptionID: subID,
		PlanID:                 planID,
		PeriodEnd:              unixTime(periodEnd),
	}
	return nil
}

// StartCheckout creates a subscription-mode Checkout Session for the plan's
// price. The account and plan are stamped into the session and subscription
// metadata so the resulting notifications can be routed back.
func (p *StripeProvider) StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if p.sessions == nil {
		return nil, ErrMissingAPIKey
	}
	if req.PlanID == "" {
		return nil, ErrMissingPlanID
	}
	if req.AccountID == uuid.Nil {
		return nil, ErrMissingAccountID
	}
	successURL := cmp.Or(req.SuccessURL, p.successURL)
	if successURL == "" {
		return nil, ErrMissingSuccessURL
	}

	metadata := map[string]string{
		MetadataAccountID: req.AccountID.String(),
		MetadataPlanID:    req.PlanID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PlanID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(successURL),
		ClientReferenceID: stripe.String(req.AccountID.String()),
		SubscriptionData:  &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if p.cancelURL != "" {
		params.CancelURL = stripe.String(p.cancelURL)
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	expiresAt := p.opts.now().Add(24 * time.Hour)
	if session.ExpiresAt > 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return &CheckoutLink{URL: session.URL, SessionID: session.ID, ExpiresAt: expiresAt}, nil
}

func decodeEventData(data *stripe.EventData, v any) error {
	if data == nil {
		return fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	return decodeObject(data.Raw, v)
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
