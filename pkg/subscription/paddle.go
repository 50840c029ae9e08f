package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleSignatureHeader is the header Paddle puts its "ts=…;h1=…" signature in.
const PaddleSignatureHeader = "Paddle-Signature"

// PaddleConfig holds configuration for Paddle billing provider.
// APIKey is only needed to start checkouts.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"BILLING_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider authenticates and classifies Paddle Billing notifications and
// starts hosted checkouts through the Paddle API.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	opts     providerOptions
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig, opts ...ProviderOption) (*PaddleProvider, error) {
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	p := &PaddleProvider{
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		opts:     newProviderOptions(opts),
	}
	if config.APIKey == "" {
		return p, nil
	}

	var err error
	switch strings.ToLower(config.Environment) {
	case "sandbox":
		p.client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		p.client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}
	return p, nil
}

func (p *PaddleProvider) Name() string            { return ProviderPaddle }
func (p *PaddleProvider) SignatureHeader() string { return PaddleSignatureHeader }

// CheckoutEnabled reports whether an API key was configured.
func (p *PaddleProvider) CheckoutEnabled() bool { return p.client != nil }

// Authenticate verifies the Paddle-Signature header with the SDK verifier,
// then rejects signatures older than the configured tolerance.
func (p *PaddleProvider) Authenticate(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing %s header", ErrAuthenticationFailed, PaddleSignatureHeader)
	}

	// The SDK verifier only accepts an *http.Request.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return errors.Join(ErrAuthenticationFailed, err)
	}
	req.Header.Set(PaddleSignatureHeader, signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return errors.Join(ErrAuthenticationFailed, err)
	}
	if !valid {
		return fmt.Errorf("%w: signature mismatch", ErrAuthenticationFailed)
	}

	if p.opts.tolerance > 0 {
		signedAt, err := paddleSignatureTime(signature)
		if err != nil {
			return errors.Join(ErrAuthenticationFailed, err)
		}
		age := p.opts.now().Sub(signedAt)
		if age > p.opts.tolerance || age < -p.opts.tolerance {
			return fmt.Errorf("%w: signed %s ago", ErrStaleEvent, age.Truncate(time.Second))
		}
	}
	return nil
}

func paddleSignatureTime(signature string) (time.Time, error) {
	for part := range strings.SplitSeq(signature, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && key == "ts" {
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return time.Time{}, err
			}
			return time.Unix(unix, 0), nil
		}
	}
	return time.Time{}, errors.New("signature timestamp missing")
}

type paddleEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddleCustomData struct {
	AccountID string `json:"account_id"`
	PlanID    string `json:"plan_id"`
}

type paddlePeriod struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type paddleItem struct {
	PriceID string `json:"price_id"`
	Price   struct {
		ID string `json:"id"`
	} `json:"price"`
}

func (i paddleItem) priceID() string {
	if i.Price.ID != "" {
		return i.Price.ID
	}
	return i.PriceID
}

type paddleEntity struct {
	ID                   string            `json:"id"`
	Status               string            `json:"status"`
	Origin               string            `json:"origin"`
	SubscriptionID       string            `json:"subscription_id"`
	CustomData           *paddleCustomData `json:"custom_data"`
	Items                []paddleItem      `json:"items"`
	CurrentBillingPeriod *paddlePeriod     `json:"current_billing_period"`
	BillingPeriod        *paddlePeriod     `json:"billing_period"`
}

func (e paddleEntity) planID() string {
	if e.CustomData != nil && e.CustomData.PlanID != "" {
		return e.CustomData.PlanID
	}
	if len(e.Items) > 0 {
		return e.Items[0].priceID()
	}
	return ""
}

func (e paddleEntity) accountRef() string {
	if e.CustomData == nil {
		return ""
	}
	return e.CustomData.AccountID
}

// Classify maps a Paddle notification body onto an Event.
func (p *PaddleProvider) Classify(payload []byte) (Event, error) {
	var raw paddleEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, errors.Join(ErrMalformedEvent, err)
	}
	if raw.EventID == "" || raw.EventType == "" {
		return Event{}, fmt.Errorf("%w: missing event_id or event_type", ErrMalformedEvent)
	}
	if raw.OccurredAt.IsZero() {
		return Event{}, fmt.Errorf("%w: missing occurred_at", ErrMalformedEvent)
	}

	ev := Event{
		ID:         raw.EventID,
		Provider:   ProviderPaddle,
		Type:       raw.EventType,
		OccurredAt: raw.OccurredAt.UTC(),
		Payload:    Unrecognized{},
	}

	if !strings.HasPrefix(raw.EventType, "subscription.") && !strings.HasPrefix(raw.EventType, "transaction.") {
		return ev, nil
	}

	var data paddleEntity
	if err := decodeObject(raw.Data, &data); err != nil {
		return Event{}, err
	}
	accountID, err := parseAccountID(data.accountRef())
	if err != nil {
		return Event{}, fmt.Errorf("%w: custom_data.%s: %w", ErrMalformedEvent, MetadataAccountID, err)
	}

	switch raw.EventType {
	case "subscription.created", "subscription.updated", "subscription.canceled":
		if data.ID == "" {
			return Event{}, fmt.Errorf("%w: subscription id is required", ErrMalformedEvent)
		}
		ev.Key = AccountKey{AccountID: accountID, ExternalSubscriptionID: data.ID}
		period := data.CurrentBillingPeriod
		if period == nil {
			period = &paddlePeriod{}
		}

		switch raw.EventType {
		case "subscription.created":
			if data.planID() == "" {
				return Event{}, fmt.Errorf("%w: subscription plan is required", ErrMalformedEvent)
			}
			ev.Payload = SubscriptionCreated{
				PlanID:                 data.planID(),
				ExternalSubscriptionID: data.ID,
				PeriodStart:            period.StartsAt.UTC(),
				PeriodEnd:              period.EndsAt.UTC(),
			}
		case "subscription.updated":
			if data.Status == "" {
				return Event{}, fmt.Errorf("%w: subscription status is required", ErrMalformedEvent)
			}
			ev.Payload = SubscriptionUpdated{
				ExternalSubscriptionID: data.ID,
				ProviderStatus:         data.Status,
				PlanID:                 data.planID(),
				PeriodEnd:              period.EndsAt.UTC(),
			}
		case "subscription.canceled":
			ev.Payload = SubscriptionDeleted{ExternalSubscriptionID: data.ID}
		}

	case "transaction.completed":
		ev.Key = AccountKey{AccountID: accountID, ExternalSubscriptionID: data.SubscriptionID}
		if data.Origin == "subscription_recurring" && data.SubscriptionID != "" {
			var end time.Time
			if data.BillingPeriod != nil {
				end = data.BillingPeriod.EndsAt.UTC()
			}
			ev.Payload = InvoicePaymentSucceeded{
				ExternalSubscriptionID: data.SubscriptionID,
				PlanID:                 data.planID(),
				PeriodEnd:              end,
			}
			break
		}
		if data.planID() == "" {
			return Event{}, fmt.Errorf("%w: custom_data.%s is required", ErrMalformedEvent, MetadataPlanID)
		}
		ev.Payload = CheckoutCompleted{PlanID: data.planID()}

	case "transaction.payment_failed":
		if data.SubscriptionID == "" {
			break
		}
		ev.Key = AccountKey{AccountID: accountID, ExternalSubscriptionID: data.SubscriptionID}
		ev.Payload = InvoicePaymentFailed{ExternalSubscriptionID: data.SubscriptionID}
	}

	return ev, nil
}

// StartCheckout creates a Paddle transaction for the plan's price and returns
// its hosted checkout URL. The account and plan are stamped into custom_data
// so the resulting notifications can be routed back.
func (p *PaddleProvider) StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if p.client == nil {
		return nil, ErrMissingAPIKey
	}
	if req.PlanID == "" {
		return nil, ErrMissingPlanID
	}
	if req.AccountID == uuid.Nil {
		return nil, ErrMissingAccountID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PlanID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			MetadataAccountID: req.AccountID.String(),
			MetadataPlanID:    req.PlanID,
		},
	}
	if req.Email != "" {
		transactionReq.CustomData["email"] = req.Email
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       *transaction.Checkout.URL,
		SessionID: transaction.ID,
		ExpiresAt: p.opts.now().Add(24 * time.Hour),
	}, nil
}
