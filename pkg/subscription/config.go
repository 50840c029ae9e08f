package subscription

import (
	"fmt"
	"strings"
	"time"
)

// Config is the environment-driven configuration of the reconciliation engine.
type Config struct {
	Provider          string          `env:"BILLING_PROVIDER" envDefault:"stripe"`       // stripe or paddle
	WebhookSecret     string          `env:"BILLING_WEBHOOK_SECRET,required"`            // Provider signing secret
	BillingPeriod     time.Duration   `env:"BILLING_PERIOD" envDefault:"720h"`           // Window granted by a completed checkout
	MaxClockSkew      time.Duration   `env:"BILLING_MAX_CLOCK_SKEW" envDefault:"5m"`     // Maximum signature age; 0 disables the check
	Reservation       ReservationMode `env:"BILLING_RESERVATION"`                        // Empty picks a mode from the store and ledger
	StripeAPIKey      string          `env:"STRIPE_API_KEY"`                             // Enables checkout through Stripe
	StripeAPIURL      string          `env:"STRIPE_API_URL"`                             // Overrides the Stripe API endpoint
	SuccessURL        string          `env:"BILLING_CHECKOUT_SUCCESS_URL"`               // Default Stripe checkout redirect
	CancelURL         string          `env:"BILLING_CHECKOUT_CANCEL_URL"`                // Stripe checkout cancel redirect
	PaddleAPIKey      string          `env:"PADDLE_API_KEY"`                             // Enables checkout through Paddle
	PaddleEnvironment string          `env:"PADDLE_ENVIRONMENT" envDefault:"production"` // production or sandbox
}

// NewProvider builds the provider adapter selected by cfg.Provider.
func NewProvider(cfg Config, opts ...ProviderOption) (Provider, error) {
	opts = append([]ProviderOption{WithSignatureTolerance(cfg.MaxClockSkew)}, opts...)

	switch strings.ToLower(cfg.Provider) {
	case ProviderStripe, "":
		return NewStripeProvider(StripeConfig{
			WebhookSecret: cfg.WebhookSecret,
			APIKey:        cfg.StripeAPIKey,
			APIURL:        cfg.StripeAPIURL,
			SuccessURL:    cfg.SuccessURL,
			CancelURL:     cfg.CancelURL,
		}, opts...)
	case ProviderPaddle:
		return NewPaddleProvider(PaddleConfig{
			APIKey:        cfg.PaddleAPIKey,
			WebhookSecret: cfg.WebhookSecret,
			Environment:   cfg.PaddleEnvironment,
		}, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// EngineOptions translates cfg into engine options.
func (cfg Config) EngineOptions() []EngineOption {
	return []EngineOption{
		WithBillingPeriod(cfg.BillingPeriod),
		WithReservationMode(cfg.Reservation),
	}
}
