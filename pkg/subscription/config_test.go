package subscription_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/subscription"
)

func TestNewProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      subscription.Config
		wantName string
		wantErr  error
	}{
		{name: "default is stripe", cfg: subscription.Config{WebhookSecret: stripeSecret}, wantName: subscription.ProviderStripe},
		{name: "paddle", cfg: subscription.Config{Provider: "Paddle", WebhookSecret: paddleSecret}, wantName: subscription.ProviderPaddle},
		{name: "missing secret", cfg: subscription.Config{Provider: "stripe"}, wantErr: subscription.ErrMissingWebhookSecret},
		{name: "unknown provider", cfg: subscription.Config{Provider: "braintree", WebhookSecret: "x"}, wantErr: subscription.ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := subscription.NewProvider(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestNewProvider_ZeroSkewDisablesAgeCheck(t *testing.T) {
	t.Parallel()

	cfg := subscription.Config{WebhookSecret: stripeSecret}
	p, err := subscription.NewProvider(cfg, subscription.WithProviderClock(fixedClock(testNow)))
	require.NoError(t, err)

	payload := stripeCheckout(t, "evt_1", at(0), testAccount, "pro")
	old := sign(t, payload, testNow.Add(-24*time.Hour))
	require.NoError(t, p.Authenticate(t.Context(), payload, old))
}

func TestNewProvider_CheckoutNeedsAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  subscription.Config
		want bool
	}{
		{name: "stripe without key", cfg: subscription.Config{WebhookSecret: stripeSecret}},
		{name: "stripe with key", cfg: subscription.Config{WebhookSecret: stripeSecret, StripeAPIKey: "sk_test_1"}, want: true},
		{name: "paddle without key", cfg: subscription.Config{Provider: "paddle", WebhookSecret: paddleSecret}},
		{
			name: "paddle with key",
			cfg:  subscription.Config{Provider: "paddle", WebhookSecret: paddleSecret, PaddleAPIKey: "pdl_sdbx_apikey", PaddleEnvironment: "sandbox"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := subscription.NewProvider(tt.cfg)
			require.NoError(t, err)
			_, ok := subscription.CheckoutStarterFor(p)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestConfig_EngineOptions(t *testing.T) {
	t.Parallel()

	cfg := subscription.Config{
		WebhookSecret: stripeSecret,
		BillingPeriod: time.Hour,
		Reservation:   subscription.ReservationCommitFirst,
	}
	engine, err := subscription.NewEngine(newStripeProvider(t, testNow), subscription.NewMemoryStore(),
		append(cfg.EngineOptions(), subscription.WithLedger(subscription.NewMemoryLedger()))...)
	require.NoError(t, err)
	assert.Equal(t, subscription.ReservationCommitFirst, engine.Mode())
}
