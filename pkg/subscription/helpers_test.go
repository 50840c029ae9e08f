package subscription_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/subscription"
	"github.com/dmitrymomot/billingsync/pkg/webhook"
)

const stripeSecret = "whsec_test_secret"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func stripeEvent(t *testing.T, id, typ string, created time.Time, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    typ,
		"created": created.Unix(),
		"data":    map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func stripeCheckout(t *testing.T, id string, created time.Time, account uuid.UUID, plan string) []byte {
	return stripeEvent(t, id, "checkout.session.completed", created, map[string]any{
		"id":           "cs_" + id,
		"mode":         "subscription",
		"subscription": "sub_1",
		"metadata":     map[string]any{"account_id": account.String(), "plan_id": plan},
	})
}

func stripeSubscriptionEvent(t *testing.T, id, typ string, created time.Time, subID, status string, end time.Time) []byte {
	return stripeEvent(t, id, typ, created, map[string]any{
		"id":                   subID,
		"status":               status,
		"current_period_start": created.Unix(),
		"current_period_end":   end.Unix(),
		"items": map[string]any{"data": []any{
			map[string]any{"price": map[string]any{"id": "price_pro"}},
		}},
	})
}

func sign(t *testing.T, payload []byte, at time.Time) string {
	t.Helper()
	header, err := webhook.SignatureHeader(stripeSecret, payload, at)
	require.NoError(t, err)
	return header
}

func newStripeProvider(t *testing.T, now time.Time) *subscription.StripeProvider {
	t.Helper()
	p, err := subscription.NewStripeProvider(
		subscription.StripeConfig{WebhookSecret: stripeSecret},
		subscription.WithProviderClock(fixedClock(now)),
	)
	require.NoError(t, err)
	return p
}

// failingStore is a Store whose every call fails with err.
type failingStore struct {
	err error
}

func (s failingStore) Get(context.Context, uuid.UUID) (*subscription.Record, error) {
	return nil, s.err
}

func (s failingStore) Update(context.Context, uuid.UUID, subscription.UpdateFunc) (*subscription.Record, error) {
	return nil, s.err
}

func (s failingStore) FindAccountByExternalID(context.Context, string) (uuid.UUID, error) {
	return uuid.Nil, s.err
}
