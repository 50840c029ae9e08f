package subscription_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/subscription"
)

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: http.StatusOK},
		{err: subscription.ErrAuthenticationFailed, want: http.StatusBadRequest},
		{err: fmt.Errorf("%w: signed 1h ago", subscription.ErrStaleEvent), want: http.StatusBadRequest},
		{err: errors.Join(subscription.ErrMalformedEvent, errors.New("bad json")), want: http.StatusBadRequest},
		{err: errors.Join(subscription.ErrStoreUnavailable, errors.New("conn refused")), want: http.StatusServiceUnavailable},
		{err: subscription.ErrLedgerUnavailable, want: http.StatusServiceUnavailable},
		{err: subscription.ErrAccountNotResolved, want: http.StatusInternalServerError},
		{err: context.DeadlineExceeded, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, subscription.StatusCode(tt.err))
		})
	}
}

func postWebhook(handler http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(subscription.StripeSignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler(t *testing.T) {
	t.Parallel()

	payload := stripeCheckout(t, "evt_1", at(0), testAccount, "pro")

	t.Run("acknowledges applied and duplicate events", func(t *testing.T) {
		t.Parallel()

		handler := subscription.WebhookHandler(newTestEngine(t, subscription.NewMemoryStore()), nil)
		for range 2 {
			rec := postWebhook(handler, payload, sign(t, payload, testNow))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		}
	})

	t.Run("rejects bad signature", func(t *testing.T) {
		t.Parallel()

		handler := subscription.WebhookHandler(newTestEngine(t, subscription.NewMemoryStore()), nil)
		rec := postWebhook(handler, payload, "t=1,v1=00")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"event rejected"}`, rec.Body.String())
	})

	t.Run("asks for redelivery when the store is down", func(t *testing.T) {
		t.Parallel()

		engine := newTestEngine(t, failingStore{err: subscription.ErrStoreUnavailable},
			subscription.WithLedger(subscription.NewMemoryLedger()))
		rec := postWebhook(subscription.WebhookHandler(engine, nil), payload, sign(t, payload, testNow))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("unresolved account is a server error", func(t *testing.T) {
		t.Parallel()

		failed := stripeInvoiceFailed(t, "evt_2", at(0), "sub_unknown")
		handler := subscription.WebhookHandler(newTestEngine(t, subscription.NewMemoryStore()), nil)
		rec := postWebhook(handler, failed, sign(t, failed, testNow))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		t.Parallel()

		big := bytes.Repeat([]byte("x"), subscription.MaxWebhookBodySize+1)
		handler := subscription.WebhookHandler(newTestEngine(t, subscription.NewMemoryStore()), nil)
		rec := postWebhook(handler, big, sign(t, big, testNow))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("only accepts POST", func(t *testing.T) {
		t.Parallel()

		handler := subscription.WebhookHandler(newTestEngine(t, subscription.NewMemoryStore()), nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/billing", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	})
}

func TestEntitlementHandler(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	engine := newTestEngine(t, store)
	payload := stripeCheckout(t, "evt_1", at(0), testAccount, "pro")
	_, err := ingest(t, engine, payload)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/accounts/{accountID}/subscription",
		subscription.EntitlementHandler(subscription.NewEntitlements(store, fixedClock(testNow)), nil))

	t.Run("active account", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/"+testAccount.String()+"/subscription", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var view subscription.View
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, testAccount, view.AccountID)
		assert.Equal(t, subscription.StatusActive, view.Status)
		assert.Equal(t, "pro", view.PlanID)
		assert.True(t, view.IsActive)
		require.NotNil(t, view.PeriodEnd)
		assert.True(t, at(0).Add(subscription.DefaultBillingPeriod).Equal(*view.PeriodEnd))
	})

	t.Run("invalid account id", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/not-a-uuid/subscription", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

type stubCheckout struct {
	link *subscription.CheckoutLink
	err  error
	got  subscription.CheckoutRequest
}

func (s *stubCheckout) StartCheckout(_ context.Context, req subscription.CheckoutRequest) (*subscription.CheckoutLink, error) {
	s.got = req
	return s.link, s.err
}

func TestCheckoutHandler(t *testing.T) {
	t.Parallel()

	link := &subscription.CheckoutLink{
		URL:       "https://checkout.example.com/txn_1",
		SessionID: "txn_1",
		ExpiresAt: testNow.Add(24 * time.Hour),
	}

	tests := []struct {
		name       string
		stub       *stubCheckout
		account    string
		body       string
		wantStatus int
	}{
		{name: "created", stub: &stubCheckout{link: link}, account: testAccount.String(), body: `{"plan_id":"pri_pro","email":"a@example.com"}`, wantStatus: http.StatusCreated},
		{name: "missing plan", stub: &stubCheckout{err: subscription.ErrMissingPlanID}, account: testAccount.String(), body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "missing success url", stub: &stubCheckout{err: subscription.ErrMissingSuccessURL}, account: testAccount.String(), body: `{"plan_id":"price_pro"}`, wantStatus: http.StatusBadRequest},
		{name: "invalid body", stub: &stubCheckout{}, account: testAccount.String(), body: `{`, wantStatus: http.StatusBadRequest},
		{name: "invalid account", stub: &stubCheckout{}, account: "42", body: `{"plan_id":"pri_pro"}`, wantStatus: http.StatusBadRequest},
		{name: "provider failure", stub: &stubCheckout{err: errors.New("paddle: 500")}, account: testAccount.String(), body: `{"plan_id":"pri_pro"}`, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := chi.NewRouter()
			r.Post("/accounts/{accountID}/checkout", subscription.CheckoutHandler(tt.stub, nil))

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounts/"+tt.account+"/checkout", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusCreated {
				var resp map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, link.URL, resp["url"])
				assert.Equal(t, link.SessionID, resp["session_id"])
				assert.Equal(t, testAccount, tt.stub.got.AccountID)
				assert.Equal(t, "pri_pro", tt.stub.got.PlanID)
				assert.Equal(t, "a@example.com", tt.stub.got.Email)
			}
		})
	}
}
