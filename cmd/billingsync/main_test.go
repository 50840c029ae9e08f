package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/config"
	"github.com/dmitrymomot/billingsync/pkg/httpserver"
	"github.com/dmitrymomot/billingsync/pkg/requestid"
	"github.com/dmitrymomot/billingsync/pkg/subscription"
	"github.com/dmitrymomot/billingsync/pkg/webhook"
)

const testSecret = "whsec_router"

func newStripeEngine(t *testing.T, store subscription.Store) *subscription.Engine {
	t.Helper()
	provider, err := subscription.NewProvider(subscription.Config{
		Provider:      subscription.ProviderStripe,
		WebhookSecret: testSecret,
		MaxClockSkew:  5 * time.Minute,
	})
	require.NoError(t, err)
	engine, err := subscription.NewEngine(provider, store)
	require.NoError(t, err)
	return engine
}

func checkoutEvent(t *testing.T, account uuid.UUID, created time.Time) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":      "evt_router_1",
		"object":  "event",
		"type":    "checkout.session.completed",
		"created": created.Unix(),
		"data": map[string]any{"object": map[string]any{
			"id":           "cs_1",
			"mode":         "subscription",
			"subscription": "sub_1",
			"metadata":     map[string]any{"account_id": account.String(), "plan_id": "pro"},
		}},
	})
	require.NoError(t, err)
	return b
}

func serve(h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	engine := newStripeEngine(t, store)
	router := newRouter(engine, subscription.NewEntitlements(store, nil), nil, nil)

	account := uuid.New()
	now := time.Now()
	payload := checkoutEvent(t, account, now)
	signature, err := webhook.SignatureHeader(testSecret, payload, now)
	require.NoError(t, err)

	rec := serve(router, http.MethodPost, "/webhooks/billing", string(payload),
		http.Header{subscription.StripeSignatureHeader: {signature}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/webhooks/billing", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(router, http.MethodGet, "/accounts/"+account.String()+"/subscription", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view subscription.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, subscription.StatusActive, view.Status)
	assert.Equal(t, "pro", view.PlanID)
	assert.True(t, view.IsActive)

	rec = serve(router, http.MethodGet, "/accounts/not-a-uuid/subscription", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Without an API key the checkout route is not mounted.
	rec = serve(router, http.MethodPost, "/accounts/"+account.String()+"/checkout", `{"plan_id":"pro"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodGet, "/healthz", "", http.Header{requestid.Header: {"probe-1"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "probe-1", rec.Header().Get(requestid.Header))
}

func TestRouter_Checkout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      subscription.Config
		wantCode int
	}{
		{
			name:     "paddle with api key",
			cfg:      subscription.Config{Provider: subscription.ProviderPaddle, WebhookSecret: "pdl_ntfset_secret", PaddleAPIKey: "pdl_sdbx_apikey", PaddleEnvironment: "sandbox"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "paddle without api key",
			cfg:      subscription.Config{Provider: subscription.ProviderPaddle, WebhookSecret: "pdl_ntfset_secret"},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "stripe with api key",
			cfg:      subscription.Config{Provider: subscription.ProviderStripe, WebhookSecret: testSecret, StripeAPIKey: "sk_test_router"},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider, err := subscription.NewProvider(tt.cfg)
			require.NoError(t, err)
			store := subscription.NewMemoryStore()
			engine, err := subscription.NewEngine(provider, store)
			require.NoError(t, err)

			router := newRouter(engine, subscription.NewEntitlements(store, nil), nil, nil)
			rec := serve(router, http.MethodPost, "/accounts/"+uuid.NewString()+"/checkout", "not json", nil)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRouter_Readiness(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	checks := []httpserver.Check{{
		Name:  "postgres",
		Probe: func(context.Context) error { return errors.New("connection refused") },
	}}
	router := newRouter(newStripeEngine(t, store), subscription.NewEntitlements(store, nil), checks, nil)

	rec := serve(router, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")
}

func TestOpenBackends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		app     appConfig
		wantErr error
		check   func(t *testing.T, b *backends)
	}{
		{
			name: "memory store uses its own ledger",
			app:  appConfig{StoreDriver: "memory"},
			check: func(t *testing.T, b *backends) {
				assert.IsType(t, &subscription.MemoryStore{}, b.store)
				assert.Nil(t, b.ledger)
				assert.Empty(t, b.checks)
			},
		},
		{
			name: "memory ledger shares the store ledger",
			app:  appConfig{StoreDriver: "memory", LedgerDriver: "memory"},
			check: func(t *testing.T, b *backends) {
				ms := b.store.(*subscription.MemoryStore)
				assert.Same(t, ms.Processed(), b.ledger)
			},
		},
		{
			name:    "postgres ledger needs postgres store",
			app:     appConfig{StoreDriver: "memory", LedgerDriver: "postgres"},
			wantErr: errUnknownDriver,
		},
		{
			name:    "unknown store",
			app:     appConfig{StoreDriver: "sqlite"},
			wantErr: errUnknownDriver,
		},
		{
			name:    "unknown ledger",
			app:     appConfig{StoreDriver: "memory", LedgerDriver: "etcd"},
			wantErr: errUnknownDriver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := openBackends(t.Context(), tt.app, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			t.Cleanup(b.Close)
			tt.check(t, b)
		})
	}
}

func TestOpenBackends_RedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr()+"/0")
	t.Setenv("REDIS_KEY_PREFIX", "test:event:")
	config.ResetCache()
	t.Cleanup(config.ResetCache)

	b, err := openBackends(t.Context(), appConfig{StoreDriver: "memory", LedgerDriver: "redis"}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	require.IsType(t, &subscription.RedisLedger{}, b.ledger)
	require.Len(t, b.checks, 1)
	assert.Equal(t, "redis", b.checks[0].Name)
	assert.NoError(t, b.checks[0].Probe(t.Context()))

	fresh, err := b.ledger.Reserve(t.Context(), "evt_1", time.Now())
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.True(t, mr.Exists("test:event:evt_1"))
}
