package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/billingsync/pkg/httpserver"
	"github.com/dmitrymomot/billingsync/pkg/requestid"
	"github.com/dmitrymomot/billingsync/pkg/subscription"
)

func newRouter(engine *subscription.Engine, q *subscription.Entitlements, checks []httpserver.Check, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, checks...))

	// The handler answers non-POST methods itself.
	r.Handle("/webhooks/billing", subscription.WebhookHandler(engine, log))

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Get("/subscription", subscription.EntitlementHandler(q, log))
		if starter, ok := subscription.CheckoutStarterFor(engine.Provider()); ok {
			r.Post("/checkout", subscription.CheckoutHandler(starter, log))
		}
	})

	return r
}
