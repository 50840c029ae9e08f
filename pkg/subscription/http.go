package subscription

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// MaxWebhookBodySize caps the notification body read by WebhookHandler.
const MaxWebhookBodySize = 1 << 20

// StatusCode maps an Ingest error to the HTTP status returned to the provider.
// 4xx tells the provider not to retry; 5xx asks for redelivery.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrStaleEvent),
		errors.Is(err, ErrMalformedEvent):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WebhookHandler returns the provider notification endpoint.
// The body is read raw, capped at MaxWebhookBodySize, and acknowledged only
// after the engine has finished applying it.
func WebhookHandler(engine *Engine, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = discardLogger()
	}
	header := engine.Provider().SignatureHeader()

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodySize))
		if err != nil {
			// Oversized or truncated bodies cannot be authenticated.
			log.LogAttrs(r.Context(), slog.LevelWarn, "failed to read billing webhook body", logger.Error(err))
			writeJSONError(w, http.StatusBadRequest, publicMessage(http.StatusBadRequest))
			return
		}

		if _, err := engine.Ingest(r.Context(), payload, r.Header.Get(header)); err != nil {
			status := StatusCode(err)
			writeJSONError(w, status, publicMessage(status))
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

// EntitlementHandler serves GET /accounts/{accountID}/subscription.
func EntitlementHandler(q *Entitlements, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = discardLogger()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid account id")
			return
		}

		view, err := q.Get(r.Context(), accountID)
		if err != nil {
			log.LogAttrs(r.Context(), slog.LevelError, "failed to load subscription",
				logger.AccountID(accountID),
				logger.Error(err),
			)
			status := StatusCode(err)
			writeJSONError(w, status, publicMessage(status))
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

type checkoutRequest struct {
	PlanID     string `json:"plan_id"`
	Email      string `json:"email"`
	SuccessURL string `json:"success_url"`
}

// CheckoutHandler serves POST /accounts/{accountID}/checkout.
func CheckoutHandler(starter CheckoutStarter, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = discardLogger()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid account id")
			return
		}

		var req checkoutRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		link, err := starter.StartCheckout(r.Context(), CheckoutRequest{
			AccountID:  accountID,
			PlanID:     req.PlanID,
			Email:      req.Email,
			SuccessURL: req.SuccessURL,
		})
		switch {
		case errors.Is(err, ErrMissingPlanID), errors.Is(err, ErrMissingAccountID), errors.Is(err, ErrMissingSuccessURL):
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			log.LogAttrs(r.Context(), slog.LevelError, "failed to start checkout",
				logger.AccountID(accountID),
				logger.Error(err),
			)
			writeJSONError(w, http.StatusBadGateway, "checkout unavailable")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"url":        link.URL,
			"session_id": link.SessionID,
			"expires_at": link.ExpiresAt,
		})
	}
}

// publicMessage keeps internal error details out of responses.
func publicMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "event rejected"
	case http.StatusServiceUnavailable:
		return "temporarily unavailable"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
