package subscription

import (
	"log/slog"
	"time"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger. Default discards output.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for period checks and ledger timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithBillingPeriod sets the window granted by a completed checkout.
func WithBillingPeriod(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.resolver = NewResolver(d)
	}
}

// WithLedger uses a ledger separate from the store.
// Without an explicit WithReservationMode this selects ReservationCommitFirst.
func WithLedger(ledger Ledger) EngineOption {
	return func(e *Engine) {
		if ledger != nil {
			e.ledger = ledger
		}
	}
}

// WithReservationMode selects how the ledger and the store write are ordered.
func WithReservationMode(mode ReservationMode) EngineOption {
	return func(e *Engine) {
		if mode != "" {
			e.mode = mode
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
