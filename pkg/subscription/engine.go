package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// Outcome reports what Ingest did with one notification.
type Outcome struct {
	EventID   string
	Kind      EventKind
	AccountID uuid.UUID
	Result    Result
	Reason    string
	Record    *Record // Current record after processing; nil for ignored and duplicate events
}

// Engine runs the ingestion pipeline: authenticate, classify, resolve the
// account, then apply the event exactly once.
type Engine struct {
	provider Provider
	store    Store
	ledger   Ledger
	mode     ReservationMode
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine wires a provider to a store.
// Panics if provider or store is nil. Returns an error if the reservation
// mode cannot be satisfied by the given store and ledger.
func NewEngine(provider Provider, store Store, opts ...EngineOption) (*Engine, error) {
	if provider == nil {
		panic("subscription: nil provider")
	}
	if store == nil {
		panic("subscription: nil store")
	}

	e := &Engine{
		provider: provider,
		store:    store,
		resolver: NewResolver(DefaultBillingPeriod),
		logger:   discardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	_, atomic := store.(AtomicStore)
	if e.mode == "" {
		switch {
		case e.ledger == nil && atomic:
			e.mode = ReservationAtomic
		default:
			e.mode = ReservationCommitFirst
		}
	}

	switch e.mode {
	case ReservationAtomic:
		if !atomic {
			return nil, fmt.Errorf("%w: store does not support atomic apply", ErrInvalidStrategy)
		}
	case ReservationReserveFirst, ReservationCommitFirst:
		if e.ledger == nil {
			// Stores such as PostgresStore double as their own ledger.
			l, ok := store.(Ledger)
			if !ok {
				return nil, ErrLedgerRequired
			}
			e.ledger = l
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, e.mode)
	}

	return e, nil
}

// Provider returns the provider the engine authenticates against.
func (e *Engine) Provider() Provider {
	return e.provider
}

// Mode returns the effective reservation mode.
func (e *Engine) Mode() ReservationMode {
	return e.mode
}

// Ingest processes one raw notification. The payload must be the exact bytes
// received. A nil error means the provider may be acknowledged; duplicates,
// no-ops and unrecognized events are not errors.
func (e *Engine) Ingest(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if err := e.provider.Authenticate(ctx, payload, signature); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "rejected billing event",
			logger.Provider(e.provider.Name()),
			logger.Error(err),
		)
		return Outcome{}, err
	}

	ev, err := e.provider.Classify(payload)
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "malformed billing event",
			logger.Provider(e.provider.Name()),
			logger.Error(err),
		)
		return Outcome{}, err
	}

	ctx = SetEventIDToContext(ctx, ev.ID)
	out := Outcome{EventID: ev.ID, Kind: ev.Kind()}

	if out.Kind == KindUnrecognized {
		out.Result = ResultIgnored
		e.logger.LogAttrs(ctx, slog.LevelDebug, "ignored billing event",
			logger.EventID(ev.ID),
			logger.EventType(ev.Type),
		)
		return out, nil
	}

	accountID, err := e.resolveAccount(ctx, ev)
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "failed to resolve account for billing event",
			logger.EventID(ev.ID),
			logger.EventType(ev.Type),
			slog.String("external_subscription_id", ev.Key.ExternalSubscriptionID),
			logger.Error(err),
		)
		return out, err
	}
	out.AccountID = accountID
	ev.Key.AccountID = accountID

	start := e.now()
	out, err = e.apply(ctx, ev, out)
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "failed to apply billing event",
			logger.EventID(ev.ID),
			logger.EventKind(ev.Kind()),
			logger.AccountID(accountID),
			logger.Error(err),
		)
		return out, err
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "processed billing event",
		logger.EventID(ev.ID),
		logger.EventKind(ev.Kind()),
		logger.AccountID(accountID),
		logger.Outcome(out.Result),
		logger.Reason(out.Reason),
		logger.Duration(e.now().Sub(start)),
	)
	return out, nil
}

func (e *Engine) resolveAccount(ctx context.Context, ev Event) (uuid.UUID, error) {
	if ev.Key.AccountID != uuid.Nil {
		return ev.Key.AccountID, nil
	}
	if ev.Key.ExternalSubscriptionID == "" {
		return uuid.Nil, ErrAccountNotResolved
	}

	id, err := e.store.FindAccountByExternalID(ctx, ev.Key.ExternalSubscriptionID)
	if errors.Is(err, ErrRecordNotFound) {
		return uuid.Nil, fmt.Errorf("%w: no record bound to %s", ErrAccountNotResolved, ev.Key.ExternalSubscriptionID)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (e *Engine) apply(ctx context.Context, ev Event, out Outcome) (Outcome, error) {
	var decision Decision
	fn := func(current *Record) (*Record, error) {
		decision = e.resolver.Resolve(current, ev, e.now())
		if !decision.Applied {
			return nil, nil
		}
		next := decision.Record
		return &next, nil
	}

	var (
		rec *Record
		err error
	)
	switch e.mode {
	case ReservationAtomic:
		rec, err = e.store.(AtomicStore).ApplyOnce(ctx, ev.ID, out.AccountID, e.now(), fn)
		if errors.Is(err, ErrDuplicateEvent) {
			out.Result = ResultDuplicate
			return out, nil
		}

	case ReservationReserveFirst:
		fresh, rerr := e.ledger.Reserve(ctx, ev.ID, e.now())
		if rerr != nil {
			return out, rerr
		}
		if !fresh {
			out.Result = ResultDuplicate
			return out, nil
		}
		rec, err = e.store.Update(ctx, out.AccountID, fn)
		if err != nil {
			if relErr := e.ledger.Release(ctx, ev.ID); relErr != nil {
				// The event stays reserved without its state change until an operator
				// releases it; redeliveries will be treated as duplicates.
				e.logger.LogAttrs(ctx, slog.LevelError, "failed to release billing event reservation",
					logger.EventID(ev.ID),
					logger.AccountID(out.AccountID),
					logger.Errors(err, relErr),
				)
			}
		}

	case ReservationCommitFirst:
		seen, cerr := e.ledger.Contains(ctx, ev.ID)
		if cerr != nil {
			return out, cerr
		}
		if seen {
			out.Result = ResultDuplicate
			return out, nil
		}
		rec, err = e.store.Update(ctx, out.AccountID, fn)
		if err == nil {
			// A racing duplicate may reserve first; re-applying the same event is a no-op.
			if _, rerr := e.ledger.Reserve(ctx, ev.ID, e.now()); rerr != nil {
				return out, rerr
			}
		}
	}

	if err != nil {
		return out, err
	}

	out.Record = rec
	out.Reason = decision.Reason
	out.Result = ResultNoOp
	if decision.Applied {
		out.Result = ResultApplied
	}
	return out, nil
}
