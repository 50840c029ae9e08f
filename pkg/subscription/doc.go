// Package subscription keeps one locally persisted subscription record per
// account in sync with an external payment provider.
//
// Providers deliver notifications at least once and in no particular order.
// Engine.Ingest authenticates the raw body, classifies it into a typed Event,
// finds the account it belongs to, and applies it exactly once through the
// pure Resolver:
//
//	provider, _ := subscription.NewStripeProvider(subscription.StripeConfig{WebhookSecret: secret})
//	engine, err := subscription.NewEngine(provider, subscription.NewPostgresStore(db),
//		subscription.WithLogger(log),
//	)
//	r.Post("/webhooks/billing", subscription.WebhookHandler(engine, log))
//
// # Ordering
//
// The record tracks the occurrence time of the newest applied event and the
// provider subscription it is bound to. Older events are no-ops, events for a
// subscription other than the bound one are no-ops, and a deletion is
// final for its subscription regardless of arrival order. A newer checkout
// starts a new subscription.
//
// # Idempotency
//
// Processed event IDs live in a Ledger. With an AtomicStore (MemoryStore,
// PostgresStore) the ledger entry and the record change commit together.
// A separate ledger (RedisLedger) is coordinated in one of two orders, see
// ReservationMode.
//
// # Reading
//
// Entitlements.Get reports the current status and whether the account is
// entitled now; an elapsed period is inactive even if no event said so.
package subscription
